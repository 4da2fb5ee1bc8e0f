package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// QuoteInput is a trader's offer. An empty GoodsAmountSAR is derived from
// the per-item prices.
type QuoteInput struct {
	GoodsAmountSAR   string `validate:"omitempty,money"`
	ItemPrices       map[int]string
	PartsType        string `validate:"max=32"`
	ShipMethod       string `validate:"max=32"`
	ShipCarrier      string `validate:"max=64"`
	ShipETA          string `validate:"max=64"`
	ShipIncluded     bool
	AvailabilityDays int    `validate:"min=0,max=365"`
	ShippingFeeSAR   string `validate:"omitempty,money"`
}

// Quote is one offer as recorded in the event log.
type Quote struct {
	TraderID         int64
	TraderName       string
	GoodsAmountSAR   string
	ItemPrices       map[int]string
	PartsType        string
	ShipMethod       string
	ShipCarrier      string
	ShipETA          string
	ShipIncluded     bool
	AvailabilityDays int
	ShippingFeeSAR   string
	Overridden       bool
	SubmittedAt      time.Time
}

// normalizeQuote validates input against the order and returns the stored
// amounts.
func (s *OrderService) normalizeQuote(o *entities.Order, in QuoteInput) (QuoteInput, error) {
	if err := validateStruct(s.validate, in); err != nil {
		return in, err
	}
	prices := make(map[int]string, len(in.ItemPrices))
	sum := decimal.Zero
	for idx, raw := range in.ItemPrices {
		if idx < 1 || idx > o.ItemsCount {
			return in, apperrors.NewValidationError("item %d does not exist on order %s", idx, o.ID)
		}
		d, err := money.Parse(raw)
		if err != nil {
			return in, apperrors.NewValidationError("item %d price: %v", idx, err)
		}
		prices[idx] = money.Store(d)
		sum = sum.Add(d)
	}
	in.ItemPrices = prices

	switch {
	case strings.TrimSpace(in.GoodsAmountSAR) != "":
		v, err := money.Normalize(in.GoodsAmountSAR)
		if err != nil {
			return in, apperrors.NewValidationError("goods amount: %v", err)
		}
		in.GoodsAmountSAR = v
	case len(prices) > 0:
		in.GoodsAmountSAR = money.Store(sum)
	default:
		return in, apperrors.NewValidationError("goods amount or item prices are required")
	}

	if strings.TrimSpace(in.ShippingFeeSAR) != "" {
		v, err := money.Normalize(in.ShippingFeeSAR)
		if err != nil {
			return in, apperrors.NewValidationError("shipping fee: %v", err)
		}
		in.ShippingFeeSAR = v
	}
	in.PartsType = strings.TrimSpace(in.PartsType)
	in.ShipMethod = strings.TrimSpace(in.ShipMethod)
	in.ShipCarrier = strings.TrimSpace(in.ShipCarrier)
	in.ShipETA = strings.TrimSpace(in.ShipETA)
	return in, nil
}

func quotePatch(q QuoteInput) repositories.Record {
	return repositories.Record{
		entities.ColGoodsAmountSAR:   q.GoodsAmountSAR,
		entities.ColQuoteItemPrices:  entities.FormatItemPrices(q.ItemPrices),
		entities.ColPartsType:        q.PartsType,
		entities.ColShipMethod:       q.ShipMethod,
		entities.ColShipCarrier:      q.ShipCarrier,
		entities.ColShipETA:          q.ShipETA,
		entities.ColShipIncluded:     utils.FormatBool(q.ShipIncluded),
		entities.ColAvailabilityDays: strconv.Itoa(q.AvailabilityDays),
		entities.ColShippingFeeSAR:   q.ShippingFeeSAR,
	}
}

// quotePayload keeps every value a string so the event row reads back the
// same way regardless of JSON number handling.
func quotePayload(traderID int64, traderName string, q QuoteInput) map[string]interface{} {
	return map[string]interface{}{
		"trader_id":         utils.FormatID(traderID),
		"trader_name":       traderName,
		"goods_amount_sar":  q.GoodsAmountSAR,
		"item_prices":       entities.FormatItemPrices(q.ItemPrices),
		"parts_type":        q.PartsType,
		"ship_method":       q.ShipMethod,
		"ship_carrier":      q.ShipCarrier,
		"ship_eta":          q.ShipETA,
		"ship_included":     utils.FormatBool(q.ShipIncluded),
		"availability_days": strconv.Itoa(q.AvailabilityDays),
		"shipping_fee_sar":  q.ShippingFeeSAR,
	}
}

func payloadString(p map[string]interface{}, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func quoteFromEvent(ev entities.Event) (Quote, bool) {
	if ev.Type != entities.EventQuoteSubmitted && ev.Type != entities.EventQuoteOverridden {
		return Quote{}, false
	}
	p := ev.Payload
	traderID := utils.ParseID(payloadString(p, "trader_id"))
	if traderID == 0 {
		return Quote{}, false
	}
	return Quote{
		TraderID:         traderID,
		TraderName:       payloadString(p, "trader_name"),
		GoodsAmountSAR:   payloadString(p, "goods_amount_sar"),
		ItemPrices:       entities.ParseItemPrices(payloadString(p, "item_prices")),
		PartsType:        payloadString(p, "parts_type"),
		ShipMethod:       payloadString(p, "ship_method"),
		ShipCarrier:      payloadString(p, "ship_carrier"),
		ShipETA:          payloadString(p, "ship_eta"),
		ShipIncluded:     utils.ParseBool(payloadString(p, "ship_included")),
		AvailabilityDays: utils.ParseInt(payloadString(p, "availability_days")),
		ShippingFeeSAR:   payloadString(p, "shipping_fee_sar"),
		Overridden:       ev.Type == entities.EventQuoteOverridden,
		SubmittedAt:      ev.CreatedAt,
	}, true
}

// latestQuotes keeps the most recent quote per trader, ordered by time.
func latestQuotes(evs []entities.Event) []Quote {
	byTrader := map[int64]Quote{}
	for _, ev := range evs {
		q, ok := quoteFromEvent(ev)
		if !ok {
			continue
		}
		byTrader[q.TraderID] = q
	}
	out := make([]Quote, 0, len(byTrader))
	for _, q := range byTrader {
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].TraderID < out[j].TraderID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

func quoteAsInput(q Quote) QuoteInput {
	return QuoteInput{
		GoodsAmountSAR:   q.GoodsAmountSAR,
		ItemPrices:       q.ItemPrices,
		PartsType:        q.PartsType,
		ShipMethod:       q.ShipMethod,
		ShipCarrier:      q.ShipCarrier,
		ShipETA:          q.ShipETA,
		ShipIncluded:     q.ShipIncluded,
		AvailabilityDays: q.AvailabilityDays,
		ShippingFeeSAR:   q.ShippingFeeSAR,
	}
}

// ListQuotes returns the latest quote of every trader. Traders only see
// their own.
func (s *OrderService) ListQuotes(ctx context.Context, actor entities.Actor, orderID string) ([]Quote, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	evs, err := s.historyRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	quotes := latestQuotes(evs)
	if actor.Role != entities.RoleTrader {
		return quotes, nil
	}
	own := quotes[:0]
	for _, q := range quotes {
		if q.TraderID == actor.ID {
			own = append(own, q)
		}
	}
	return own, nil
}

// SubmitQuote records an offer from an eligible trader. A trader quoting
// again replaces its own earlier offer.
func (s *OrderService) SubmitQuote(ctx context.Context, actor entities.Actor, orderID string, quote QuoteInput) (*entities.Order, error) {
	return s.transition(ctx, "submit_quote", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if actor.Role != entities.RoleTrader {
			return nil, apperrors.NewAuthorizationError("only traders can quote")
		}
		eligible, err := s.subs.EligibleInTx(tx, actor.ID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, apperrors.NewAuthorizationError("trader %d has no active subscription", actor.ID)
		}
		if o.QuoteLocked {
			return nil, apperrors.NewStateError("quoting on order %s is closed", o.ID)
		}
		if err := requireState(o, "quote on", entities.StateQuoteBroadcast, entities.StateQuoteOffered); err != nil {
			return nil, err
		}
		q, err := s.normalizeQuote(o, quote)
		if err != nil {
			return nil, err
		}
		patch := quotePatch(q)
		patch[entities.ColQuoteStatus] = string(entities.QuoteOffered)
		patch[entities.ColQuotedTraderID] = utils.FormatID(actor.ID)
		patch[entities.ColQuotedTraderName] = actor.Name
		return &change{
			to:      entities.StateQuoteOffered,
			patch:   patch,
			event:   entities.EventQuoteSubmitted,
			payload: quotePayload(actor.ID, actor.Name, q),
		}, nil
	})
}

// AdminOverrideQuote rewrites the offer of the accepted trader, or of the
// last quoting trader before acceptance. It is the only way to change a
// locked quote.
func (s *OrderService) AdminOverrideQuote(ctx context.Context, actor entities.Actor, orderID string, quote QuoteInput) (*entities.Order, error) {
	return s.transition(ctx, "override_quote", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "override the quote of",
			entities.StateQuoteOffered, entities.StateQuoteAccepted, entities.StateGoodsPayMethod,
			entities.StateAwaitGoodsReceipt, entities.StateAwaitGoodsConfirm); err != nil {
			return nil, err
		}
		traderID, traderName := o.AcceptedTraderID, o.AcceptedTraderName
		if traderID == 0 {
			traderID, traderName = o.QuotedTraderID, o.QuotedTraderName
		}
		if traderID == 0 {
			return nil, apperrors.NewStateError("order %s has no quote to override", o.ID)
		}
		q, err := s.normalizeQuote(o, quote)
		if err != nil {
			return nil, err
		}
		payload := quotePayload(traderID, traderName, q)
		payload["admin_id"] = utils.FormatID(actor.ID)
		return &change{
			patch:   quotePatch(q),
			event:   entities.EventQuoteOverridden,
			payload: payload,
		}, nil
	})
}

// AcceptQuote locks quoting on the chosen trader's latest offer and opens
// the customer/trader chat window.
func (s *OrderService) AcceptQuote(ctx context.Context, actor entities.Actor, orderID string, traderID int64) (*entities.Order, error) {
	return s.transition(ctx, "accept_quote", orderID, actor, func(tx *repositories.Tx, o *entities.Order, st Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if o.QuoteLocked {
			return nil, apperrors.NewStateError("order %s already has an accepted quote", o.ID)
		}
		if err := requireState(o, "accept a quote on", entities.StateQuoteOffered); err != nil {
			return nil, err
		}
		evs, err := s.historyRepo.FindByOrderIDInTx(tx, o.ID)
		if err != nil {
			return nil, err
		}
		var chosen *Quote
		for _, q := range latestQuotes(evs) {
			if q.TraderID == traderID {
				q := q
				chosen = &q
			}
		}
		if chosen == nil {
			return nil, apperrors.NewValidationError("trader %d did not quote on order %s", traderID, o.ID)
		}
		trader, err := s.traderRepo.FindInTx(tx, traderID)
		if err != nil {
			return nil, err
		}
		if !trader.IsEnabled {
			return nil, apperrors.NewStateError("trader %d is disabled", traderID)
		}

		expiry := st.ChatExpiry
		if expiry < time.Second {
			expiry = time.Second
		}
		now := tx.Now()
		name := chosen.TraderName
		if name == "" {
			name = trader.DisplayName
		}
		patch := quotePatch(quoteAsInput(*chosen))
		patch[entities.ColQuoteStatus] = string(entities.QuoteAccepted)
		patch[entities.ColQuoteLocked] = utils.FormatBool(true)
		patch[entities.ColQuotedTraderID] = utils.FormatID(traderID)
		patch[entities.ColQuotedTraderName] = name
		patch[entities.ColAcceptedTraderID] = utils.FormatID(traderID)
		patch[entities.ColAcceptedTraderName] = name
		patch[entities.ColAcceptedAt] = utils.FormatUTC(now)
		patch[entities.ColAcceptedTraderNotified] = utils.FormatBool(false)
		patch[entities.ColChatExpiresAt] = utils.FormatUTC(now.Add(expiry))
		return &change{
			to:    entities.StateQuoteAccepted,
			patch: patch,
			event: entities.EventQuoteAccepted,
			payload: map[string]interface{}{
				"trader_id":        utils.FormatID(traderID),
				"goods_amount_sar": chosen.GoodsAmountSAR,
				"chat_expires_at":  utils.FormatUTC(now.Add(expiry)),
			},
		}, nil
	})
}

// MarkTraderNotified records that the accepted trader was told about the
// award and moves the order on to the goods payment.
func (s *OrderService) MarkTraderNotified(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "mark_trader_notified", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if actor.Role != entities.RoleSystem {
			if err := s.requireAdmin(actor); err != nil {
				return nil, err
			}
		}
		if o.AcceptedTraderID == 0 {
			return nil, apperrors.NewStateError("order %s has no accepted trader", o.ID)
		}
		advance := o.State == entities.StateQuoteAccepted
		if o.AcceptedTraderNotified && !advance {
			return nil, nil
		}
		ch := &change{
			patch:   repositories.Record{entities.ColAcceptedTraderNotified: utils.FormatBool(true)},
			event:   entities.EventTraderNotified,
			payload: map[string]interface{}{"trader_id": utils.FormatID(o.AcceptedTraderID)},
		}
		if advance {
			ch.to = entities.StateGoodsPayMethod
		}
		return ch, nil
	})
}

// Rebroadcast announces the order again when it is enabled, the cooldown
// has passed and the cap is not reached.
func (s *OrderService) Rebroadcast(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "rebroadcast", orderID, actor, func(tx *repositories.Tx, o *entities.Order, st Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "re-broadcast", entities.StateQuoteBroadcast, entities.StateQuoteOffered); err != nil {
			return nil, err
		}
		if o.RebroadcastDisabled {
			return nil, apperrors.NewStateError("re-broadcast is disabled for order %s", o.ID)
		}
		if o.RebroadcastCount >= st.RebroadcastMax {
			return nil, apperrors.NewStateError("order %s reached the re-broadcast limit of %d", o.ID, st.RebroadcastMax)
		}
		now := tx.Now()
		last := o.LastGroupBroadcastAt
		if last.IsZero() {
			last = o.ForwardedToTeamAt
		}
		if !last.IsZero() && now.Sub(last) < st.RebroadcastCooldown {
			wait := st.RebroadcastCooldown - now.Sub(last)
			return nil, apperrors.NewStateError("order %s can be re-broadcast in %s", o.ID, utils.FormatSecondsToHumanReadable(wait))
		}
		count := o.RebroadcastCount + 1
		return &change{
			patch: repositories.Record{
				entities.ColRebroadcastCount:     strconv.Itoa(count),
				entities.ColLastGroupBroadcastAt: utils.FormatUTC(now),
			},
			event:       entities.EventRebroadcast,
			payload:     map[string]interface{}{"count": count},
			broadcast:   true,
			rebroadcast: true,
		}, nil
	})
}

func (s *OrderService) DisableRebroadcast(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "disable_rebroadcast", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if o.RebroadcastDisabled {
			return nil, nil
		}
		if o.State.IsTerminal() {
			return nil, apperrors.NewStateError("order %s is closed", o.ID)
		}
		return &change{
			patch: repositories.Record{
				entities.ColRebroadcastDisabled:     utils.FormatBool(true),
				entities.ColRebroadcastDisabledAt:   utils.FormatUTC(tx.Now()),
				entities.ColRebroadcastDisabledByID: utils.FormatID(actor.ID),
			},
			event:        entities.EventRebroadcastDisabled,
			legal:        entities.LegalRebroadcastDisabled,
			legalDetails: o.ID,
		}, nil
	})
}
