package services

import (
	"context"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// Payment methods accepted for the pre-payment and the goods payment.
const (
	MethodBank   = "bank"
	MethodSTCPay = "stc_pay"
	MethodCard   = "card"
)

type paymentMethodInput struct {
	Method string `validate:"required,oneof=bank stc_pay card"`
}

type fileInput struct {
	FileID string `validate:"required,max=256"`
}

func (s *OrderService) ChoosePaymentMethod(ctx context.Context, actor entities.Actor, orderID, method string) (*entities.Order, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if err := validateStruct(s.validate, paymentMethodInput{Method: method}); err != nil {
		return nil, err
	}
	return s.transition(ctx, "choose_payment_method", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if err := requireState(o, "choose a payment method for", entities.StatePayMethod); err != nil {
			return nil, err
		}
		return &change{
			to: entities.StateAwaitReceipt,
			patch: repositories.Record{
				entities.ColPaymentMethod:  method,
				entities.ColPaymentStatus:  string(entities.PaymentAwaiting),
				entities.ColPayMethodSetAt: utils.FormatUTC(tx.Now()),
			},
			event:   entities.EventPaymentMethodChosen,
			payload: map[string]interface{}{"method": method},
		}, nil
	})
}

func (s *OrderService) SubmitReceipt(ctx context.Context, actor entities.Actor, orderID, fileID string) (*entities.Order, error) {
	if err := validateStruct(s.validate, fileInput{FileID: fileID}); err != nil {
		return nil, err
	}
	return s.transition(ctx, "submit_receipt", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if err := requireState(o, "submit a receipt for", entities.StateAwaitReceipt); err != nil {
			return nil, err
		}
		return &change{
			to: entities.StateAwaitPaymentConfirm,
			patch: repositories.Record{
				entities.ColReceiptFileID: fileID,
				entities.ColPaymentStatus: string(entities.PaymentAwaiting),
			},
			event:   entities.EventReceiptSubmitted,
			payload: map[string]interface{}{"file_id": fileID},
		}, nil
	})
}

// ConfirmPrepayment records the price charged to the customer and announces
// the order to eligible traders. Without a receipt the confirmation is
// legal-logged as manual.
func (s *OrderService) ConfirmPrepayment(ctx context.Context, actor entities.Actor, orderID, amount, method string) (*entities.Order, error) {
	price, err := money.Normalize(amount)
	if err != nil {
		return nil, apperrors.NewValidationError("price: %v", err)
	}
	method = strings.ToLower(strings.TrimSpace(method))
	return s.transition(ctx, "confirm_prepayment", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "confirm payment for",
			entities.StatePayMethod, entities.StateAwaitReceipt, entities.StateAwaitPaymentConfirm); err != nil {
			return nil, err
		}
		if method == "" {
			method = o.PaymentMethod
		}
		if err := validateStruct(s.validate, paymentMethodInput{Method: method}); err != nil {
			return nil, err
		}
		now := utils.FormatUTC(tx.Now())
		manual := o.ReceiptFileID == ""
		ch := &change{
			to: entities.StateQuoteBroadcast,
			patch: repositories.Record{
				entities.ColPriceSAR:             price,
				entities.ColPaymentMethod:        method,
				entities.ColPaymentStatus:        string(entities.PaymentConfirmed),
				entities.ColPaymentConfirmedAt:   now,
				entities.ColQuoteStatus:          string(entities.QuoteRequested),
				entities.ColLastGroupBroadcastAt: now,
				entities.ColForwardedToTeamAt:    now,
				entities.ColForwardedByAdminID:   utils.FormatID(actor.ID),
				entities.ColForwardedByAdminName: actor.Name,
			},
			event: entities.EventPaymentConfirmed,
			payload: map[string]interface{}{
				"price_sar": price,
				"method":    method,
				"manual":    manual,
			},
			broadcast: true,
		}
		if manual {
			ch.legal = entities.LegalPaymentConfirmedManual
			ch.legalDetails = o.ID + ": " + price + " SAR via " + method
		}
		return ch, nil
	})
}

func (s *OrderService) RejectPayment(ctx context.Context, actor entities.Actor, orderID, reason string) (*entities.Order, error) {
	return s.transition(ctx, "reject_payment", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "reject payment for", entities.StateAwaitPaymentConfirm); err != nil {
			return nil, err
		}
		return &change{
			to: entities.StateAwaitReceipt,
			patch: repositories.Record{
				entities.ColPaymentStatus:  string(entities.PaymentRejected),
				entities.ColReceiptFileID:  "",
				entities.ColPayMethodSetAt: utils.FormatUTC(tx.Now()),
			},
			event:   entities.EventPaymentRejected,
			payload: map[string]interface{}{"reason": strings.TrimSpace(reason)},
		}, nil
	})
}

type goodsMethodInput struct {
	Method string `validate:"required,oneof=bank stc_pay card"`
	Link   string `validate:"omitempty,url,max=512"`
}

// ChooseGoodsPaymentMethod is done by the platform on the trader's behalf.
func (s *OrderService) ChooseGoodsPaymentMethod(ctx context.Context, actor entities.Actor, orderID, method, link string) (*entities.Order, error) {
	in := goodsMethodInput{Method: strings.ToLower(strings.TrimSpace(method)), Link: strings.TrimSpace(link)}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	return s.transition(ctx, "choose_goods_payment_method", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "choose the goods payment method for",
			entities.StateQuoteAccepted, entities.StateGoodsPayMethod); err != nil {
			return nil, err
		}
		return &change{
			to: entities.StateAwaitGoodsReceipt,
			patch: repositories.Record{
				entities.ColGoodsPaymentMethod:  in.Method,
				entities.ColGoodsPaymentLink:    in.Link,
				entities.ColGoodsPaymentStatus:  string(entities.PaymentAwaiting),
				entities.ColGoodsPayMethodSetAt: utils.FormatUTC(tx.Now()),
			},
			event:   entities.EventGoodsMethodChosen,
			payload: map[string]interface{}{"method": in.Method},
		}, nil
	})
}

func (s *OrderService) SubmitGoodsReceipt(ctx context.Context, actor entities.Actor, orderID, fileID string) (*entities.Order, error) {
	if err := validateStruct(s.validate, fileInput{FileID: fileID}); err != nil {
		return nil, err
	}
	return s.transition(ctx, "submit_goods_receipt", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "submit a goods receipt for", entities.StateAwaitGoodsReceipt); err != nil {
			return nil, err
		}
		return &change{
			to:      entities.StateAwaitGoodsConfirm,
			patch:   repositories.Record{entities.ColGoodsReceiptFileID: fileID},
			event:   entities.EventGoodsReceiptSubmitted,
			payload: map[string]interface{}{"file_id": fileID},
		}, nil
	})
}

// ConfirmGoodsPayment marks the trader as paid and opens delivery choice.
func (s *OrderService) ConfirmGoodsPayment(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "confirm_goods_payment", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "confirm the goods payment for",
			entities.StateQuoteAccepted, entities.StateGoodsPayMethod,
			entities.StateAwaitGoodsReceipt, entities.StateAwaitGoodsConfirm); err != nil {
			return nil, err
		}
		if o.AcceptedTraderID == 0 {
			return nil, apperrors.NewInvariantError("order %s has no accepted trader", o.ID)
		}
		return &change{
			to: entities.StateDeliveryChoice,
			patch: repositories.Record{
				entities.ColGoodsPaymentStatus:      string(entities.PaymentConfirmed),
				entities.ColGoodsPaymentConfirmedAt: utils.FormatUTC(tx.Now()),
				entities.ColQuoteStatus:             string(entities.QuoteLocked),
			},
			event: entities.EventGoodsPaymentConfirmed,
			payload: map[string]interface{}{
				"trader_id":        utils.FormatID(o.AcceptedTraderID),
				"goods_amount_sar": o.GoodsAmountSAR,
				"manual":           o.GoodsReceiptFileID == "",
			},
		}, nil
	})
}

// AcknowledgeGoodsPayment stops the paid-trader reminders. Only the
// accepted trader may acknowledge; repeating it changes nothing.
func (s *OrderService) AcknowledgeGoodsPayment(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "acknowledge_goods_payment", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if actor.Role != entities.RoleTrader || actor.ID != o.AcceptedTraderID {
			return nil, apperrors.NewAuthorizationError("order %s was not awarded to you", o.ID)
		}
		if o.State.IsTerminal() || o.GoodsPaymentStatus != entities.PaymentConfirmed {
			return nil, apperrors.NewStateError("goods payment for order %s is not confirmed", o.ID)
		}
		if !o.TraderPaidAckAt.IsZero() {
			return nil, nil
		}
		return &change{
			patch: repositories.Record{entities.ColTraderPaidAckAt: utils.FormatUTC(tx.Now())},
			event: entities.EventGoodsPaymentAcked,
		}, nil
	})
}
