package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
)

func TestCreateOrder_StartsInPayMethod(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()

	assert.Equal(t, "PP-240310-0001", o.ID)
	assert.Equal(t, entities.StatePayMethod, o.State)
	assert.Equal(t, 2, o.ItemsCount)

	view, err := f.orders.GetOrder(f.ctx, customer, o.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Brake pads", view.Items[0].Name)
	assert.Equal(t, "04465-33471", view.Items[0].PartNo)
	assert.Equal(t, []string{entities.EventOrderCreated}, f.eventTypes(o.ID))
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]CreateOrderInput{
		"no items":    {Customer: customer, CarName: "Toyota", CarModel: "Camry"},
		"no car":      {Customer: customer, CarModel: "Camry", Items: []ItemInput{{Name: "Pads"}}},
		"bad vin":     {Customer: customer, CarName: "Toyota", CarModel: "Camry", VIN: "IOQ", Items: []ItemInput{{Name: "Pads"}}},
		"blank item":  {Customer: customer, CarName: "Toyota", CarModel: "Camry", Items: []ItemInput{{Name: ""}}},
		"no customer": {CarName: "Toyota", CarModel: "Camry", Items: []ItemInput{{Name: "Pads"}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(f.ctx, in)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), err)
		})
	}
}

func TestOrderIDs_ContiguousUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	const n = 12

	var (
		mu  sync.Mutex
		ids = map[string]bool{}
	)
	g, ctx := errgroup.WithContext(f.ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			o, err := f.orders.CreateOrder(ctx, CreateOrderInput{
				Customer: customer, CarName: "Kia", CarModel: "Rio",
				Items: []ItemInput{{Name: "Mirror"}},
			})
			if err != nil {
				return err
			}
			mu.Lock()
			ids[o.ID] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, ids, n)
	for i := 1; i <= n; i++ {
		assert.True(t, ids[fmt.Sprintf("PP-240310-%04d", i)], "missing sequence %d", i)
	}
}

func TestFormatOrderID_WidensPastFourDigits(t *testing.T) {
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "PP-250102-0042", FormatOrderID("", at, 42))
	assert.Equal(t, "XY-250102-12345", FormatOrderID("XY", at, 12345))
}

func TestOrderLifecycle_ShipToDelivered(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)

	o := f.paidOrder("350")
	assert.Equal(t, entities.StateQuoteBroadcast, o.State)
	assert.Equal(t, "350.00", o.PriceSAR)

	bcs := f.bus.broadcasts()
	require.Len(t, bcs, 1)
	assert.Equal(t, []int64{trader.ID}, bcs[0].TraderIDs)
	assert.False(t, bcs[0].Rebroadcast)

	o, err := f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{
		ItemPrices:       map[int]string{1: "180", 2: "120.50"},
		AvailabilityDays: 3,
		ShipIncluded:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StateQuoteOffered, o.State)
	assert.Equal(t, "300.50", o.GoodsAmountSAR)

	quotes, err := f.orders.ListQuotes(f.ctx, customer, o.ID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, trader.ID, quotes[0].TraderID)
	assert.Equal(t, "120.50", quotes[0].ItemPrices[2])

	o, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateQuoteAccepted, o.State)
	assert.True(t, o.QuoteLocked)
	assert.True(t, f.clock.Now().Add(72*time.Hour).Equal(o.ChatExpiresAt))

	o, err = f.orders.MarkTraderNotified(f.ctx, entities.SystemActor(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateGoodsPayMethod, o.State)

	o, err = f.orders.ChooseGoodsPaymentMethod(f.ctx, admin, o.ID, MethodBank, "")
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitGoodsReceipt, o.State)
	o, err = f.orders.SubmitGoodsReceipt(f.ctx, admin, o.ID, "AgACAgQAAxkBAAIGoods")
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitGoodsConfirm, o.State)
	o, err = f.orders.ConfirmGoodsPayment(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDeliveryChoice, o.State)

	o, err = f.orders.ChooseDelivery(f.ctx, customer, o.ID, entities.DeliveryShip)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDeliveryDetails, o.State)
	o, err = f.orders.SubmitShipping(f.ctx, customer, o.ID, ShippingAddress{
		City: "Riyadh", District: "Olaya", Street: "King Fahd Rd", Phone: "0551234567",
	})
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitingShipment, o.State)
	assert.Equal(t, "+966551234567", o.ShipPhone)

	o, err = f.orders.MarkShipped(f.ctx, admin, o.ID, ShipmentInput{Tracking: "TRK-1", Carrier: "SMSA"})
	require.NoError(t, err)
	assert.Equal(t, entities.StateShipped, o.State)
	o, err = f.orders.MarkDelivered(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDelivered, o.State)
	assert.Equal(t, entities.PhaseClosed, o.State.Phase())

	assert.Equal(t, []string{
		entities.EventOrderCreated,
		entities.EventPaymentMethodChosen,
		entities.EventReceiptSubmitted,
		entities.EventPaymentConfirmed,
		entities.EventQuoteSubmitted,
		entities.EventQuoteAccepted,
		entities.EventTraderNotified,
		entities.EventGoodsMethodChosen,
		entities.EventGoodsReceiptSubmitted,
		entities.EventGoodsPaymentConfirmed,
		entities.EventDeliveryChosen,
		entities.EventDeliveryDetails,
		entities.EventShipped,
		entities.EventDelivered,
	}, f.eventTypes(o.ID))
}

func TestOrderLifecycle_PickupSkipsShipped(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.acceptedOrder("100", "60")

	_, err := f.orders.ConfirmGoodsPayment(f.ctx, admin, o.ID)
	require.NoError(t, err)
	_, err = f.orders.ChooseDelivery(f.ctx, customer, o.ID, entities.DeliveryPickup)
	require.NoError(t, err)
	_, err = f.orders.SubmitShipping(f.ctx, customer, o.ID, ShippingAddress{
		City: "Riyadh", District: "Olaya", Street: "X", Phone: "0551234567",
	})
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	o, err = f.orders.SubmitPickup(f.ctx, customer, o.ID, PickupDetails{City: "Dammam", Phone: "551234567"})
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitingShipment, o.State)

	_, err = f.orders.MarkShipped(f.ctx, admin, o.ID, ShipmentInput{Tracking: "T"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))
	o, err = f.orders.MarkDelivered(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateDelivered, o.State)
}

func TestTransitions_RejectWrongActorAndState(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()

	_, err := f.orders.ChoosePaymentMethod(f.ctx, stranger, o.ID, MethodBank)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
	assert.Contains(t, f.legalActions(), entities.LegalAuthorizationDenied)

	_, err = f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, "cash")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.orders.SubmitReceipt(f.ctx, customer, o.ID, "AgFile")
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	_, err = f.orders.ConfirmPrepayment(f.ctx, customer, o.ID, "10", MethodBank)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	fake := entities.Actor{Role: entities.RoleAdmin, ID: 12345}
	_, err = f.orders.ConfirmPrepayment(f.ctx, fake, o.ID, "10", MethodBank)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = f.orders.GetOrder(f.ctx, stranger, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = f.orders.GetOrder(f.ctx, customer, "PP-000000-9999")
	assert.True(t, apperrors.IsNotFound(err))

	// nothing but the creation reached the event log
	assert.Equal(t, []string{entities.EventOrderCreated}, f.eventTypes(o.ID))
}

func TestConfirmPrepayment_ManualIsLegalLogged(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()

	_, err := f.orders.ConfirmPrepayment(f.ctx, admin, o.ID, "abc", MethodBank)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	o, err = f.orders.ConfirmPrepayment(f.ctx, admin, o.ID, "45.5", MethodSTCPay)
	require.NoError(t, err)
	assert.Equal(t, "45.50", o.PriceSAR)
	assert.Equal(t, entities.PaymentConfirmed, o.PaymentStatus)
	assert.Contains(t, f.legalActions(), entities.LegalPaymentConfirmedManual)
}

func TestRejectPayment_ReturnsToAwaitReceipt(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodCard)
	require.NoError(t, err)
	_, err = f.orders.SubmitReceipt(f.ctx, customer, o.ID, "AgFile")
	require.NoError(t, err)

	o, err = f.orders.RejectPayment(f.ctx, admin, o.ID, "blurry")
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitReceipt, o.State)
	assert.Equal(t, entities.PaymentRejected, o.PaymentStatus)
	assert.Empty(t, o.ReceiptFileID)

	o, err = f.orders.SubmitReceipt(f.ctx, customer, o.ID, "AgFile2")
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitPaymentConfirm, o.State)
}

func TestSubmitQuote_Rules(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.paidOrder("50")

	_, err := f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{AvailabilityDays: 1})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{ItemPrices: map[int]string{3: "10"}})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.orders.SubmitQuote(f.ctx, customer, o.ID, QuoteInput{GoodsAmountSAR: "10"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "200"})
	require.NoError(t, err)
	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "180"})
	require.NoError(t, err)

	quotes, err := f.orders.ListQuotes(f.ctx, customer, o.ID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "180.00", quotes[0].GoodsAmountSAR)

	_, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader2.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	require.NoError(t, err)

	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "1"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))
	_, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))
}

func TestAdminOverrideQuote_ChangesLockedQuote(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.acceptedOrder("100", "60")

	o, err := f.orders.AdminOverrideQuote(f.ctx, admin, o.ID, QuoteInput{GoodsAmountSAR: "55", ShippingFeeSAR: "15"})
	require.NoError(t, err)
	assert.Equal(t, "55.00", o.GoodsAmountSAR)
	assert.Equal(t, "15.00", o.ShippingFeeSAR)
	assert.Equal(t, entities.StateQuoteAccepted, o.State)

	quotes, err := f.orders.ListQuotes(f.ctx, admin, o.ID)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Overridden)
}

func TestAcceptQuote_DisabledTraderIsStateError(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.paidOrder("50")
	_, err := f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "20"})
	require.NoError(t, err)

	require.NoError(t, f.subs.SetTraderEnabled(f.ctx, admin, trader.ID, false))
	_, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))
}

func TestRebroadcast_CooldownAndCap(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	o := f.paidOrder("50")

	_, err := f.orders.Rebroadcast(f.ctx, admin, o.ID)
	require.True(t, apperrors.IsKind(err, apperrors.KindState))
	assert.Contains(t, apperrors.UserMessage(err), "can be re-broadcast in")

	f.clock.Advance(6 * time.Hour)
	o, err = f.orders.Rebroadcast(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, o.RebroadcastCount)

	require.NoError(t, f.settings.Set(f.ctx, admin, SettingRebroadcastCooldown, "0"))
	for i := 2; i <= 3; i++ {
		o, err = f.orders.Rebroadcast(f.ctx, admin, o.ID)
		require.NoError(t, err)
		assert.Equal(t, i, o.RebroadcastCount)
	}
	_, err = f.orders.Rebroadcast(f.ctx, admin, o.ID)
	require.True(t, apperrors.IsKind(err, apperrors.KindState))
	assert.Contains(t, apperrors.UserMessage(err), "limit")

	bcs := f.bus.broadcasts()
	require.Len(t, bcs, 4)
	for _, bc := range bcs[1:] {
		assert.True(t, bc.Rebroadcast)
	}
}

func TestDisableRebroadcast(t *testing.T) {
	f := newFixture(t)
	o := f.paidOrder("50")
	require.NoError(t, f.settings.Set(f.ctx, admin, SettingRebroadcastCooldown, "0"))

	o, err := f.orders.DisableRebroadcast(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.True(t, o.RebroadcastDisabled)
	_, err = f.orders.DisableRebroadcast(f.ctx, admin, o.ID)
	require.NoError(t, err)

	_, err = f.orders.Rebroadcast(f.ctx, admin, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))
	assert.Contains(t, f.legalActions(), entities.LegalRebroadcastDisabled)
}

func TestBroadcast_OnlyReachesEligibleTraders(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader2.ID, DisplayName: trader2.Name})
	require.NoError(t, err)
	require.NoError(t, f.subs.SetTraderEnabled(f.ctx, admin, trader2.ID, true))

	f.paidOrder("50")
	bcs := f.bus.broadcasts()
	require.Len(t, bcs, 1)
	assert.Equal(t, []int64{trader.ID}, bcs[0].TraderIDs)
}

func TestCancel_CustomerAndAdminRules(t *testing.T) {
	f := newFixture(t)

	early := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, early.ID, MethodBank)
	require.NoError(t, err)
	early, err = f.orders.Cancel(f.ctx, customer, early.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, entities.StateCancelled, early.State)
	_, err = f.orders.Cancel(f.ctx, customer, early.ID, "again")
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	paid := f.paidOrder("80")
	_, err = f.orders.Cancel(f.ctx, customer, paid.ID, "too slow")
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	paid, err = f.orders.Cancel(f.ctx, admin, paid.ID, "no parts available")
	require.NoError(t, err)
	assert.Equal(t, entities.StateRefundPending, paid.State)
	_, err = f.orders.Cancel(f.ctx, admin, paid.ID, "twice")
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	paid, err = f.orders.MarkRefunded(f.ctx, admin, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StateRefunded, paid.State)
	assert.True(t, paid.State.IsTerminal())

	actions := f.legalActions()
	assert.Contains(t, actions, entities.LegalOrderCancelled)
	assert.Contains(t, actions, entities.LegalOrderRefunded)
}

func TestAcknowledgeGoodsPayment_OnlyAcceptedTraderOnce(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	f.eligibleTrader(trader2)
	o := f.acceptedOrder("100", "60")

	_, err := f.orders.AcknowledgeGoodsPayment(f.ctx, trader, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	_, err = f.orders.ConfirmGoodsPayment(f.ctx, admin, o.ID)
	require.NoError(t, err)

	_, err = f.orders.AcknowledgeGoodsPayment(f.ctx, trader2, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	o, err = f.orders.AcknowledgeGoodsPayment(f.ctx, trader, o.ID)
	require.NoError(t, err)
	assert.False(t, o.TraderPaidAckAt.IsZero())
	_, err = f.orders.AcknowledgeGoodsPayment(f.ctx, trader, o.ID)
	require.NoError(t, err)

	n := 0
	for _, typ := range f.eventTypes(o.ID) {
		if typ == entities.EventGoodsPaymentAcked {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestAssignAdminAndInvoices(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()

	o, err := f.orders.AssignAdmin(f.ctx, admin, o.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, o.AssignedAdminID)

	_, err = f.orders.AssignAdmin(f.ctx, admin, o.ID, customer)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	pre := "INV-001"
	_, err = f.orders.SetInvoiceNumbers(f.ctx, admin, o.ID, InvoiceCustomer, &pre, nil)
	require.NoError(t, err)
	_, err = f.orders.AttachInvoice(f.ctx, admin, o.ID, InvoiceTrader, "BQACAgQAAxkBAAIDoc")
	require.NoError(t, err)

	view, err := f.orders.GetOrder(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", view.Raw[entities.ColInvoicePreNo])
	assert.Empty(t, view.Raw[entities.ColInvoiceShipNo])
	assert.Equal(t, "BQACAgQAAxkBAAIDoc", view.Raw[entities.ColTraderInvoiceFileID])

	_, err = f.orders.AttachInvoice(f.ctx, admin, o.ID, "other", "x")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	evs, err := f.orders.History(f.ctx, admin, o.ID)
	require.NoError(t, err)
	assert.Len(t, evs, 4)
	_, err = f.orders.History(f.ctx, customer, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
}

func TestListOrders_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	f.eligibleTrader(trader)
	f.newOrder()
	paid := f.paidOrder("20")
	_, err := f.orders.SubmitQuote(f.ctx, trader, paid.ID, QuoteInput{GoodsAmountSAR: "10"})
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(f.ctx, CreateOrderInput{
		Customer: stranger, CarName: "Ford", CarModel: "F150", Items: []ItemInput{{Name: "Filter"}},
	})
	require.NoError(t, err)

	mine, total, err := f.orders.ListOrders(f.ctx, customer, repositories.OrderFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, o := range mine {
		assert.Equal(t, customer.ID, o.UserID)
	}

	_, total, err = f.orders.ListOrders(f.ctx, admin, repositories.OrderFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	quoted, _, err := f.orders.ListOrders(f.ctx, trader, repositories.OrderFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, quoted, 1)
	assert.Equal(t, paid.ID, quoted[0].ID)

	open, _, err := f.orders.ListOrders(f.ctx, admin, repositories.OrderFilter{States: []entities.OrderState{entities.StatePayMethod}}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestTransitionPublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder()
	_, err := f.orders.ChoosePaymentMethod(f.ctx, customer, o.ID, MethodBank)
	require.NoError(t, err)

	var changed []events.OrderChangedEvent
	for _, ev := range f.bus.events {
		if c, ok := ev.(events.OrderChangedEvent); ok {
			changed = append(changed, c)
		}
	}
	require.Len(t, changed, 2)
	last := changed[1]
	assert.Equal(t, entities.EventPaymentMethodChosen, last.Event.Type)
	assert.Equal(t, entities.StateAwaitReceipt, last.Order.State)
	assert.Equal(t, "pay_method", last.Event.Payload["from"])
	assert.Len(t, last.Items, 2)
}
