package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
)

func TestCurrentMonth(t *testing.T) {
	assert.Equal(t, "2024-03", CurrentMonth(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
	riyadh := time.FixedZone("AST", 3*3600)
	assert.Equal(t, "2024-03", CurrentMonth(time.Date(2024, 4, 1, 1, 0, 0, 0, riyadh)))
}

func TestRegisterTrader_StartsDisabled(t *testing.T) {
	f := newFixture(t)

	tr, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{
		TraderID: trader.ID, DisplayName: " Riyadh Parts ", ShopPhone: "0551234567", IBAN: "sa03 8000 0000 6080 1016 7519",
	})
	require.NoError(t, err)
	assert.False(t, tr.IsEnabled)
	assert.Equal(t, "Riyadh Parts", tr.DisplayName)
	assert.Equal(t, "+966551234567", tr.ShopPhone)
	assert.Equal(t, "SA0380000000608010167519", tr.IBAN)

	_, err = f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader2.ID, DisplayName: "X", ShopPhone: "12345"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestEligibility_EnabledAndConfirmedForCurrentMonth(t *testing.T) {
	f := newFixture(t)
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader.ID, DisplayName: trader.Name})
	require.NoError(t, err)

	ok, err := f.subs.IsEligible(f.ctx, trader.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.subs.ConfirmSubscription(f.ctx, admin, trader.ID, "")
	require.NoError(t, err)
	ok, _ = f.subs.IsEligible(f.ctx, trader.ID)
	assert.False(t, ok, "disabled traders are never eligible")

	require.NoError(t, f.subs.SetTraderEnabled(f.ctx, admin, trader.ID, true))
	ok, _ = f.subs.IsEligible(f.ctx, trader.ID)
	assert.True(t, ok)

	eligible, err := f.subs.ListTraders(f.ctx, true)
	require.NoError(t, err)
	require.Len(t, eligible, 1)

	// March is paid, April is not
	f.clock.Advance(25 * 24 * time.Hour)
	ok, _ = f.subs.IsEligible(f.ctx, trader.ID)
	assert.False(t, ok)

	ok, err = f.subs.IsEligible(f.ctx, 424242)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubscriptionGate_BlocksQuotesWithoutPayment(t *testing.T) {
	f := newFixture(t)
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader.ID, DisplayName: trader.Name})
	require.NoError(t, err)
	require.NoError(t, f.subs.SetTraderEnabled(f.ctx, admin, trader.ID, true))
	o := f.paidOrder("50")

	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "20"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
	_, err = f.orders.GetOrder(f.ctx, trader, o.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = f.subs.ConfirmSubscription(f.ctx, admin, trader.ID, "")
	require.NoError(t, err)
	_, err = f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "20"})
	require.NoError(t, err)
}

func TestSubscription_ReceiptThenConfirm(t *testing.T) {
	f := newFixture(t)
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader.ID, DisplayName: trader.Name})
	require.NoError(t, err)

	sub, err := f.subs.EnsureSubscription(f.ctx, trader.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", sub.Month)
	assert.Equal(t, "99.00", sub.AmountSAR)
	assert.Equal(t, entities.SubscriptionAwaiting, sub.PaymentStatus)

	require.NoError(t, f.settings.Set(f.ctx, admin, SettingSubscriptionFee, "150"))
	again, err := f.subs.EnsureSubscription(f.ctx, trader.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "99.00", again.AmountSAR)
	next, err := f.subs.EnsureSubscription(f.ctx, trader.ID, "2024-04")
	require.NoError(t, err)
	assert.Equal(t, "150.00", next.AmountSAR)

	sub, err = f.subs.SubmitReceipt(f.ctx, trader, "", MethodBank, "AgACAgQAAxkBAAISub")
	require.NoError(t, err)
	assert.Equal(t, "AgACAgQAAxkBAAISub", sub.ReceiptFileID)
	assert.Equal(t, "99.00", sub.AmountSAR)

	first, err := f.subs.ConfirmSubscription(f.ctx, admin, trader.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, entities.SubscriptionConfirmed, first.PaymentStatus)

	f.clock.Advance(time.Hour)
	second, err := f.subs.ConfirmSubscription(f.ctx, admin, trader.ID, "2024-03")
	require.NoError(t, err)
	assert.True(t, first.PaidAt.Equal(second.PaidAt))

	_, err = f.subs.SubmitReceipt(f.ctx, trader, "2024-03", MethodBank, "AgLate")
	assert.True(t, apperrors.IsKind(err, apperrors.KindState))

	confirmed := 0
	for _, a := range f.legalActions() {
		if a == entities.LegalSubscriptionConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)

	var subEvents []events.SubscriptionEvent
	for _, ev := range f.bus.events {
		if s, ok := ev.(events.SubscriptionEvent); ok {
			subEvents = append(subEvents, s)
		}
	}
	require.Len(t, subEvents, 2)
	assert.False(t, subEvents[0].Confirmed)
	assert.True(t, subEvents[1].Confirmed)
}

func TestSubscription_AdminOnlyAndMonthFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.subs.RegisterTrader(f.ctx, RegisterTraderInput{TraderID: trader.ID, DisplayName: trader.Name})
	require.NoError(t, err)

	_, err = f.subs.ConfirmSubscription(f.ctx, trader, trader.ID, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
	err = f.subs.SetTraderEnabled(f.ctx, customer, trader.ID, true)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	unlisted := entities.Actor{Role: entities.RoleAdmin, ID: 4242}
	err = f.subs.SetTraderEnabled(f.ctx, unlisted, trader.ID, true)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
	_, err = f.subs.ConfirmSubscription(f.ctx, unlisted, trader.ID, "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))

	_, err = f.subs.ConfirmSubscription(f.ctx, admin, trader.ID, "March")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = f.subs.ConfirmSubscription(f.ctx, admin, 999, "")
	assert.True(t, apperrors.IsNotFound(err))
}
