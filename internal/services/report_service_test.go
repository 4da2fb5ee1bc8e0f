package services

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
)

func sar(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(v)
}

// seedReportOrders leaves two counted orders next to a refunded one, one
// awaiting refund, one paid but never quoted and one unpaid.
func seedReportOrders(f *fixture) {
	f.t.Helper()
	f.eligibleTrader(trader)
	f.acceptedOrder("350", "300")

	o := f.paidOrder("100")
	_, err := f.orders.SubmitQuote(f.ctx, trader, o.ID, QuoteInput{GoodsAmountSAR: "60", ShippingFeeSAR: "15"})
	require.NoError(f.t, err)
	_, err = f.orders.AcceptQuote(f.ctx, customer, o.ID, trader.ID)
	require.NoError(f.t, err)

	refunded := f.paidOrder("80")
	_, err = f.orders.Cancel(f.ctx, admin, refunded.ID, "out of stock")
	require.NoError(f.t, err)
	_, err = f.orders.MarkRefunded(f.ctx, admin, refunded.ID)
	require.NoError(f.t, err)

	pending := f.paidOrder("120")
	_, err = f.orders.Cancel(f.ctx, admin, pending.ID, "customer changed mind")
	require.NoError(f.t, err)

	f.paidOrder("60")

	f.newOrder()
}

func TestReports_Financials(t *testing.T) {
	f := newFixture(t)
	seedReportOrders(f)

	sum, err := f.reports.Financials(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Orders)
	assert.True(t, sum.Revenue.Equal(sar(t, "450")), sum.Revenue.String())
	assert.True(t, sum.Goods.Equal(sar(t, "360")), sum.Goods.String())
	assert.True(t, sum.Shipping.Equal(sar(t, "15")), sum.Shipping.String())
	assert.True(t, sum.Margin.Equal(sar(t, "75")), sum.Margin.String())

	all, _, err := f.orders.ListOrders(f.ctx, admin, repositories.OrderFilter{}, 1, 50)
	require.NoError(t, err)
	states := map[entities.OrderState]int{}
	for _, o := range all {
		states[o.State]++
	}
	assert.Equal(t, 1, states[entities.StateRefundPending])
	assert.Equal(t, 1, states[entities.StateQuoteBroadcast])

	_, err = f.reports.Financials(f.ctx, customer)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
}

func TestReports_RevenueBreakdownAndExport(t *testing.T) {
	f := newFixture(t)
	seedReportOrders(f)

	buckets, err := f.reports.RevenueBreakdown(f.ctx, entities.SystemActor())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "2024-03", buckets[0].Month)
	assert.Equal(t, MethodBank, buckets[0].Method)
	assert.Equal(t, 2, buckets[0].Orders)

	var buf bytes.Buffer
	require.NoError(t, f.reports.ExportRevenue(f.ctx, entities.SystemActor(), &buf))

	x, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer x.Close()
	rows, err := x.GetRows("Revenue")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Month", rows[0][0])
	assert.Equal(t, []string{"2024-03", "bank", "2", "450.00", "75.00"}, rows[1])
}

func TestOrderMargin(t *testing.T) {
	assert.True(t, repositories.OrderMargin(sar(t, "100"), sar(t, "60"), sar(t, "15"), false).Equal(sar(t, "25")))
	assert.True(t, repositories.OrderMargin(sar(t, "100"), sar(t, "60"), sar(t, "15"), true).Equal(sar(t, "40")))
}
