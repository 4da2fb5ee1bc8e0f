package repositories

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// FinancialSummary aggregates orders whose customer payment is confirmed and
// whose quote was accepted. Cancelled and refunded orders are left out.
type FinancialSummary struct {
	Orders   int
	Revenue  decimal.Decimal
	Goods    decimal.Decimal
	Shipping decimal.Decimal
	Margin   decimal.Decimal
}

// RevenueBucket is one (month, payment method) group.
type RevenueBucket struct {
	Month   string
	Method  string
	Orders  int
	Revenue decimal.Decimal
	Margin  decimal.Decimal
}

type ReportRepositoryInterface interface {
	ComputeAdminFinancials(ctx context.Context) (*FinancialSummary, error)
	ComputeRevenueBreakdown(ctx context.Context) ([]RevenueBucket, error)
}

type ReportRepository struct {
	storage TxManagerInterface
	logger  *zap.Logger
}

func NewReportRepository(storage TxManagerInterface, logger *zap.Logger) ReportRepositoryInterface {
	return &ReportRepository{storage: storage, logger: logger}
}

type orderAmounts struct {
	month, method             string
	price, goods, ship, margin decimal.Decimal
}

// OrderMargin is price - goods - (ship_included ? 0 : shipping_fee).
func OrderMargin(price, goods, shippingFee decimal.Decimal, shipIncluded bool) decimal.Decimal {
	m := price.Sub(goods)
	if !shipIncluded {
		m = m.Sub(shippingFee)
	}
	return m
}

func (r *ReportRepository) confirmedOrders(ctx context.Context) ([]orderAmounts, error) {
	var out []orderAmounts
	err := r.storage.View(ctx, func(tx *Tx) error {
		t, err := tx.sheet(entities.SheetOrders)
		if err != nil {
			return err
		}
		for _, rec := range t.Records() {
			if entities.PaymentStatus(rec[entities.ColPaymentStatus]) != entities.PaymentConfirmed {
				continue
			}
			if entities.OrderState(rec[entities.ColOrderStatus]).In(entities.StateCancelled, entities.StateRefundPending, entities.StateRefunded) {
				continue
			}
			if utils.ParseID(rec[entities.ColAcceptedTraderID]) == 0 {
				continue
			}
			price := r.amount(rec, entities.ColPriceSAR)
			goods := r.amount(rec, entities.ColGoodsAmountSAR)
			ship := r.amount(rec, entities.ColShippingFeeSAR)

			stamp := rec[entities.ColPaymentConfirmedAt]
			if stamp == "" {
				stamp = rec[entities.ColCreatedAt]
			}
			month := "unknown"
			if ts, ok := utils.ParseUTC(stamp); ok {
				month = utils.MonthKey(ts)
			}
			method := rec[entities.ColPaymentMethod]
			if method == "" {
				method = "unknown"
			}
			out = append(out, orderAmounts{
				month:  month,
				method: method,
				price:  price,
				goods:  goods,
				ship:   ship,
				margin: OrderMargin(price, goods, ship, utils.ParseBool(rec[entities.ColShipIncluded])),
			})
		}
		return nil
	})
	return out, err
}

func (r *ReportRepository) amount(rec Record, col string) decimal.Decimal {
	d, ok := money.Lenient(rec[col])
	if !ok {
		r.logger.Warn("unreadable amount counted as zero",
			zap.String("order_id", rec[entities.ColOrderID]), zap.String("column", col), zap.String("value", rec[col]))
	}
	return d
}

func (r *ReportRepository) ComputeAdminFinancials(ctx context.Context) (*FinancialSummary, error) {
	orders, err := r.confirmedOrders(ctx)
	if err != nil {
		return nil, err
	}
	sum := &FinancialSummary{}
	for _, o := range orders {
		sum.Orders++
		sum.Revenue = sum.Revenue.Add(o.price)
		sum.Goods = sum.Goods.Add(o.goods)
		sum.Shipping = sum.Shipping.Add(o.ship)
		sum.Margin = sum.Margin.Add(o.margin)
	}
	return sum, nil
}

// ComputeRevenueBreakdown groups by month then payment method, oldest first.
func (r *ReportRepository) ComputeRevenueBreakdown(ctx context.Context) ([]RevenueBucket, error) {
	orders, err := r.confirmedOrders(ctx)
	if err != nil {
		return nil, err
	}
	byKey := map[[2]string]*RevenueBucket{}
	for _, o := range orders {
		key := [2]string{o.month, o.method}
		b, ok := byKey[key]
		if !ok {
			b = &RevenueBucket{Month: o.month, Method: o.method}
			byKey[key] = b
		}
		b.Orders++
		b.Revenue = b.Revenue.Add(o.price)
		b.Margin = b.Margin.Add(o.margin)
	}
	out := make([]RevenueBucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}
