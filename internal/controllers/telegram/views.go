package telegram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

// Bot API text limit, with room for a suffix.
const maxReplyLength = 4000

func truncate(text string) string {
	text = strings.TrimRight(text, "\n")
	if len(text) <= maxReplyLength {
		return text
	}
	cut := text[:maxReplyLength]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n..."
}

func displaySAR(raw string) string {
	if raw == "" {
		return "-"
	}
	d, ok := money.Lenient(raw)
	if !ok {
		return raw
	}
	return money.Display(d) + " SAR"
}

// describeOrder renders the order for role; traders never see customer
// contact data.
func describeOrder(o *entities.Order, items []entities.Item, role entities.Role) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s [%s]\n", o.ID, o.State)
	fmt.Fprintf(&b, "Car: %s %s\n", o.CarName, o.CarModel)
	if o.VIN != "" {
		fmt.Fprintf(&b, "VIN: %s\n", o.VIN)
	}
	for _, it := range items {
		fmt.Fprintf(&b, "%d. %s", it.Idx, it.Name)
		if it.PartNo != "" {
			fmt.Fprintf(&b, " [%s]", it.PartNo)
		}
		b.WriteString("\n")
	}
	if o.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", o.Notes)
	}
	if o.GoodsAmountSAR != "" {
		fmt.Fprintf(&b, "Goods: %s\n", displaySAR(o.GoodsAmountSAR))
	}
	if role == entities.RoleTrader {
		return strings.TrimRight(b.String(), "\n")
	}
	if o.PriceSAR != "" {
		fmt.Fprintf(&b, "Service fee: %s (%s)\n", displaySAR(o.PriceSAR), o.PaymentStatus)
	}
	if o.AcceptedTraderName != "" {
		fmt.Fprintf(&b, "Trader: %s\n", o.AcceptedTraderName)
	}
	if o.ShippingTracking != "" {
		fmt.Fprintf(&b, "Tracking: %s %s\n", o.ShipCarrier, o.ShippingTracking)
	}
	if role == entities.RoleAdmin {
		fmt.Fprintf(&b, "Customer: %s (%d)\n", o.UserName, o.UserID)
		if o.AssignedAdminName != "" {
			fmt.Fprintf(&b, "Assigned: %s\n", o.AssignedAdminName)
		}
		fmt.Fprintf(&b, "Rebroadcasts: %d", o.RebroadcastCount)
		if o.RebroadcastDisabled {
			b.WriteString(" (disabled)")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeQuote(orderID string, q services.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Quote for %s from %s\n", orderID, q.TraderName)
	fmt.Fprintf(&b, "Goods: %s\n", displaySAR(q.GoodsAmountSAR))
	idx := make([]int, 0, len(q.ItemPrices))
	for i := range q.ItemPrices {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		fmt.Fprintf(&b, "  item %d: %s\n", i, displaySAR(q.ItemPrices[i]))
	}
	fmt.Fprintf(&b, "Available in %d day(s)\n", q.AvailabilityDays)
	if q.ShipIncluded {
		b.WriteString("Shipping included")
	} else {
		fmt.Fprintf(&b, "Shipping: %s", displaySAR(q.ShippingFeeSAR))
	}
	if q.Overridden {
		b.WriteString("\n(adjusted by the team)")
	}
	return b.String()
}

func inlineButton(text string, cb dto.Callback) []telegram.InlineKeyboardButton {
	data, err := cb.Encode()
	if err != nil {
		return nil
	}
	return []telegram.InlineKeyboardButton{{Text: text, CallbackData: data}}
}

func inlineKeyboard(rows ...[]telegram.InlineKeyboardButton) telegram.MessageOption {
	var out [][]telegram.InlineKeyboardButton
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return telegram.WithKeyboard(out)
}

func paymentKeyboard(orderID string) telegram.MessageOption {
	return inlineKeyboard(
		inlineButton("Bank transfer", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: services.MethodBank}),
		inlineButton("STC Pay", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: services.MethodSTCPay}),
		inlineButton("Card", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: services.MethodCard}),
	)
}
