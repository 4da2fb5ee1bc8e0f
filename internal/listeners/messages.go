package listeners

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

func sar(raw string) string {
	if raw == "" {
		return "-"
	}
	d, ok := money.Lenient(raw)
	if !ok {
		return raw
	}
	return money.Display(d) + " SAR"
}

func orderSummary(o *entities.Order, items []entities.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n", o.ID)
	fmt.Fprintf(&b, "Car: %s %s", o.CarName, o.CarModel)
	if o.VIN != "" {
		fmt.Fprintf(&b, " (VIN %s)", o.VIN)
	}
	b.WriteString("\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%d. %s", it.Idx, it.Name)
		if it.PartNo != "" {
			fmt.Fprintf(&b, " [%s]", it.PartNo)
		}
		if it.PhotoFileID != "" {
			b.WriteString(" (photo)")
		}
		b.WriteString("\n")
	}
	if o.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", o.Notes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func quoteSummary(o *entities.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Quote for order %s\n", o.ID)
	fmt.Fprintf(&b, "Goods: %s\n", sar(o.GoodsAmountSAR))
	if len(o.QuoteItemPrices) > 0 {
		idx := make([]int, 0, len(o.QuoteItemPrices))
		for i := range o.QuoteItemPrices {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			fmt.Fprintf(&b, "  item %d: %s\n", i, sar(o.QuoteItemPrices[i]))
		}
	}
	if o.PartsType != "" {
		fmt.Fprintf(&b, "Type: %s\n", o.PartsType)
	}
	fmt.Fprintf(&b, "Available in %d day(s)\n", o.AvailabilityDays)
	if o.ShipIncluded {
		b.WriteString("Shipping included")
	} else {
		fmt.Fprintf(&b, "Shipping: %s", sar(o.ShippingFeeSAR))
	}
	return b.String()
}

// button encodes cb; oversized data yields no button rather than a broken one.
func button(text string, cb dto.Callback) []telegram.InlineKeyboardButton {
	data, err := cb.Encode()
	if err != nil {
		return nil
	}
	return []telegram.InlineKeyboardButton{{Text: text, CallbackData: data}}
}

func keyboard(rows ...[]telegram.InlineKeyboardButton) telegram.MessageOption {
	var out [][]telegram.InlineKeyboardButton
	for _, r := range rows {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return telegram.WithKeyboard(out)
}

func paymentMethodKeyboard(orderID string) telegram.MessageOption {
	return keyboard(
		button("Bank transfer", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: "bank"}),
		button("STC Pay", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: "stc_pay"}),
		button("Card", dto.Callback{Action: dto.ActPayMethod, OrderID: orderID, Value: "card"}),
	)
}

func deliveryKeyboard(orderID string) telegram.MessageOption {
	return keyboard(
		button("Ship to my address", dto.Callback{Action: dto.ActDelivery, OrderID: orderID, Value: string(entities.DeliveryShip)}),
		button("Pick up", dto.Callback{Action: dto.ActDelivery, OrderID: orderID, Value: string(entities.DeliveryPickup)}),
	)
}
