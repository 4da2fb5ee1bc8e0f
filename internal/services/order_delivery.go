package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// ShippingAddress is collected field by field in the ship conversation.
type ShippingAddress struct {
	City       string `json:"city" validate:"required,max=64"`
	District   string `json:"district" validate:"required,max=64"`
	Street     string `json:"street" validate:"required,max=128"`
	POBox      string `json:"pobox,omitempty" validate:"max=16"`
	Additional string `json:"additional,omitempty" validate:"max=256"`
	Building   string `json:"building,omitempty" validate:"max=32"`
	Phone      string `json:"phone" validate:"required,sa_phone"`
}

type PickupDetails struct {
	City     string `json:"city" validate:"required,max=64"`
	Phone    string `json:"phone" validate:"required,sa_phone"`
	Location string `json:"location,omitempty" validate:"max=256"`
}

type ShipmentInput struct {
	Tracking       string `validate:"required,max=64"`
	Carrier        string `validate:"max=64"`
	ShippingFeeSAR string `validate:"omitempty,money"`
}

func (s *OrderService) ChooseDelivery(ctx context.Context, actor entities.Actor, orderID string, choice entities.DeliveryChoice) (*entities.Order, error) {
	if _, ok := entities.ParseDeliveryChoice(string(choice)); !ok {
		return nil, apperrors.NewValidationError("unknown delivery choice %q", choice)
	}
	return s.transition(ctx, "choose_delivery", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if err := requireState(o, "choose delivery for", entities.StateDeliveryChoice); err != nil {
			return nil, err
		}
		return &change{
			to:      entities.StateDeliveryDetails,
			patch:   repositories.Record{entities.ColDeliveryChoice: string(choice)},
			event:   entities.EventDeliveryChosen,
			payload: map[string]interface{}{"choice": string(choice)},
		}, nil
	})
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

func (s *OrderService) SubmitShipping(ctx context.Context, actor entities.Actor, orderID string, addr ShippingAddress) (*entities.Order, error) {
	trimAll(&addr.City, &addr.District, &addr.Street, &addr.POBox, &addr.Additional, &addr.Building, &addr.Phone)
	if err := validateStruct(s.validate, addr); err != nil {
		return nil, err
	}
	addr.Phone = utils.NormalizeSaudiPhone(addr.Phone)
	details, err := json.Marshal(addr)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "submit_shipping", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if err := requireState(o, "submit an address for", entities.StateDeliveryDetails); err != nil {
			return nil, err
		}
		if o.DeliveryChoice != entities.DeliveryShip {
			return nil, apperrors.NewStateError("order %s is not set for shipping", o.ID)
		}
		return &change{
			to: entities.StateAwaitingShipment,
			patch: repositories.Record{
				entities.ColDeliveryDetails: string(details),
				entities.ColShipCity:        addr.City,
				entities.ColShipPhone:       addr.Phone,
				entities.ColShippingAt:      utils.FormatUTC(tx.Now()),
			},
			event:   entities.EventDeliveryDetails,
			payload: map[string]interface{}{"choice": string(entities.DeliveryShip), "city": addr.City},
		}, nil
	})
}

func (s *OrderService) SubmitPickup(ctx context.Context, actor entities.Actor, orderID string, pickup PickupDetails) (*entities.Order, error) {
	trimAll(&pickup.City, &pickup.Phone, &pickup.Location)
	if err := validateStruct(s.validate, pickup); err != nil {
		return nil, err
	}
	pickup.Phone = utils.NormalizeSaudiPhone(pickup.Phone)
	details, err := json.Marshal(pickup)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "submit_pickup", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if err := requireState(o, "submit pickup details for", entities.StateDeliveryDetails); err != nil {
			return nil, err
		}
		if o.DeliveryChoice != entities.DeliveryPickup {
			return nil, apperrors.NewStateError("order %s is not set for pickup", o.ID)
		}
		return &change{
			to: entities.StateAwaitingShipment,
			patch: repositories.Record{
				entities.ColDeliveryDetails: string(details),
				entities.ColPickupCity:      pickup.City,
				entities.ColPickupLocation:  pickup.Location,
				entities.ColShipPhone:       pickup.Phone,
			},
			event:   entities.EventDeliveryDetails,
			payload: map[string]interface{}{"choice": string(entities.DeliveryPickup), "city": pickup.City},
		}, nil
	})
}

func (s *OrderService) MarkShipped(ctx context.Context, actor entities.Actor, orderID string, shipment ShipmentInput) (*entities.Order, error) {
	trimAll(&shipment.Tracking, &shipment.Carrier, &shipment.ShippingFeeSAR)
	if err := validateStruct(s.validate, shipment); err != nil {
		return nil, err
	}
	return s.transition(ctx, "mark_shipped", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "ship", entities.StateAwaitingShipment); err != nil {
			return nil, err
		}
		if o.DeliveryChoice != entities.DeliveryShip {
			return nil, apperrors.NewStateError("order %s is a pickup order", o.ID)
		}
		patch := repositories.Record{
			entities.ColShippingTracking: shipment.Tracking,
			entities.ColShippedAt:        utils.FormatUTC(tx.Now()),
		}
		if shipment.Carrier != "" {
			patch[entities.ColShipCarrier] = shipment.Carrier
		}
		if shipment.ShippingFeeSAR != "" {
			fee, err := money.Normalize(shipment.ShippingFeeSAR)
			if err != nil {
				return nil, apperrors.NewValidationError("shipping fee: %v", err)
			}
			patch[entities.ColShippingFeeSAR] = fee
		}
		return &change{
			to:      entities.StateShipped,
			patch:   patch,
			event:   entities.EventShipped,
			payload: map[string]interface{}{"tracking": shipment.Tracking, "carrier": shipment.Carrier},
		}, nil
	})
}

// MarkDelivered closes the order. Pickup orders skip the shipped state.
func (s *OrderService) MarkDelivered(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "mark_delivered", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		pickup := o.State == entities.StateAwaitingShipment && o.DeliveryChoice == entities.DeliveryPickup
		if o.State != entities.StateShipped && !pickup {
			return nil, requireState(o, "deliver", entities.StateShipped)
		}
		now := utils.FormatUTC(tx.Now())
		return &change{
			to: entities.StateDelivered,
			patch: repositories.Record{
				entities.ColDeliveredAt: now,
				entities.ColClosedAt:    now,
			},
			event:   entities.EventDelivered,
			payload: map[string]interface{}{"choice": string(o.DeliveryChoice)},
		}, nil
	})
}

var customerCancellable = []entities.OrderState{
	entities.StatePayMethod, entities.StateAwaitReceipt, entities.StateAwaitPaymentConfirm,
}

// Cancel closes an order before shipment. Once the pre-payment is confirmed
// the order waits in refund_pending until the refund is made.
func (s *OrderService) Cancel(ctx context.Context, actor entities.Actor, orderID, reason string) (*entities.Order, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, "cancel", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		switch actor.Role {
		case entities.RoleCustomer:
			if err := requireOwner(actor, o); err != nil {
				return nil, err
			}
			if err := requireState(o, "cancel", customerCancellable...); err != nil {
				return nil, err
			}
		default:
			if err := s.requireAdmin(actor); err != nil {
				return nil, err
			}
			if o.State.IsTerminal() || o.State.In(entities.StateShipped, entities.StateRefundPending) {
				return nil, apperrors.NewStateError("cannot cancel order %s in state %s", o.ID, o.State)
			}
		}

		now := utils.FormatUTC(tx.Now())
		patch := repositories.Record{
			entities.ColCancelledAt:  now,
			entities.ColCancelReason: reason,
		}
		to := entities.StateCancelled
		if o.PaymentStatus == entities.PaymentConfirmed {
			to = entities.StateRefundPending
		} else {
			patch[entities.ColClosedAt] = now
		}
		return &change{
			to:           to,
			patch:        patch,
			event:        entities.EventCancelled,
			payload:      map[string]interface{}{"reason": reason},
			legal:        entities.LegalOrderCancelled,
			legalDetails: o.ID + ": " + reason,
		}, nil
	})
}

func (s *OrderService) MarkRefunded(ctx context.Context, actor entities.Actor, orderID string) (*entities.Order, error) {
	return s.transition(ctx, "mark_refunded", orderID, actor, func(tx *repositories.Tx, o *entities.Order, _ Settings) (*change, error) {
		if err := s.requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := requireState(o, "refund", entities.StateRefundPending); err != nil {
			return nil, err
		}
		now := utils.FormatUTC(tx.Now())
		return &change{
			to: entities.StateRefunded,
			patch: repositories.Record{
				entities.ColRefundedAt: now,
				entities.ColClosedAt:   now,
			},
			event:        entities.EventRefunded,
			payload:      map[string]interface{}{"price_sar": o.PriceSAR},
			legal:        entities.LegalOrderRefunded,
			legalDetails: o.ID + ": " + o.PriceSAR + " SAR",
		}, nil
	})
}
