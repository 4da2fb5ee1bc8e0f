package entities

// Sheet names of the workbook.
const (
	SheetOrders     = "orders"
	SheetItems      = "items"
	SheetEvents     = "events"
	SheetMessages   = "messages"
	SheetTraders    = "traders"
	SheetSettings   = "settings"
	SheetLegalLog   = "legal_log"
	SheetTraderSubs = "trader_subs"
)

// orders columns
const (
	ColOrderID     = "order_id"
	ColUserID      = "user_id"
	ColUserName    = "user_name"
	ColCarName     = "car_name"
	ColCarModel    = "car_model"
	ColVIN         = "vin"
	ColNotes       = "notes"
	ColItemsCount  = "items_count"
	ColStatus      = "status"
	ColOrderStatus = "order_status"

	ColQuoteStatus      = "quote_status"
	ColQuoteLocked      = "quote_locked"
	ColPriceSAR         = "price_sar"
	ColGoodsAmountSAR   = "goods_amount_sar"
	ColQuoteItemPrices  = "quote_item_prices"
	ColPartsType        = "parts_type"
	ColShipMethod       = "ship_method"
	ColShipCarrier      = "ship_carrier"
	ColShipETA          = "ship_eta"
	ColShipIncluded     = "ship_included"
	ColAvailabilityDays = "availability_days"

	ColQuotedTraderID         = "quoted_trader_id"
	ColQuotedTraderName       = "quoted_trader_name"
	ColAcceptedTraderID       = "accepted_trader_id"
	ColAcceptedTraderName     = "accepted_trader_name"
	ColAcceptedAt             = "accepted_at_utc"
	ColAcceptedTraderNotified = "accepted_trader_notified"

	ColPaymentMethod      = "payment_method"
	ColPaymentStatus      = "payment_status"
	ColReceiptFileID      = "receipt_file_id"
	ColPaymentConfirmedAt = "payment_confirmed_at_utc"
	ColPayMethodSetAt     = "pay_method_set_at_utc"
	ColPrepayNotes        = "prepay_notes"

	ColGoodsPaymentMethod      = "goods_payment_method"
	ColGoodsPaymentStatus      = "goods_payment_status"
	ColGoodsPaymentLink        = "goods_payment_link"
	ColGoodsReceiptFileID      = "goods_receipt_file_id"
	ColGoodsPaymentConfirmedAt = "goods_payment_confirmed_at_utc"
	ColGoodsPayMethodSetAt     = "goods_pay_method_set_at_utc"
	ColTraderPaidAckAt         = "trader_paid_ack_at_utc"

	ColDeliveryChoice   = "delivery_choice"
	ColDeliveryDetails  = "delivery_details"
	ColShipCity         = "ship_city"
	ColPickupCity       = "pickup_city"
	ColPickupLocation   = "pickup_location"
	ColShipPhone        = "ship_phone"
	ColShippingFeeSAR   = "shipping_fee_sar"
	ColShippingTracking = "shipping_tracking"
	ColShippingAt       = "shipping_at"
	ColShippedAt        = "shipped_at_utc"
	ColDeliveredAt      = "delivered_at_utc"

	ColAssignedAdminID   = "assigned_admin_id"
	ColAssignedAdminName = "assigned_admin_name"
	ColAssignedAt        = "assigned_at_utc"

	ColCreatedAt               = "created_at_utc"
	ColUpdatedAt               = "updated_at_utc"
	ColForwardedToTeamAt       = "forwarded_to_team_at_utc"
	ColForwardedByAdminID      = "forwarded_by_admin_id"
	ColForwardedByAdminName    = "forwarded_by_admin_name"
	ColClosedAt                = "closed_at_utc"
	ColChatExpiresAt           = "chat_expires_at_utc"
	ColLastNoquoteUserPingAt   = "last_noquote_user_ping_at_utc"
	ColAdminNoquote24hSentAt   = "admin_noquote_24h_sent_at_utc"
	ColLastUnpaidUserPingAt    = "last_unpaid_user_ping_at_utc"
	ColLastPaidTraderPingAt    = "last_paid_trader_ping_at_utc"
	ColCancelledAt             = "cancelled_at_utc"
	ColCancelReason            = "cancel_reason"
	ColRefundedAt              = "refunded_at_utc"
	ColInvoicePreNo            = "invoice_pre_no"
	ColInvoiceShipNo           = "invoice_ship_no"
	ColTraderInvoicePreNo      = "trader_invoice_pre_no"
	ColTraderInvoiceShipNo     = "trader_invoice_ship_no"
	ColInvoiceFileID           = "invoice_file_id"
	ColTraderInvoiceFileID     = "trader_invoice_file_id"
	ColRebroadcastCount        = "rebroadcast_count"
	ColRebroadcastDisabled     = "rebroadcast_disabled"
	ColRebroadcastDisabledAt   = "rebroadcast_disabled_at_utc"
	ColRebroadcastDisabledByID = "rebroadcast_disabled_by_id"
	ColTeamMessageID           = "team_message_id"
	ColLastGroupBroadcastAt    = "last_group_broadcast_at_utc"
)

// items columns
const (
	ColIdx         = "idx"
	ColItemName    = "item_name"
	ColItemPartNo  = "item_part_no"
	ColPhotoFileID = "photo_file_id"
)

// events / messages columns
const (
	ColEventID      = "event_id"
	ColEventType    = "event_type"
	ColActorRole    = "actor_role"
	ColActorID      = "actor_id"
	ColActorName    = "actor_name"
	ColPayload      = "payload"
	ColMsgID        = "msg_id"
	ColSenderRole   = "sender_role"
	ColSenderID     = "sender_id"
	ColSenderName   = "sender_name"
	ColReceiverRole = "receiver_role"
	ColReceiverID   = "receiver_id"
	ColText         = "text"
	ColFileID       = "file_id"
)

// traders / trader_subs columns
const (
	ColTraderID      = "trader_id"
	ColDisplayName   = "display_name"
	ColCompanyName   = "company_name"
	ColShopPhone     = "shop_phone"
	ColCRNo          = "cr_no"
	ColVATNo         = "vat_no"
	ColPaymentMode   = "payment_mode"
	ColBankName      = "bank_name"
	ColIBAN          = "iban"
	ColSTCPay        = "stc_pay"
	ColJoinedAt      = "joined_at_utc"
	ColIsEnabled     = "is_enabled"
	ColSubID         = "sub_id"
	ColMonth         = "month"
	ColAmountSAR     = "amount_sar"
	ColPaidAt        = "paid_at_utc"
	ColSubPayMethod  = "payment_method"
	ColSubPayStatus  = "payment_status"
	ColSubReceiptID  = "receipt_file_id"
	ColSubCreatedAt  = "created_at_utc"
	ColTraderUpdated = "updated_at_utc"
)

// settings / legal_log columns
const (
	ColKey     = "key"
	ColValue   = "value"
	ColTS      = "ts_utc"
	ColAction  = "action"
	ColDetails = "details"
)

// Headers lists the canonical header row of every sheet, in creation order.
var Headers = map[string][]string{
	SheetOrders: {
		ColOrderID, ColUserID, ColUserName, ColCarName, ColCarModel, ColVIN, ColNotes,
		ColItemsCount, ColStatus, ColOrderStatus,
		ColQuoteStatus, ColQuoteLocked, ColPriceSAR, ColGoodsAmountSAR, ColQuoteItemPrices,
		ColPartsType, ColShipMethod, ColShipCarrier, ColShipETA, ColShipIncluded, ColAvailabilityDays,
		ColQuotedTraderID, ColQuotedTraderName, ColAcceptedTraderID, ColAcceptedTraderName,
		ColAcceptedAt, ColAcceptedTraderNotified,
		ColPaymentMethod, ColPaymentStatus, ColReceiptFileID, ColPaymentConfirmedAt,
		ColPayMethodSetAt, ColPrepayNotes,
		ColGoodsPaymentMethod, ColGoodsPaymentStatus, ColGoodsPaymentLink, ColGoodsReceiptFileID,
		ColGoodsPaymentConfirmedAt, ColGoodsPayMethodSetAt, ColTraderPaidAckAt,
		ColDeliveryChoice, ColDeliveryDetails, ColShipCity, ColPickupCity, ColPickupLocation,
		ColShipPhone, ColShippingFeeSAR, ColShippingTracking, ColShippingAt, ColShippedAt, ColDeliveredAt,
		ColAssignedAdminID, ColAssignedAdminName, ColAssignedAt,
		ColCreatedAt, ColUpdatedAt, ColForwardedToTeamAt, ColForwardedByAdminID, ColForwardedByAdminName,
		ColClosedAt, ColChatExpiresAt, ColLastNoquoteUserPingAt, ColAdminNoquote24hSentAt,
		ColLastUnpaidUserPingAt, ColLastPaidTraderPingAt,
		ColCancelledAt, ColCancelReason, ColRefundedAt,
		ColInvoicePreNo, ColInvoiceShipNo, ColTraderInvoicePreNo, ColTraderInvoiceShipNo,
		ColInvoiceFileID, ColTraderInvoiceFileID,
		ColRebroadcastCount, ColRebroadcastDisabled, ColRebroadcastDisabledAt, ColRebroadcastDisabledByID,
		ColTeamMessageID, ColLastGroupBroadcastAt,
	},
	SheetItems: {ColOrderID, ColIdx, ColItemName, ColPhotoFileID, ColCreatedAt, ColItemPartNo},
	SheetEvents: {
		ColEventID, ColOrderID, ColEventType, ColActorRole, ColActorID, ColActorName, ColPayload, ColCreatedAt,
	},
	SheetMessages: {
		ColMsgID, ColOrderID, ColSenderRole, ColSenderID, ColSenderName,
		ColReceiverRole, ColReceiverID, ColText, ColFileID, ColCreatedAt,
	},
	SheetTraders: {
		ColTraderID, ColDisplayName, ColCompanyName, ColShopPhone, ColCRNo, ColVATNo,
		ColPaymentMode, ColBankName, ColIBAN, ColSTCPay, ColJoinedAt, ColIsEnabled, ColTraderUpdated,
	},
	SheetSettings: {ColKey, ColValue, ColUpdatedAt},
	SheetLegalLog: {ColTS, ColActorID, ColActorName, ColAction, ColDetails},
	SheetTraderSubs: {
		ColSubID, ColTraderID, ColMonth, ColAmountSAR, ColSubPayMethod, ColSubPayStatus,
		ColSubReceiptID, ColPaidAt, ColSubCreatedAt,
	},
}

// SheetOrder is the order in which sheets are created in a new workbook.
var SheetOrder = []string{
	SheetOrders, SheetItems, SheetEvents, SheetMessages,
	SheetTraders, SheetSettings, SheetLegalLog, SheetTraderSubs,
}
