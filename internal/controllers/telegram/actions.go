package telegram

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// Values of the "kind" field of a ModeReceipt state.
const (
	fileCustomerReceipt = "customer_receipt"
	fileGoodsReceipt    = "goods_receipt"
	fileInvoicePrefix   = "invoice_"
)

const (
	maxDraftItems = 20
	skipWord      = "-"
)

func callbackChatID(q *telegram.CallbackQuery) int64 {
	if q.Message != nil && q.Message.Chat.ID != 0 {
		return q.Message.Chat.ID
	}
	return q.From.ID
}

// ==================== CALLBACKS ====================

func (c *TelegramController) handleCallbackQuery(ctx context.Context, q *telegram.CallbackQuery) error {
	cb, err := dto.ParseCallback(q.Data)
	if err != nil {
		c.logger.Warn("unparseable callback", zap.String("data", q.Data), zap.Error(err))
		return nil
	}
	chatID := callbackChatID(q)
	u := &q.From

	switch cb.Action {
	case dto.ActPayMethod:
		if _, err := c.orderService.ChoosePaymentMethod(ctx, c.customer(u), cb.OrderID, cb.Value); err != nil {
			return err
		}
		return c.awaitFileSilently(ctx, chatID, cb.OrderID, fileCustomerReceipt)

	case dto.ActRejectPayment:
		admin, err := c.admin(u)
		if err != nil {
			return err
		}
		o, err := c.orderService.RejectPayment(ctx, admin, cb.OrderID, "receipt not accepted")
		if err != nil {
			return err
		}
		return c.reply(ctx, chatID, fmt.Sprintf("%s: receipt rejected, customer asked for a new one.", o.ID))

	case dto.ActQuote:
		return c.startQuote(ctx, chatID, u, cb.OrderID)

	case dto.ActQuoteShip:
		return c.handleQuoteShipChoice(ctx, chatID, u, cb)

	case dto.ActAcceptQuote:
		traderID := utils.ParseID(cb.Value)
		if traderID == 0 {
			return apperrors.NewValidationError("invalid quote")
		}
		_, err := c.orderService.AcceptQuote(ctx, c.customer(u), cb.OrderID, traderID)
		return err

	case dto.ActAckGoods:
		if _, err := c.orderService.AcknowledgeGoodsPayment(ctx, c.trader(u), cb.OrderID); err != nil {
			return err
		}
		return c.reply(ctx, chatID, fmt.Sprintf("Thanks, payment for %s acknowledged.", cb.OrderID))

	case dto.ActDelivery:
		return c.handleDeliveryChoice(ctx, chatID, u, cb)

	case dto.ActItemMore:
		return c.handleItemMore(ctx, chatID, cb.Value == "yes")

	case dto.ActChat:
		target := entities.Role(cb.Value)
		sender, err := c.chatSender(ctx, u, cb.OrderID, target)
		if err != nil {
			return err
		}
		return c.startChat(ctx, chatID, cb.OrderID, target, sender)

	case dto.ActConfirmSub:
		admin, err := c.admin(u)
		if err != nil {
			return err
		}
		traderRaw, month, _ := strings.Cut(cb.Value, ":")
		return c.confirmSubscription(ctx, chatID, admin, utils.ParseID(traderRaw), month)

	case dto.ActCancelDraft:
		c.clearState(ctx, chatID)
		return c.reply(ctx, chatID, "Draft dropped.")
	}
	c.logger.Warn("unknown callback action", zap.String("action", cb.Action))
	return nil
}

func (c *TelegramController) handleDeliveryChoice(ctx context.Context, chatID int64, u *telegram.User, cb dto.Callback) error {
	choice := entities.DeliveryChoice(cb.Value)
	if _, err := c.orderService.ChooseDelivery(ctx, c.customer(u), cb.OrderID, choice); err != nil {
		return err
	}
	mode := dto.ModeShipping
	prompt := "Shipping address. Which city?"
	if choice == entities.DeliveryPickup {
		mode = dto.ModePickup
		prompt = "Pickup. Which city will you collect in?"
	}
	if err := c.setState(ctx, chatID, dto.NewTelegramState(mode, dto.StepCity, cb.OrderID)); err != nil {
		return err
	}
	return c.reply(ctx, chatID, prompt)
}

// ==================== FREE-FORM MESSAGES ====================

func (c *TelegramController) handleMessage(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID
	state, err := c.getState(ctx, chatID)
	if err != nil {
		return err
	}
	if state == nil {
		if msg.FileID() != "" {
			return c.receiptWithoutState(ctx, chatID, msg)
		}
		return c.reply(ctx, chatID, "Send /new to request parts or /help for all commands.")
	}

	text := strings.TrimSpace(msg.Text)
	if len([]rune(text)) > maxTextLength {
		return apperrors.NewValidationError("message is longer than %d characters", maxTextLength)
	}

	switch state.Mode {
	case dto.ModeIntake:
		return c.handleIntakeStep(ctx, chatID, msg, state, text)
	case dto.ModeReceipt:
		return c.handleFileStep(ctx, chatID, msg, state)
	case dto.ModeQuote:
		return c.handleQuoteStep(ctx, chatID, msg.From, state, text)
	case dto.ModeShipping:
		return c.handleShippingStep(ctx, chatID, msg.From, state, text)
	case dto.ModePickup:
		return c.handlePickupStep(ctx, chatID, msg.From, state, text)
	case dto.ModeChat:
		return c.handleChatMessage(ctx, chatID, msg, state)
	case dto.ModeSubReceipt:
		return c.handleSubscriptionReceipt(ctx, chatID, msg, state)
	}
	c.clearState(ctx, chatID)
	return c.reply(ctx, chatID, "Send /new to request parts or /help for all commands.")
}

// receiptWithoutState accepts a file as the receipt of the customer's only
// order waiting for one.
func (c *TelegramController) receiptWithoutState(ctx context.Context, chatID int64, msg *telegram.Message) error {
	customer := c.customer(msg.From)
	orders, _, err := c.orderService.ListOrders(ctx, customer,
		repositories.OrderFilter{States: []entities.OrderState{entities.StateAwaitReceipt}}, 1, 2)
	if err != nil {
		return err
	}
	if len(orders) != 1 {
		return c.reply(ctx, chatID, "Which order is this for? Use /pay ORDER_ID first.")
	}
	_, err = c.orderService.SubmitReceipt(ctx, customer, orders[0].ID, msg.FileID())
	if err != nil {
		return err
	}
	return c.reply(ctx, chatID, fmt.Sprintf("Receipt for %s received. We will confirm it shortly.", orders[0].ID))
}

// ==================== INTAKE ====================

func (c *TelegramController) handleIntakeStep(ctx context.Context, chatID int64, msg *telegram.Message, state *dto.TelegramState, text string) error {
	if state.Step != dto.StepItemPhoto && text == "" {
		return c.reply(ctx, chatID, "Please answer with text.")
	}
	var prompt string
	var opts []telegram.MessageOption

	switch state.Step {
	case dto.StepCar:
		state.Set("car", text)
		state.Step, prompt = dto.StepModel, "Model and year? (e.g. Camry 2018)"
	case dto.StepModel:
		state.Set("model", text)
		state.Step, prompt = dto.StepVIN, "VIN or chassis number? Send - to skip."
	case dto.StepVIN:
		if text != skipWord {
			vin := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
			if err := c.validate.Var(vin, "vin"); err != nil {
				return apperrors.NewValidationError("VIN must be 11 to 17 letters and digits")
			}
			state.Set("vin", vin)
		}
		state.Step, prompt = dto.StepNotes, "Any notes about the car? Send - to skip."
	case dto.StepNotes:
		if text != skipWord {
			state.Set("notes", text)
		}
		state.Items = append(state.Items, dto.DraftItem{})
		state.Step, prompt = dto.StepItemName, "Part 1: what part do you need?"
	case dto.StepItemName:
		state.CurrentItem().Name = text
		state.Step, prompt = dto.StepItemPartNo, "Part number, if you know it? Send - to skip."
	case dto.StepItemPartNo:
		if text != skipWord {
			state.CurrentItem().PartNo = text
		}
		state.Step, prompt = dto.StepItemPhoto, "Send a photo of the part, or - to skip."
	case dto.StepItemPhoto:
		fileID := msg.LargestPhoto()
		if fileID == "" && text != skipWord {
			return c.reply(ctx, chatID, "Send a photo, or - to skip.")
		}
		state.CurrentItem().PhotoFileID = fileID
		if len(state.Items) >= maxDraftItems {
			state.Step, prompt = dto.StepPrepayNotes, "That is the maximum number of parts. Anything else we should know? Send - to skip."
			break
		}
		state.Step, prompt = dto.StepItemMore, "Add another part?"
		opts = append(opts, inlineKeyboard(
			inlineButton("Add another", dto.Callback{Action: dto.ActItemMore, Value: "yes"}),
			inlineButton("Done", dto.Callback{Action: dto.ActItemMore, Value: "no"}),
		))
	case dto.StepItemMore:
		return c.handleItemMore(ctx, chatID, utils.ParseBool(text))
	case dto.StepPrepayNotes:
		if text != skipWord {
			state.Set("prepay_notes", text)
		}
		return c.submitIntake(ctx, chatID, msg.From, state)
	default:
		c.clearState(ctx, chatID)
		return c.reply(ctx, chatID, "The draft was reset. Send /new to start again.")
	}
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	return c.reply(ctx, chatID, prompt, opts...)
}

func (c *TelegramController) handleItemMore(ctx context.Context, chatID int64, more bool) error {
	state, err := c.getState(ctx, chatID)
	if err != nil {
		return err
	}
	if state == nil || state.Mode != dto.ModeIntake || state.Step != dto.StepItemMore {
		return apperrors.NewStateError("there is no draft waiting for parts; send /new to start")
	}
	var prompt string
	if more {
		state.Items = append(state.Items, dto.DraftItem{})
		state.Step = dto.StepItemName
		prompt = fmt.Sprintf("Part %d: what part do you need?", len(state.Items))
	} else {
		state.Step = dto.StepPrepayNotes
		prompt = "Anything else we should know before payment? Send - to skip."
	}
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	return c.reply(ctx, chatID, prompt)
}

func (c *TelegramController) submitIntake(ctx context.Context, chatID int64, u *telegram.User, state *dto.TelegramState) error {
	input := services.CreateOrderInput{
		Customer:    c.customer(u),
		CarName:     state.Get("car"),
		CarModel:    state.Get("model"),
		VIN:         state.Get("vin"),
		Notes:       state.Get("notes"),
		PrepayNotes: state.Get("prepay_notes"),
	}
	for _, it := range state.Items {
		if it.Name == "" {
			continue
		}
		input.Items = append(input.Items, services.ItemInput{Name: it.Name, PartNo: it.PartNo, PhotoFileID: it.PhotoFileID})
	}
	o, err := c.orderService.CreateOrder(ctx, input)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindValidation) {
			c.clearState(ctx, chatID)
		}
		return err
	}
	c.clearState(ctx, chatID)
	c.logger.Info("order created from chat", zap.String("order_id", o.ID), zap.Int64("user_id", u.ID))
	return nil
}

// ==================== FILES ====================

func (c *TelegramController) awaitFile(ctx context.Context, chatID int64, orderID, kind, prompt string) error {
	if err := c.awaitFileSilently(ctx, chatID, orderID, kind); err != nil {
		return err
	}
	return c.reply(ctx, chatID, prompt)
}

func (c *TelegramController) awaitFileSilently(ctx context.Context, chatID int64, orderID, kind string) error {
	state := dto.NewTelegramState(dto.ModeReceipt, dto.StepFile, orderID)
	state.Set("kind", kind)
	return c.setState(ctx, chatID, state)
}

func (c *TelegramController) handleFileStep(ctx context.Context, chatID int64, msg *telegram.Message, state *dto.TelegramState) error {
	fileID := msg.FileID()
	if fileID == "" {
		return c.reply(ctx, chatID, "Please send the receipt as a photo or file, or /cancel.")
	}
	var err error
	kind := state.Get("kind")
	switch {
	case kind == fileCustomerReceipt:
		_, err = c.orderService.SubmitReceipt(ctx, c.customer(msg.From), state.OrderID, fileID)
	case kind == fileGoodsReceipt:
		var admin entities.Actor
		if admin, err = c.admin(msg.From); err == nil {
			_, err = c.orderService.SubmitGoodsReceipt(ctx, admin, state.OrderID, fileID)
		}
	case strings.HasPrefix(kind, fileInvoicePrefix):
		var admin entities.Actor
		if admin, err = c.admin(msg.From); err == nil {
			invoiceKind := services.InvoiceKind(strings.TrimPrefix(kind, fileInvoicePrefix))
			_, err = c.orderService.AttachInvoice(ctx, admin, state.OrderID, invoiceKind, fileID)
		}
	default:
		err = apperrors.NewStateError("nothing is waiting for a file")
	}
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindValidation) {
			c.clearState(ctx, chatID)
		}
		return err
	}
	c.clearState(ctx, chatID)
	return c.reply(ctx, chatID, fmt.Sprintf("File for %s received.", state.OrderID))
}

func (c *TelegramController) handleSubscriptionReceipt(ctx context.Context, chatID int64, msg *telegram.Message, state *dto.TelegramState) error {
	fileID := msg.FileID()
	if fileID == "" {
		return c.reply(ctx, chatID, "Please send the subscription receipt as a photo or file, or /cancel.")
	}
	sub, err := c.subService.SubmitReceipt(ctx, c.trader(msg.From), state.Get("month"), state.Get("method"), fileID)
	if err != nil {
		return err
	}
	c.clearState(ctx, chatID)
	return c.reply(ctx, chatID, fmt.Sprintf("Receipt for %s received. An admin will confirm it.", sub.Month))
}

// ==================== QUOTES ====================

// startQuote checks eligibility up front by viewing the order as a trader.
func (c *TelegramController) startQuote(ctx context.Context, chatID int64, u *telegram.User, orderID string) error {
	orderID = strings.ToUpper(strings.TrimSpace(orderID))
	view, err := c.orderService.GetOrder(ctx, c.trader(u), orderID)
	if err != nil {
		return err
	}
	if !view.Order.State.In(entities.StateQuoteBroadcast, entities.StateQuoteOffered) || view.Order.QuoteLocked {
		return apperrors.NewStateError("order %s is not open for quotes", orderID)
	}
	if err := c.setState(ctx, chatID, dto.NewTelegramState(dto.ModeQuote, dto.StepQuoteAmount, orderID)); err != nil {
		return err
	}
	return c.reply(ctx, chatID, describeOrder(view.Order, view.Items, entities.RoleTrader)+
		"\n\nTotal price for the goods in SAR?")
}

func (c *TelegramController) handleQuoteStep(ctx context.Context, chatID int64, u *telegram.User, state *dto.TelegramState, text string) error {
	switch state.Step {
	case dto.StepQuoteAmount:
		if err := c.validate.Var(text, "money"); err != nil {
			return apperrors.NewValidationError("send the amount as a number, e.g. 350 or 350.50")
		}
		state.Set("amount", text)
		state.Step = dto.StepQuoteDays
		if err := c.setState(ctx, chatID, state); err != nil {
			return err
		}
		return c.reply(ctx, chatID, "How many days until the parts are available? (0 if in stock)")
	case dto.StepQuoteDays:
		days := utils.ParseInt(text)
		if days < 0 || (days == 0 && text != "0") {
			return apperrors.NewValidationError("send the number of days")
		}
		state.Set("days", text)
		state.Step = dto.StepQuoteShip
		if err := c.setState(ctx, chatID, state); err != nil {
			return err
		}
		return c.reply(ctx, chatID, "Is shipping included in the price?", inlineKeyboard(
			inlineButton("Included", dto.Callback{Action: dto.ActQuoteShip, OrderID: state.OrderID, Value: "yes"}),
			inlineButton("Not included", dto.Callback{Action: dto.ActQuoteShip, OrderID: state.OrderID, Value: "no"}),
		))
	case dto.StepQuoteShip:
		if state.Get("ship") != "no" {
			return c.reply(ctx, chatID, "Tap one of the buttons above.")
		}
		if err := c.validate.Var(text, "money"); err != nil {
			return apperrors.NewValidationError("send the shipping fee as a number")
		}
		state.Set("fee", text)
		return c.submitQuote(ctx, chatID, u, state)
	}
	c.clearState(ctx, chatID)
	return nil
}

func (c *TelegramController) handleQuoteShipChoice(ctx context.Context, chatID int64, u *telegram.User, cb dto.Callback) error {
	state, err := c.getState(ctx, chatID)
	if err != nil {
		return err
	}
	if state == nil || state.Mode != dto.ModeQuote || state.OrderID != cb.OrderID || state.Step != dto.StepQuoteShip {
		return apperrors.NewStateError("no quote in progress for %s", cb.OrderID)
	}
	state.Set("ship", cb.Value)
	if cb.Value == "no" {
		if err := c.setState(ctx, chatID, state); err != nil {
			return err
		}
		return c.reply(ctx, chatID, "Shipping fee in SAR?")
	}
	return c.submitQuote(ctx, chatID, u, state)
}

func (c *TelegramController) submitQuote(ctx context.Context, chatID int64, u *telegram.User, state *dto.TelegramState) error {
	input := services.QuoteInput{
		GoodsAmountSAR:   state.Get("amount"),
		AvailabilityDays: utils.ParseInt(state.Get("days")),
		ShipIncluded:     state.Get("ship") != "no",
		ShippingFeeSAR:   state.Get("fee"),
	}
	o, err := c.orderService.SubmitQuote(ctx, c.trader(u), state.OrderID, input)
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindValidation) {
			c.clearState(ctx, chatID)
		}
		return err
	}
	c.clearState(ctx, chatID)
	return c.reply(ctx, chatID, fmt.Sprintf("Quote for %s sent to the customer.", o.ID))
}

// ==================== DELIVERY ====================

// formStep is one question of a delivery form.
type formStep struct {
	step     string
	field    string
	prompt   string
	optional bool
}

var shippingSteps = []formStep{
	{dto.StepCity, "city", "Shipping address. Which city?", false},
	{dto.StepDistrict, "district", "District?", false},
	{dto.StepStreet, "street", "Street?", false},
	{dto.StepPOBox, "pobox", "Postal code / PO box? Send - to skip.", true},
	{dto.StepAdditional, "additional", "Additional number? Send - to skip.", true},
	{dto.StepBuilding, "building", "Building number? Send - to skip.", true},
	{dto.StepPhone, "phone", "Contact phone (05XXXXXXXX)?", false},
}

var pickupSteps = []formStep{
	{dto.StepCity, "city", "Pickup. Which city will you collect in?", false},
	{dto.StepPhone, "phone", "Contact phone (05XXXXXXXX)?", false},
	{dto.StepLocation, "location", "Preferred pickup location or area? Send - to skip.", true},
}

func (c *TelegramController) handleShippingStep(ctx context.Context, chatID int64, u *telegram.User, state *dto.TelegramState, text string) error {
	for i, s := range shippingSteps {
		if s.step != state.Step {
			continue
		}
		if err := c.collect(state, s, text); err != nil {
			return err
		}
		if i+1 < len(shippingSteps) {
			return c.advance(ctx, chatID, state, shippingSteps[i+1].step, shippingSteps[i+1].prompt)
		}
		addr := services.ShippingAddress{
			City:       state.Get("city"),
			District:   state.Get("district"),
			Street:     state.Get("street"),
			POBox:      state.Get("pobox"),
			Additional: state.Get("additional"),
			Building:   state.Get("building"),
			Phone:      state.Get("phone"),
		}
		return c.finishDelivery(ctx, chatID, state, func() (*entities.Order, error) {
			return c.orderService.SubmitShipping(ctx, c.customer(u), state.OrderID, addr)
		})
	}
	c.clearState(ctx, chatID)
	return nil
}

func (c *TelegramController) handlePickupStep(ctx context.Context, chatID int64, u *telegram.User, state *dto.TelegramState, text string) error {
	for i, s := range pickupSteps {
		if s.step != state.Step {
			continue
		}
		if err := c.collect(state, s, text); err != nil {
			return err
		}
		if i+1 < len(pickupSteps) {
			return c.advance(ctx, chatID, state, pickupSteps[i+1].step, pickupSteps[i+1].prompt)
		}
		pickup := services.PickupDetails{
			City:     state.Get("city"),
			Phone:    state.Get("phone"),
			Location: state.Get("location"),
		}
		return c.finishDelivery(ctx, chatID, state, func() (*entities.Order, error) {
			return c.orderService.SubmitPickup(ctx, c.customer(u), state.OrderID, pickup)
		})
	}
	c.clearState(ctx, chatID)
	return nil
}

func (c *TelegramController) collect(state *dto.TelegramState, s formStep, text string) error {
	if text == "" || (text == skipWord && !s.optional) {
		return apperrors.NewValidationError("please answer with text")
	}
	if s.field == "phone" {
		if err := c.validate.Var(text, "sa_phone"); err != nil {
			return apperrors.NewValidationError("phone must be a Saudi mobile number like 05XXXXXXXX")
		}
	}
	if text == skipWord {
		text = ""
	}
	state.Set(s.field, text)
	return nil
}

func (c *TelegramController) advance(ctx context.Context, chatID int64, state *dto.TelegramState, step, prompt string) error {
	state.Step = step
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	return c.reply(ctx, chatID, prompt)
}

func (c *TelegramController) finishDelivery(ctx context.Context, chatID int64, state *dto.TelegramState, submit func() (*entities.Order, error)) error {
	o, err := submit()
	if err != nil {
		if !apperrors.IsKind(err, apperrors.KindValidation) {
			c.clearState(ctx, chatID)
		}
		return err
	}
	c.clearState(ctx, chatID)
	return c.reply(ctx, chatID, fmt.Sprintf("Thanks, delivery details for %s saved.", o.ID))
}

// ==================== CHAT RELAY ====================

func (c *TelegramController) handleChatMessage(ctx context.Context, chatID int64, msg *telegram.Message, state *dto.TelegramState) error {
	req := services.RelayRequest{
		Sender:  entities.Actor{Role: entities.Role(state.Get("as")), ID: msg.From.ID, Name: msg.From.DisplayName()},
		OrderID: state.OrderID,
		Target:  entities.Role(state.Target),
		Text:    strings.TrimSpace(msg.Text),
	}
	switch {
	case msg.LargestPhoto() != "":
		req.FileID, req.Attachment, req.Text = msg.LargestPhoto(), services.AttachmentPhoto, msg.Caption
	case msg.Document != nil:
		req.FileID, req.Attachment, req.Text = msg.Document.FileID, services.AttachmentDocument, msg.Caption
	}
	res, err := c.relay.Relay(ctx, req)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindState) || apperrors.IsKind(err, apperrors.KindAuthorization) {
			c.clearState(ctx, chatID)
		}
		return err
	}
	if res.Delivered == 0 {
		return c.reply(ctx, chatID, "The recipient is not reachable right now.")
	}
	return nil
}
