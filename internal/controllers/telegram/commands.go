package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

const customerHelp = "Parts broker bot\n\n" +
	"/new - request spare parts\n" +
	"/orders - your orders\n" +
	"/order ID - order details\n" +
	"/quotes ID - quotes for your order\n" +
	"/pay ID - choose how to pay the service fee\n" +
	"/chat ID admin|trader - message about an order\n" +
	"/support - message the team\n" +
	"/done - leave chat mode\n" +
	"/cancel - drop the current draft\n" +
	"/cancelorder ID reason - cancel an unpaid order"

const traderHelp = "Traders\n\n" +
	"/register Name | Company | Phone - join as a trader\n" +
	"/subscribe [bank|stc_pay] - send this month's subscription receipt\n" +
	"/tasks - orders open for quotes and your accepted orders\n" +
	"/quote ID - send a quote"

const adminHelp = "Admins\n\n" +
	"/open [page] - open orders\n" +
	"/confirm ID amount [method] - confirm the service fee\n" +
	"/reject ID reason - reject a receipt\n" +
	"/rebroadcast ID, /norebroadcast ID\n" +
	"/override ID amount days [yes|fee]\n" +
	"/goodsmethod ID method [link], /goodsreceipt ID, /goodspaid ID\n" +
	"/ship ID tracking [carrier] [fee], /delivered ID\n" +
	"/cancelorder ID reason, /refunded ID\n" +
	"/assign ID, /history ID\n" +
	"/invoice ID customer|trader pre ship, /attachinvoice ID customer|trader\n" +
	"/settings, /set key value\n" +
	"/traders [all], /enable ID, /disable ID, /subconfirm ID [YYYY-MM]\n" +
	"/report"

// ==================== COMMAND DISPATCH ====================

func (c *TelegramController) handleCommand(ctx context.Context, msg *telegram.Message, text string) error {
	args := strings.Fields(text)
	cmd := strings.ToLower(strings.SplitN(args[0], "@", 2)[0])
	args = args[1:]
	chatID := msg.Chat.ID
	u := msg.From

	switch cmd {
	case "/start", "/help":
		return c.handleHelpCommand(ctx, chatID, u)
	case "/new":
		return c.handleNewCommand(ctx, chatID)
	case "/cancel", "/done":
		c.clearState(ctx, chatID)
		return c.reply(ctx, chatID, "Okay, nothing pending.")
	case "/orders":
		return c.handleListCommand(ctx, chatID, c.customer(u), repositories.OrderFilter{}, pageArg(args, 0))
	case "/order":
		return c.handleShowOrderCommand(ctx, chatID, u, args)
	case "/quotes":
		return c.handleQuotesCommand(ctx, chatID, u, args)
	case "/pay":
		return c.handlePayCommand(ctx, chatID, u, args)
	case "/chat":
		return c.handleChatCommand(ctx, chatID, u, args)
	case "/support":
		return c.startChat(ctx, chatID, "", entities.RoleAdmin, c.customer(u))
	case "/cancelorder":
		return c.handleCancelOrderCommand(ctx, chatID, u, args)

	case "/register":
		return c.handleRegisterCommand(ctx, chatID, u, strings.TrimSpace(strings.TrimPrefix(text, args0(text))))
	case "/subscribe":
		return c.handleSubscribeCommand(ctx, chatID, u, args)
	case "/tasks":
		return c.handleListCommand(ctx, chatID, c.trader(u), repositories.OrderFilter{OnlyOpen: true}, pageArg(args, 0))
	case "/quote":
		if len(args) < 1 {
			return apperrors.NewValidationError("usage: /quote ORDER_ID")
		}
		return c.startQuote(ctx, chatID, u, args[0])
	}

	admin, err := c.admin(u)
	if err != nil {
		if isAdminCommand(cmd) {
			return err
		}
		return c.reply(ctx, chatID, "Unknown command. Send /help for the list.")
	}
	return c.handleAdminCommand(ctx, chatID, admin, cmd, args)
}

func args0(text string) string {
	if i := strings.IndexAny(text, " \t\n"); i > 0 {
		return text[:i]
	}
	return text
}

func pageArg(args []string, idx int) int {
	if p := utils.ParseInt(utils.SafeGet(args, idx)); p > 0 {
		return p
	}
	return 1
}

// needArgs returns a Validation error carrying usage when args is short.
func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return apperrors.NewValidationError("usage: %s", usage)
	}
	return nil
}

var adminCommands = map[string]bool{
	"/open": true, "/confirm": true, "/reject": true, "/rebroadcast": true, "/norebroadcast": true,
	"/override": true, "/goodsmethod": true, "/goodsreceipt": true, "/goodspaid": true,
	"/ship": true, "/delivered": true, "/refunded": true, "/assign": true, "/history": true,
	"/invoice": true, "/attachinvoice": true, "/settings": true, "/set": true, "/traders": true,
	"/enable": true, "/disable": true, "/subconfirm": true, "/report": true,
}

func isAdminCommand(cmd string) bool { return adminCommands[cmd] }

// ==================== GENERAL ====================

func (c *TelegramController) handleHelpCommand(ctx context.Context, chatID int64, u *telegram.User) error {
	text := customerHelp + "\n\n" + traderHelp
	if c.cfg.IsAdmin(u.ID) {
		text += "\n\n" + adminHelp
	}
	return c.reply(ctx, chatID, text)
}

func (c *TelegramController) handleNewCommand(ctx context.Context, chatID int64) error {
	state := dto.NewTelegramState(dto.ModeIntake, dto.StepCar, "")
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	return c.reply(ctx, chatID, "New request. What is the car make? (e.g. Toyota)\nSend /cancel at any time to stop.")
}

func (c *TelegramController) handleListCommand(ctx context.Context, chatID int64, actor entities.Actor, filter repositories.OrderFilter, page int) error {
	orders, total, err := c.orderService.ListOrders(ctx, actor, filter, page, ordersPerPage)
	if err != nil {
		return err
	}
	if total == 0 {
		return c.reply(ctx, chatID, "No orders.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Orders (%d total, page %d)\n", total, page)
	for _, o := range orders {
		fmt.Fprintf(&b, "%s  %s %s  [%s]\n", o.ID, o.CarName, o.CarModel, o.State)
	}
	if page*ordersPerPage < total {
		b.WriteString("More: repeat the command with page ")
		b.WriteString(utils.FormatID(int64(page + 1)))
	}
	return c.reply(ctx, chatID, strings.TrimRight(b.String(), "\n"))
}

// viewer picks the role an order is shown under: admin if listed, otherwise
// the owner, otherwise a trader.
func (c *TelegramController) viewer(ctx context.Context, u *telegram.User, orderID string) (entities.Actor, *services.OrderView, error) {
	if admin, err := c.admin(u); err == nil {
		view, err := c.orderService.GetOrder(ctx, admin, orderID)
		return admin, view, err
	}
	customer := c.customer(u)
	view, err := c.orderService.GetOrder(ctx, customer, orderID)
	if err == nil || !apperrors.IsKind(err, apperrors.KindAuthorization) {
		return customer, view, err
	}
	trader := c.trader(u)
	view, err = c.orderService.GetOrder(ctx, trader, orderID)
	return trader, view, err
}

func (c *TelegramController) handleShowOrderCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	if err := needArgs(args, 1, "/order ORDER_ID"); err != nil {
		return err
	}
	actor, view, err := c.viewer(ctx, u, strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	text := describeOrder(view.Order, view.Items, actor.Role)
	if actor.Role == entities.RoleCustomer && view.Order.State == entities.StatePayMethod {
		return c.reply(ctx, chatID, text, paymentKeyboard(view.Order.ID))
	}
	return c.reply(ctx, chatID, text)
}

func (c *TelegramController) handleQuotesCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	if err := needArgs(args, 1, "/quotes ORDER_ID"); err != nil {
		return err
	}
	actor, view, err := c.viewer(ctx, u, strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	quotes, err := c.orderService.ListQuotes(ctx, actor, view.Order.ID)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return c.reply(ctx, chatID, "No quotes yet.")
	}
	for _, q := range quotes {
		text := describeQuote(view.Order.ID, q)
		if actor.Role == entities.RoleCustomer && view.Order.State == entities.StateQuoteOffered && !view.Order.QuoteLocked {
			err = c.reply(ctx, chatID, text, inlineKeyboard(inlineButton("Accept this quote",
				dto.Callback{Action: dto.ActAcceptQuote, OrderID: view.Order.ID, Value: utils.FormatID(q.TraderID)})))
		} else {
			err = c.reply(ctx, chatID, text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *TelegramController) handlePayCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	if err := needArgs(args, 1, "/pay ORDER_ID"); err != nil {
		return err
	}
	view, err := c.orderService.GetOrder(ctx, c.customer(u), strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	if !view.Order.State.In(entities.StatePayMethod, entities.StateAwaitReceipt) {
		return apperrors.NewStateError("order %s is not waiting for the service fee", view.Order.ID)
	}
	return c.reply(ctx, chatID, "How would you like to pay the service fee?", paymentKeyboard(view.Order.ID))
}

func (c *TelegramController) handleCancelOrderCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	if err := needArgs(args, 1, "/cancelorder ORDER_ID [reason]"); err != nil {
		return err
	}
	actor := c.customer(u)
	if admin, err := c.admin(u); err == nil {
		actor = admin
	}
	o, err := c.orderService.Cancel(ctx, actor, strings.ToUpper(args[0]), strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if o.State == entities.StateRefundPending {
		return c.reply(ctx, chatID, fmt.Sprintf("Order %s cancelled; the refund is pending.", o.ID))
	}
	return c.reply(ctx, chatID, fmt.Sprintf("Order %s cancelled.", o.ID))
}

// ==================== CHAT ====================

func (c *TelegramController) handleChatCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	if err := needArgs(args, 2, "/chat ORDER_ID admin|trader|customer"); err != nil {
		return err
	}
	orderID := strings.ToUpper(args[0])
	target := entities.Role(strings.ToLower(args[1]))
	if target != entities.RoleAdmin && target != entities.RoleTrader && target != entities.RoleCustomer {
		return apperrors.NewValidationError("unknown chat target %q", args[1])
	}
	sender, err := c.chatSender(ctx, u, orderID, target)
	if err != nil {
		return err
	}
	return c.startChat(ctx, chatID, orderID, target, sender)
}

// chatSender decides which side of the conversation u speaks for.
func (c *TelegramController) chatSender(ctx context.Context, u *telegram.User, orderID string, target entities.Role) (entities.Actor, error) {
	if admin, err := c.admin(u); err == nil && target != entities.RoleAdmin {
		return admin, nil
	}
	switch target {
	case entities.RoleCustomer:
		return c.trader(u), nil
	case entities.RoleTrader:
		return c.customer(u), nil
	}
	if orderID == "" {
		return c.customer(u), nil
	}
	_, err := c.orderService.GetOrder(ctx, c.customer(u), orderID)
	if err == nil {
		return c.customer(u), nil
	}
	if apperrors.IsKind(err, apperrors.KindAuthorization) {
		return c.trader(u), nil
	}
	return entities.Actor{}, err
}

// startChat checks the route once so the user learns about a closed chat
// before typing, then switches the chat into relay mode.
func (c *TelegramController) startChat(ctx context.Context, chatID int64, orderID string, target entities.Role, sender entities.Actor) error {
	if _, err := c.relay.Recipients(ctx, services.RelayRequest{Sender: sender, OrderID: orderID, Target: target, Text: "."}); err != nil {
		return err
	}
	state := dto.NewTelegramState(dto.ModeChat, dto.StepText, orderID)
	state.Target = string(target)
	state.Set("as", string(sender.Role))
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	label := string(target)
	if orderID != "" {
		label += " about " + orderID
	}
	return c.reply(ctx, chatID, "Chat with "+label+" is open. Messages, photos and files you send are forwarded. Send /done to stop.")
}

// ==================== TRADERS ====================

func (c *TelegramController) handleRegisterCommand(ctx context.Context, chatID int64, u *telegram.User, rest string) error {
	parts := strings.Split(rest, "|")
	input := services.RegisterTraderInput{
		TraderID:    u.ID,
		DisplayName: strings.TrimSpace(utils.SafeGet(parts, 0)),
		CompanyName: utils.SafeGet(parts, 1),
		ShopPhone:   utils.SafeGet(parts, 2),
	}
	if input.DisplayName == "" {
		input.DisplayName = u.DisplayName()
	}
	trader, err := c.subService.RegisterTrader(ctx, input)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Registered as %s.", trader.DisplayName)
	if !trader.IsEnabled {
		text += " An admin will enable your account."
	}
	return c.reply(ctx, chatID, text+" Send /subscribe to pay this month's subscription.")
}

func (c *TelegramController) handleSubscribeCommand(ctx context.Context, chatID int64, u *telegram.User, args []string) error {
	sub, err := c.subService.EnsureSubscription(ctx, u.ID, "")
	if err != nil {
		return err
	}
	if sub.PaymentStatus == entities.SubscriptionConfirmed {
		return c.reply(ctx, chatID, fmt.Sprintf("Your subscription for %s is already active.", sub.Month))
	}
	method := strings.ToLower(utils.SafeGet(args, 0))
	if method == "" {
		method = services.MethodBank
	}
	state := dto.NewTelegramState(dto.ModeSubReceipt, dto.StepFile, "")
	state.Set("month", sub.Month)
	state.Set("method", method)
	if err := c.setState(ctx, chatID, state); err != nil {
		return err
	}
	return c.reply(ctx, chatID, fmt.Sprintf("Subscription %s: %s. Send the payment receipt as a photo or file.",
		sub.Month, displaySAR(sub.AmountSAR)))
}

// ==================== ADMIN ====================

func (c *TelegramController) handleAdminCommand(ctx context.Context, chatID int64, admin entities.Actor, cmd string, args []string) error {
	var (
		o   *entities.Order
		err error
	)
	id := strings.ToUpper(utils.SafeGet(args, 0))

	switch cmd {
	case "/open":
		return c.handleListCommand(ctx, chatID, admin, repositories.OrderFilter{OnlyOpen: true}, pageArg(args, 0))
	case "/confirm":
		if err := needArgs(args, 2, "/confirm ORDER_ID amount [method]"); err != nil {
			return err
		}
		o, err = c.orderService.ConfirmPrepayment(ctx, admin, id, args[1], utils.SafeGet(args, 2))
	case "/reject":
		if err := needArgs(args, 1, "/reject ORDER_ID reason"); err != nil {
			return err
		}
		o, err = c.orderService.RejectPayment(ctx, admin, id, strings.Join(args[1:], " "))
	case "/rebroadcast":
		if err := needArgs(args, 1, "/rebroadcast ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.Rebroadcast(ctx, admin, id)
	case "/norebroadcast":
		if err := needArgs(args, 1, "/norebroadcast ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.DisableRebroadcast(ctx, admin, id)
	case "/override":
		if err := needArgs(args, 3, "/override ORDER_ID amount days [yes|fee]"); err != nil {
			return err
		}
		o, err = c.orderService.AdminOverrideQuote(ctx, admin, id, overrideInput(args[1:]))
	case "/goodsmethod":
		if err := needArgs(args, 2, "/goodsmethod ORDER_ID method [link]"); err != nil {
			return err
		}
		o, err = c.orderService.ChooseGoodsPaymentMethod(ctx, admin, id, args[1], utils.SafeGet(args, 2))
	case "/goodsreceipt":
		if err := needArgs(args, 1, "/goodsreceipt ORDER_ID"); err != nil {
			return err
		}
		return c.awaitFile(ctx, chatID, id, fileGoodsReceipt, "Send the goods payment receipt for "+id+".")
	case "/goodspaid":
		if err := needArgs(args, 1, "/goodspaid ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.ConfirmGoodsPayment(ctx, admin, id)
	case "/ship":
		if err := needArgs(args, 2, "/ship ORDER_ID tracking [carrier] [fee]"); err != nil {
			return err
		}
		o, err = c.orderService.MarkShipped(ctx, admin, id, services.ShipmentInput{
			Tracking:       args[1],
			Carrier:        utils.SafeGet(args, 2),
			ShippingFeeSAR: utils.SafeGet(args, 3),
		})
	case "/delivered":
		if err := needArgs(args, 1, "/delivered ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.MarkDelivered(ctx, admin, id)
	case "/refunded":
		if err := needArgs(args, 1, "/refunded ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.MarkRefunded(ctx, admin, id)
	case "/assign":
		if err := needArgs(args, 1, "/assign ORDER_ID"); err != nil {
			return err
		}
		o, err = c.orderService.AssignAdmin(ctx, admin, id, admin)
	case "/history":
		if err := needArgs(args, 1, "/history ORDER_ID"); err != nil {
			return err
		}
		return c.handleHistoryCommand(ctx, chatID, admin, id)
	case "/invoice":
		if err := needArgs(args, 4, "/invoice ORDER_ID customer|trader PRE_NO SHIP_NO (- to skip)"); err != nil {
			return err
		}
		o, err = c.orderService.SetInvoiceNumbers(ctx, admin, id, services.InvoiceKind(strings.ToLower(args[1])),
			optionalArg(args[2]), optionalArg(args[3]))
	case "/attachinvoice":
		if err := needArgs(args, 2, "/attachinvoice ORDER_ID customer|trader"); err != nil {
			return err
		}
		kind := strings.ToLower(args[1])
		if kind != string(services.InvoiceCustomer) && kind != string(services.InvoiceTrader) {
			return apperrors.NewValidationError("invoice kind must be customer or trader")
		}
		return c.awaitFile(ctx, chatID, id, fileInvoicePrefix+kind, "Send the "+kind+" invoice file for "+id+".")
	case "/settings":
		return c.handleSettingsCommand(ctx, chatID)
	case "/set":
		if err := needArgs(args, 2, "/set key value"); err != nil {
			return err
		}
		if err := c.settings.Set(ctx, admin, args[0], args[1]); err != nil {
			return err
		}
		return c.reply(ctx, chatID, fmt.Sprintf("%s = %s", args[0], args[1]))
	case "/traders":
		return c.handleTradersCommand(ctx, chatID, utils.SafeGet(args, 0) != "all")
	case "/enable", "/disable":
		if err := needArgs(args, 1, cmd+" TRADER_ID"); err != nil {
			return err
		}
		traderID := utils.ParseID(args[0])
		if traderID == 0 {
			return apperrors.NewValidationError("invalid trader id %q", args[0])
		}
		if err := c.subService.SetTraderEnabled(ctx, admin, traderID, cmd == "/enable"); err != nil {
			return err
		}
		return c.reply(ctx, chatID, fmt.Sprintf("Trader %d %sd.", traderID, strings.TrimPrefix(cmd, "/")))
	case "/subconfirm":
		if err := needArgs(args, 1, "/subconfirm TRADER_ID [YYYY-MM]"); err != nil {
			return err
		}
		return c.confirmSubscription(ctx, chatID, admin, utils.ParseID(args[0]), utils.SafeGet(args, 1))
	case "/report":
		return c.handleReportCommand(ctx, chatID, admin)
	default:
		return c.reply(ctx, chatID, "Unknown command. Send /help for the list.")
	}
	if err != nil {
		return err
	}
	c.logger.Info("admin command applied",
		zap.String("command", cmd),
		zap.String("order_id", o.ID),
		zap.Int64("admin_id", admin.ID))
	return c.reply(ctx, chatID, fmt.Sprintf("%s: %s", o.ID, o.State))
}

func optionalArg(raw string) *string {
	if raw == "-" {
		return nil
	}
	return &raw
}

// overrideInput reads "amount days [yes|fee]".
func overrideInput(args []string) services.QuoteInput {
	in := services.QuoteInput{
		GoodsAmountSAR:   args[0],
		AvailabilityDays: utils.ParseInt(args[1]),
		ShipIncluded:     true,
	}
	if extra := utils.SafeGet(args, 2); extra != "" && !utils.ParseBool(extra) {
		in.ShipIncluded = false
		in.ShippingFeeSAR = extra
	}
	return in
}

func (c *TelegramController) confirmSubscription(ctx context.Context, chatID int64, admin entities.Actor, traderID int64, month string) error {
	if traderID == 0 {
		return apperrors.NewValidationError("invalid trader id")
	}
	sub, err := c.subService.ConfirmSubscription(ctx, admin, traderID, month)
	if err != nil {
		return err
	}
	return c.reply(ctx, chatID, fmt.Sprintf("Subscription of %d for %s confirmed (%s).",
		sub.TraderID, sub.Month, displaySAR(sub.AmountSAR)))
}

func (c *TelegramController) handleHistoryCommand(ctx context.Context, chatID int64, admin entities.Actor, orderID string) error {
	evs, err := c.orderService.History(ctx, admin, orderID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "History of %s\n", orderID)
	for _, e := range evs {
		fmt.Fprintf(&b, "%s  %s  by %s %d\n", utils.FormatUTC(e.CreatedAt), e.Type, e.Actor.Role, e.Actor.ID)
	}
	return c.reply(ctx, chatID, truncate(b.String()))
}

func (c *TelegramController) handleSettingsCommand(ctx context.Context, chatID int64) error {
	st, err := c.settings.Load(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Settings\n"+
		"%s: %s\n%s: %d\n%s: %s\n%s: %s\n%s: %s\n%s: %s\n%s: %s SAR",
		services.SettingRebroadcastCooldown, utils.FormatSecondsToHumanReadable(st.RebroadcastCooldown),
		services.SettingRebroadcastMax, st.RebroadcastMax,
		services.SettingChatExpiry, utils.FormatSecondsToHumanReadable(st.ChatExpiry),
		services.SettingNoquotePing, utils.FormatSecondsToHumanReadable(st.NoquotePing),
		services.SettingUnpaidPing, utils.FormatSecondsToHumanReadable(st.UnpaidPing),
		services.SettingPaidTraderPing, utils.FormatSecondsToHumanReadable(st.PaidTraderPing),
		services.SettingSubscriptionFee, money.Display(st.SubscriptionFee))
	return c.reply(ctx, chatID, text)
}

func (c *TelegramController) handleTradersCommand(ctx context.Context, chatID int64, eligibleOnly bool) error {
	traders, err := c.subService.ListTraders(ctx, eligibleOnly)
	if err != nil {
		return err
	}
	if len(traders) == 0 {
		return c.reply(ctx, chatID, "No traders.")
	}
	sort.Slice(traders, func(i, j int) bool { return traders[i].ID < traders[j].ID })
	var b strings.Builder
	for _, t := range traders {
		status := "enabled"
		if !t.IsEnabled {
			status = "disabled"
		}
		fmt.Fprintf(&b, "%d  %s", t.ID, t.DisplayName)
		if t.CompanyName != "" {
			fmt.Fprintf(&b, " (%s)", t.CompanyName)
		}
		fmt.Fprintf(&b, "  %s\n", status)
	}
	return c.reply(ctx, chatID, truncate(b.String()))
}

func (c *TelegramController) handleReportCommand(ctx context.Context, chatID int64, admin entities.Actor) error {
	sum, err := c.reports.Financials(ctx, admin)
	if err != nil {
		return err
	}
	buckets, err := c.reports.RevenueBreakdown(ctx, admin)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Confirmed orders: %d\nRevenue: %s SAR\nGoods: %s SAR\nShipping: %s SAR\nMargin: %s SAR\n",
		sum.Orders, money.Display(sum.Revenue), money.Display(sum.Goods), money.Display(sum.Shipping), money.Display(sum.Margin))
	for _, bk := range buckets {
		fmt.Fprintf(&b, "%s %s: %d orders, %s SAR\n", bk.Month, bk.Method, bk.Orders, money.Display(bk.Revenue))
	}
	return c.reply(ctx, chatID, truncate(b.String()))
}
