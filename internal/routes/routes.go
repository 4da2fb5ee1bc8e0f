package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	tgcontroller "github.com/parts-pp/parts-pp-sub000/internal/controllers/telegram"
	"github.com/parts-pp/parts-pp-sub000/internal/listeners"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	"github.com/parts-pp/parts-pp-sub000/pkg/customvalidator"
	"github.com/parts-pp/parts-pp-sub000/pkg/eventbus"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

type Loggers struct {
	Main     *zap.Logger
	Order    *zap.Logger
	Telegram *zap.Logger
}

// Components is the wired application shared by the serve and poll modes.
type Components struct {
	Bus           *eventbus.Bus
	Orders        *services.OrderService
	Subscriptions services.SubscriptionServiceInterface
	Settings      services.SettingsServiceInterface
	Relay         services.RelayServiceInterface
	Reports       services.ReportServiceInterface
	Sweeper       *services.Sweeper
	Telegram      *tgcontroller.TelegramController
}

// NewComponents builds repositories, services, the notification listener
// and the bot controller on top of one workbook store.
func NewComponents(
	cfg *config.Config,
	storage repositories.TxManagerInterface,
	cacheRepo repositories.CacheRepositoryInterface,
	tgService telegram.ServiceInterface,
	loggers *Loggers,
) *Components {
	validate := customvalidator.New()
	bus := eventbus.New(loggers.Main)

	// --- repositories ---
	orderRepo := repositories.NewOrderRepository(storage, loggers.Order)
	itemRepo := repositories.NewItemRepository(storage)
	historyRepo := repositories.NewOrderHistoryRepository(storage)
	messageRepo := repositories.NewOrderCommentRepository(storage)
	settingsRepo := repositories.NewSettingsRepository(storage)
	legalRepo := repositories.NewLegalLogRepository(storage)
	traderRepo := repositories.NewTraderRepository(storage)
	subRepo := repositories.NewTraderSubscriptionRepository(storage)
	reportRepo := repositories.NewReportRepository(storage, loggers.Main)

	// --- services ---
	settingsService := services.NewSettingsService(storage, settingsRepo, legalRepo, cfg.Telegram.IsAdmin, loggers.Main)
	subService := services.NewSubscriptionService(storage, traderRepo, subRepo, legalRepo, settingsService, bus, validate, cfg.Telegram.IsAdmin, loggers.Main)
	idService := services.NewOrderIDService(storage, settingsRepo, cfg.Store.OrderPrefix)
	orderService := services.NewOrderService(
		storage, orderRepo, itemRepo, historyRepo, traderRepo, legalRepo,
		idService, settingsService, subService, bus, validate, cfg.Telegram.IsAdmin, loggers.Order,
	)
	relayService := services.NewRelayService(
		storage, orderRepo, traderRepo, messageRepo, legalRepo, subService,
		tgService, cfg.Telegram.AdminIDs, loggers.Telegram,
	)
	reportService := services.NewReportService(reportRepo, cfg.Telegram.IsAdmin, loggers.Main)
	sweeper := services.NewSweeper(orderService, orderRepo, settingsService, bus, loggers.Order)

	// --- listeners ---
	listeners.NewNotificationListener(tgService, orderService, orderRepo, cfg.Telegram, loggers.Telegram).Register(bus)

	// --- controllers ---
	tgController := tgcontroller.NewTelegramController(
		orderService, subService, settingsService, relayService, reportService,
		tgService, cacheRepo, cfg.Telegram, loggers.Telegram,
	)

	return &Components{
		Bus:           bus,
		Orders:        orderService,
		Subscriptions: subService,
		Settings:      settingsService,
		Relay:         relayService,
		Reports:       reportService,
		Sweeper:       sweeper,
		Telegram:      tgController,
	}
}

// InitRouter mounts the webhook and the operational endpoints.
func InitRouter(e *echo.Echo, comps *Components, loggers *Loggers) {
	loggers.Main.Info("InitRouter: registering routes")

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	runTelegramRouter(api, comps.Telegram)

	loggers.Main.Info("InitRouter: routes registered")
}
