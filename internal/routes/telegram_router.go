package routes

import (
	"github.com/labstack/echo/v4"

	tgcontroller "github.com/parts-pp/parts-pp-sub000/internal/controllers/telegram"
)

func runTelegramRouter(api *echo.Group, tgController *tgcontroller.TelegramController) {
	api.POST("/webhooks/telegram", tgController.HandleTelegramWebhook)
}
