package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/dto"
	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/services"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	"github.com/parts-pp/parts-pp-sub000/pkg/customvalidator"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

const (
	telegramStateKey      = "pp_chat_state:%d"
	maxMessageAge         = 2 * time.Minute
	commandCooldown       = time.Second
	callbackCooldown      = 500 * time.Millisecond
	stateExpiration       = 2 * time.Hour
	handlerTimeout        = 45 * time.Second
	maxConcurrentRequests = 50
	maxTextLength         = 1000
	ordersPerPage         = 10
)

type TelegramController struct {
	orderService services.OrderServiceInterface
	subService   services.SubscriptionServiceInterface
	settings     services.SettingsServiceInterface
	relay        services.RelayServiceInterface
	reports      services.ReportServiceInterface
	tgService    telegram.ServiceInterface
	cacheRepo    repositories.CacheRepositoryInterface
	deduplicator *RequestDeduplicator
	cfg          config.TelegramConfig
	logger       *zap.Logger
	validate     *validator.Validate
	sem          chan struct{}
	now          func() time.Time
}

func NewTelegramController(
	orderService services.OrderServiceInterface,
	subService services.SubscriptionServiceInterface,
	settings services.SettingsServiceInterface,
	relay services.RelayServiceInterface,
	reports services.ReportServiceInterface,
	tgService telegram.ServiceInterface,
	cacheRepo repositories.CacheRepositoryInterface,
	cfg config.TelegramConfig,
	logger *zap.Logger,
) *TelegramController {
	return &TelegramController{
		orderService: orderService,
		subService:   subService,
		settings:     settings,
		relay:        relay,
		reports:      reports,
		tgService:    tgService,
		cacheRepo:    cacheRepo,
		deduplicator: NewRequestDeduplicator(),
		cfg:          cfg,
		logger:       logger,
		validate:     customvalidator.New(),
		sem:          make(chan struct{}, maxConcurrentRequests),
		now:          time.Now,
	}
}

// HandleTelegramWebhook acknowledges immediately and processes the update
// in the background.
func (c *TelegramController) HandleTelegramWebhook(ctx echo.Context) error {
	var update telegram.Update
	if err := ctx.Bind(&update); err != nil {
		c.logger.Warn("unreadable webhook update", zap.Error(err))
		return ctx.NoContent(http.StatusOK)
	}
	go c.processAsync(update)
	return ctx.NoContent(http.StatusOK)
}

// Poll runs the long-polling loop until ctx is cancelled.
func (c *TelegramController) Poll(ctx context.Context) error {
	if err := c.tgService.DeleteWebhook(ctx); err != nil {
		c.logger.Warn("deleteWebhook failed", zap.Error(err))
	}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		updates, err := c.tgService.GetUpdates(ctx, offset, c.cfg.PollTimeoutSecs)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			go c.processAsync(u)
		}
	}
}

func (c *TelegramController) processAsync(update telegram.Update) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()
	defer c.recoverPanic("processAsync")

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	c.HandleUpdate(ctx, update)
}

// HandleUpdate processes one update synchronously.
func (c *TelegramController) HandleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From.ID == 0 {
			return
		}
		if !c.deduplicator.TryAcquire(q.From.ID, "cb:"+q.Data, callbackCooldown) {
			_ = c.tgService.AnswerCallbackQuery(ctx, q.ID, "")
			return
		}
		_ = c.tgService.AnswerCallbackQuery(ctx, q.ID, "")
		if err := c.handleCallbackQuery(ctx, q); err != nil {
			c.replyError(ctx, callbackChatID(q), &q.From, err)
		}

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat.Type != "private" || !c.isMessageRecent(msg) {
			return
		}
		text := strings.TrimSpace(msg.Text)
		var err error
		if strings.HasPrefix(text, "/") {
			if !c.deduplicator.TryAcquire(msg.Chat.ID, "cmd", commandCooldown) {
				return
			}
			err = c.handleCommand(ctx, msg, text)
		} else {
			err = c.handleMessage(ctx, msg)
		}
		if err != nil {
			c.replyError(ctx, msg.Chat.ID, msg.From, err)
		}
	}
}

func (c *TelegramController) isMessageRecent(msg *telegram.Message) bool {
	if msg.Date <= 0 {
		return true
	}
	return c.now().Sub(time.Unix(msg.Date, 0)) <= maxMessageAge
}

// ==================== actors ====================

func (c *TelegramController) customer(u *telegram.User) entities.Actor {
	return entities.Actor{Role: entities.RoleCustomer, ID: u.ID, Name: u.DisplayName()}
}

func (c *TelegramController) trader(u *telegram.User) entities.Actor {
	return entities.Actor{Role: entities.RoleTrader, ID: u.ID, Name: u.DisplayName()}
}

// admin returns the admin actor, or an Authorization error for anyone not
// listed in PP_ADMIN_IDS.
func (c *TelegramController) admin(u *telegram.User) (entities.Actor, error) {
	if !c.cfg.IsAdmin(u.ID) {
		return entities.Actor{}, apperrors.NewAuthorizationError("this command is for admins")
	}
	return entities.Actor{Role: entities.RoleAdmin, ID: u.ID, Name: u.DisplayName()}, nil
}

// ==================== conversation state ====================

func (c *TelegramController) getState(ctx context.Context, chatID int64) (*dto.TelegramState, error) {
	raw, err := c.cacheRepo.Get(ctx, fmt.Sprintf(telegramStateKey, chatID))
	if err != nil {
		if errors.Is(err, repositories.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	return dto.FromJSON(raw)
}

func (c *TelegramController) setState(ctx context.Context, chatID int64, state *dto.TelegramState) error {
	js, err := state.ToJSON()
	if err != nil {
		return err
	}
	return c.cacheRepo.Set(ctx, fmt.Sprintf(telegramStateKey, chatID), js, stateExpiration)
}

func (c *TelegramController) clearState(ctx context.Context, chatID int64) {
	if err := c.cacheRepo.Del(ctx, fmt.Sprintf(telegramStateKey, chatID)); err != nil {
		c.logger.Warn("clearing chat state failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// ==================== replies ====================

func (c *TelegramController) reply(ctx context.Context, chatID int64, text string, opts ...telegram.MessageOption) error {
	_, err := c.tgService.SendMessage(ctx, chatID, text, opts...)
	if errors.Is(err, telegram.ErrForbidden) {
		c.logger.Warn("user blocked the bot", zap.Int64("chat_id", chatID))
		return nil
	}
	return err
}

// replyError absorbs recoverable kinds with a user message; everything
// else is logged and reported generically.
func (c *TelegramController) replyError(ctx context.Context, chatID int64, from *telegram.User, err error) {
	var text string
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		if apperrors.IsNotFound(err) {
			text = "Not found: " + apperrors.UserMessage(err)
		} else {
			text = "Please check your input: " + apperrors.UserMessage(err)
		}
	case apperrors.KindAuthorization:
		text = "Not allowed: " + apperrors.UserMessage(err)
	case apperrors.KindState:
		text = apperrors.UserMessage(err)
	case apperrors.KindTransport, apperrors.KindStorageTransient:
		text = "Temporary problem, please try again in a moment."
		c.logger.Warn("recoverable failure", zap.Int64("chat_id", chatID), zap.Error(err))
	default:
		text = "Internal error, please try again later."
		c.logger.Error("handler failed",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", from.ID),
			zap.String("kind", apperrors.KindOf(err).String()),
			zap.Error(err))
	}
	if rerr := c.reply(ctx, chatID, text); rerr != nil {
		c.logger.Error("error reply failed", zap.Int64("chat_id", chatID), zap.Error(rerr))
	}
}

func (c *TelegramController) recoverPanic(funcName string) {
	if r := recover(); r != nil {
		c.logger.Error("panic in telegram handler",
			zap.String("function", funcName),
			zap.Any("panic", r),
			zap.Stack("stacktrace"))
	}
}

// RegisterWebhook points Telegram at this server's webhook route.
func (c *TelegramController) RegisterWebhook(ctx context.Context, baseURL string) error {
	webhookURL := strings.TrimSuffix(baseURL, "/") + "/api/webhooks/telegram"
	c.logger.Info("registering telegram webhook", zap.String("url", webhookURL))
	return c.tgService.SetWebhook(ctx, webhookURL)
}

func (c *TelegramController) StartCleanup(ctx context.Context) {
	c.deduplicator.Cleanup(ctx, time.Minute)
}
