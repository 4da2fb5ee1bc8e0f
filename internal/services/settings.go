package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
)

// Recognized settings keys.
const (
	SettingRebroadcastCooldown = "rebroadcast_cooldown_sec"
	SettingRebroadcastMax      = "rebroadcast_max"
	SettingChatExpiry          = "chat_expiry_sec"
	SettingNoquotePing         = "noquote_ping_sec"
	SettingUnpaidPing          = "unpaid_ping_sec"
	SettingPaidTraderPing      = "paid_trader_ping_sec"
	SettingSubscriptionFee     = "subscription_fee_sar"
)

const defaultSubscriptionFee = "99.00"

// maxSettingSeconds is the largest seconds value that fits a time.Duration.
const maxSettingSeconds = math.MaxInt64 / int64(time.Second)

// Settings is the typed snapshot read at the start of each operation.
type Settings struct {
	RebroadcastCooldown time.Duration
	RebroadcastMax      int
	ChatExpiry          time.Duration
	NoquotePing         time.Duration
	UnpaidPing          time.Duration
	PaidTraderPing      time.Duration
	SubscriptionFee     decimal.Decimal
}

func DefaultSettings() Settings {
	fee, _ := money.Parse(defaultSubscriptionFee)
	return Settings{
		RebroadcastCooldown: 6 * time.Hour,
		RebroadcastMax:      3,
		ChatExpiry:          72 * time.Hour,
		NoquotePing:         24 * time.Hour,
		UnpaidPing:          24 * time.Hour,
		PaidTraderPing:      12 * time.Hour,
		SubscriptionFee:     fee,
	}
}

type SettingsServiceInterface interface {
	Load(ctx context.Context) (Settings, error)
	LoadInTx(tx *repositories.Tx) (Settings, error)
	Set(ctx context.Context, actor entities.Actor, key, value string) error
	All(ctx context.Context) ([]entities.Setting, error)
}

type SettingsService struct {
	storage      repositories.TxManagerInterface
	settingsRepo repositories.SettingsRepositoryInterface
	legalRepo    repositories.LegalLogRepositoryInterface
	isAdmin      func(int64) bool
	logger       *zap.Logger
}

func NewSettingsService(
	storage repositories.TxManagerInterface,
	settingsRepo repositories.SettingsRepositoryInterface,
	legalRepo repositories.LegalLogRepositoryInterface,
	isAdmin func(int64) bool,
	logger *zap.Logger,
) SettingsServiceInterface {
	return &SettingsService{storage: storage, settingsRepo: settingsRepo, legalRepo: legalRepo, isAdmin: isAdmin, logger: logger}
}

func (s *SettingsService) Load(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.storage.View(ctx, func(tx *repositories.Tx) error {
		var err error
		out, err = s.LoadInTx(tx)
		return err
	})
	return out, err
}

// LoadInTx applies stored overrides on top of the defaults. Unreadable
// values are logged and ignored.
func (s *SettingsService) LoadInTx(tx *repositories.Tx) (Settings, error) {
	st := DefaultSettings()
	seconds := map[string]*time.Duration{
		SettingRebroadcastCooldown: &st.RebroadcastCooldown,
		SettingChatExpiry:          &st.ChatExpiry,
		SettingNoquotePing:         &st.NoquotePing,
		SettingUnpaidPing:          &st.UnpaidPing,
		SettingPaidTraderPing:      &st.PaidTraderPing,
	}
	for key, dst := range seconds {
		raw, ok, err := s.settingsRepo.GetInTx(tx, key)
		if err != nil {
			return st, err
		}
		if !ok || raw == "" {
			continue
		}
		n, perr := parseSeconds(raw)
		if perr != nil {
			s.logger.Warn("ignoring invalid setting", zap.String("key", key), zap.String("value", raw))
			continue
		}
		*dst = time.Duration(n) * time.Second
	}

	if raw, ok, err := s.settingsRepo.GetInTx(tx, SettingRebroadcastMax); err != nil {
		return st, err
	} else if ok && raw != "" {
		if n, perr := parseNonNegative(raw); perr == nil && n <= math.MaxInt32 {
			st.RebroadcastMax = int(n)
		} else {
			s.logger.Warn("ignoring invalid setting", zap.String("key", SettingRebroadcastMax), zap.String("value", raw))
		}
	}

	if raw, ok, err := s.settingsRepo.GetInTx(tx, SettingSubscriptionFee); err != nil {
		return st, err
	} else if ok && raw != "" {
		if fee, perr := money.Parse(raw); perr == nil {
			st.SubscriptionFee = fee
		} else {
			s.logger.Warn("ignoring invalid setting", zap.String("key", SettingSubscriptionFee), zap.String("value", raw))
		}
	}
	return st, nil
}

// Set validates and stores a recognized key; the change is legal-logged in
// the same save. order_seq is not writable here.
func (s *SettingsService) Set(ctx context.Context, actor entities.Actor, key, value string) error {
	if actor.Role != entities.RoleAdmin || !s.isAdmin(actor.ID) {
		return apperrors.NewAuthorizationError("only admins can change settings")
	}
	normalized, err := normalizeSetting(key, value)
	if err != nil {
		return err
	}
	return s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		old, _, err := s.settingsRepo.GetInTx(tx, key)
		if err != nil {
			return err
		}
		if err := s.settingsRepo.SetInTx(tx, key, normalized); err != nil {
			return err
		}
		return s.legalRepo.AppendInTx(tx, actor, entities.LegalSettingChanged,
			fmt.Sprintf("%s: %q -> %q", key, old, normalized))
	})
}

func (s *SettingsService) All(ctx context.Context) ([]entities.Setting, error) {
	return s.settingsRepo.GetAll(ctx)
}

func normalizeSetting(key, value string) (string, error) {
	switch key {
	case SettingRebroadcastMax:
		n, err := parseNonNegative(value)
		if err != nil || n > math.MaxInt32 {
			return "", apperrors.NewValidationError("%s must be a non-negative integer", key)
		}
		return strconv.FormatInt(n, 10), nil
	case SettingRebroadcastCooldown, SettingNoquotePing, SettingUnpaidPing, SettingPaidTraderPing:
		n, err := parseSeconds(value)
		if err != nil {
			return "", apperrors.NewValidationError("%s must be between 0 and %d seconds", key, maxSettingSeconds)
		}
		return strconv.FormatInt(n, 10), nil
	case SettingChatExpiry:
		n, err := parseSeconds(value)
		if err != nil || n == 0 {
			return "", apperrors.NewValidationError("%s must be between 1 and %d seconds", key, maxSettingSeconds)
		}
		return strconv.FormatInt(n, 10), nil
	case SettingSubscriptionFee:
		v, err := money.Normalize(value)
		if err != nil {
			return "", apperrors.NewValidationError("%s: %v", key, err)
		}
		return v, nil
	default:
		return "", apperrors.NewValidationError("unknown setting %q", key)
	}
}

func parseNonNegative(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func parseSeconds(raw string) (int64, error) {
	n, err := parseNonNegative(raw)
	if err != nil {
		return 0, err
	}
	if n > maxSettingSeconds {
		return 0, fmt.Errorf("%d seconds overflows a duration", n)
	}
	return n, nil
}
