package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/now"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/events"
	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/money"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// CurrentMonth is the YYYY-MM bucket of t in UTC.
func CurrentMonth(t time.Time) string {
	return utils.MonthKey(now.With(t.UTC()).BeginningOfMonth())
}

// RegisterTraderInput is the trader's self-registration form.
type RegisterTraderInput struct {
	TraderID    int64  `validate:"required"`
	DisplayName string `validate:"required,max=64"`
	CompanyName string `validate:"omitempty,max=128"`
	ShopPhone   string `validate:"omitempty,sa_phone"`
	CRNo        string `validate:"omitempty,numeric,len=10"`
	VATNo       string `validate:"omitempty,numeric,len=15"`
	PaymentMode string `validate:"omitempty,oneof=bank stc_pay"`
	BankName    string `validate:"omitempty,max=64"`
	IBAN        string `validate:"omitempty,startswith=SA,len=24"`
	STCPay      string `validate:"omitempty,sa_phone"`
}

type SubscriptionServiceInterface interface {
	RegisterTrader(ctx context.Context, input RegisterTraderInput) (*entities.Trader, error)
	SetTraderEnabled(ctx context.Context, admin entities.Actor, traderID int64, enabled bool) error
	EnsureSubscription(ctx context.Context, traderID int64, month string) (*entities.TraderSubscription, error)
	SubmitReceipt(ctx context.Context, trader entities.Actor, month, method, fileID string) (*entities.TraderSubscription, error)
	ConfirmSubscription(ctx context.Context, admin entities.Actor, traderID int64, month string) (*entities.TraderSubscription, error)
	IsEligible(ctx context.Context, traderID int64) (bool, error)
	EligibleInTx(tx *repositories.Tx, traderID int64) (bool, error)
	EligibleTraderIDsInTx(tx *repositories.Tx) ([]int64, error)
	ListTraders(ctx context.Context, eligibleOnly bool) ([]entities.Trader, error)
}

type SubscriptionService struct {
	storage    repositories.TxManagerInterface
	traderRepo repositories.TraderRepositoryInterface
	subRepo    repositories.TraderSubscriptionRepositoryInterface
	legalRepo  repositories.LegalLogRepositoryInterface
	settings   SettingsServiceInterface
	bus        Publisher
	validate   *validator.Validate
	isAdmin    func(int64) bool
	logger     *zap.Logger
}

func NewSubscriptionService(
	storage repositories.TxManagerInterface,
	traderRepo repositories.TraderRepositoryInterface,
	subRepo repositories.TraderSubscriptionRepositoryInterface,
	legalRepo repositories.LegalLogRepositoryInterface,
	settings SettingsServiceInterface,
	bus Publisher,
	validate *validator.Validate,
	isAdmin func(int64) bool,
	logger *zap.Logger,
) SubscriptionServiceInterface {
	return &SubscriptionService{
		storage:    storage,
		traderRepo: traderRepo,
		subRepo:    subRepo,
		legalRepo:  legalRepo,
		settings:   settings,
		bus:        bus,
		validate:   validate,
		isAdmin:    isAdmin,
		logger:     logger,
	}
}

func (s *SubscriptionService) adminAllowed(actor entities.Actor) bool {
	return actor.Role == entities.RoleAdmin && s.isAdmin(actor.ID)
}

func (s *SubscriptionService) RegisterTrader(ctx context.Context, input RegisterTraderInput) (*entities.Trader, error) {
	input.IBAN = strings.ToUpper(strings.ReplaceAll(input.IBAN, " ", ""))
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}
	trader := &entities.Trader{
		ID:          input.TraderID,
		DisplayName: strings.TrimSpace(input.DisplayName),
		CompanyName: strings.TrimSpace(input.CompanyName),
		ShopPhone:   utils.NormalizeSaudiPhone(input.ShopPhone),
		CRNo:        input.CRNo,
		VATNo:       input.VATNo,
		PaymentMode: input.PaymentMode,
		BankName:    input.BankName,
		IBAN:        input.IBAN,
		STCPay:      utils.NormalizeSaudiPhone(input.STCPay),
	}
	var out *entities.Trader
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		if err := s.traderRepo.UpsertInTx(tx, trader); err != nil {
			return err
		}
		var err error
		out, err = s.traderRepo.FindInTx(tx, trader.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("trader registered", zap.Int64("trader_id", out.ID), zap.Bool("enabled", out.IsEnabled))
	return out, nil
}

func (s *SubscriptionService) SetTraderEnabled(ctx context.Context, admin entities.Actor, traderID int64, enabled bool) error {
	if !s.adminAllowed(admin) {
		return s.deny(ctx, admin, "set trader %d enabled=%t", traderID, enabled)
	}
	action := entities.LegalTraderDisabled
	if enabled {
		action = entities.LegalTraderEnabled
	}
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		if err := s.traderRepo.SetEnabledInTx(tx, traderID, enabled); err != nil {
			return err
		}
		return s.legalRepo.AppendInTx(tx, admin, action, fmt.Sprintf("trader_id=%d", traderID))
	})
	if err != nil {
		return err
	}
	s.bus.Publish(ctx, events.TraderStatusEvent{TraderID: traderID, Enabled: enabled})
	return nil
}

// EnsureSubscription creates the month's row as awaiting with the current
// fee, or returns the existing one unchanged.
func (s *SubscriptionService) EnsureSubscription(ctx context.Context, traderID int64, month string) (*entities.TraderSubscription, error) {
	var out *entities.TraderSubscription
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		if _, err := s.traderRepo.FindInTx(tx, traderID); err != nil {
			return err
		}
		m, err := s.monthOrCurrent(tx, month)
		if err != nil {
			return err
		}
		existing, err := s.subRepo.FindInTx(tx, traderID, m)
		if err != nil || existing != nil {
			out = existing
			return err
		}
		st, err := s.settings.LoadInTx(tx)
		if err != nil {
			return err
		}
		out, err = s.subRepo.UpsertInTx(tx, &entities.TraderSubscription{
			TraderID:      traderID,
			Month:         m,
			AmountSAR:     money.Store(st.SubscriptionFee),
			PaymentStatus: entities.SubscriptionAwaiting,
		})
		return err
	})
	return out, err
}

func (s *SubscriptionService) SubmitReceipt(ctx context.Context, trader entities.Actor, month, method, fileID string) (*entities.TraderSubscription, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, apperrors.NewValidationError("receipt file is required")
	}
	var out *entities.TraderSubscription
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		if _, err := s.traderRepo.FindInTx(tx, trader.ID); err != nil {
			return err
		}
		m, err := s.monthOrCurrent(tx, month)
		if err != nil {
			return err
		}
		existing, err := s.subRepo.FindInTx(tx, trader.ID, m)
		if err != nil {
			return err
		}
		if existing != nil && existing.PaymentStatus == entities.SubscriptionConfirmed {
			return apperrors.NewStateError("subscription for %s is already confirmed", m)
		}
		sub := &entities.TraderSubscription{
			TraderID:      trader.ID,
			Month:         m,
			PaymentMethod: method,
			ReceiptFileID: fileID,
			PaymentStatus: entities.SubscriptionAwaiting,
		}
		if existing == nil {
			st, err := s.settings.LoadInTx(tx)
			if err != nil {
				return err
			}
			sub.AmountSAR = money.Store(st.SubscriptionFee)
		}
		out, err = s.subRepo.UpsertInTx(tx, sub)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, events.SubscriptionEvent{Subscription: *out})
	return out, nil
}

// ConfirmSubscription marks the month paid and legal-logs the confirmation.
// Confirming twice is a no-op that keeps the first paid_at_utc.
func (s *SubscriptionService) ConfirmSubscription(ctx context.Context, admin entities.Actor, traderID int64, month string) (*entities.TraderSubscription, error) {
	if !s.adminAllowed(admin) {
		return nil, s.deny(ctx, admin, "confirm subscription of trader %d", traderID)
	}
	var (
		out     *entities.TraderSubscription
		changed bool
	)
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		if _, err := s.traderRepo.FindInTx(tx, traderID); err != nil {
			return err
		}
		m, err := s.monthOrCurrent(tx, month)
		if err != nil {
			return err
		}
		existing, err := s.subRepo.FindInTx(tx, traderID, m)
		if err != nil {
			return err
		}
		if existing != nil && existing.PaymentStatus == entities.SubscriptionConfirmed {
			out = existing
			return nil
		}
		sub := &entities.TraderSubscription{
			TraderID:      traderID,
			Month:         m,
			PaymentStatus: entities.SubscriptionConfirmed,
			PaidAt:        tx.Now(),
		}
		if existing == nil || existing.AmountSAR == "" {
			st, err := s.settings.LoadInTx(tx)
			if err != nil {
				return err
			}
			sub.AmountSAR = money.Store(st.SubscriptionFee)
		}
		if out, err = s.subRepo.UpsertInTx(tx, sub); err != nil {
			return err
		}
		changed = true
		return s.legalRepo.AppendInTx(tx, admin, entities.LegalSubscriptionConfirmed,
			fmt.Sprintf("trader_id=%d month=%s amount=%s", traderID, m, out.AmountSAR))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.bus.Publish(ctx, events.SubscriptionEvent{Subscription: *out, Confirmed: true})
	}
	return out, nil
}

func (s *SubscriptionService) IsEligible(ctx context.Context, traderID int64) (bool, error) {
	var ok bool
	err := s.storage.View(ctx, func(tx *repositories.Tx) error {
		var err error
		ok, err = s.EligibleInTx(tx, traderID)
		return err
	})
	return ok, err
}

// EligibleInTx: enabled and confirmed for the current UTC month.
func (s *SubscriptionService) EligibleInTx(tx *repositories.Tx, traderID int64) (bool, error) {
	trader, err := s.traderRepo.FindInTx(tx, traderID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !trader.IsEnabled {
		return false, nil
	}
	sub, err := s.subRepo.FindInTx(tx, traderID, CurrentMonth(tx.Now()))
	if err != nil {
		return false, err
	}
	return sub != nil && sub.PaymentStatus == entities.SubscriptionConfirmed, nil
}

func (s *SubscriptionService) EligibleTraderIDsInTx(tx *repositories.Tx) ([]int64, error) {
	traders, err := s.eligibleTradersInTx(tx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(traders))
	for _, t := range traders {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *SubscriptionService) ListTraders(ctx context.Context, eligibleOnly bool) ([]entities.Trader, error) {
	var out []entities.Trader
	err := s.storage.View(ctx, func(tx *repositories.Tx) error {
		var err error
		if eligibleOnly {
			out, err = s.eligibleTradersInTx(tx)
		} else {
			out, err = s.traderRepo.ListInTx(tx)
		}
		return err
	})
	return out, err
}

func (s *SubscriptionService) eligibleTradersInTx(tx *repositories.Tx) ([]entities.Trader, error) {
	all, err := s.traderRepo.ListInTx(tx)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.subRepo.ConfirmedForMonthInTx(tx, CurrentMonth(tx.Now()))
	if err != nil {
		return nil, err
	}
	var out []entities.Trader
	for _, t := range all {
		if t.IsEnabled && confirmed[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *SubscriptionService) monthOrCurrent(tx *repositories.Tx, month string) (string, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		return CurrentMonth(tx.Now()), nil
	}
	if err := s.validate.Var(month, "yyyymm"); err != nil {
		return "", apperrors.NewValidationError("month must be YYYY-MM")
	}
	return month, nil
}

func (s *SubscriptionService) deny(ctx context.Context, actor entities.Actor, format string, args ...interface{}) error {
	details := fmt.Sprintf(format, args...)
	if err := s.legalRepo.AppendLegalLog(ctx, actor, entities.LegalAuthorizationDenied, details); err != nil {
		s.logger.Error("legal log write failed", zap.Error(err))
	}
	return apperrors.NewAuthorizationError("not allowed: %s", details)
}
