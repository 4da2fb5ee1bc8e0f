package services

import (
	"context"
	"fmt"
	"time"

	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
)

const DefaultOrderPrefix = "PP"

// FormatOrderID renders PREFIX-YYMMDD-NNNN; the suffix widens past 9999.
func FormatOrderID(prefix string, at time.Time, seq int64) string {
	if prefix == "" {
		prefix = DefaultOrderPrefix
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, at.UTC().Format("060102"), seq)
}

type OrderIDServiceInterface interface {
	GenerateOrderID(ctx context.Context) (string, error)
	AllocateInTx(tx *repositories.Tx) (string, error)
}

type OrderIDService struct {
	storage      repositories.TxManagerInterface
	settingsRepo repositories.SettingsRepositoryInterface
	prefix       string
}

func NewOrderIDService(storage repositories.TxManagerInterface, settingsRepo repositories.SettingsRepositoryInterface, prefix string) OrderIDServiceInterface {
	return &OrderIDService{storage: storage, settingsRepo: settingsRepo, prefix: prefix}
}

// GenerateOrderID increments order_seq in its own save.
func (s *OrderIDService) GenerateOrderID(ctx context.Context) (string, error) {
	var id string
	err := s.storage.RunInTransaction(ctx, func(tx *repositories.Tx) error {
		var err error
		id, err = s.AllocateInTx(tx)
		return err
	})
	return id, err
}

// AllocateInTx increments order_seq inside the caller's save; the date part
// comes from the transaction clock and does not affect uniqueness.
func (s *OrderIDService) AllocateInTx(tx *repositories.Tx) (string, error) {
	seq, err := s.settingsRepo.NextOrderSeqInTx(tx)
	if err != nil {
		return "", err
	}
	return FormatOrderID(s.prefix, tx.Now(), seq), nil
}
