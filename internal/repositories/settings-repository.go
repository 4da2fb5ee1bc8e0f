package repositories

import (
	"context"
	"strconv"
	"strings"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

// SettingOrderSeq holds the global order counter.
const SettingOrderSeq = "order_seq"

type SettingsRepositoryInterface interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	GetInTx(tx *Tx, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	SetInTx(tx *Tx, key, value string) error
	GetAll(ctx context.Context) ([]entities.Setting, error)
	NextOrderSeqInTx(tx *Tx) (int64, error)
}

type SettingsRepository struct {
	storage TxManagerInterface
}

func NewSettingsRepository(storage TxManagerInterface) SettingsRepositoryInterface {
	return &SettingsRepository{storage: storage}
}

func (r *SettingsRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := r.storage.View(ctx, func(tx *Tx) error {
		var err error
		value, found, err = r.GetInTx(tx, key)
		return err
	})
	return value, found, err
}

func (r *SettingsRepository) GetInTx(tx *Tx, key string) (string, bool, error) {
	t, err := tx.sheet(entities.SheetSettings)
	if err != nil {
		return "", false, err
	}
	i := t.FindOne(entities.ColKey, key)
	if i < 0 {
		return "", false, nil
	}
	return strings.TrimSpace(t.cell(i, entities.ColValue)), true, nil
}

func (r *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	return r.storage.RunInTransaction(ctx, func(tx *Tx) error {
		return r.SetInTx(tx, key, value)
	})
}

// SetInTx writes value under key and stamps updated_at_utc.
func (r *SettingsRepository) SetInTx(tx *Tx, key, value string) error {
	t, err := tx.sheet(entities.SheetSettings)
	if err != nil {
		return err
	}
	rec := Record{
		entities.ColKey:       key,
		entities.ColValue:     value,
		entities.ColUpdatedAt: utils.FormatUTC(tx.Now()),
	}
	if i := t.FindOne(entities.ColKey, key); i >= 0 {
		return t.Update(i, rec)
	}
	return t.Append(rec)
}

func (r *SettingsRepository) GetAll(ctx context.Context) ([]entities.Setting, error) {
	var out []entities.Setting
	err := r.storage.View(ctx, func(tx *Tx) error {
		t, err := tx.sheet(entities.SheetSettings)
		if err != nil {
			return err
		}
		for _, rec := range t.Records() {
			updated, _ := utils.ParseUTC(rec[entities.ColUpdatedAt])
			out = append(out, entities.Setting{
				Key:       rec[entities.ColKey],
				Value:     rec[entities.ColValue],
				UpdatedAt: updated,
			})
		}
		return nil
	})
	return out, err
}

// NextOrderSeqInTx increments order_seq and returns the new value. A missing
// or unreadable counter starts from zero, so the first value is 1.
func (r *SettingsRepository) NextOrderSeqInTx(tx *Tx) (int64, error) {
	raw, _, err := r.GetInTx(tx, SettingOrderSeq)
	if err != nil {
		return 0, err
	}
	cur := utils.ParseID(raw)
	if cur < 0 {
		cur = 0
	}
	next := cur + 1
	if err := r.SetInTx(tx, SettingOrderSeq, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}
