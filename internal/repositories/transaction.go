package repositories

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
	"github.com/parts-pp/parts-pp-sub000/internal/metrics"
	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
	"github.com/parts-pp/parts-pp-sub000/pkg/utils"
)

const (
	defaultLoadAttempts = 10
	defaultLoadBackoff  = 250 * time.Millisecond
)

type TxManagerInterface interface {
	RunInTransaction(ctx context.Context, fn func(tx *Tx) error) error
	View(ctx context.Context, fn func(tx *Tx) error) error
}

// Workbook is the single-file store. Every read and every read-modify-write
// runs under one process-wide lock; writes commit by temp file + rename.
type Workbook struct {
	path     string
	lock     chan struct{}
	attempts int
	backoff  time.Duration
	now      utils.Clock
	rename   func(oldpath, newpath string) error
	logger   *zap.Logger
}

type WorkbookOption func(*Workbook)

func WithRetry(attempts int, backoff time.Duration) WorkbookOption {
	return func(w *Workbook) {
		if attempts > 0 {
			w.attempts = attempts
		}
		w.backoff = backoff
	}
}

func WithClock(clock utils.Clock) WorkbookOption {
	return func(w *Workbook) {
		if clock != nil {
			w.now = clock
		}
	}
}

func NewWorkbook(path string, logger *zap.Logger, opts ...WorkbookOption) *Workbook {
	w := &Workbook{
		path:     path,
		lock:     make(chan struct{}, 1),
		attempts: defaultLoadAttempts,
		backoff:  defaultLoadBackoff,
		now:      utils.SystemClock,
		rename:   os.Rename,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workbook) Path() string { return w.path }

// Tx is an open view of the workbook held under the store lock.
type Tx struct {
	file   *excelize.File
	tables map[string]*table
	now    time.Time
	dirty  bool
	write  bool
}

// Now is the timestamp shared by every row written in this transaction.
func (tx *Tx) Now() time.Time { return tx.now }

func (tx *Tx) markDirty() { tx.dirty = true }

// EnsureWorkbook creates the file if needed, adds missing sheets and appends
// missing header columns, then commits when anything changed.
func (w *Workbook) EnsureWorkbook(ctx context.Context) error {
	w.removeLeftoverTemps()
	return w.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.ensureSchema()
	})
}

// RunInTransaction loads the workbook, runs fn and commits atomically when fn
// succeeded and wrote something. On error nothing reaches the disk.
func (w *Workbook) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	return w.run(ctx, true, fn)
}

// View runs fn against a consistent snapshot without committing.
func (w *Workbook) View(ctx context.Context, fn func(tx *Tx) error) error {
	return w.run(ctx, false, fn)
}

func (w *Workbook) run(ctx context.Context, write bool, fn func(tx *Tx) error) (err error) {
	if err := w.acquire(ctx); err != nil {
		return err
	}
	defer w.release()

	file, existed, err := w.load(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			w.logger.Warn("closing workbook", zap.Error(cerr))
		}
	}()

	tx := &Tx{file: file, tables: map[string]*table{}, now: w.now().UTC(), write: write, dirty: !existed}

	defer func() {
		if p := recover(); p != nil {
			panic(p)
		}
		if err != nil || !write || !tx.dirty {
			return
		}
		if serr := tx.ensureSchema(); serr != nil {
			err = serr
			return
		}
		err = w.commit(ctx, file)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	err = fn(tx)
	return err
}

func (w *Workbook) acquire(ctx context.Context) error {
	select {
	case w.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", apperrors.ErrStoreBusy, ctx.Err())
	}
}

func (w *Workbook) release() { <-w.lock }

// load opens the workbook, retrying filesystem faults. A file that exists but
// cannot be parsed fails at once with ErrWorkbookCorrupt.
func (w *Workbook) load(ctx context.Context) (*excelize.File, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		f, err := excelize.OpenFile(w.path)
		if err == nil {
			return f, true, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			nf, nerr := newWorkbookFile()
			return nf, false, nerr
		}
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, false, apperrors.NewStorageFatalError(
				fmt.Errorf("%w: %v", apperrors.ErrWorkbookCorrupt, err), "open workbook %s", w.path)
		}
		lastErr = err
		w.logger.Warn("workbook load failed, retrying",
			zap.String("path", w.path), zap.Int("attempt", attempt), zap.Error(err))
		if err := sleepCtx(ctx, w.backoff); err != nil {
			return nil, false, err
		}
	}
	return nil, false, apperrors.NewStorageFatalError(lastErr, "workbook %s unavailable after %d attempts", w.path, w.attempts)
}

// commit writes a sibling temp file and renames it over the target.
func (w *Workbook) commit(ctx context.Context, f *excelize.File) error {
	start := time.Now()
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		lastErr = w.writeAndRename(f, dir, base)
		if lastErr == nil {
			metrics.StoreCommitDuration.Observe(time.Since(start).Seconds())
			return nil
		}
		w.logger.Warn("workbook commit failed, retrying",
			zap.String("path", w.path), zap.Int("attempt", attempt), zap.Error(lastErr))
		if err := sleepCtx(ctx, w.backoff); err != nil {
			return err
		}
	}
	return apperrors.NewStorageFatalError(lastErr, "commit workbook %s", w.path)
}

func (w *Workbook) writeAndRename(f *excelize.File, dir, base string) error {
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := w.rename(tmpName, w.path); err != nil {
		return fmt.Errorf("rename temp workbook: %w", err)
	}
	return nil
}

func (w *Workbook) removeLeftoverTemps() {
	pattern := filepath.Join(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*.tmp")
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			w.logger.Info("removed leftover temp workbook", zap.String("file", m))
		}
	}
}

func newWorkbookFile() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", entities.SheetOrders); err != nil {
		return nil, fmt.Errorf("init workbook: %w", err)
	}
	return f, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
