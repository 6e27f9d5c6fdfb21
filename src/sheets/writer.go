// Package sheets appends assembled match rows to named sheets of a tabular
// store, in fixed-size chunks with pacing and a single retry per chunk.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/domain"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrAPI           = errors.New("tabular api error")
)

// Tabular is a store of named sheets addressed by 1-based row numbers.
type Tabular interface {
	// EnsureSheet creates the sheet with the given grid size when it does
	// not exist yet. It reports whether the sheet was created.
	EnsureSheet(ctx context.Context, name string, rows, cols int) (bool, error)
	// Header returns the first row of the sheet, empty when unset.
	Header(ctx context.Context, name string) ([]string, error)
	WriteHeader(ctx context.Context, name string, header []string) error
	// RowCount returns the number of used rows, header included.
	RowCount(ctx context.Context, name string) (int, error)
	// WriteRows writes rows starting at startRow.
	WriteRows(ctx context.Context, name string, startRow int, rows []domain.OutputRow) error
}

// UploadError reports a failed upload. Offset is the index of the first row
// of the chunk that could not be written; rows before it are stored.
type UploadError struct {
	Sheet  string
	Rows   int
	Offset int
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload to %q failed at row offset %d of %d: %v", e.Sheet, e.Offset, e.Rows, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Writer uploads rows to a Tabular. Uploads to the same sheet are
// serialized so their row ranges never interleave.
type Writer struct {
	table   Tabular
	cfg     config.Sink
	limiter *rate.Limiter
	log     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWriter(table Tabular, cfg config.Sink, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.APIPause > 0 {
		limit = rate.Every(cfg.APIPause)
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	return &Writer{
		table:   table,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (w *Writer) sheetLock(name string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[name]
	if !ok {
		l = &sync.Mutex{}
		w.locks[name] = l
	}
	return l
}

// Upload appends rows after the last used row of sheet, creating the sheet
// and its header when needed. An empty batch is a no-op.
func (w *Writer) Upload(ctx context.Context, sheet string, rows []domain.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}

	l := w.sheetLock(sheet)
	l.Lock()
	defer l.Unlock()

	fail := func(offset int, err error) error {
		return &UploadError{Sheet: sheet, Rows: len(rows), Offset: offset, Err: err}
	}

	created, err := w.table.EnsureSheet(ctx, sheet, len(rows)+w.cfg.HeadroomRows, len(domain.Columns))
	if err != nil {
		return fail(0, fmt.Errorf("ensure sheet: %w", err))
	}
	if created {
		w.log.Info("sheet created", zap.String("sheet", sheet), zap.Int("rows", len(rows)+w.cfg.HeadroomRows))
	}

	header, err := w.table.Header(ctx, sheet)
	if err != nil {
		return fail(0, fmt.Errorf("read header: %w", err))
	}
	if !slices.Equal(header, domain.Columns) {
		if err := w.table.WriteHeader(ctx, sheet, domain.Columns); err != nil {
			return fail(0, fmt.Errorf("write header: %w", err))
		}
	}

	used, err := w.table.RowCount(ctx, sheet)
	if err != nil {
		return fail(0, fmt.Errorf("count rows: %w", err))
	}
	start := used + 1

	for offset := 0; offset < len(rows); offset += w.cfg.ChunkSize {
		end := min(offset+w.cfg.ChunkSize, len(rows))
		if err := w.limiter.Wait(ctx); err != nil {
			return fail(offset, err)
		}
		if err := w.writeChunk(ctx, sheet, start+offset, rows[offset:end]); err != nil {
			return fail(offset, err)
		}
		w.log.Debug("chunk written",
			zap.String("sheet", sheet),
			zap.Int("start_row", start+offset),
			zap.Int("rows", end-offset),
		)
	}

	w.log.Info("upload complete", zap.String("sheet", sheet), zap.Int("rows", len(rows)), zap.Int("start_row", start))
	return nil
}

// writeChunk writes one chunk, retrying exactly once after the cooldown.
func (w *Writer) writeChunk(ctx context.Context, sheet string, startRow int, chunk []domain.OutputRow) error {
	op := func() error {
		err := w.table.WriteRows(ctx, sheet, startRow, chunk)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.cfg.RetryCooldown), 1),
		ctx,
	)

	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		w.log.Warn("chunk write failed, retrying",
			zap.String("sheet", sheet),
			zap.Int("start_row", startRow),
			zap.Duration("cooldown", wait),
			zap.Bool("rate_limited", errors.Is(err, ErrRateLimited)),
			zap.Error(err),
		)
	})
}
