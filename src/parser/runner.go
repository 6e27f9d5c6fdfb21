package parser

import (
	"context"
	"errors"
	"slices"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/sheets"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Uploader writes a batch of rows to a named sheet.
type Uploader interface {
	Upload(ctx context.Context, sheet string, rows []domain.OutputRow) error
}

// Batch is a labelled list of ids processed and flushed together.
type Batch struct {
	Label string
	IDs   []domain.MatchID
}

// BatchFromRange lists a configured range.
func BatchFromRange(r config.Range) Batch {
	return Batch{Label: r.Label, IDs: r.IDs()}
}

// BatchFromIDs builds a batch from loose ids: duplicates dropped, highest
// id first like a configured range.
func BatchFromIDs(label string, ids []domain.MatchID) Batch {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	slices.Reverse(sorted)
	return Batch{Label: label, IDs: sorted}
}

// Bounds returns the highest and lowest id of the batch.
func (b Batch) Bounds() (start, end domain.MatchID) {
	for i, id := range b.IDs {
		if i == 0 || id > start {
			start = id
		}
		if i == 0 || id < end {
			end = id
		}
	}
	return start, end
}

// UploadFailure is an upload that failed after its retry. Pending lists the
// match ids of the rows from Offset on, which never reached the sheet.
type UploadFailure struct {
	Label   string
	StartID domain.MatchID
	EndID   domain.MatchID
	Sheet   string
	Rows    int
	Offset  int
	Pending []domain.MatchID
	Err     error
}

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Label       string
	IDs         int
	NonPositive int
	Positive    int
	Failures    map[domain.OutcomeKind][]domain.Outcome
}

// Result is the outcome of a whole run.
type Result struct {
	Batches      []BatchResult
	Failures     []domain.Outcome
	UploadErrors []UploadFailure
	Stats        Snapshot
}

// Runner drives batches through the pool and flushes each batch to the
// sink before starting the next one.
type Runner struct {
	pool    *Pool
	sink    Uploader
	cfg     config.Sink
	stats   *Stats
	log     *zap.Logger
	metrics *Metrics
}

// NewRunner builds a runner. A nil sink discards rows.
func NewRunner(pool *Pool, sink Uploader, cfg config.Sink, stats *Stats, log *zap.Logger, metrics *Metrics) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if stats == nil {
		stats = NewStats()
	}
	if metrics == nil {
		metrics = pool.metrics
	}
	return &Runner{pool: pool, sink: sink, cfg: cfg, stats: stats, log: log, metrics: metrics}
}

func (r *Runner) Stats() *Stats {
	return r.stats
}

// Run processes every batch. Upload failures are recorded and do not stop
// the run; only cancellation of ctx does.
func (r *Runner) Run(ctx context.Context, batches []Batch) (*Result, error) {
	for _, b := range batches {
		r.stats.AddTotal(len(b.IDs))
	}

	res := &Result{}
	for _, b := range batches {
		r.log.Info("batch started", zap.String("label", b.Label), zap.Int("ids", len(b.IDs)))

		outcomes, err := r.pool.Process(ctx, b.IDs, r.progress)
		buckets := Classify(outcomes)

		br := BatchResult{
			Label:       b.Label,
			IDs:         len(b.IDs),
			NonPositive: len(buckets.NonPositive),
			Positive:    len(buckets.Positive),
			Failures:    buckets.Failures,
		}
		res.Batches = append(res.Batches, br)
		for _, kind := range []domain.OutcomeKind{domain.OutcomeNotFound, domain.OutcomeLoadError, domain.OutcomeParseError} {
			res.Failures = append(res.Failures, buckets.Failures[kind]...)
		}

		if err != nil {
			res.Stats = r.stats.Snapshot()
			return res, err
		}

		r.flush(ctx, b, r.cfg.NegativeSheet, buckets.NonPositive, res)
		r.flush(ctx, b, r.cfg.PositiveSheet, buckets.Positive, res)

		r.log.Info("batch finished",
			zap.String("label", b.Label),
			zap.Int("non_positive", br.NonPositive),
			zap.Int("positive", br.Positive),
			zap.Int("failures", len(outcomes)-br.NonPositive-br.Positive),
		)
	}

	res.Stats = r.stats.Snapshot()
	return res, nil
}

func (r *Runner) flush(ctx context.Context, b Batch, sheet string, rows []domain.OutputRow, res *Result) {
	if r.sink == nil || len(rows) == 0 {
		return
	}

	err := r.sink.Upload(ctx, sheet, rows)
	r.metrics.uploaded(sheet, len(rows), err)
	if err == nil {
		return
	}

	f := UploadFailure{Label: b.Label, Sheet: sheet, Rows: len(rows), Err: err}
	f.StartID, f.EndID = b.Bounds()
	var uerr *sheets.UploadError
	if errors.As(err, &uerr) && uerr.Offset >= 0 && uerr.Offset < len(rows) {
		f.Offset = uerr.Offset
	}
	for _, row := range rows[f.Offset:] {
		f.Pending = append(f.Pending, row.MatchID)
	}
	res.UploadErrors = append(res.UploadErrors, f)

	r.log.Error("upload failed",
		zap.String("label", b.Label),
		zap.Int64("start_id", int64(f.StartID)),
		zap.Int64("end_id", int64(f.EndID)),
		zap.String("sheet", sheet),
		zap.Int("rows", len(rows)),
		zap.Int("offset", f.Offset),
		zap.Error(err),
	)
}

func (r *Runner) progress(out domain.Outcome) {
	r.stats.Record(out)
	s := r.stats.Snapshot()
	r.log.Info("progress",
		zap.Int64("processed", s.Processed),
		zap.Int64("total", s.Total),
		zap.Int64("ok", s.OK),
		zap.Int64("failures", s.Failures()),
		zap.String("memory", humanize.Bytes(s.MemoryBytes)),
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
	)
}
