package parser

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/sheets"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParser answers from a table of sort keys; ids listed in fail get a
// load error. It tracks peak concurrency.
type fakeParser struct {
	keys  map[domain.MatchID]float64
	fail  map[domain.MatchID]domain.OutcomeKind
	delay time.Duration

	active atomic.Int64
	peak   atomic.Int64
	calls  atomic.Int64
}

func (f *fakeParser) ParseMatch(ctx context.Context, id domain.MatchID) domain.Outcome {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	if kind, ok := f.fail[id]; ok {
		return domain.Outcome{Kind: kind, MatchID: id, URL: "http://x/match/h2h-" + id.String(), Reason: "timeout"}
	}
	out := domain.Outcome{Kind: domain.OutcomeOK, MatchID: id, Row: domain.OutputRow{MatchID: id}}
	if k, ok := f.keys[id]; ok {
		out.SortKey = &k
	}
	return out
}

func newTestPool(p *fakeParser, workers int, metrics *Metrics) *Pool {
	pool := NewPool(p, config.Pool{Workers: workers}, nil, metrics)
	pool.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return pool
}

func ids(from, to int64) []domain.MatchID {
	var out []domain.MatchID
	for id := from; id >= to; id-- {
		out = append(out, domain.MatchID(id))
	}
	return out
}

func TestPool_Process(t *testing.T) {
	fp := &fakeParser{
		fail: map[domain.MatchID]domain.OutcomeKind{
			3: domain.OutcomeLoadError,
			7: domain.OutcomeLoadError,
		},
		delay: 5 * time.Millisecond,
	}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	pool := newTestPool(fp, 4, metrics)

	var seen []domain.MatchID
	outcomes, err := pool.Process(context.Background(), ids(10, 1), func(o domain.Outcome) {
		seen = append(seen, o.MatchID)
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 10)
	assert.Len(t, seen, 10)

	kinds := map[domain.OutcomeKind]int{}
	var got []int
	for _, o := range outcomes {
		kinds[o.Kind]++
		got = append(got, int(o.MatchID))
	}
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
	assert.Equal(t, 8, kinds[domain.OutcomeOK])
	assert.Equal(t, 2, kinds[domain.OutcomeLoadError])

	assert.LessOrEqual(t, fp.peak.Load(), int64(4))
	assert.Equal(t, float64(8), promtest.ToFloat64(metrics.outcomes.WithLabelValues("ok")))
	assert.Equal(t, float64(2), promtest.ToFloat64(metrics.outcomes.WithLabelValues("load_error")))
	assert.Equal(t, float64(0), promtest.ToFloat64(metrics.inFlight))
}

func TestPool_Empty(t *testing.T) {
	fp := &fakeParser{}
	outcomes, err := newTestPool(fp, 2, nil).Process(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Zero(t, fp.calls.Load())
}

func TestPool_Cancelled(t *testing.T) {
	fp := &fakeParser{delay: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	var n atomic.Int64
	outcomes, err := newTestPool(fp, 2, nil).Process(ctx, ids(100, 1), func(domain.Outcome) {
		if n.Add(1) == 3 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(outcomes), 100)
	assert.Less(t, fp.calls.Load(), int64(100))
}

func TestPool_Jitter(t *testing.T) {
	pool := NewPool(&fakeParser{}, config.Pool{Workers: 1, JitterMin: 300 * time.Millisecond, JitterMax: 800 * time.Millisecond}, nil, nil)
	for i := 0; i < 50; i++ {
		d := pool.jitter()
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.Less(t, d, 800*time.Millisecond)
	}

	fixed := NewPool(&fakeParser{}, config.Pool{Workers: 1, JitterMin: time.Second, JitterMax: time.Second}, nil, nil)
	assert.Equal(t, time.Second, fixed.jitter())
}

func TestClassify(t *testing.T) {
	key := func(v float64) *float64 { return &v }
	outcomes := []domain.Outcome{
		{Kind: domain.OutcomeOK, MatchID: 1, Row: domain.OutputRow{MatchID: 1}, SortKey: key(-0.5)},
		{Kind: domain.OutcomeOK, MatchID: 2, Row: domain.OutputRow{MatchID: 2}, SortKey: key(0)},
		{Kind: domain.OutcomeOK, MatchID: 3, Row: domain.OutputRow{MatchID: 3}, SortKey: key(0.25)},
		{Kind: domain.OutcomeOK, MatchID: 4, Row: domain.OutputRow{MatchID: 4}},
		{Kind: domain.OutcomeNotFound, MatchID: 5},
		{Kind: domain.OutcomeParseError, MatchID: 6},
	}

	b := Classify(outcomes)

	require.Len(t, b.NonPositive, 2)
	assert.Equal(t, domain.MatchID(1), b.NonPositive[0].MatchID)
	assert.Equal(t, domain.MatchID(2), b.NonPositive[1].MatchID)
	require.Len(t, b.Positive, 2)
	assert.Equal(t, domain.MatchID(3), b.Positive[0].MatchID)
	assert.Equal(t, domain.MatchID(4), b.Positive[1].MatchID)
	assert.Len(t, b.Failures[domain.OutcomeNotFound], 1)
	assert.Len(t, b.Failures[domain.OutcomeParseError], 1)
	assert.Empty(t, b.Failures[domain.OutcomeLoadError])
}

type fakeUploader struct {
	mu         sync.Mutex
	uploads    map[string][]domain.MatchID
	failOn     string
	failOffset int
	rejected   []domain.MatchID
}

func (f *fakeUploader) Upload(_ context.Context, sheet string, rows []domain.OutputRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sheet == f.failOn {
		for _, r := range rows {
			f.rejected = append(f.rejected, r.MatchID)
		}
		return &sheets.UploadError{Sheet: sheet, Rows: len(rows), Offset: f.failOffset, Err: sheets.ErrRateLimited}
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]domain.MatchID)
	}
	for _, r := range rows {
		f.uploads[sheet] = append(f.uploads[sheet], r.MatchID)
	}
	return nil
}

func testSinkConfig() config.Sink {
	return config.Sink{NegativeSheet: "Visitantes", PositiveSheet: "Locales"}
}

func TestRunner_Run(t *testing.T) {
	fp := &fakeParser{
		keys: map[domain.MatchID]float64{
			10: -0.25, 9: 0.5, 8: 0, 7: 1,
			20: 0.75,
		},
		fail: map[domain.MatchID]domain.OutcomeKind{
			6:  domain.OutcomeNotFound,
			19: domain.OutcomeLoadError,
		},
	}
	up := &fakeUploader{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	runner := NewRunner(newTestPool(fp, 3, metrics), up, testSinkConfig(), nil, nil, metrics)

	res, err := runner.Run(context.Background(), []Batch{
		{Label: "first", IDs: ids(10, 6)},
		{Label: "second", IDs: ids(20, 19)},
	})
	require.NoError(t, err)

	require.Len(t, res.Batches, 2)
	assert.Equal(t, BatchResult{Label: "first", IDs: 5, NonPositive: 2, Positive: 2, Failures: res.Batches[0].Failures}, res.Batches[0])
	assert.Len(t, res.Batches[0].Failures[domain.OutcomeNotFound], 1)
	assert.Equal(t, 1, res.Batches[1].Positive)

	assert.ElementsMatch(t, []domain.MatchID{10, 8}, up.uploads["Visitantes"])
	assert.ElementsMatch(t, []domain.MatchID{9, 7, 20}, up.uploads["Locales"])

	require.Len(t, res.Failures, 2)
	assert.Empty(t, res.UploadErrors)

	assert.Equal(t, int64(7), res.Stats.Total)
	assert.Equal(t, int64(7), res.Stats.Processed)
	assert.Equal(t, int64(5), res.Stats.OK)
	assert.Equal(t, int64(2), res.Stats.Failures())
	assert.Equal(t, float64(3), promtest.ToFloat64(metrics.uploadedRows.WithLabelValues("Locales")))
}

func TestRunner_UploadFailureDoesNotStopRun(t *testing.T) {
	fp := &fakeParser{keys: map[domain.MatchID]float64{3: -1, 2: 1, 1: -0.5}}
	up := &fakeUploader{failOn: "Visitantes"}
	metrics := NewMetrics(prometheus.NewRegistry())
	runner := NewRunner(newTestPool(fp, 2, metrics), up, testSinkConfig(), nil, nil, metrics)

	res, err := runner.Run(context.Background(), []Batch{{Label: "only", IDs: ids(3, 1)}})
	require.NoError(t, err)

	require.Len(t, res.UploadErrors, 1)
	f := res.UploadErrors[0]
	assert.Equal(t, "only", f.Label)
	assert.Equal(t, domain.MatchID(3), f.StartID)
	assert.Equal(t, domain.MatchID(1), f.EndID)
	assert.Equal(t, "Visitantes", f.Sheet)
	assert.Equal(t, 2, f.Rows)
	assert.Equal(t, up.rejected, f.Pending)
	assert.True(t, errors.Is(f.Err, sheets.ErrRateLimited))
	assert.Equal(t, []domain.MatchID{2}, up.uploads["Locales"])
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.uploadErrors.WithLabelValues("Visitantes")))
}

func TestRunner_UploadFailureKeepsUnwrittenIDs(t *testing.T) {
	keys := make(map[domain.MatchID]float64)
	for id := domain.MatchID(1); id <= 5; id++ {
		keys[id] = -1
	}
	fp := &fakeParser{keys: keys}
	up := &fakeUploader{failOn: "Visitantes", failOffset: 3}
	runner := NewRunner(newTestPool(fp, 2, nil), up, testSinkConfig(), nil, nil, nil)

	res, err := runner.Run(context.Background(), []Batch{{Label: "cli", IDs: []domain.MatchID{2, 5, 1, 4, 3}}})
	require.NoError(t, err)

	require.Len(t, res.UploadErrors, 1)
	f := res.UploadErrors[0]
	assert.Equal(t, domain.MatchID(5), f.StartID)
	assert.Equal(t, domain.MatchID(1), f.EndID)
	assert.Equal(t, 3, f.Offset)
	require.Len(t, up.rejected, 5)
	assert.Equal(t, up.rejected[3:], f.Pending)
}

func TestBatchFromIDs(t *testing.T) {
	in := []domain.MatchID{4, 9, 1, 9, 6}
	b := BatchFromIDs("cli", in)
	assert.Equal(t, "cli", b.Label)
	assert.Equal(t, []domain.MatchID{9, 6, 4, 1}, b.IDs)
	assert.Equal(t, []domain.MatchID{4, 9, 1, 9, 6}, in)

	assert.Empty(t, BatchFromIDs("empty", nil).IDs)
}

func TestBatch_Bounds(t *testing.T) {
	start, end := Batch{IDs: []domain.MatchID{7, 12, 3}}.Bounds()
	assert.Equal(t, domain.MatchID(12), start)
	assert.Equal(t, domain.MatchID(3), end)

	start, end = Batch{}.Bounds()
	assert.Zero(t, start)
	assert.Zero(t, end)
}

func TestRunner_NilSink(t *testing.T) {
	fp := &fakeParser{}
	runner := NewRunner(newTestPool(fp, 1, nil), nil, testSinkConfig(), nil, nil, nil)

	res, err := runner.Run(context.Background(), []Batch{{Label: "dry", IDs: ids(2, 1)}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches[0].Positive)
}

func TestBatchFromRange(t *testing.T) {
	b := BatchFromRange(config.Range{StartID: 12, EndID: 10, Label: "r"})
	assert.Equal(t, "r", b.Label)
	assert.Equal(t, []domain.MatchID{12, 11, 10}, b.IDs)
}
