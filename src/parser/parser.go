package parser

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/core"
	"mxshs/h2hcrawler/src/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool runs match assemblies on a fixed number of workers. Each worker
// waits a random jitter before every match so requests do not arrive in
// lockstep.
type Pool struct {
	parser    core.MatchParser
	workers   int
	jitterMin time.Duration
	jitterMax time.Duration
	log       *zap.Logger
	metrics   *Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPool(parser core.MatchParser, cfg config.Pool, log *zap.Logger, metrics *Metrics) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pool{
		parser:    parser,
		workers:   max(cfg.Workers, 1),
		jitterMin: cfg.JitterMin,
		jitterMax: cfg.JitterMax,
		log:       log,
		metrics:   metrics,
		sleep:     sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pool) jitter() time.Duration {
	if p.jitterMax <= p.jitterMin {
		return p.jitterMin
	}
	return p.jitterMin + rand.N(p.jitterMax-p.jitterMin)
}

// Process assembles every id and returns the outcomes in completion order.
// onDone, when set, is called from the collecting goroutine after each
// outcome. The error is non-nil only when ctx ended early; the outcomes
// collected so far are returned with it.
func (p *Pool) Process(ctx context.Context, ids []domain.MatchID, onDone func(domain.Outcome)) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, 0, len(ids))
	if len(ids) == 0 {
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan domain.MatchID)
	results := make(chan domain.Outcome)

	g.Go(func() error {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < min(p.workers, len(ids)); i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for id := range jobs {
				if err := p.sleep(gctx, p.jitter()); err != nil {
					return err
				}

				p.metrics.inFlight.Inc()
				start := time.Now()
				out := p.parser.ParseMatch(gctx, id)
				p.metrics.inFlight.Dec()
				p.metrics.observe(out, time.Since(start))

				select {
				case results <- out:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		outcomes = append(outcomes, out)
		if out.Kind != domain.OutcomeOK {
			p.log.Warn("match failed",
				zap.Int64("match_id", int64(out.MatchID)),
				zap.Stringer("kind", out.Kind),
				zap.String("url", out.URL),
				zap.String("reason", out.Reason),
				zap.String("stage", out.Stage),
			)
		}
		if onDone != nil {
			onDone(out)
		}
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// Buckets splits outcomes for the sink.
type Buckets struct {
	NonPositive []domain.OutputRow
	Positive    []domain.OutputRow
	Failures    map[domain.OutcomeKind][]domain.Outcome
}

// Classify routes OK rows by the sign of their current handicap and groups
// the rest by kind. Input order is kept within each group.
func Classify(outcomes []domain.Outcome) Buckets {
	b := Buckets{Failures: make(map[domain.OutcomeKind][]domain.Outcome)}
	for _, out := range outcomes {
		switch {
		case out.Kind != domain.OutcomeOK:
			b.Failures[out.Kind] = append(b.Failures[out.Kind], out)
		case out.NonPositive():
			b.NonPositive = append(b.NonPositive, out.Row)
		default:
			b.Positive = append(b.Positive, out.Row)
		}
	}
	return b
}
