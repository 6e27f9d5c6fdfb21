package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/core"
	"mxshs/h2hcrawler/src/db"
	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/extract"
	"mxshs/h2hcrawler/src/logging"
	"mxshs/h2hcrawler/src/parser"
	"mxshs/h2hcrawler/src/report"
	"mxshs/h2hcrawler/src/sheets"
	"mxshs/h2hcrawler/src/status"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	modeBatch    = "batch"
	modeUpcoming = "upcoming"
)

type options struct {
	configPath string
	mode       string
	ids        []int64
	retryFile  string
	handicap   string
	limit      int
	offset     int
	scrape     bool
}

func parseFlags() (*options, *pflag.FlagSet) {
	opts := &options{}
	fs := pflag.NewFlagSet("h2hcrawler", pflag.ExitOnError)

	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	fs.StringVar(&opts.mode, "mode", modeBatch, "run mode: batch or upcoming")
	fs.Int64SliceVar(&opts.ids, "ids", nil, "match ids to process instead of the configured ranges")
	fs.StringVar(&opts.retryFile, "retry-file", "", "reprocess load and parse failures from a failure report")
	fs.StringVar(&opts.handicap, "handicap", "", "upcoming mode: keep matches in the same half bucket as this line")
	fs.IntVar(&opts.limit, "limit", 0, "upcoming mode: max matches to list, 0 for all")
	fs.IntVar(&opts.offset, "offset", 0, "upcoming mode: matches to skip")
	fs.BoolVar(&opts.scrape, "scrape", false, "upcoming mode: also process the listed matches")

	// bound onto config keys
	fs.Int("workers", 0, "number of concurrent match workers")
	fs.String("sink", "", "output backend: sheets, postgres, sqlite or none")
	fs.String("log-level", "", "log level")
	fs.String("log-format", "", "log format: json or text")
	fs.String("status-addr", "", "listen address of the status server, empty to disable")
	fs.String("report", "", "path of the failure report")
	fs.Bool("headless", true, "run chrome headless")

	_ = fs.Parse(os.Args[1:])
	return opts, fs
}

func main() {
	opts, fs := parseFlags()

	cfg, err := config.Load(opts.configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID), zap.String("mode", opts.mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, runID, log); err != nil {
		log.Error("run failed", zap.Error(err))
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(1)
	}

	fmt.Println("[INFO] Successfully finished parsing")
}

func run(ctx context.Context, cfg *config.Config, opts *options, runID string, log *zap.Logger) error {
	browser := core.GetChromeBrowser(cfg.Scraper)

	var batches []parser.Batch
	switch opts.mode {
	case modeBatch:
		b, err := batchesFor(cfg, opts)
		if err != nil {
			return err
		}
		batches = b
	case modeUpcoming:
		ids, err := listUpcoming(ctx, browser, cfg.Scraper, opts, log)
		if err != nil {
			return err
		}
		if !opts.scrape || len(ids) == 0 {
			return nil
		}
		batches = []parser.Batch{parser.BatchFromIDs(modeUpcoming, ids)}
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
	if len(batches) == 0 {
		return errors.New("nothing to process: configure ranges or pass --ids or --retry-file")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := parser.NewMetrics(reg)
	stats := parser.NewStats()

	if cfg.Status.Addr != "" {
		srv := status.NewServer(cfg.Status.Addr, status.NewRouter(runID, stats, reg), log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	sink, closeSink, err := openSink(ctx, cfg.Sink, log)
	if err != nil {
		return err
	}
	defer closeSink()

	nowgoal := core.GetNowgoalParser(browser, cfg.Scraper, log)
	pool := parser.NewPool(nowgoal, cfg.Pool, log, metrics)
	runner := parser.NewRunner(pool, sink, cfg.Sink, stats, log, metrics)

	res, runErr := runner.Run(ctx, batches)
	if res == nil {
		return runErr
	}

	summary := report.NewSummary(runID, opts.mode, res)
	fmt.Print(summary.String())
	log.Info("run finished",
		zap.Int64("ok", res.Stats.OK),
		zap.Int64("not_found", res.Stats.NotFound),
		zap.Int64("load_error", res.Stats.LoadError),
		zap.Int64("parse_error", res.Stats.ParseError),
		zap.Int("upload_errors", len(res.UploadErrors)),
		zap.Duration("elapsed", res.Stats.Elapsed),
	)

	if (len(res.Failures) > 0 || len(res.UploadErrors) > 0) && cfg.Report.Path != "" {
		if err := report.NewReport(runID, res, time.Now()).WriteFile(cfg.Report.Path); err != nil {
			log.Error("failed to write failure report", zap.Error(err))
		} else {
			log.Info("failure report written", zap.String("path", cfg.Report.Path))
		}
	}

	if cfg.Telegram.Enabled {
		notify(summary, cfg.Telegram, log)
	}

	return runErr
}

// batchesFor picks the ids of a batch run: a retry file, explicit ids or
// the configured ranges, in that order.
func batchesFor(cfg *config.Config, opts *options) ([]parser.Batch, error) {
	if opts.retryFile != "" {
		ids, err := report.LoadRetryIDs(opts.retryFile)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return []parser.Batch{parser.BatchFromIDs("retry", ids)}, nil
	}

	if len(opts.ids) > 0 {
		ids := make([]domain.MatchID, len(opts.ids))
		for i, id := range opts.ids {
			ids[i] = domain.MatchID(id)
		}
		return []parser.Batch{parser.BatchFromIDs("cli", ids)}, nil
	}

	batches := make([]parser.Batch, 0, len(cfg.Ranges))
	for _, r := range cfg.Ranges {
		batches = append(batches, parser.BatchFromRange(r))
	}
	return batches, nil
}

func listUpcoming(ctx context.Context, browser core.Browser, cfg config.Scraper, opts *options, log *zap.Logger) ([]domain.MatchID, error) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}

	matches, err := core.ListUpcoming(ctx, browser, cfg, extract.UpcomingOptions{
		Handicap: opts.handicap,
		Offset:   opts.offset,
		Limit:    opts.limit,
		Location: loc,
	})
	if err != nil {
		return nil, err
	}

	for _, m := range matches {
		fmt.Printf("%d  %s  %s vs %s  AH %s  O/U %s  [%s]\n",
			m.ID, m.Local.Format("02/01 15:04"), m.Home, m.Away, m.Handicap, m.GoalLine, m.League)
	}
	log.Info("upcoming matches listed", zap.Int("count", len(matches)))

	return extract.IDs(matches), nil
}

// openSink returns the uploader for the configured backend and a function
// releasing its resources.
func openSink(ctx context.Context, cfg config.Sink, log *zap.Logger) (parser.Uploader, func(), error) {
	switch cfg.Backend {
	case "sheets":
		table, err := sheets.NewGoogleSheets(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return sheets.NewWriter(table, cfg, log), func() {}, nil
	case "postgres", "sqlite":
		store, err := db.GetDB(cfg.Backend, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}
		return sheets.NewWriter(store, cfg, log), closeStore, nil
	default:
		return nil, func() {}, nil
	}
}

func notify(summary report.Summary, cfg config.Telegram, log *zap.Logger) {
	n, err := report.NewTelegramNotifier(cfg.BotToken, cfg.ChatID)
	if err != nil {
		log.Warn("telegram notifier unavailable", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := n.Notify(ctx, summary); err != nil {
		log.Warn("failed to send telegram summary", zap.Error(err))
	}
}
