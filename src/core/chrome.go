package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mxshs/h2hcrawler/src/config"

	"github.com/chromedp/chromedp"
)

const selectScript = `(function(id, value) {
	var el = document.getElementById(id);
	if (!el || !el.options) { return false; }
	var found = false;
	for (var i = 0; i < el.options.length; i++) {
		if (el.options[i].value === value) { found = true; break; }
	}
	if (!found) { return false; }
	el.value = value;
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`

// ChromeBrowser starts one headless Chrome per session.
type ChromeBrowser struct {
	driverOpts []func(*chromedp.ExecAllocator)
	timeout    time.Duration
}

func GetChromeBrowser(cfg config.Scraper) *ChromeBrowser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		// Keep the desktop layout; the h2h tables are collapsed on mobile.
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	return &ChromeBrowser{driverOpts: opts, timeout: cfg.Timeout}
}

func (b *ChromeBrowser) NewSession(ctx context.Context) (Navigator, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), b.driverOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		ctx:     tabCtx,
		timeout: b.timeout,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

type chromeSession struct {
	ctx     context.Context
	timeout time.Duration
	cancel  func()
}

// bounded derives a context from the tab that ends at timeout or when the
// caller's ctx is done, whichever comes first.
func (s *chromeSession) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Load(ctx context.Context, url, waitSelector string, timeout time.Duration) (string, error) {
	tctx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(
		tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s on %s", ErrTimeout, waitSelector, url)
		}
		return "", fmt.Errorf("failed to load %s: %w", url, err)
	}

	return html, nil
}

func (s *chromeSession) SelectOption(ctx context.Context, elementID, value string, timeout time.Duration) (SelectResult, error) {
	tctx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(tctx, chromedp.WaitReady("#"+elementID, chromedp.ByQuery))
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded)) {
			return SelectNotPresent, nil
		}
		return SelectFailed, fmt.Errorf("waiting for #%s: %w", elementID, err)
	}

	var applied bool
	script := fmt.Sprintf(selectScript, strconv.Quote(elementID), strconv.Quote(value))
	if err := chromedp.Run(tctx, chromedp.Evaluate(script, &applied)); err != nil {
		return SelectFailed, fmt.Errorf("selecting %s on #%s: %w", value, elementID, err)
	}
	if !applied {
		return SelectNotPresent, nil
	}

	return SelectApplied, nil
}

func (s *chromeSession) Source(ctx context.Context) (string, error) {
	tctx, cancel := s.bounded(ctx, s.timeout)
	defer cancel()

	var html string
	if err := chromedp.Run(tctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}

	return html, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
