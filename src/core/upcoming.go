package core

import (
	"context"
	"fmt"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/extract"
)

const listRowSelector = `tr[id^="tr1_"]`

// ListUpcoming loads the live list page and returns the fixtures that have
// not kicked off yet.
func ListUpcoming(ctx context.Context, browser Browser, cfg config.Scraper, opts extract.UpcomingOptions) ([]extract.UpcomingMatch, error) {
	nav, err := browser.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer nav.Close()

	html, err := nav.Load(ctx, cfg.ListURL, listRowSelector, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to load match list: %w", err)
	}

	doc, err := extract.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse match list: %w", err)
	}

	return extract.Upcoming(doc, time.Now(), opts), nil
}
