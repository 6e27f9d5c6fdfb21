package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/extract"
	"mxshs/h2hcrawler/src/odds"

	"go.uber.org/zap"
)

// Stage is a step of the match assembly. Stages only move forward; a failed
// step ends the assembly with an Outcome naming the last completed stage.
type Stage int

const (
	StageInit Stage = iota
	StageMainPageLoaded
	StageSelectorsApplied
	StageBaseInfoResolved
	StageH2HCollected
	StageLastMatchesCollected
	StageComparativesCollected
	StageRivalH2HPageLoaded
	StageAssembled
)

var stageNames = [...]string{
	"init",
	"main_page_loaded",
	"selectors_applied",
	"base_info_resolved",
	"h2h_collected",
	"last_matches_collected",
	"comparatives_collected",
	"rival_h2h_page_loaded",
	"assembled",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

var nowgoalSelector = Selector{
	HomeTable:    extract.HomeTable,
	AwayTable:    extract.AwayTable,
	RangeSelects: []string{"hSelect_1", "hSelect_2", "hSelect_3"},
	RivalSelect:  "hSelect_2",
}

const (
	placeholder      = "-"
	unknownResult    = "?*?"
	missingBaseInfo  = "missing base IDs or names"
	notFoundReason   = "match not found"
	incompleteRivals = "incomplete key or rival ids"
)

// stepError carries the outcome kind of a failed step.
type stepError struct {
	kind   domain.OutcomeKind
	reason string
	err    error
}

func (e *stepError) Error() string {
	if e.err != nil {
		return e.reason + ": " + e.err.Error()
	}
	return e.reason
}

func (e *stepError) Unwrap() error { return e.err }

func loadError(reason string, err error) error {
	return &stepError{kind: domain.OutcomeLoadError, reason: reason, err: err}
}

func parseError(reason string, err error) error {
	return &stepError{kind: domain.OutcomeParseError, reason: reason, err: err}
}

func notFound() error {
	return &stepError{kind: domain.OutcomeNotFound, reason: notFoundReason}
}

// NowgoalParser assembles the output row of one match from its h2h page and
// the h2h page of the key "versus" row.
type NowgoalParser struct {
	browser  Browser
	cfg      config.Scraper
	selector Selector
	log      *zap.Logger
}

func GetNowgoalParser(browser Browser, cfg config.Scraper, log *zap.Logger) *NowgoalParser {
	if log == nil {
		log = zap.NewNop()
	}
	return &NowgoalParser{
		browser:  browser,
		cfg:      cfg,
		selector: nowgoalSelector,
		log:      log,
	}
}

// MatchURL is the h2h page of a match.
func (np *NowgoalParser) MatchURL(id string) string {
	return strings.TrimRight(np.cfg.BaseURL, "/") + "/match/h2h-" + id
}

// ParseMatch runs the assembly for one match. It never returns an error and
// never panics: every failure is reported as an Outcome.
func (np *NowgoalParser) ParseMatch(ctx context.Context, id domain.MatchID) (out domain.Outcome) {
	run := &matchRun{
		np:    np,
		id:    id,
		url:   np.MatchURL(id.String()),
		stage: StageInit,
		log:   np.log.With(zap.Int64("match_id", int64(id))),
	}

	defer func() {
		if r := recover(); r != nil {
			run.log.Error("match assembly panicked", zap.Any("panic", r), zap.Stringer("stage", run.stage))
			out = run.failure(domain.OutcomeParseError, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	nav, err := np.browser.NewSession(ctx)
	if err != nil {
		return run.failure(domain.OutcomeLoadError, err.Error())
	}
	defer nav.Close()
	run.nav = nav

	row, sortKey, err := run.assemble(ctx)
	if err != nil {
		var se *stepError
		if errors.As(err, &se) {
			return run.failure(se.kind, se.Error())
		}
		return run.failure(domain.OutcomeLoadError, err.Error())
	}

	return domain.Outcome{
		Kind:    domain.OutcomeOK,
		MatchID: id,
		Row:     row,
		SortKey: sortKey,
		URL:     run.url,
		Stage:   run.stage.String(),
	}
}

// matchRun holds the state of one assembly.
type matchRun struct {
	np    *NowgoalParser
	nav   Navigator
	id    domain.MatchID
	url   string
	stage Stage
	log   *zap.Logger
}

func (r *matchRun) advance(s Stage) {
	r.stage = s
	r.log.Debug("stage reached", zap.Stringer("stage", s))
}

func (r *matchRun) failure(kind domain.OutcomeKind, reason string) domain.Outcome {
	return domain.Outcome{
		Kind:    kind,
		MatchID: r.id,
		URL:     r.url,
		Reason:  reason,
		Stage:   r.stage.String(),
	}
}

func (r *matchRun) assemble(ctx context.Context) (domain.OutputRow, *float64, error) {
	cfg := r.np.cfg
	sel := r.np.selector

	html, err := r.nav.Load(ctx, r.url, "#"+sel.HomeTable, cfg.Timeout)
	if err != nil {
		// The not-found page has no history tables, so it shows up as a
		// timeout on the wait selector.
		if src, serr := r.nav.Source(ctx); serr == nil && extract.NotFound(src) {
			return domain.OutputRow{}, nil, notFound()
		}
		return domain.OutputRow{}, nil, loadError("main page", err)
	}
	if extract.NotFound(html) {
		return domain.OutputRow{}, nil, notFound()
	}
	r.advance(StageMainPageLoaded)

	if err := r.applySelects(ctx, sel.RangeSelects, cfg.SelectTimeout); err != nil {
		return domain.OutputRow{}, nil, err
	}
	html, err = r.nav.Source(ctx)
	if err != nil {
		return domain.OutputRow{}, nil, loadError("main page source", err)
	}
	if extract.NotFound(html) {
		return domain.OutputRow{}, nil, notFound()
	}
	doc, err := extract.Parse(html)
	if err != nil {
		return domain.OutputRow{}, nil, parseError("main page", err)
	}
	r.advance(StageSelectorsApplied)

	lc, ok := extract.LeagueInfo(doc)
	if !ok {
		return domain.OutputRow{}, nil, parseError(missingBaseInfo, nil)
	}
	r.advance(StageBaseInfoResolved)

	ahCurrRaw, goalsCurrRaw := extract.CurrentOdds(doc)
	finalScore := extract.FinalScore(doc)

	ah1, res1 := domain.Text(placeholder), unknownResult
	ah6, res6 := domain.Text(placeholder), unknownResult
	if h2h := extract.HeadToHead(doc, lc.LeagueID); len(h2h) > 0 {
		ah6, res6 = handicapField(h2h[0].AHLineRaw), h2h[0].Score
		for _, m := range h2h {
			if strings.EqualFold(m.Home, lc.HomeName) {
				ah1, res1 = handicapField(m.AHLineRaw), m.Score
				break
			}
		}
	}
	r.advance(StageH2HCollected)

	ah4, res4 := domain.Text(placeholder), unknownResult
	ah5, res5 := domain.Text(placeholder), unknownResult
	var rivalOfLastHome, rivalOfLastAway string
	if m, ok := extract.LastMatchInLeague(doc, sel.HomeTable, lc.HomeName, lc.LeagueID, true); ok {
		ah4, res4 = handicapField(m.AHLineRaw), m.Score
		rivalOfLastHome = m.Away
	}
	if m, ok := extract.LastMatchInLeague(doc, sel.AwayTable, lc.AwayName, lc.LeagueID, false); ok {
		ah5, res5 = handicapField(m.AHLineRaw), m.Score
		rivalOfLastAway = m.Home
	}
	r.advance(StageLastMatchesCollected)

	comp7 := extract.ComparativeMatch(doc, sel.HomeTable, lc.HomeName, rivalOfLastAway, lc.LeagueID)
	comp8 := extract.ComparativeMatch(doc, sel.AwayTable, lc.AwayName, rivalOfLastHome, lc.LeagueID)
	r.advance(StageComparativesCollected)

	keyA, okA := extract.KeyAndRivalIDs(doc, sel.HomeTable)
	keyB, okB := extract.KeyAndRivalIDs(doc, sel.AwayTable)
	rival := r.rivalH2H(ctx, keyA, keyB, okA && okB)
	regla3 := extract.FormatRivalH2H(rival, keyA.RivalName)
	r.advance(StageRivalH2HPageLoaded)

	// Stats are read from a fresh load of the main page since the browser
	// is now on the rival page.
	html, err = r.nav.Load(ctx, r.url, "#"+sel.HomeTable, cfg.Timeout)
	if err != nil {
		return domain.OutputRow{}, nil, loadError("main page reload", err)
	}
	statsDoc, err := extract.Parse(html)
	if err != nil {
		return domain.OutputRow{}, nil, parseError("main page reload", err)
	}
	statsL := extract.TeamStatsSummary(statsDoc, extract.HomeStatsTable, true)
	statsV := extract.TeamStatsSummary(statsDoc, extract.AwayStatsTable, false)

	row := domain.OutputRow{
		MatchID: r.id,
		Fields: [domain.RowWidth]domain.Field{
			ah1,
			handicapField(ahCurrRaw),
			domain.Text(res1),
			ah4,
			domain.Text(res4),
			ah5,
			domain.Text(res5),
			ah6,
			domain.Text(res6),
			domain.Text(comp7),
			domain.Text(comp8),
			domain.Text(regla3),
			domain.Text(statsL),
			domain.Text(statsV),
			domain.Text(finalScore),
			handicapField(goalsCurrRaw),
			domain.Number(r.id.String()),
		},
	}

	var sortKey *float64
	if v, ok := odds.ParseHandicap(ahCurrRaw); ok {
		sortKey = &v
	}
	r.advance(StageAssembled)

	return row, sortKey, nil
}

// applySelects widens each history table to the configured window. Missing
// dropdowns are skipped; a dropdown that keeps failing fails the load.
func (r *matchRun) applySelects(ctx context.Context, ids []string, timeout time.Duration) error {
	cfg := r.np.cfg
	applied := false
	for _, id := range ids {
		res, err := r.selectWithRetry(ctx, id, timeout)
		switch res {
		case SelectApplied:
			applied = true
		case SelectNotPresent:
			r.log.Debug("range select not present", zap.String("select", id))
		case SelectFailed:
			return loadError("select "+id, err)
		}
	}
	if applied {
		if err := pause(ctx, cfg.SelectDelay); err != nil {
			return loadError("select delay", err)
		}
	}
	return nil
}

func (r *matchRun) selectWithRetry(ctx context.Context, id string, timeout time.Duration) (SelectResult, error) {
	cfg := r.np.cfg
	var (
		res SelectResult
		err error
	)
	for attempt := 0; attempt <= cfg.SelectRetries; attempt++ {
		res, err = r.nav.SelectOption(ctx, id, cfg.HistoryWindow, timeout)
		if res != SelectFailed {
			return res, nil
		}
		r.log.Debug("range select failed", zap.String("select", id), zap.Int("attempt", attempt+1), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return res, err
}

// rivalH2H loads the h2h page of the key row and looks for a meeting of the
// two rivals. Every failure here degrades to a RivalH2HError result; the
// main assembly carries on.
func (r *matchRun) rivalH2H(ctx context.Context, keyA, keyB domain.KeyRival, ok bool) domain.RivalH2H {
	if !ok || keyA.KeyRowID == "" || keyA.RivalID == "" || keyB.RivalID == "" {
		return domain.RivalH2H{Status: domain.RivalH2HError, Reason: incompleteRivals}
	}

	cfg := r.np.cfg
	sel := r.np.selector
	url := r.np.MatchURL(keyA.KeyRowID)

	html, err := r.nav.Load(ctx, url, "#"+sel.AwayTable, cfg.Timeout)
	if err != nil {
		r.log.Debug("rival page failed", zap.String("url", url), zap.Error(err))
		return domain.RivalH2H{Status: domain.RivalH2HError, Reason: err.Error()}
	}

	res, err := r.selectWithRetry(ctx, sel.RivalSelect, cfg.RivalSelectTimeout)
	switch res {
	case SelectFailed:
		return domain.RivalH2H{Status: domain.RivalH2HError, Reason: err.Error()}
	case SelectApplied:
		if err := pause(ctx, cfg.SelectDelay); err != nil {
			return domain.RivalH2H{Status: domain.RivalH2HError, Reason: err.Error()}
		}
		if html, err = r.nav.Source(ctx); err != nil {
			return domain.RivalH2H{Status: domain.RivalH2HError, Reason: err.Error()}
		}
	}

	doc, err := extract.Parse(html)
	if err != nil {
		return domain.RivalH2H{Status: domain.RivalH2HError, Reason: err.Error()}
	}
	return extract.FindRivalH2H(doc, keyA.RivalID, keyB.RivalID)
}

// handicapField types a raw handicap cell: parsable lines become canonical
// numbers, anything else is kept as text.
func handicapField(raw string) domain.Field {
	if s, ok := odds.FormatDecimal(raw); ok {
		return domain.Number(s)
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		s = placeholder
	}
	return domain.Text(s)
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
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
