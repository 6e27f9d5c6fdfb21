package extract

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/odds"

	"github.com/PuerkitoBio/goquery"
)

const kickoffLayout = "2006-01-02 15:04:05"

// UpcomingMatch is one not-yet-started fixture of the live list page.
type UpcomingMatch struct {
	ID       domain.MatchID
	Kickoff  time.Time // UTC
	Local    time.Time
	Home     string
	Away     string
	Handicap string
	GoalLine string
	League   string
}

// UpcomingOptions filters and pages the upcoming list.
type UpcomingOptions struct {
	// Handicap keeps only matches whose line falls in the same half bucket.
	Handicap string
	Offset   int
	Limit    int // 0 means no limit
	Location *time.Location
}

// Upcoming reads the fixtures of the live list page that start after now,
// ordered by kickoff. Rows without a kickoff time, handicap or goal line are
// skipped.
func Upcoming(doc *goquery.Document, now time.Time, opts UpcomingOptions) []UpcomingMatch {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var out []UpcomingMatch
	doc.Find(`tr[id^="tr1_"]`).Each(func(_ int, row *goquery.Selection) {
		rawID := strings.TrimPrefix(row.AttrOr("id", ""), "tr1_")
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return
		}

		t, ok := row.Find(`td[name="timeData"]`).First().Attr("data-t")
		if !ok {
			return
		}
		kickoff, err := time.ParseInLocation(kickoffLayout, t, time.UTC)
		if err != nil || kickoff.Before(now) {
			return
		}

		oddsData := strings.Split(row.AttrOr("odds", ""), ",")
		var handicap, goals string
		if len(oddsData) > 2 {
			handicap = strings.TrimSpace(oddsData[2])
		}
		if len(oddsData) > 10 {
			goals = strings.TrimSpace(oddsData[10])
		}
		if handicap == "" || goals == "" {
			return
		}

		m := UpcomingMatch{
			ID:       domain.MatchID(id),
			Kickoff:  kickoff,
			Local:    kickoff.In(loc),
			Home:     "N/A",
			Away:     "N/A",
			Handicap: handicap,
			GoalLine: goals,
			League:   "N/A",
		}
		if a := row.Find("a#team1_" + rawID).First(); a.Length() > 0 {
			m.Home = text(a)
		}
		if a := row.Find("a#team2_" + rawID).First(); a.Length() > 0 {
			m.Away = text(a)
		}
		if td := row.Find(`td[name="leagueData"]`).First(); td.Length() > 0 {
			m.League = text(td)
		}
		out = append(out, m)
	})

	if target, ok := odds.HalfBucketString(opts.Handicap); ok {
		kept := out[:0]
		for _, m := range out {
			if b, ok := odds.HalfBucketString(m.Handicap); ok && b == target {
				kept = append(kept, m)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// IDs returns the match ids of the list in order.
func IDs(matches []UpcomingMatch) []domain.MatchID {
	ids := make([]domain.MatchID, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}
