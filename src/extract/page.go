package extract

import (
	"fmt"
	"regexp"
	"strings"

	"mxshs/h2hcrawler/src/domain"

	"github.com/PuerkitoBio/goquery"
)

// Stats tables of the two teams on the h2h page.
const (
	HomeStatsTable = "table.team-table-home"
	AwayStatsTable = "table.team-table-guest"
)

var (
	homeIDRe     = regexp.MustCompile(`hId:\s*parseInt\('(\d+)'\)`)
	awayIDRe     = regexp.MustCompile(`gId:\s*parseInt\('(\d+)'\)`)
	leagueIDRe   = regexp.MustCompile(`sclassId:\s*parseInt\('(\d+)'\)`)
	homeNameRe   = regexp.MustCompile(`hName:\s*'([^']*)'`)
	awayNameRe   = regexp.MustCompile(`gName:\s*'([^']*)'`)
	leagueNameRe = regexp.MustCompile(`lName:\s*'([^']*)'`)

	teamLinkRe = regexp.MustCompile(`team\((\d+)\)`)
)

func find(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// LeagueInfo reads team and league identifiers from the _matchInfo script
// payload. ok is false unless every field needed downstream is present.
func LeagueInfo(doc *goquery.Document) (domain.LeagueContext, bool) {
	var payload string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if body := s.Text(); strings.Contains(body, "var _matchInfo =") {
			payload = body
			return false
		}
		return true
	})
	if payload == "" {
		return domain.LeagueContext{}, false
	}

	lc := domain.LeagueContext{
		HomeID:     find(homeIDRe, payload),
		AwayID:     find(awayIDRe, payload),
		LeagueID:   find(leagueIDRe, payload),
		HomeName:   find(homeNameRe, payload),
		AwayName:   find(awayNameRe, payload),
		LeagueName: find(leagueNameRe, payload),
	}
	return lc, lc.Complete()
}

// CurrentOdds returns the raw pre-match handicap and goal line of the early
// odds row. Missing values come back as "?".
func CurrentOdds(doc *goquery.Document) (handicap, goals string) {
	row := doc.Find(`#tr_o_1_8[name="earlyOdds"], #tr_o_1_31[name="earlyOdds"]`).First()
	if row.Length() == 0 {
		return "?", "?"
	}
	cell := func(n int) string {
		c := row.Find(fmt.Sprintf("td:nth-of-type(%d)", n)).First()
		if c.Length() == 0 {
			return "?"
		}
		return dataOrText(c)
	}
	return cell(4), cell(10)
}

// FinalScore returns the match score as "h*a", or "?*?" before kickoff.
func FinalScore(doc *goquery.Document) string {
	scores := doc.Find("#mScore .end .score")
	if scores.Length() != 2 {
		return "?*?"
	}
	return text(scores.Eq(0)) + "*" + text(scores.Eq(1))
}

// KeyAndRivalIDs locates the row flagged vs="1" in tableID and returns its
// index together with the id and name of the opposing team. In the home
// table the rival is the second team link, in the away table the first.
func KeyAndRivalIDs(doc *goquery.Document, tableID string) (domain.KeyRival, bool) {
	rows := historyRows(doc, tableID)
	if rows == nil {
		return domain.KeyRival{}, false
	}

	linkIndex := 0
	if tableID == HomeTable {
		linkIndex = 1
	}

	var kr domain.KeyRival
	var ok bool
	rows.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key := s.AttrOr("index", "")
		if s.AttrOr("vs", "") != "1" || key == "" {
			return true
		}
		links := s.Find("a[onclick]")
		if links.Length() <= linkIndex {
			return true
		}
		rival := links.Eq(linkIndex)
		m := teamLinkRe.FindStringSubmatch(rival.AttrOr("onclick", ""))
		if m == nil {
			return true
		}
		kr, ok = domain.KeyRival{KeyRowID: key, RivalID: m[1], RivalName: text(rival)}, true
		return false
	})
	return kr, ok
}

// TeamStatsSummary renders the standings block of one team: rank, overall
// record and the home (or away) record.
func TeamStatsSummary(doc *goquery.Document, tableSelector string, isHome bool) string {
	letter, venue := "V", "✈️Away"
	if isHome {
		letter, venue = "L", "🏠Home"
	}
	na := "Stats " + letter + ": N/A"

	rows := doc.Find(tableSelector).First().Find("tr")
	if rows.Length() < 5 {
		return na
	}
	total, split := rows.Eq(2).Find("td"), rows.Eq(4).Find("td")
	if total.Length() < 9 || split.Length() < 7 {
		return na
	}
	t := func(s *goquery.Selection, i int) string { return text(s.Eq(i)) }

	return fmt.Sprintf("🏆Rk:%s %s\n🌍T:%s|%s/%s/%s|%s-%s\n🏡%s:%s|%s/%s/%s|%s-%s",
		t(total, 8), venue,
		t(total, 1), t(total, 2), t(total, 3), t(total, 4), t(total, 5), t(total, 6),
		letter, t(split, 1), t(split, 2), t(split, 3), t(split, 4), t(split, 5), t(split, 6),
	)
}

// NotFound reports whether the page is the site's "match not found" page.
func NotFound(html string) bool {
	return strings.Contains(strings.ToLower(html), "match not found")
}
