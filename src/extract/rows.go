// Package extract reads typed records out of rendered match pages. Every
// function here is pure over a parsed document and never navigates.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/odds"

	"github.com/PuerkitoBio/goquery"
)

// History tables of the h2h page and the score classes used inside them.
const (
	HomeTable = "table_v1"
	AwayTable = "table_v2"
	H2HTable  = "table_v3"

	HomeScore = "fscore_1"
	AwayScore = "fscore_2"
	H2HScore  = "fscore_3"
)

var scoreRe = regexp.MustCompile(`^(\d+-\d+)`)

// Parse turns page HTML into a queryable document.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// linkOrText prefers the text of a nested link over the cell text.
func linkOrText(cell *goquery.Selection) string {
	if a := cell.Find("a").First(); a.Length() > 0 {
		return text(a)
	}
	return text(cell)
}

// dataOrText prefers the data-o attribute (full precision line) over the displayed text.
func dataOrText(cell *goquery.Selection) string {
	if v, ok := cell.Attr("data-o"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return text(cell)
}

func roleFor(scoreClass string) domain.Side {
	if scoreClass == AwayScore {
		return domain.Away
	}
	return domain.Home
}

// RowDetails reads one history row. Rows with fewer than 12 cells are not
// match rows and are reported as not ok.
func RowDetails(row *goquery.Selection, scoreClass string) (domain.MatchSummary, bool) {
	cells := row.Find("td")
	if cells.Length() < 12 {
		return domain.MatchSummary{}, false
	}

	scoreCell := cells.Eq(3)
	scoreText := text(scoreCell)
	if span := scoreCell.Find(`span[class*="` + scoreClass + `"]`).First(); span.Length() > 0 {
		scoreText = text(span)
	}
	scoreRaw := "?-?"
	if m := scoreRe.FindStringSubmatch(scoreText); m != nil {
		scoreRaw = m[1]
	}

	ahRaw := dataOrText(cells.Eq(11))

	return domain.MatchSummary{
		Home:       linkOrText(cells.Eq(2)),
		Away:       linkOrText(cells.Eq(4)),
		Score:      strings.ReplaceAll(scoreRaw, "-", "*"),
		ScoreRaw:   scoreRaw,
		AHLine:     odds.Format(ahRaw),
		AHLineRaw:  ahRaw,
		Date:       text(cells.Eq(1).Find(`span[name="timeData"]`).First()),
		MatchIndex: row.AttrOr("index", ""),
		LeagueTag:  row.AttrOr("name", ""),
		Role:       roleFor(scoreClass),
	}, true
}

// historyRows returns the match rows of a table, recognized by their
// "tr<n>_<digits>" id where n is the last character of the table id.
func historyRows(doc *goquery.Document, tableID string) *goquery.Selection {
	if tableID == "" {
		return nil
	}
	table := doc.Find("table#" + tableID).First()
	if table.Length() == 0 {
		return nil
	}
	idRe := regexp.MustCompile(`tr` + regexp.QuoteMeta(tableID[len(tableID)-1:]) + `_\d+`)
	return table.Find("tr").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return idRe.MatchString(s.AttrOr("id", ""))
	})
}

// sortByDateDesc orders rows newest first, keeping input order for equal dates.
func sortByDateDesc(rows []domain.MatchSummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DateKey().After(rows[j].DateKey())
	})
}

// LastMatchInLeague returns the most recent row of tableID played in leagueID
// where teamName appears (case-insensitively) on the home side when isHome is
// set, on the away side otherwise.
func LastMatchInLeague(doc *goquery.Document, tableID, teamName, leagueID string, isHome bool) (domain.MatchSummary, bool) {
	rows := historyRows(doc, tableID)
	if rows == nil {
		return domain.MatchSummary{}, false
	}

	scoreClass := AwayScore
	if isHome {
		scoreClass = HomeScore
	}
	team := strings.ToLower(teamName)

	var matches []domain.MatchSummary
	rows.Each(func(_ int, s *goquery.Selection) {
		d, ok := RowDetails(s, scoreClass)
		if !ok || d.LeagueTag != leagueID {
			return
		}
		side := d.Away
		if isHome {
			side = d.Home
		}
		if strings.Contains(strings.ToLower(side), team) {
			matches = append(matches, d)
		}
	})
	if len(matches) == 0 {
		return domain.MatchSummary{}, false
	}

	sortByDateDesc(matches)
	return matches[0], true
}

// FindComparative scans tableID for a league row played between mainTeam and
// opponent in either orientation.
func FindComparative(doc *goquery.Document, tableID, mainTeam, opponent, leagueID string) (domain.ComparativeMatch, bool) {
	if opponent == "" {
		return domain.ComparativeMatch{}, false
	}
	table := doc.Find("table#" + tableID).First()
	if table.Length() == 0 {
		return domain.ComparativeMatch{}, false
	}

	scoreClass := AwayScore
	if tableID == HomeTable {
		scoreClass = HomeScore
	}
	main, opp := strings.ToLower(mainTeam), strings.ToLower(opponent)

	var found domain.ComparativeMatch
	var ok bool
	table.Find("tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		d, usable := RowDetails(s, scoreClass)
		if !usable || d.LeagueTag != leagueID {
			return true
		}
		h, a := strings.ToLower(d.Home), strings.ToLower(d.Away)
		if !(main == h && opp == a) && !(main == a && opp == h) {
			return true
		}
		side := domain.Away
		if main == h {
			side = domain.Home
		}
		found, ok = domain.ComparativeMatch{MatchSummary: d, Side: side}, true
		return false
	})
	return found, ok
}

// ComparativeMatch renders FindComparative as "score/handicap H|A", or "-"
// when there is no such row.
func ComparativeMatch(doc *goquery.Document, tableID, mainTeam, opponent, leagueID string) string {
	c, ok := FindComparative(doc, tableID, mainTeam, opponent, leagueID)
	if !ok {
		return "-"
	}
	return c.Format()
}

// HeadToHead returns the direct meetings of the two teams within leagueID,
// newest first.
func HeadToHead(doc *goquery.Document, leagueID string) []domain.MatchSummary {
	var out []domain.MatchSummary
	doc.Find("#" + H2HTable + ` tr[id^="tr3_"]`).Each(func(_ int, s *goquery.Selection) {
		if d, ok := RowDetails(s, H2HScore); ok && d.LeagueTag == leagueID {
			out = append(out, d)
		}
	})
	sortByDateDesc(out)
	return out
}
