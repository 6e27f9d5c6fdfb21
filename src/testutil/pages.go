// Package testutil builds synthetic h2h and list pages for tests.
package testutil

import (
	"fmt"
	"strings"
	"time"
)

// Row is one history table row.
type Row struct {
	ID       int
	Index    string
	League   string
	Versus   bool
	Date     string // dd-mm-yyyy
	Home     string
	Away     string
	HomeID   string
	AwayID   string
	Score    string // "2-1"; empty renders an unplayed row
	Handicap string
}

// HTML renders the row for a table whose ids end in n ("1" for table_v1).
func (r Row) HTML(n string) string {
	var b strings.Builder
	vs := ""
	if r.Versus {
		vs = "1"
	}
	fmt.Fprintf(&b, `<tr id="tr%s_%d" index="%s" name="%s" vs="%s">`, n, r.ID, r.Index, r.League, vs)
	b.WriteString(`<td>` + r.League + `</td>`)
	fmt.Fprintf(&b, `<td><span name="timeData">%s</span></td>`, r.Date)
	fmt.Fprintf(&b, `<td><a onclick="team(%s)">%s</a></td>`, r.HomeID, r.Home)
	fmt.Fprintf(&b, `<td><span class="fscore_%s">%s</span></td>`, n, r.Score)
	fmt.Fprintf(&b, `<td><a onclick="team(%s)">%s</a></td>`, r.AwayID, r.Away)
	for i := 5; i < 11; i++ {
		b.WriteString(`<td></td>`)
	}
	fmt.Fprintf(&b, `<td data-o="%s">%s</td>`, r.Handicap, r.Handicap)
	b.WriteString(`</tr>`)
	return b.String()
}

// Table renders a history table. Row ids and score classes follow the last
// character of the table id, like the site does.
func Table(id string, rows ...Row) string {
	n := id[len(id)-1:]
	var b strings.Builder
	fmt.Fprintf(&b, `<table id="%s"><tr><th>League</th><th>Date</th><th>Home</th><th>Score</th><th>Away</th></tr>`, id)
	for _, r := range rows {
		b.WriteString(r.HTML(n))
	}
	b.WriteString(`</table>`)
	return b.String()
}

// MatchInfo renders the _matchInfo script payload.
func MatchInfo(homeID, awayID, leagueID, homeName, awayName, leagueName string) string {
	return fmt.Sprintf(`<script>var _matchInfo = { hId: parseInt('%s'), gId: parseInt('%s'), sclassId: parseInt('%s'), hName: '%s', gName: '%s', lName: '%s' };</script>`,
		homeID, awayID, leagueID, homeName, awayName, leagueName)
}

// OddsRow renders the early odds row with the handicap in cell 4 and the goal line in cell 10.
func OddsRow(handicap, goals string) string {
	var b strings.Builder
	b.WriteString(`<table><tr id="tr_o_1_8" name="earlyOdds">`)
	for i := 1; i <= 12; i++ {
		switch i {
		case 4:
			fmt.Fprintf(&b, `<td data-o="%s">%s</td>`, handicap, handicap)
		case 10:
			fmt.Fprintf(&b, `<td data-o="%s">%s</td>`, goals, goals)
		default:
			b.WriteString(`<td>1.90</td>`)
		}
	}
	b.WriteString(`</tr></table>`)
	return b.String()
}

// FinalScore renders the score header of a finished match.
func FinalScore(home, away string) string {
	return fmt.Sprintf(`<div id="mScore"><div class="end"><div class="score">%s</div><div class="score">%s</div></div></div>`, home, away)
}

// StatsTable renders a standings table. total needs 9 cells, split 7.
func StatsTable(class string, total, split []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<table class="%s">`, class)
	b.WriteString(`<tr><th>Standings</th></tr><tr><th>FT</th></tr>`)
	b.WriteString(cells(total))
	b.WriteString(`<tr><td>Home</td></tr>`)
	b.WriteString(cells(split))
	b.WriteString(`</table>`)
	return b.String()
}

func cells(vals []string) string {
	var b strings.Builder
	b.WriteString(`<tr>`)
	for _, v := range vals {
		b.WriteString(`<td>` + v + `</td>`)
	}
	b.WriteString(`</tr>`)
	return b.String()
}

// Select renders a display-range dropdown.
func Select(id string) string {
	return fmt.Sprintf(`<select id="%s"><option value="10">10</option><option value="8">8</option></select>`, id)
}

// ListRow renders one fixture of the live list page.
func ListRow(id int, kickoff time.Time, home, away, handicap, goals, league string) string {
	oddsAttr := []string{"1", "2", handicap, "0.9", "0.9", "2", "3", "4", "5", "6", goals, "0.9"}
	return fmt.Sprintf(`<tr id="tr1_%d" odds="%s"><td name="leagueData">%s</td><td name="timeData" data-t="%s">%s</td><td><a id="team1_%d">%s</a></td><td><a id="team2_%d">%s</a></td></tr>`,
		id, strings.Join(oddsAttr, ","), league, kickoff.UTC().Format("2006-01-02 15:04:05"), kickoff.Format("15:04"),
		id, home, id, away)
}

// Page wraps fragments into a full document.
func Page(parts ...string) string {
	return `<html><head></head><body>` + strings.Join(parts, "") + `</body></html>`
}
