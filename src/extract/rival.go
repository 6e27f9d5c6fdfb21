package extract

import (
	"strings"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/odds"

	"github.com/PuerkitoBio/goquery"
)

// FindRivalH2H scans the away table of a secondary h2h page for a played
// match between rivalA and rivalB, in either orientation.
func FindRivalH2H(doc *goquery.Document, rivalA, rivalB string) domain.RivalH2H {
	rows := historyRows(doc, AwayTable)
	if rows == nil {
		return domain.RivalH2H{Status: domain.RivalH2HError, Reason: AwayTable + " not found on h2h page"}
	}

	res := domain.RivalH2H{Status: domain.RivalH2HNotFound}
	rows.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		links := s.Find("a[onclick]")
		if links.Length() < 2 {
			return true
		}
		h := teamLinkRe.FindStringSubmatch(links.Eq(0).AttrOr("onclick", ""))
		a := teamLinkRe.FindStringSubmatch(links.Eq(1).AttrOr("onclick", ""))
		if h == nil || a == nil {
			return true
		}
		if !(h[1] == rivalA && a[1] == rivalB) && !(h[1] == rivalB && a[1] == rivalA) {
			return true
		}

		score := s.Find("span.fscore_2").First()
		if score.Length() == 0 || !strings.Contains(score.Text(), "-") {
			return true
		}
		played := strings.TrimSpace(strings.SplitN(text(score), "(", 2)[0])

		handicap := "-"
		if cells := s.Find("td"); cells.Length() > 11 {
			if v := dataOrText(cells.Eq(11)); v != "" {
				handicap = v
			}
		}

		res = domain.RivalH2H{
			Status:   domain.RivalH2HFound,
			Score:    strings.ReplaceAll(played, "-", "*"),
			Handicap: handicap,
			HomeTeam: text(links.Eq(0)),
		}
		return false
	})
	return res
}

// FormatRivalH2H renders a found rivals match as "score/handicap (RL-RV)"
// when the home rival played at home, "(RV-RL)" otherwise. Anything else is "-".
func FormatRivalH2H(h domain.RivalH2H, homeRivalName string) string {
	if h.Status != domain.RivalH2HFound {
		return "-"
	}
	orientation := "(RV-RL)"
	if homeRivalName != "" && strings.Contains(strings.ToLower(h.HomeTeam), strings.ToLower(homeRivalName)) {
		orientation = "(RL-RV)"
	}
	return h.Score + "/" + odds.Format(h.Handicap) + " " + orientation
}
