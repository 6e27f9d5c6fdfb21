package domain

import (
	"regexp"
	"strconv"
	"time"
)

// MatchID identifies one fixture on the source site.
type MatchID int64

func (id MatchID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Side is the role a tracked team played in a historical row.
type Side string

const (
	Home Side = "home"
	Away Side = "away"
)

// Letter returns the one-letter tag used in comparison strings.
func (s Side) Letter() string {
	if s == Home {
		return "H"
	}
	return "A"
}

// MatchSummary is one usable row of a history table.
type MatchSummary struct {
	Home       string
	Away       string
	Score      string // "2*1", or "?*?" when the row has no result
	ScoreRaw   string // "2-1", or "?-?"
	AHLine     string // formatted handicap, "-" when unavailable
	AHLineRaw  string
	Date       string // dd-mm-yyyy as shown on the page
	MatchIndex string // row identity used to address the row's own h2h page
	LeagueTag  string
	Role       Side // which column was read for the score (home or away table)
}

var dateRe = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})`)

// Epoch is the date key of rows whose date cannot be read. They sort as the oldest.
var Epoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// DateKey parses the dd-mm-yyyy date of the row into a comparable key.
func (m MatchSummary) DateKey() time.Time {
	return ParseDayMonthYear(m.Date)
}

// ParseDayMonthYear finds the first dd-mm-yyyy date in s. Unparseable input yields Epoch.
func ParseDayMonthYear(s string) time.Time {
	g := dateRe.FindStringSubmatch(s)
	if g == nil {
		return Epoch
	}
	d, _ := strconv.Atoi(g[1])
	m, _ := strconv.Atoi(g[2])
	y, _ := strconv.Atoi(g[3])
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return Epoch
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// LeagueContext is resolved once per match from the page metadata. All
// comparative lookups are scoped to LeagueID.
type LeagueContext struct {
	HomeID     string
	AwayID     string
	LeagueID   string
	HomeName   string
	AwayName   string
	LeagueName string
}

// Complete reports whether every field needed for the comparisons is present.
func (l LeagueContext) Complete() bool {
	return l.HomeID != "" && l.AwayID != "" && l.LeagueID != "" &&
		l.HomeName != "" && l.AwayName != ""
}

// ComparativeMatch is a history row tagged with the side the tracked team occupied.
type ComparativeMatch struct {
	MatchSummary
	Side Side
}

// Format renders the comparison as "score/handicap H|A".
func (c ComparativeMatch) Format() string {
	return c.Score + "/" + c.AHLine + " " + c.Side.Letter()
}

// KeyRival identifies the "versus" row of a history table and the opposing team in it.
type KeyRival struct {
	KeyRowID  string
	RivalID   string
	RivalName string
}

// RivalH2HStatus is the result kind of the secondary head-to-head lookup.
type RivalH2HStatus int

const (
	RivalH2HNotFound RivalH2HStatus = iota
	RivalH2HFound
	RivalH2HError
)

// RivalH2H is the match between the two rivals found on the secondary h2h page.
type RivalH2H struct {
	Status   RivalH2HStatus
	Score    string // "a*b"
	Handicap string // raw handicap text
	HomeTeam string
	Reason   string // set when Status is RivalH2HError
}
