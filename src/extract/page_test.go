package extract

import (
	"testing"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeagueInfo(t *testing.T) {
	doc := mustParse(t, `<script>var other = 1;</script>`,
		testutil.MatchInfo("101", "202", "36", "Melbourne City", "Sydney FC", "A-League"))

	lc, ok := LeagueInfo(doc)
	require.True(t, ok)
	assert.Equal(t, domain.LeagueContext{
		HomeID: "101", AwayID: "202", LeagueID: "36",
		HomeName: "Melbourne City", AwayName: "Sydney FC", LeagueName: "A-League",
	}, lc)
}

func TestLeagueInfo_Incomplete(t *testing.T) {
	doc := mustParse(t, testutil.MatchInfo("101", "", "36", "Melbourne City", "Sydney FC", ""))
	_, ok := LeagueInfo(doc)
	assert.False(t, ok)

	doc = mustParse(t, `<div>no script</div>`)
	_, ok = LeagueInfo(doc)
	assert.False(t, ok)
}

func TestCurrentOdds(t *testing.T) {
	doc := mustParse(t, testutil.OddsRow("0/0.5", "2.5/3"))
	ah, goals := CurrentOdds(doc)
	assert.Equal(t, "0/0.5", ah)
	assert.Equal(t, "2.5/3", goals)

	doc = mustParse(t, `<table><tr id="tr_o_1_8"><td>1</td></tr></table>`)
	ah, goals = CurrentOdds(doc)
	assert.Equal(t, "?", ah)
	assert.Equal(t, "?", goals)
}

func TestFinalScore(t *testing.T) {
	assert.Equal(t, "3*1", FinalScore(mustParse(t, testutil.FinalScore("3", "1"))))
	assert.Equal(t, "?*?", FinalScore(mustParse(t, `<div id="mScore"></div>`)))
}

func TestKeyAndRivalIDs(t *testing.T) {
	doc := mustParse(t,
		testutil.Table(HomeTable,
			testutil.Row{ID: 1, Index: "900", League: "L1", Home: "Home", Away: "R1", HomeID: "1", AwayID: "77"},
			testutil.Row{ID: 2, Index: "901", League: "L1", Versus: true, Home: "Home", Away: "Rival Home", HomeID: "1", AwayID: "88"},
		),
		testutil.Table(AwayTable,
			testutil.Row{ID: 1, Index: "950", League: "L1", Versus: true, Home: "Rival Away", Away: "Guest", HomeID: "99", AwayID: "2"},
		),
	)

	kr, ok := KeyAndRivalIDs(doc, HomeTable)
	require.True(t, ok)
	assert.Equal(t, domain.KeyRival{KeyRowID: "901", RivalID: "88", RivalName: "Rival Home"}, kr)

	kr, ok = KeyAndRivalIDs(doc, AwayTable)
	require.True(t, ok)
	assert.Equal(t, domain.KeyRival{KeyRowID: "950", RivalID: "99", RivalName: "Rival Away"}, kr)

	_, ok = KeyAndRivalIDs(doc, H2HTable)
	assert.False(t, ok)
}

func TestTeamStatsSummary(t *testing.T) {
	doc := mustParse(t,
		testutil.StatsTable("team-table-home",
			[]string{"FT", "20", "10", "5", "5", "30", "20", "35", "3"},
			[]string{"Home", "10", "6", "2", "2", "18", "8"}),
		testutil.StatsTable("team-table-guest",
			[]string{"FT", "20"},
			[]string{"Away"}),
	)

	assert.Equal(t, "🏆Rk:3 🏠Home\n🌍T:20|10/5/5|30-20\n🏡L:10|6/2/2|18-8",
		TeamStatsSummary(doc, HomeStatsTable, true))
	assert.Equal(t, "Stats V: N/A", TeamStatsSummary(doc, AwayStatsTable, false))
	assert.Equal(t, "Stats L: N/A", TeamStatsSummary(doc, "table.missing", true))
}

func TestFindRivalH2H(t *testing.T) {
	doc := mustParse(t, testutil.Table(AwayTable,
		testutil.Row{ID: 1, League: "L1", Home: "Other", Away: "Rival Away", HomeID: "5", AwayID: "99", Score: "4-0"},
		testutil.Row{ID: 2, League: "L1", Home: "Rival Away", Away: "Rival Home", HomeID: "99", AwayID: "88", Score: ""},
		testutil.Row{ID: 3, League: "L1", Home: "Rival Away", Away: "Rival Home", HomeID: "99", AwayID: "88", Score: "1-2(0-1)", Handicap: "-0.5/-1"},
	))

	h := FindRivalH2H(doc, "88", "99")
	require.Equal(t, domain.RivalH2HFound, h.Status)
	assert.Equal(t, "1*2", h.Score)
	assert.Equal(t, "-0.5/-1", h.Handicap)
	assert.Equal(t, "Rival Away", h.HomeTeam)

	assert.Equal(t, "1*2/-0.75 (RV-RL)", FormatRivalH2H(h, "Rival Home"))
	assert.Equal(t, "1*2/-0.75 (RL-RV)", FormatRivalH2H(h, "rival away"))

	miss := FindRivalH2H(doc, "88", "12")
	assert.Equal(t, domain.RivalH2HNotFound, miss.Status)
	assert.Equal(t, "-", FormatRivalH2H(miss, "Rival Home"))

	broken := FindRivalH2H(mustParse(t, `<p>empty</p>`), "88", "99")
	assert.Equal(t, domain.RivalH2HError, broken.Status)
}
