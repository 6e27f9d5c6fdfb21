package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"mxshs/h2hcrawler/src/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

type sheetsAPI struct {
	mu        sync.Mutex
	batches   []gsheets.BatchUpdateSpreadsheetRequest
	updates   map[string]gsheets.ValueRange
	inputOpts []string
	values    [][]interface{}
	status    int
}

func (a *sheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != 0 {
		w.WriteHeader(a.status)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v4/spreadsheets/sid":
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":7,"title":"Locales","gridProperties":{"rowCount":3,"columnCount":17}}}]}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheets.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		a.batches = append(a.batches, req)
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid","replies":[{"addSheet":{"properties":{"sheetId":9,"title":"Visitantes"}}}]}`))
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/values/"):
		var vr gsheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := r.URL.Path[strings.Index(r.URL.Path, "/values/")+len("/values/"):]
		a.updates[rng] = vr
		a.inputOpts = append(a.inputOpts, r.URL.Query().Get("valueInputOption"))
		_, _ = w.Write([]byte(`{"spreadsheetId":"sid"}`))
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/values/"):
		body, _ := json.Marshal(gsheets.ValueRange{MajorDimension: "ROWS", Values: a.values})
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	}
}

func newTestSheets(t *testing.T, api *sheetsAPI) *GoogleSheets {
	t.Helper()
	api.updates = make(map[string]gsheets.ValueRange)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	g, err := newGoogleSheets(context.Background(), "sid",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return g
}

func TestGoogleSheets_EnsureSheet(t *testing.T) {
	api := &sheetsAPI{}
	g := newTestSheets(t, api)
	ctx := context.Background()

	created, err := g.EnsureSheet(ctx, "Locales", 120, 17)
	require.NoError(t, err)
	assert.False(t, created)

	created, err = g.EnsureSheet(ctx, "Visitantes", 120, 17)
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, api.batches, 1)
	add := api.batches[0].Requests[0].AddSheet
	require.NotNil(t, add)
	assert.Equal(t, "Visitantes", add.Properties.Title)
	assert.Equal(t, int64(120), add.Properties.GridProperties.RowCount)
	assert.Equal(t, int64(17), add.Properties.GridProperties.ColumnCount)
}

func TestGoogleSheets_HeaderAndRowCount(t *testing.T) {
	api := &sheetsAPI{values: [][]interface{}{{"AH_H2H_V", "AH_Act"}, {"x"}, {"y"}}}
	g := newTestSheets(t, api)
	ctx := context.Background()

	header, err := g.Header(ctx, "Locales")
	require.NoError(t, err)
	assert.Equal(t, []string{"AH_H2H_V", "AH_Act"}, header)

	n, err := g.RowCount(ctx, "Locales")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGoogleSheets_WriteRowsGrowsGrid(t *testing.T) {
	api := &sheetsAPI{}
	g := newTestSheets(t, api)

	rows := make([]domain.OutputRow, 3)
	rows[0].Fields[0] = domain.Number("-0.25")
	rows[0].Fields[1] = domain.Text("2*1")
	require.NoError(t, g.WriteRows(context.Background(), "Locales", 2, rows))

	require.Len(t, api.batches, 1)
	app := api.batches[0].Requests[0].AppendDimension
	require.NotNil(t, app)
	assert.Equal(t, int64(7), app.SheetId)
	assert.Equal(t, "ROWS", app.Dimension)
	assert.Equal(t, int64(1), app.Length)

	vr, ok := api.updates["'Locales'!A2"]
	require.True(t, ok, "updates: %v", api.updates)
	require.Len(t, vr.Values, 3)
	assert.Equal(t, "'-0,25", vr.Values[0][0])
	assert.Equal(t, "2*1", vr.Values[0][1])
	assert.Equal(t, []string{"USER_ENTERED"}, api.inputOpts)
}

func TestGoogleSheets_RateLimited(t *testing.T) {
	api := &sheetsAPI{status: http.StatusTooManyRequests}
	g := newTestSheets(t, api)

	_, err := g.RowCount(context.Background(), "Locales")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 429}), ErrRateLimited)
	assert.ErrorIs(t, classify(&googleapi.Error{Code: 500}), ErrAPI)
	assert.NoError(t, classify(nil))
	plain := context.Canceled
	assert.Equal(t, plain, classify(plain))
}

func TestQuoteSheet(t *testing.T) {
	assert.Equal(t, "'Locales'", quoteSheet("Locales"))
	assert.Equal(t, "'O''Neil'", quoteSheet("O'Neil"))
}
