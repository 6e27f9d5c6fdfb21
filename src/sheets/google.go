package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"mxshs/h2hcrawler/src/config"
	"mxshs/h2hcrawler/src/domain"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const lastColumn = "Q"

// GoogleSheets is a Tabular backed by one Google spreadsheet.
type GoogleSheets struct {
	svc           *gsheets.Service
	spreadsheetID string

	mu    sync.Mutex
	grids map[string]grid
}

type grid struct {
	id   int64
	rows int64
}

// NewGoogleSheets authenticates with the service account credentials file
// from cfg. Extra options are appended after the credentials.
func NewGoogleSheets(ctx context.Context, cfg config.Sink, opts ...option.ClientOption) (*GoogleSheets, error) {
	base := []option.ClientOption{
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	}
	return newGoogleSheets(ctx, cfg.SpreadsheetID, append(base, opts...)...)
}

func newGoogleSheets(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*GoogleSheets, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheets{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		grids:         make(map[string]grid),
	}, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// classify maps API errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %v", ErrAPI, err)
	}
	return err
}

func (g *GoogleSheets) lookup(ctx context.Context, name string) (grid, bool, error) {
	g.mu.Lock()
	cached, ok := g.grids[name]
	g.mu.Unlock()
	if ok {
		return cached, true, nil
	}

	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return grid{}, false, classify(err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties == nil {
			continue
		}
		gr := grid{id: s.Properties.SheetId}
		if s.Properties.GridProperties != nil {
			gr.rows = s.Properties.GridProperties.RowCount
		}
		g.grids[s.Properties.Title] = gr
	}
	gr, ok := g.grids[name]
	return gr, ok, nil
}

func (g *GoogleSheets) EnsureSheet(ctx context.Context, name string, rows, cols int) (bool, error) {
	if _, ok, err := g.lookup(ctx, name); err != nil || ok {
		return false, err
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{
					Title: name,
					GridProperties: &gsheets.GridProperties{
						RowCount:    int64(rows),
						ColumnCount: int64(cols),
					},
				},
			},
		}},
	}
	resp, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return false, classify(err)
	}

	gr := grid{rows: int64(rows)}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		gr.id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	g.mu.Lock()
	g.grids[name] = gr
	g.mu.Unlock()

	return true, nil
}

func (g *GoogleSheets) Header(ctx context.Context, name string) ([]string, error) {
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, quoteSheet(name)+"!A1:Z1").Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	header := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		header[i] = fmt.Sprint(v)
	}
	return header, nil
}

func (g *GoogleSheets) WriteHeader(ctx context.Context, name string, header []string) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, quoteSheet(name)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return classify(err)
}

func (g *GoogleSheets) RowCount(ctx context.Context, name string) (int, error) {
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, quoteSheet(name)+"!A:"+lastColumn).Context(ctx).Do()
	if err != nil {
		return 0, classify(err)
	}
	return len(vr.Values), nil
}

func (g *GoogleSheets) WriteRows(ctx context.Context, name string, startRow int, rows []domain.OutputRow) error {
	if err := g.ensureRows(ctx, name, int64(startRow+len(rows)-1)); err != nil {
		return err
	}

	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = cells(r)
	}
	vr := &gsheets.ValueRange{Values: values}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, fmt.Sprintf("%s!A%d", quoteSheet(name), startRow), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return classify(err)
}

// ensureRows grows the sheet grid so that lastRow is addressable.
func (g *GoogleSheets) ensureRows(ctx context.Context, name string, lastRow int64) error {
	gr, ok, err := g.lookup(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	if gr.rows >= lastRow {
		return nil
	}

	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AppendDimension: &gsheets.AppendDimensionRequest{
				SheetId:   gr.id,
				Dimension: "ROWS",
				Length:    lastRow - gr.rows,
			},
		}},
	}
	if _, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return classify(err)
	}

	g.mu.Lock()
	gr.rows = lastRow
	g.grids[name] = gr
	g.mu.Unlock()
	return nil
}

// cells renders a row for USER_ENTERED input. Numeric cells are sent as
// quoted text with a decimal comma so the spreadsheet neither reformats
// nor rounds them.
func cells(r domain.OutputRow) []interface{} {
	out := make([]interface{}, len(r.Fields))
	for i, f := range r.Fields {
		if f.Kind == domain.FieldNumber {
			out[i] = "'" + strings.ReplaceAll(f.Value, ".", ",")
			continue
		}
		out[i] = f.Value
	}
	return out
}
