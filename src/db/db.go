package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"mxshs/h2hcrawler/src/domain"
	"mxshs/h2hcrawler/src/sheets"

	pq "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	sheetsTable = pq.QuoteIdentifier("sheets")
	rowsTable   = pq.QuoteIdentifier("sheet_rows")
)

// dialect covers the differences between the Postgres and SQLite backends.
type dialect struct {
	driver string
	bind   func(n int) string
	// array wraps a string slice for use as a query argument or scan target.
	array func(a *[]string) any
}

var postgres = dialect{
	driver: "postgres",
	bind:   func(n int) string { return fmt.Sprintf("$%d", n) },
	array:  func(a *[]string) any { return pq.Array(a) },
}

var sqlite = dialect{
	driver: "sqlite",
	bind:   func(int) string { return "?" },
	array:  func(a *[]string) any { return &jsonCells{a: a} },
}

// jsonCells stores a string slice as a JSON array in a TEXT column.
type jsonCells struct {
	a *[]string
}

func (c *jsonCells) Value() (driver.Value, error) {
	if *c.a == nil {
		return nil, nil
	}
	b, err := json.Marshal(*c.a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *jsonCells) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c.a = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), c.a)
	case []byte:
		return json.Unmarshal(v, c.a)
	}
	return fmt.Errorf("cannot scan %T into cells", src)
}

// DB is a sheets.Tabular over a SQL database. Each named sheet is a row in
// the sheets table; its rows live in sheet_rows keyed by row number.
type DB struct {
	db      *sql.DB
	dialect dialect
}

// GetDB opens the backend ("postgres" or "sqlite") at dsn and creates the
// schema when missing.
func GetDB(backend, dsn string) (*DB, error) {
	var d dialect
	switch backend {
	case "postgres":
		d = postgres
	case "sqlite":
		d = sqlite
	default:
		return nil, fmt.Errorf("unknown sql backend %q", backend)
	}

	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.driver == "sqlite" {
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	db := &DB{db: conn, dialect: d}
	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) createTables() error {
	cellsType := "TEXT"
	if db.dialect.driver == "postgres" {
		cellsType = "TEXT[]"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name         TEXT PRIMARY KEY,
			row_capacity INTEGER NOT NULL,
			col_capacity INTEGER NOT NULL,
			header       %s
		)`, sheetsTable, cellsType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			sheet    TEXT NOT NULL,
			row_num  INTEGER NOT NULL,
			match_id BIGINT NOT NULL,
			cells    %s NOT NULL,
			kinds    %s NOT NULL,
			PRIMARY KEY (sheet, row_num)
		)`, rowsTable, cellsType, cellsType),
	}
	for _, stmt := range stmts {
		if _, err := db.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) EnsureSheet(ctx context.Context, name string, rows, cols int) (bool, error) {
	b := db.dialect.bind
	res, err := db.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, row_capacity, col_capacity)
		VALUES (%s, %s, %s) ON CONFLICT (name) DO NOTHING`, sheetsTable, b(1), b(2), b(3)),
		name, rows, cols,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) Header(ctx context.Context, name string) ([]string, error) {
	var header []string
	err := db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT header FROM %s WHERE name = %s`, sheetsTable, db.dialect.bind(1)),
		name,
	).Scan(db.dialect.array(&header))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", sheets.ErrSheetNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return header, nil
}

func (db *DB) WriteHeader(ctx context.Context, name string, header []string) error {
	b := db.dialect.bind
	res, err := db.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET header = %s WHERE name = %s`, sheetsTable, b(1), b(2)),
		db.dialect.array(&header), name,
	)
	if err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", sheets.ErrSheetNotFound, name)
	}
	return nil
}

func (db *DB) RowCount(ctx context.Context, name string) (int, error) {
	header, err := db.Header(ctx, name)
	if err != nil {
		return 0, err
	}

	var last int
	err = db.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(row_num), 0) FROM %s WHERE sheet = %s`, rowsTable, db.dialect.bind(1)),
		name,
	).Scan(&last)
	if err != nil {
		return 0, err
	}

	if len(header) > 0 && last < 1 {
		last = 1
	}
	return last, nil
}

func (db *DB) WriteRows(ctx context.Context, name string, startRow int, rows []domain.OutputRow) error {
	b := db.dialect.bind

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (sheet, row_num, match_id, cells, kinds)
		VALUES (%s, %s, %s, %s, %s)
		ON CONFLICT (sheet, row_num) DO UPDATE
		SET match_id = excluded.match_id, cells = excluded.cells, kinds = excluded.kinds`,
		rowsTable, b(1), b(2), b(3), b(4), b(5),
	))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		cells, kinds := r.Values(), r.Kinds()
		if _, err := stmt.ExecContext(ctx, name, startRow+i, int64(r.MatchID),
			db.dialect.array(&cells), db.dialect.array(&kinds)); err != nil {
			return fmt.Errorf("failed to insert row %d of %s: %w", startRow+i, name, err)
		}
	}

	lastRow := startRow + len(rows) - 1
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET row_capacity = %s WHERE name = %s AND row_capacity < %s`,
			sheetsTable, b(1), b(2), b(3)),
		lastRow, name, lastRow,
	); err != nil {
		return fmt.Errorf("failed to grow sheet %s: %w", name, err)
	}

	return tx.Commit()
}

// StoredRow is one row read back from a sheet. Kinds holds "text" or
// "number" per cell.
type StoredRow struct {
	RowNum  int
	MatchID domain.MatchID
	Cells   []string
	Kinds   []string
}

// Rows returns the data rows of a sheet in row order.
func (db *DB) Rows(ctx context.Context, name string) ([]StoredRow, error) {
	q, err := db.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT row_num, match_id, cells, kinds FROM %s WHERE sheet = %s ORDER BY row_num`,
			rowsTable, db.dialect.bind(1)),
		name,
	)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	var out []StoredRow
	for q.Next() {
		var (
			r  StoredRow
			id int64
		)
		if err := q.Scan(&r.RowNum, &id, db.dialect.array(&r.Cells), db.dialect.array(&r.Kinds)); err != nil {
			return nil, err
		}
		r.MatchID = domain.MatchID(id)
		out = append(out, r)
	}

	return out, q.Err()
}
