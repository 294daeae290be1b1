package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-best-rank/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batches (
	date       TEXT PRIMARY KEY,
	written_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	date          TEXT    NOT NULL REFERENCES batches(date) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	collected_at  TEXT    NOT NULL,
	depth1_code   TEXT    NOT NULL,
	depth1_name   TEXT    NOT NULL,
	depth2_code   TEXT    NOT NULL,
	depth2_name   TEXT    NOT NULL,
	rank          INTEGER NOT NULL,
	brand_name    TEXT    NOT NULL,
	product_name  TEXT    NOT NULL,
	sale_price    INTEGER NOT NULL,
	discount_rate INTEGER NOT NULL,
	product_url   TEXT    NOT NULL,
	PRIMARY KEY (date, seq)
);
`

// SQLiteStore keeps batches in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:" in tests.
func OpenSQLite(path string, loc *time.Location) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, persistErr("open", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, persistErr("open", path, fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, persistErr("open", path, fmt.Errorf("set pragma: %w", err))
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, persistErr("open", path, fmt.Errorf("apply schema: %w", err))
	}

	if loc == nil {
		loc = time.Local
	}
	return &SQLiteStore{db: db, loc: loc, now: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Write replaces the batch for date inside one transaction.
func (s *SQLiteStore) Write(ctx context.Context, date time.Time, records []models.ProductRecord) error {
	key := models.DateKey(models.DateOf(date.In(s.loc)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("write", key, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE date = ?`, key); err != nil {
		return persistErr("write", key, fmt.Errorf("delete records: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE date = ?`, key); err != nil {
		return persistErr("write", key, fmt.Errorf("delete batch: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO batches (date, written_at) VALUES (?, ?)`,
		key, s.now().Format(time.RFC3339)); err != nil {
		return persistErr("write", key, fmt.Errorf("insert batch: %w", err))
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (
		date, seq, collected_at, depth1_code, depth1_name, depth2_code, depth2_name,
		rank, brand_name, product_name, sale_price, discount_rate, product_url
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistErr("write", key, fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, key, i, r.CollectedAt.Format(time.RFC3339Nano),
			r.Depth1Code, r.Depth1Name, r.Depth2Code, r.Depth2Name,
			r.Rank, r.BrandName, r.ProductName, r.SalePrice, r.DiscountRate, r.ProductURL); err != nil {
			return persistErr("write", key, fmt.Errorf("insert record %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("write", key, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Read loads the batch for date, or ErrNotFound.
func (s *SQLiteStore) Read(ctx context.Context, date time.Time) (models.DailyBatch, error) {
	day := models.DateOf(date.In(s.loc))
	key := models.DateKey(day)

	var writtenAt string
	err := s.db.QueryRowContext(ctx, `SELECT written_at FROM batches WHERE date = ?`, key).Scan(&writtenAt)
	if err == sql.ErrNoRows {
		return models.DailyBatch{}, ErrNotFound
	}
	if err != nil {
		return models.DailyBatch{}, persistErr("read", key, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT collected_at, depth1_code, depth1_name, depth2_code, depth2_name,
		rank, brand_name, product_name, sale_price, discount_rate, product_url
		FROM records WHERE date = ? ORDER BY seq`, key)
	if err != nil {
		return models.DailyBatch{}, persistErr("read", key, err)
	}
	defer rows.Close()

	records := []models.ProductRecord{}
	for rows.Next() {
		var (
			r         models.ProductRecord
			collected string
		)
		if err := rows.Scan(&collected, &r.Depth1Code, &r.Depth1Name, &r.Depth2Code, &r.Depth2Name,
			&r.Rank, &r.BrandName, &r.ProductName, &r.SalePrice, &r.DiscountRate, &r.ProductURL); err != nil {
			return models.DailyBatch{}, persistErr("read", key, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, collected)
		if err != nil {
			return models.DailyBatch{}, persistErr("read", key, fmt.Errorf("collected_at: %w", err))
		}
		r.Date = day
		r.CollectedAt = ts.In(s.loc)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return models.DailyBatch{}, persistErr("read", key, err)
	}
	return models.DailyBatch{Date: day, Records: records}, nil
}

// ReadRange returns the existing batches between start and end inclusive.
func (s *SQLiteStore) ReadRange(ctx context.Context, start, end time.Time) ([]models.DailyBatch, error) {
	return readRange(ctx, s, start.In(s.loc), end.In(s.loc))
}
