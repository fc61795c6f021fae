// Package store implements domain.CRMStore on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// Fixed-width UTC layout so created_at compares correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// defaultStageSets seeds deal_stage_sets on first open.
var defaultStageSets = map[domain.DealKind][]string{
	domain.DealKindSales:       {"Lead", "Qualified", "Proposal", "Won", "Lost"},
	domain.DealKindProcurement: {"Sourcing", "RFQ", "Negotiation", "Ordered", "Received"},
	domain.DealKindPartnership: {"Prospect", "Evaluation", "Agreement", "Active", "Closed"},
}

// SQLiteStore implements domain.CRMStore.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.CRMStore = (*SQLiteStore)(nil)

// Open opens (or creates) the database at dbPath, migrates the schema and
// seeds the stage sets when the table is empty.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open crm db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open crm db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate crm db: %w", err)
	}
	if err := seedStages(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed stage sets: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// dsn applies the pragmas on every pooled connection; a PRAGMA statement
// would only reach the connection that ran it.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS companies (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			owner_id   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS contacts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL DEFAULT '',
			last_name  TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL DEFAULT '',
			phone      TEXT NOT NULL DEFAULT '',
			company_id INTEGER REFERENCES companies(id),
			owner_id   TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS deals (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			name                  TEXT NOT NULL,
			company_id            INTEGER NOT NULL REFERENCES companies(id),
			contact_id            INTEGER REFERENCES contacts(id),
			vendor_company_id     INTEGER REFERENCES companies(id),
			deal_kind             TEXT NOT NULL DEFAULT '',
			stage                 TEXT NOT NULL,
			amount                REAL,
			cost                  REAL,
			expected_closing_date TEXT NOT NULL DEFAULT '',
			owner_id              TEXT NOT NULL DEFAULT '',
			created_at            TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS deals_created_at ON deals(created_at);
		CREATE TABLE IF NOT EXISTS notes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL CHECK (entity_type IN ('contact', 'deal')),
			entity_id   INTEGER NOT NULL,
			text        TEXT NOT NULL,
			author_id   TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS notes_entity ON notes(entity_type, entity_id);
		CREATE TABLE IF NOT EXISTS deal_stage_sets (
			deal_kind TEXT NOT NULL,
			stage     TEXT NOT NULL,
			position  INTEGER NOT NULL,
			PRIMARY KEY (deal_kind, position)
		);
	`)
	return err
}

func seedStages(ctx context.Context, db *sql.DB) error {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deal_stage_sets").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, kind := range domain.DealKinds {
		for pos, stage := range defaultStageSets[kind] {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO deal_stage_sets (deal_kind, stage, position) VALUES (?, ?, ?)",
				string(kind), stage, pos,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the connection for administrative commands and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) stamp(t time.Time) (time.Time, string) {
	if t.IsZero() {
		t = s.now()
	}
	t = t.UTC()
	return t, t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// likePattern escapes LIKE wildcards in q and wraps it for a contains match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}

func storeErr(op string, err error) error {
	return domain.NewSubSystemError("store", op, domain.ErrStore, err.Error())
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

func startSpan(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := tracer.StartSpan(ctx, "store."+op)
	return ctx, func(err error) { tracer.Finish(span, err) }
}
