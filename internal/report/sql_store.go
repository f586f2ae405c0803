package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const reportTable = "report_files"

// SQLStore keeps files as rows (run_id, path) in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string

	schemaOnce sync.Once
	schemaErr  error
}

// OpenSQLStore opens a database for the given dialect ("postgres" uses the
// pgx driver, "sqlite3" uses modernc sqlite).
func OpenSQLStore(dialectName, dsn string) (*SQLStore, error) {
	driver, err := driverFor(dialectName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("report store: open %s: %w", dialectName, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("report store: ping %s: %w", dialectName, err)
	}
	if dialectName == dialect.SQLite {
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db, dialectName), nil
}

func NewSQLStore(db *sql.DB, dialectName string) *SQLStore {
	return &SQLStore{db: db, dialect: dialectName}
}

func driverFor(d string) (string, error) {
	switch d {
	case dialect.Postgres:
		return "pgx", nil
	case dialect.SQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("report store: unsupported sql dialect %q", d)
	}
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) builder() *entsql.DialectBuilder { return entsql.Dialect(s.dialect) }

// schemaDDL creates the file table. Only the blob type differs per dialect.
func schemaDDL(d string) string {
	blob := "BYTEA"
	if d == dialect.SQLite {
		blob = "BLOB"
	}
	return `CREATE TABLE IF NOT EXISTS ` + reportTable + ` (
	run_id     TEXT   NOT NULL,
	path       TEXT   NOT NULL,
	content    ` + blob + ` NOT NULL,
	size       BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (run_id, path)
)`
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schemaDDL(s.dialect))
	})
	if s.schemaErr != nil {
		return fmt.Errorf("report store: ensure schema: %w", s.schemaErr)
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, runID, p string, content []byte) error {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}
	q, args := s.builder().Insert(reportTable).
		Columns("run_id", "path", "content", "size", "updated_at").
		Values(runID, p, content, int64(len(content)), time.Now().UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("run_id", "path"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	_, err = s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *SQLStore) Get(ctx context.Context, runID, p string) ([]byte, error) {
	runID, p, err := cleanKey(runID, p)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, args := s.builder().Select("content").From(entsql.Table(reportTable)).
		Where(entsql.And(entsql.EQ("run_id", runID), entsql.EQ("path", p))).
		Query()
	var content []byte
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return content, err
}

func (s *SQLStore) GetURL(context.Context, string, string) (string, error) {
	return "", nil
}

func (s *SQLStore) List(ctx context.Context, runID string) ([]string, error) {
	runID, err := cleanRunID(runID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, args := s.builder().Select("path").From(entsql.Table(reportTable)).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("path").
		Query()
	return s.strings(ctx, q, args)
}

func (s *SQLStore) Runs(ctx context.Context) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, args := s.builder().Select("run_id").From(entsql.Table(reportTable)).
		Distinct().
		OrderBy("run_id").
		Query()
	return s.strings(ctx, q, args)
}

func (s *SQLStore) strings(ctx context.Context, q string, args []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0, 8)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
