package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"logferry/pkg/model"
)

// Columns map 1:1 to model.Entry fields.
var postgresColumns = []string{"LogDate", "Pid", "Tid", "Level", "Component", "Content"}

// PostgresSink bulk-loads each batch with a single COPY ... FROM STDIN inside
// a transaction, so a batch is either fully committed or not at all.
type PostgresSink struct {
	db      *sql.DB
	table   string
	timeout time.Duration
}

func NewPostgresSink(db *sql.DB, table string, timeout time.Duration) *PostgresSink {
	return &PostgresSink{db: db, table: table, timeout: timeout}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// EnsureTable creates the destination table when it does not exist yet.
func (p *PostgresSink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"LogDate" CHAR(18) NOT NULL,
	"Pid" SMALLINT NOT NULL,
	"Tid" SMALLINT NOT NULL,
	"Level" CHAR(1) NOT NULL,
	"Component" TEXT NOT NULL,
	"Content" TEXT NOT NULL
)`, pq.QuoteIdentifier(p.table))
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", p.table, err)
	}
	return nil
}

func (p *PostgresSink) WriteBatch(ctx context.Context, batch *model.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(p.table, postgresColumns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for i := range batch.Entries {
		e := &batch.Entries[i]
		if _, err := stmt.ExecContext(ctx, pgText(e.LogDate), e.Pid, e.Tid, pgText(string(e.Level)), pgText(e.Component), pgText(e.Content)); err != nil {
			stmt.Close()
			return fmt.Errorf("copy row %d: %w", i, err)
		}
	}
	// An Exec without arguments flushes the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	return tx.Commit()
}

// pgText drops NUL bytes, which TEXT columns cannot store.
func pgText(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
