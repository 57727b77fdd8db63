package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the emission archive. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS emission_records (
    id              BIGSERIAL PRIMARY KEY,
    phone           TEXT NOT NULL,
    company_id      TEXT NOT NULL,
    company_name    TEXT NOT NULL DEFAULT '',
    document_type   TEXT NOT NULL,
    full_number     TEXT NOT NULL,
    client_name     TEXT NOT NULL DEFAULT '',
    client_document TEXT NOT NULL DEFAULT '',
    total           NUMERIC(12,2) NOT NULL,
    currency        TEXT NOT NULL DEFAULT 'PEN',
    lines           JSONB NOT NULL DEFAULT '[]',
    emitted_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_emission_records_company ON emission_records(company_id, emitted_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Invoice lines are
// serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the emission_records table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Append implements [Store.Append].
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	linesJSON, err := json.Marshal(emptyLines(rec.Lines))
	if err != nil {
		return fmt.Errorf("audit: marshal lines: %w", err)
	}

	const query = `
		INSERT INTO emission_records (
			phone, company_id, company_name, document_type, full_number,
			client_name, client_document, total, currency, lines, emitted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`

	err = s.db.QueryRow(ctx, query,
		rec.Phone, rec.CompanyID, rec.CompanyName, rec.DocumentType, rec.FullNumber,
		rec.ClientName, rec.ClientDocument, rec.Total, defaultCurrency(rec.Currency),
		linesJSON, rec.EmittedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent implements [Store.Recent].
func (s *PostgresStore) Recent(ctx context.Context, companyID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT id, phone, company_id, company_name, document_type, full_number,
		       client_name, client_document, total, currency, lines, emitted_at
		FROM emission_records
		WHERE company_id = $1
		ORDER BY emitted_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var linesJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.Phone, &rec.CompanyID, &rec.CompanyName, &rec.DocumentType,
			&rec.FullNumber, &rec.ClientName, &rec.ClientDocument, &rec.Total,
			&rec.Currency, &linesJSON, &rec.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: recent scan: %w", err)
		}
		if err := json.Unmarshal(linesJSON, &rec.Lines); err != nil {
			return nil, fmt.Errorf("audit: unmarshal lines: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return records, nil
}

// emptyLines ensures JSON marshalling produces "[]" instead of "null".
func emptyLines(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	return lines
}

func defaultCurrency(c string) string {
	if c == "" {
		return "PEN"
	}
	return c
}
