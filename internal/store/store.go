package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// ReportRun is one persisted report generation.
type ReportRun struct {
	ID            string          `json:"id"`
	Company       string          `json:"company"`
	Directive     string          `json:"directive,omitempty"`
	Report        json.RawMessage `json:"report"`
	LowConfidence bool            `json:"low_confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RunStore keeps report-run history in Postgres. Optional; a deployment
// without DATABASE_URL simply runs without history.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &RunStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RunStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS report_runs (
    id             UUID PRIMARY KEY,
    company        TEXT NOT NULL,
    directive      TEXT NOT NULL DEFAULT '',
    report         JSONB NOT NULL,
    low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS report_runs_company_idx ON report_runs (company, created_at DESC);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save persists one run and returns its id.
func (s *RunStore) Save(ctx context.Context, company, directive string, report json.RawMessage, lowConfidence bool) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO report_runs (id, company, directive, report, low_confidence) VALUES ($1, $2, $3, $4, $5)`,
		id, company, directive, []byte(report), lowConfidence)
	if err != nil {
		return "", fmt.Errorf("insert report run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first, optionally filtered
// by company.
func (s *RunStore) List(ctx context.Context, company string, limit int) ([]ReportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT id, company, directive, report, low_confidence, created_at FROM report_runs`
	args := []interface{}{}
	if company != "" {
		query += ` WHERE company = $1`
		args = append(args, company)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	defer rows.Close()

	var out []ReportRun
	for rows.Next() {
		var r ReportRun
		var report []byte
		if err := rows.Scan(&r.ID, &r.Company, &r.Directive, &report, &r.LowConfidence, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report run: %w", err)
		}
		r.Report = report
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RunStore) Close() error { return s.db.Close() }
