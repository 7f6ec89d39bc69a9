package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/domain"
	"github.com/hamed0406/subcheck/internal/repo"
)

var _ repo.ScanStore = (*Store)(nil)

// Schema is applied by Migrate; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS scans (
  id          TEXT PRIMARY KEY,
  domain      TEXT NOT NULL DEFAULT '',
  hostnames   TEXT[] NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  finished_at TIMESTAMPTZ NULL,
  processed   INTEGER NOT NULL DEFAULT 0,
  total       INTEGER NOT NULL DEFAULT 0,
  completion  TEXT NULL
);

CREATE TABLE IF NOT EXISTS scan_results (
  scan_id  TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  host     TEXT NOT NULL,
  status   TEXT NOT NULL,
  reason   TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (scan_id, position)
);

CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans (created_at DESC);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_schema_ready")
	return nil
}

func (s *Store) Create(ctx context.Context, sc *domain.Scan) error {
	if sc.ID == "" {
		sc.ID = domain.ScanID(uuid.NewString())
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	hosts := sc.Hostnames
	if hosts == nil {
		hosts = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scans (id, domain, hostnames, created_at, processed, total)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(sc.ID), sc.Domain, hosts, sc.CreatedAt, sc.Progress.Processed, sc.Progress.Total,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const scanColumns = `id, domain, hostnames, created_at, finished_at, processed, total, completion`

func scanRow(row pgx.Row) (*domain.Scan, error) {
	var (
		id         string
		sc         domain.Scan
		completion *string
	)
	if err := row.Scan(&id, &sc.Domain, &sc.Hostnames, &sc.CreatedAt, &sc.FinishedAt,
		&sc.Progress.Processed, &sc.Progress.Total, &completion); err != nil {
		return nil, err
	}
	sc.ID = domain.ScanID(id)
	if completion != nil {
		sc.Outcome = &domain.RunOutcome{
			Results:    []domain.ProbeResult{},
			Completion: domain.Completion(*completion),
		}
	}
	return &sc, nil
}

func (s *Store) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	sc, err := scanRow(s.pool.QueryRow(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = $1`, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("get scan: %w", err)
	}
	if sc.Outcome != nil {
		if err := s.loadResults(ctx, map[domain.ScanID]*domain.Scan{sc.ID: sc}); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Scan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scanColumns+`
		   FROM scans
		  ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []*domain.Scan
	finished := make(map[domain.ScanID]*domain.Scan)
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, sc)
		if sc.Outcome != nil {
			finished[sc.ID] = sc
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSummaries(ctx, finished); err != nil {
		return nil, err
	}
	return out, nil
}

// loadSummaries sets Summary on finished scans from per-status counts.
func (s *Store) loadSummaries(ctx context.Context, scans map[domain.ScanID]*domain.Scan) error {
	if len(scans) == 0 {
		return nil
	}
	ids := make([]string, 0, len(scans))
	for id := range scans {
		ids = append(ids, string(id))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT scan_id, status, count(*)
		   FROM scan_results
		  WHERE scan_id = ANY($1)
		  GROUP BY scan_id, status`, ids)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}
	defer rows.Close()

	type counts struct{ up, down, unknown int }
	byScan := make(map[domain.ScanID]*counts, len(scans))
	for rows.Next() {
		var (
			scanID string
			status string
			n      int
		)
		if err := rows.Scan(&scanID, &status, &n); err != nil {
			return fmt.Errorf("scan summary: %w", err)
		}
		c := byScan[domain.ScanID(scanID)]
		if c == nil {
			c = &counts{}
			byScan[domain.ScanID(scanID)] = c
		}
		switch domain.Status(status) {
		case domain.StatusUp:
			c.up += n
		case domain.StatusDown:
			c.down += n
		default:
			c.unknown += n
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, sc := range scans {
		var sum domain.Summary
		if c := byScan[id]; c != nil {
			sum = domain.NewSummary(c.up, c.down, c.unknown)
		}
		sc.Summary = &sum
	}
	return nil
}

// loadResults fills Outcome.Results for the given finished scans in one query.
func (s *Store) loadResults(ctx context.Context, scans map[domain.ScanID]*domain.Scan) error {
	if len(scans) == 0 {
		return nil
	}
	ids := make([]string, 0, len(scans))
	for id := range scans {
		ids = append(ids, string(id))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT scan_id, host, status, reason
		   FROM scan_results
		  WHERE scan_id = ANY($1)
		  ORDER BY scan_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			scanID string
			r      domain.ProbeResult
			status string
		)
		if err := rows.Scan(&scanID, &r.Host, &status, &r.Reason); err != nil {
			return fmt.Errorf("scan result: %w", err)
		}
		r.Status = domain.Status(status)
		if sc := scans[domain.ScanID(scanID)]; sc != nil {
			sc.Outcome.Results = append(sc.Outcome.Results, r)
		}
	}
	return rows.Err()
}

func (s *Store) UpdateProgress(ctx context.Context, id domain.ScanID, p domain.Progress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scans SET processed = $2, total = $3 WHERE id = $1`,
		string(id), p.Processed, p.Total)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// Finish records the outcome and replaces any stored per-host rows in a
// single transaction.
func (s *Store) Finish(ctx context.Context, id domain.ScanID, out domain.RunOutcome, finishedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE scans SET finished_at = $2, completion = $3 WHERE id = $1`,
		string(id), finishedAt.UTC(), string(out.Completion))
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	b := &pgx.Batch{}
	b.Queue(`DELETE FROM scan_results WHERE scan_id = $1`, string(id))
	for i, r := range out.Results {
		b.Queue(`INSERT INTO scan_results (scan_id, position, host, status, reason)
		         VALUES ($1, $2, $3, $4, $5)`,
			string(id), i, r.Host, string(r.Status), r.Reason)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("postgres_scan_finished", zap.String("scan_id", string(id)), zap.Int("results", len(out.Results)))
	return nil
}
