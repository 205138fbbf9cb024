package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// Store persists run artifacts and the knowledge graph in Postgres. Graph
// upserts are idempotent: nodes key on concept id, edges on the
// (source, target, type) triple, so replaying a run never duplicates rows.
type Store struct {
	DB *sql.DB
}

// New connects using the configured Postgres settings.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("postgres is not configured")
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	TotalNodes    int       `json:"total_nodes"`
	TotalEdges    int       `json:"total_edges"`
	FailedCohorts int       `json:"failed_cohorts"`
	CreatedAt     time.Time `json:"created_at"`
}

// SaveRun upserts the run artifact and its graph rows in one transaction.
func (s *Store) SaveRun(ctx context.Context, result *core.RunResult) error {
	graphJSON, err := json.Marshal(result.KnowledgeGraph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	cohortsJSON, err := json.Marshal(result.CohortAnalysis)
	if err != nil {
		return fmt.Errorf("marshal cohorts: %w", err)
	}
	detailsJSON, err := json.Marshal(result.DetailedResults)
	if err != nil {
		return fmt.Errorf("marshal detailed results: %w", err)
	}
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (run_id, document_id, document_title, graph, cohorts, detailed_results, stats, processed_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (run_id) DO UPDATE SET
  document_id      = EXCLUDED.document_id,
  document_title   = EXCLUDED.document_title,
  graph            = EXCLUDED.graph,
  cohorts          = EXCLUDED.cohorts,
  detailed_results = EXCLUDED.detailed_results,
  stats            = EXCLUDED.stats,
  processed_at     = EXCLUDED.processed_at;
`, result.RunID, result.DocumentID, result.DocumentTitle, graphJSON, cohortsJSON, detailsJSON, statsJSON, result.ProcessingTimestamp)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for _, node := range result.KnowledgeGraph.Nodes {
		attrs, err := json.Marshal(node.Attributes)
		if err != nil {
			return fmt.Errorf("marshal node attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO graph_nodes (concept_id, label, category, attributes, source_text, unverified, run_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (concept_id) DO UPDATE SET
  label       = EXCLUDED.label,
  category    = EXCLUDED.category,
  attributes  = EXCLUDED.attributes,
  source_text = EXCLUDED.source_text,
  unverified  = EXCLUDED.unverified,
  run_id      = EXCLUDED.run_id,
  updated_at  = NOW();
`, node.ID, node.Label, node.Category, attrs, node.SourceText, node.Unverified, result.RunID)
		if err != nil {
			return fmt.Errorf("upsert node %s: %w", node.ID, err)
		}
	}

	for _, edge := range result.KnowledgeGraph.Edges {
		_, err = tx.ExecContext(ctx, `
INSERT INTO graph_edges (source, target, relationship, evidence, certainty, run_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (source, target, relationship) DO UPDATE SET
  evidence   = EXCLUDED.evidence,
  certainty  = EXCLUDED.certainty,
  run_id     = EXCLUDED.run_id,
  updated_at = NOW();
`, edge.Source, edge.Target, edge.Type, edge.Evidence, edge.Certainty, result.RunID)
		if err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", edge.Source, edge.Target, err)
		}
	}

	return tx.Commit()
}

// GetRun loads one stored run artifact.
func (s *Store) GetRun(ctx context.Context, runID string) (*core.RunResult, error) {
	var (
		result      core.RunResult
		graphJSON   []byte
		cohortsJSON []byte
		detailsJSON []byte
		statsJSON   []byte
	)
	err := s.DB.QueryRowContext(ctx, `
SELECT run_id, document_id, document_title, graph, cohorts, detailed_results, stats, processed_at
FROM runs WHERE run_id=$1
`, runID).Scan(&result.RunID, &result.DocumentID, &result.DocumentTitle,
		&graphJSON, &cohortsJSON, &detailsJSON, &statsJSON, &result.ProcessingTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(graphJSON, &result.KnowledgeGraph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	if err := json.Unmarshal(cohortsJSON, &result.CohortAnalysis); err != nil {
		return nil, fmt.Errorf("unmarshal cohorts: %w", err)
	}
	if err := json.Unmarshal(detailsJSON, &result.DetailedResults); err != nil {
		return nil, fmt.Errorf("unmarshal detailed results: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &result.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return &result, nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id, document_id, document_title,
       COALESCE((stats->>'total_nodes')::int, 0),
       COALESCE((stats->>'total_edges')::int, 0),
       COALESCE((stats->>'failed_cohorts')::int, 0),
       created_at
FROM runs ORDER BY created_at DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.DocumentID, &r.DocumentTitle,
			&r.TotalNodes, &r.TotalEdges, &r.FailedCohorts, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
