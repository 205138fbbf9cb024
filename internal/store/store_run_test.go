package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

func sampleRunResult() *core.RunResult {
	produced := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return &core.RunResult{
		RunID:         "run-1",
		DocumentID:    "diabetes-2026",
		DocumentTitle: "Type 2 Diabetes Management",
		KnowledgeGraph: core.KnowledgeGraph{
			Nodes: map[string]core.KnowledgeNode{
				"Metformin": {
					ID:         "Metformin",
					Label:      "Metformin",
					Category:   "drug",
					Attributes: map[string]string{"drug_class": "biguanide"},
					SourceText: "Metformin is recommended as first-line therapy.",
				},
				"Type 2 diabetes mellitus": {
					ID:       "Type 2 diabetes mellitus",
					Label:    "Type 2 diabetes mellitus",
					Category: "condition",
				},
			},
			Edges: []core.KnowledgeEdge{
				{
					Source:    "Metformin",
					Target:    "Type 2 diabetes mellitus",
					Type:      "treats",
					Evidence:  "Metformin is recommended as first-line therapy.",
					Certainty: "high",
				},
			},
		},
		Stats: core.RunStats{
			TotalCohorts:     2,
			CompletedCohorts: 2,
			TotalNodes:       2,
			TotalEdges:       1,
		},
		ProcessingTimestamp: produced,
	}
}

func TestSaveRunUpsertsRunAndGraph(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	result := sampleRunResult()

	mock.ExpectBegin()

	runQuery := regexp.QuoteMeta(`
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
`)
	mock.ExpectExec(runQuery).
		WithArgs(result.RunID, result.DocumentID, result.DocumentTitle,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), result.ProcessingTimestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	nodeQuery := regexp.QuoteMeta(`
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
`)
	for range result.KnowledgeGraph.Nodes {
		mock.ExpectExec(nodeQuery).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), false, result.RunID).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	edgeQuery := regexp.QuoteMeta(`
INSERT INTO graph_edges (source, target, relationship, evidence, certainty, run_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (source, target, relationship) DO UPDATE SET
  evidence   = EXCLUDED.evidence,
  certainty  = EXCLUDED.certainty,
  run_id     = EXCLUDED.run_id,
  updated_at = NOW();
`)
	mock.ExpectExec(edgeQuery).
		WithArgs("Metformin", "Type 2 diabetes mellitus", "treats",
			"Metformin is recommended as first-line therapy.", "high", result.RunID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectCommit()

	if err := st.SaveRun(context.Background(), result); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	want := sampleRunResult()

	graphJSON, _ := json.Marshal(want.KnowledgeGraph)
	statsJSON, _ := json.Marshal(want.Stats)

	query := regexp.QuoteMeta(`
SELECT run_id, document_id, document_title, graph, cohorts, detailed_results, stats, processed_at
FROM runs WHERE run_id=$1
`)
	mock.ExpectQuery(query).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "document_id", "document_title", "graph", "cohorts", "detailed_results", "stats", "processed_at"}).
			AddRow(want.RunID, want.DocumentID, want.DocumentTitle,
				graphJSON, []byte(`[]`), []byte(`[]`), statsJSON, want.ProcessingTimestamp))

	got, err := st.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.RunID != want.RunID || got.DocumentTitle != want.DocumentTitle {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.KnowledgeGraph.Nodes) != 2 || len(got.KnowledgeGraph.Edges) != 1 {
		t.Fatalf("graph not restored: %d nodes, %d edges", len(got.KnowledgeGraph.Nodes), len(got.KnowledgeGraph.Edges))
	}
	if got.Stats.TotalCohorts != 2 {
		t.Fatalf("stats not restored: %+v", got.Stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}

	query := regexp.QuoteMeta(`
SELECT run_id, document_id, document_title, graph, cohorts, detailed_results, stats, processed_at
FROM runs WHERE run_id=$1
`)
	mock.ExpectQuery(query).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	if _, err := st.GetRun(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()

	query := regexp.QuoteMeta(`
SELECT run_id, document_id, document_title,
       COALESCE((stats->>'total_nodes')::int, 0),
       COALESCE((stats->>'total_edges')::int, 0),
       COALESCE((stats->>'failed_cohorts')::int, 0),
       created_at
FROM runs ORDER BY created_at DESC LIMIT $1
`)
	mock.ExpectQuery(query).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"run_id", "document_id", "document_title", "nodes", "edges", "failed", "created_at"}).
			AddRow("run-2", "doc-2", "Hypertension", 8, 5, 1, now).
			AddRow("run-1", "doc-1", "Diabetes", 12, 9, 0, now.Add(-time.Hour)))

	runs, err := st.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-2" || runs[0].TotalNodes != 8 {
		t.Fatalf("unexpected first run: %+v", runs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
