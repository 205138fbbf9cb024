package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
	"github.com/mohammad-safakhou/guidekg/internal/store"
)

func integrationResult(runID string) *core.RunResult {
	return &core.RunResult{
		RunID:         runID,
		DocumentID:    "ada-2026",
		DocumentTitle: "Standards of Care in Diabetes",
		KnowledgeGraph: core.KnowledgeGraph{
			Nodes: map[string]core.KnowledgeNode{
				"Metformin": {
					ID:         "Metformin",
					Label:      "Metformin",
					Category:   "drug",
					Attributes: map[string]string{"drug_class": "biguanide"},
					SourceText: "Metformin should be started at the time of diagnosis.",
				},
				"Type 2 diabetes mellitus": {
					ID:       "Type 2 diabetes mellitus",
					Label:    "Type 2 diabetes mellitus",
					Category: "condition",
				},
			},
			Edges: []core.KnowledgeEdge{
				{Source: "Metformin", Target: "Type 2 diabetes mellitus", Type: "treats", Certainty: "high"},
			},
		},
		CohortAnalysis: []core.CohortTask{
			{ID: "c1", Name: "metformin initiation", AgentKind: core.AgentKindDrug, Status: core.TaskCompleted},
		},
		Stats:               core.RunStats{TotalCohorts: 1, CompletedCohorts: 1, TotalNodes: 2, TotalEdges: 1},
		ProcessingTimestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("guidekg"),
		tcPostgres.WithUsername("guidekg"),
		tcPostgres.WithPassword("guidekg"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://guidekg:guidekg@%s:%s/guidekg?sslmode=disable", host, port.Port())

	if err := store.Migrate("file://../../migrations", dsn, "up", 0); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	result := integrationResult("run-int-1")
	if err := st.SaveRun(ctx, result); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	// Replaying the same run must not duplicate graph rows.
	if err := st.SaveRun(ctx, result); err != nil {
		t.Fatalf("SaveRun replay: %v", err)
	}

	got, err := st.GetRun(ctx, "run-int-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.DocumentTitle != result.DocumentTitle {
		t.Fatalf("title mismatch: %q", got.DocumentTitle)
	}
	if len(got.KnowledgeGraph.Nodes) != 2 || len(got.KnowledgeGraph.Edges) != 1 {
		t.Fatalf("graph mismatch: %d nodes, %d edges", len(got.KnowledgeGraph.Nodes), len(got.KnowledgeGraph.Edges))
	}

	var nodeCount int
	if err := st.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_nodes").Scan(&nodeCount); err != nil {
		t.Fatalf("count nodes: %v", err)
	}
	if nodeCount != 2 {
		t.Fatalf("expected 2 node rows after replay, got %d", nodeCount)
	}

	runs, err := st.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-int-1" || runs[0].TotalNodes != 2 {
		t.Fatalf("unexpected listing: %+v", runs)
	}

	if _, err := st.GetRun(ctx, "missing"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	rs, err := store.NewRedisStore(ctx, config.RedisConfig{Host: host, Port: port.Int()})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}

	result := integrationResult("run-int-2")
	if err := rs.SaveRun(ctx, result); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := rs.GetRun(ctx, "run-int-2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.RunID != "run-int-2" || len(got.KnowledgeGraph.Nodes) != 2 {
		t.Fatalf("unexpected run: %+v", got)
	}

	runs, err := rs.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].TotalEdges != 1 {
		t.Fatalf("unexpected listing: %+v", runs)
	}

	if _, err := rs.GetRun(ctx, "missing"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
