package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
)

const runKeyPrefix = "run:"

// RedisStore keeps run artifacts as JSON blobs in Redis. It implements the
// same surface as the Postgres Store and is used when Postgres is not
// configured.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects using the configured Redis settings.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) SaveRun(ctx context.Context, result *core.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, runKeyPrefix+result.RunID, data, 0).Err()
}

func (r *RedisStore) GetRun(ctx context.Context, runID string) (*core.RunResult, error) {
	val, err := r.client.Get(ctx, runKeyPrefix+runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var result core.RunResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *RedisStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	keys, err := r.client.Keys(ctx, runKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	var out []RunSummary
	for _, key := range keys {
		if len(out) >= limit {
			break
		}
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var result core.RunResult
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			return nil, err
		}
		out = append(out, RunSummary{
			RunID:         result.RunID,
			DocumentID:    result.DocumentID,
			DocumentTitle: result.DocumentTitle,
			TotalNodes:    result.Stats.TotalNodes,
			TotalEdges:    result.Stats.TotalEdges,
			FailedCohorts: result.Stats.FailedCohorts,
			CreatedAt:     result.ProcessingTimestamp,
		})
	}
	return out, nil
}

// RunStore is the persistence surface the orchestrator and API depend on.
type RunStore interface {
	SaveRun(ctx context.Context, result *core.RunResult) error
	GetRun(ctx context.Context, runID string) (*core.RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Open picks a backend from config: Postgres when configured, Redis as the
// fallback. Returns nil with no error when neither is configured so callers
// can run without persistence.
func Open(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (RunStore, error) {
	if dsn := cfg.Postgres.DSN(); dsn != "" {
		s, err := NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		logger.Println("[STORE] using postgres backend")
		return s, nil
	}
	if cfg.Redis.Host != "" {
		s, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		logger.Println("[STORE] using redis backend")
		return s, nil
	}
	logger.Println("[STORE] no backend configured, runs will not be persisted")
	return nil, nil
}
