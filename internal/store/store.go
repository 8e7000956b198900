package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Store defines the contract for journaling signing runs and caching their
// latest state.
type Store interface {
	RecordRunEvent(ctx context.Context, event model.RunEvent) error
	GetRunEvents(ctx context.Context, runID string) ([]model.RunEvent, error)
	SaveRunResult(ctx context.Context, result model.RunResult, ttl time.Duration) error
	GetRunResult(ctx context.Context, runID string) (*model.RunResult, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store. Postgres is
// optional: without it, run events are not journaled durably but the adapter
// keeps working off the Redis cache.
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordRunEvent inserts an immutable event into signing.run_event.
func (s *HybridStore) RecordRunEvent(ctx context.Context, event model.RunEvent) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO signing.run_event (
			run_id, client_id, experience_name, platform,
			step, status, detail, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.RunID, event.ClientID, event.ExperienceName, event.Platform,
		event.Step, event.Status, event.Detail, event.Timestamp)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed", zap.Error(err))
	}
	return err
}

// GetRunEvents returns the journaled steps of a run in order.
func (s *HybridStore) GetRunEvents(ctx context.Context, runID string) ([]model.RunEvent, error) {
	if s.PG == nil {
		return nil, fmt.Errorf("postgres unavailable")
	}
	rows, err := s.PG.Query(ctx, `
		SELECT run_id, client_id, experience_name, platform, step, status, detail, recorded_at
		FROM signing.run_event
		WHERE run_id = $1
		ORDER BY recorded_at ASC;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var e model.RunEvent
		if err := rows.Scan(&e.RunID, &e.ClientID, &e.ExperienceName, &e.Platform,
			&e.Step, &e.Status, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// SaveRunResult caches the run's final state for status queries.
func (s *HybridStore) SaveRunResult(ctx context.Context, result model.RunResult, ttl time.Duration) error {
	return s.SetJSON(ctx, runKey(result.RunID), result, ttl)
}

// GetRunResult returns the cached run state, or nil on a cache miss.
func (s *HybridStore) GetRunResult(ctx context.Context, runID string) (*model.RunResult, error) {
	data, err := s.redis.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var result model.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func runKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
