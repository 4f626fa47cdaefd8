package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
)

// RunStore implements RunStore using Redis
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRunStore creates a new Redis run store
func NewRunStore(client *redis.Client, logger *zap.Logger) *RunStore {
	return &RunStore{
		client: client,
		logger: logger,
	}
}

// CreateRun stores a new run at version 0 (ports.RunStore interface)
func (s *RunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	key := getRunKey(run.ID)

	stored := run.Clone()
	stored.Version = 0
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	if !ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	run.Version = 0
	s.logger.Debug("run created",
		zap.String("run_id", run.ID),
		zap.String("kind", string(run.Kind)),
		zap.String("state_type", string(run.State.Type)))

	return nil
}

// GetRun retrieves a run by id (ports.RunStore interface)
func (s *RunStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	key := getRunKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewNotFoundError("run", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run domain.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// UpdateRun replaces a run if the stored version still matches. The
// read, version check and write run under WATCH so a concurrent commit
// on the same key fails the transaction instead of being overwritten
// (ports.RunStore interface)
func (s *RunStore) UpdateRun(ctx context.Context, run *domain.Run, expectedVersion int64) error {
	key := getRunKey(run.ID)

	next := run.Clone()
	next.Version = expectedVersion + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.NewNotFoundError("run", run.ID)
			}
			return fmt.Errorf("failed to get run: %w", err)
		}

		var stored domain.Run
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal run: %w", err)
		}
		if stored.Version != expectedVersion {
			return fmt.Errorf("run %s at version %d, expected %d: %w",
				run.ID, stored.Version, expectedVersion, domain.ErrVersionConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("run %s modified concurrently: %w", run.ID, domain.ErrVersionConflict)
		}
		return err
	}

	run.Version = next.Version
	return nil
}

// ListRuns returns a snapshot of all runs of a kind, ordered by
// creation time (ports.RunStore interface)
func (s *RunStore) ListRuns(ctx context.Context, kind domain.RunKind) ([]*domain.Run, error) {
	pattern := runKeyPrefix + "*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	runs := make([]*domain.Run, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Deleted between scan and get.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to get run: %w", err)
		}

		var run domain.Run
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Error("failed to unmarshal stored run",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		if run.Kind != kind {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Created.Equal(runs[j].Created) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].Created.Before(runs[j].Created)
	})

	return runs, nil
}

// Close releases resources. The Redis client is owned by the caller
// (ports.RunStore interface)
func (s *RunStore) Close() error {
	return nil
}

const runKeyPrefix = "flowd:run:"

// getRunKey returns the Redis key for a run
func getRunKey(id string) string {
	return runKeyPrefix + id
}
