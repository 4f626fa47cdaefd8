package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/schema"
)

// FlowStore implements FlowStore using Redis
type FlowStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewFlowStore creates a new Redis flow store
func NewFlowStore(client *redis.Client, logger *zap.Logger) *FlowStore {
	return &FlowStore{
		client: client,
		logger: logger,
	}
}

// SaveFlow stores a flow document, replacing any previous version
// (ports.FlowStore interface)
func (s *FlowStore) SaveFlow(ctx context.Context, doc *schema.FlowDocument) error {
	key := getFlowKey(doc.ID)

	data, err := schema.MarshalDocument(doc)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	s.logger.Debug("flow saved",
		zap.String("flow_id", doc.ID),
		zap.String("name", doc.Name))

	return nil
}

// GetFlow retrieves a flow document by id (ports.FlowStore interface)
func (s *FlowStore) GetFlow(ctx context.Context, id string) (*schema.FlowDocument, error) {
	key := getFlowKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewNotFoundError("flow", id)
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	return schema.UnmarshalDocument(data)
}

// ListFlows returns all stored flow documents ordered by name
// (ports.FlowStore interface)
func (s *FlowStore) ListFlows(ctx context.Context) ([]*schema.FlowDocument, error) {
	pattern := flowKeyPrefix + "*"

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

	docs := make([]*schema.FlowDocument, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to get flow: %w", err)
		}

		doc, err := schema.UnmarshalDocument(data)
		if err != nil {
			s.logger.Error("failed to unmarshal stored flow",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name == docs[j].Name {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].Name < docs[j].Name
	})

	return docs, nil
}

// DeleteFlow removes a flow document (ports.FlowStore interface)
func (s *FlowStore) DeleteFlow(ctx context.Context, id string) error {
	key := getFlowKey(id)

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	if deleted == 0 {
		return domain.NewNotFoundError("flow", id)
	}

	s.logger.Debug("flow deleted",
		zap.String("flow_id", id))

	return nil
}

// Close releases resources. The Redis client is owned by the caller
// (ports.FlowStore interface)
func (s *FlowStore) Close() error {
	return nil
}

const flowKeyPrefix = "flowd:flow:"

// getFlowKey returns the Redis key for a flow document
func getFlowKey(id string) string {
	return flowKeyPrefix + id
}
