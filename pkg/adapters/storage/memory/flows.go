package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/flowdhq/flowd/pkg/domain"
	"github.com/flowdhq/flowd/pkg/schema"
)

// FlowStore implements FlowStore using an in-memory map. Documents are
// stored serialized so readers and writers never share memory.
type FlowStore struct {
	flows map[string][]byte
	mu    sync.RWMutex
}

// NewFlowStore creates a new in-memory flow store
func NewFlowStore() *FlowStore {
	return &FlowStore{
		flows: make(map[string][]byte),
	}
}

// SaveFlow stores a flow document, replacing any previous version
// (ports.FlowStore interface)
func (s *FlowStore) SaveFlow(ctx context.Context, doc *schema.FlowDocument) error {
	data, err := schema.MarshalDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows[doc.ID] = data
	return nil
}

// GetFlow retrieves a flow document by id (ports.FlowStore interface)
func (s *FlowStore) GetFlow(ctx context.Context, id string) (*schema.FlowDocument, error) {
	s.mu.RLock()
	data, ok := s.flows[id]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.NewNotFoundError("flow", id)
	}

	return schema.UnmarshalDocument(data)
}

// ListFlows returns all stored flow documents ordered by name
// (ports.FlowStore interface)
func (s *FlowStore) ListFlows(ctx context.Context) ([]*schema.FlowDocument, error) {
	s.mu.RLock()
	raw := make([][]byte, 0, len(s.flows))
	for _, data := range s.flows {
		raw = append(raw, data)
	}
	s.mu.RUnlock()

	docs := make([]*schema.FlowDocument, 0, len(raw))
	for _, data := range raw {
		doc, err := schema.UnmarshalDocument(data)
		if err != nil {
			return nil, err
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
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[id]; !ok {
		return domain.NewNotFoundError("flow", id)
	}

	delete(s.flows, id)
	return nil
}

// Close releases resources (ports.FlowStore interface)
func (s *FlowStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows = make(map[string][]byte)
	return nil
}
