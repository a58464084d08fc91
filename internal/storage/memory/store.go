// Package memory provides an in-process implementation of the storage ports.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
)

// Store is an in-memory StorageProvider. Values are copied in and out so
// callers never share state with the store.
type Store struct {
	mu            sync.RWMutex
	documents     map[string]*domain.Document
	docOrder      []string
	chunks        map[string][]domain.Chunk
	deliberations map[string]*domain.ConsensusResult
	delibOrder    []string
}

var _ ports.StorageProvider = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		documents:     make(map[string]*domain.Document),
		chunks:        make(map[string][]domain.Chunk),
		deliberations: make(map[string]*domain.ConsensusResult),
	}
}

func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; !exists {
		s.docOrder = append(s.docOrder, doc.ID)
	}
	d := *doc
	s.documents[doc.ID] = &d

	copied := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		copied[i] = c
	}
	s.chunks[doc.ID] = copied
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[id]
	if !exists {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	d := *doc
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Document, 0, len(s.docOrder))
	for _, id := range s.docOrder {
		d := *s.documents[id]
		result = append(result, &d)
	}
	return result, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[id]; !exists {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	s.docOrder = slices.DeleteFunc(s.docOrder, func(d string) bool { return d == id })
	return nil
}

func (s *Store) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Chunk
	for _, id := range s.docOrder {
		result = append(result, s.chunks[id]...)
	}
	return result, nil
}

func (s *Store) SaveDeliberation(ctx context.Context, result *domain.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deliberations[result.ID]; exists {
		return fmt.Errorf("deliberation %s already exists", result.ID)
	}
	r := *result
	s.deliberations[result.ID] = &r
	s.delibOrder = append(s.delibOrder, result.ID)
	return nil
}

func (s *Store) GetDeliberation(ctx context.Context, id string) (*domain.ConsensusResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.deliberations[id]
	if !exists {
		return nil, fmt.Errorf("deliberation %s: %w", id, domain.ErrNotFound)
	}
	out := *r
	return &out, nil
}

// ListDeliberations returns summaries newest first.
func (s *Store) ListDeliberations(ctx context.Context, limit int) ([]domain.DeliberationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeliberationSummary, 0, len(s.delibOrder))
	for i := len(s.delibOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, s.deliberations[s.delibOrder[i]].Summary())
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}
