package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
)

// DocumentStore persists knowledge-base documents and their indexed chunks.
type DocumentStore interface {
	// SaveDocument stores the document and replaces any chunks it had.
	SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// GetDocument returns domain.ErrNotFound when the document does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	ListDocuments(ctx context.Context) ([]*domain.Document, error)

	// DeleteDocument removes the document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ListChunks returns every chunk across all documents.
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
}

// DeliberationStore keeps the history of consensus results.
type DeliberationStore interface {
	SaveDeliberation(ctx context.Context, result *domain.ConsensusResult) error
	GetDeliberation(ctx context.Context, id string) (*domain.ConsensusResult, error)

	// ListDeliberations returns summaries newest first.
	ListDeliberations(ctx context.Context, limit int) ([]domain.DeliberationSummary, error)
}

// StorageProvider manages all storage operations.
// Implementations: SQLite (default), memory.
type StorageProvider interface {
	DocumentStore
	DeliberationStore
	Close() error
}
