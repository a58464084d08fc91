// Package retrieval indexes documents into overlapping chunks and serves
// ranked passages to the council.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	"github.com/tjfontaine/polyglot-council/internal/telemetry"
)

const (
	DefaultTopK      = 5
	DefaultCacheSize = 256
	defaultCategory  = "general"
)

// Service implements ports.ContextProvider over a DocumentStore.
type Service struct {
	store     ports.DocumentStore
	embedder  ports.Embedder
	cache     *lru.Cache[string, []float64]
	cacheSize int
	chunkSize int
	overlap   int
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder enables semantic ranking. Without one, chunks are ranked by
// term overlap with the query.
func WithEmbedder(e ports.Embedder) Option {
	return func(s *Service) {
		s.embedder = e
	}
}

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithCacheSize sets how many query embeddings are kept.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a retrieval service over store.
func New(store ports.DocumentStore, opts ...Option) (*Service, error) {
	s := &Service{
		store:     store,
		cacheSize: DefaultCacheSize,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		logger:    slog.Default(),
		tracer:    telemetry.Tracer("retrieval"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New[string, []float64](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Ingest validates, chunks and indexes a document, replacing any earlier
// version with the same ID. A missing ID is generated.
func (s *Service) Ingest(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Source = strings.TrimSpace(doc.Source)
	switch {
	case doc.Title == "":
		return nil, domain.ErrInvalidRequest("title is required").WithParam("title")
	case strings.TrimSpace(doc.Content) == "":
		return nil, domain.ErrInvalidRequest("content is required").WithParam("content")
	case doc.Source == "":
		return nil, domain.ErrInvalidRequest("source is required").WithParam("source")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Category == "" {
		doc.Category = defaultCategory
	}
	doc.UploadedAt = s.now().UTC()

	texts := Chunk(doc.Content, s.chunkSize, s.overlap)
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s_%d", doc.ID, i),
			DocID:      doc.ID,
			ChunkIndex: i,
			Text:       text,
			Title:      doc.Title,
			Source:     doc.Source,
			Category:   doc.Category,
		}
	}

	if s.embedder != nil && len(texts) > 0 {
		vecs, err := s.embedder.Embed(ctx, texts)
		if err == nil && len(vecs) != len(chunks) {
			err = fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(chunks))
		}
		if err != nil {
			// Chunks stay searchable by term overlap.
			s.logger.Warn("embedding chunks failed",
				slog.String("doc_id", doc.ID),
				slog.String("error", err.Error()))
		} else {
			for i := range chunks {
				chunks[i].Embedding = vecs[i]
			}
		}
	}

	if err := s.store.SaveDocument(ctx, &doc, chunks); err != nil {
		return nil, fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	s.logger.Info("document ingested",
		slog.String("doc_id", doc.ID),
		slog.String("title", doc.Title),
		slog.Int("chunks", len(chunks)))
	return &doc, nil
}

// GetDocument returns a document or domain.ErrNotFound.
func (s *Service) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// ListDocuments returns all indexed documents.
func (s *Service) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	return s.store.ListDocuments(ctx)
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.logger.Info("document removed", slog.String("doc_id", id))
	return nil
}

type scored struct {
	chunk domain.Chunk
	score float64
}

// Retrieve returns up to topK passages ranked by relevance to query.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) (*domain.RetrievedContext, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	ctx, span := s.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(attribute.Int("retrieval.top_k", topK)))
	defer span.End()

	results, err := s.rank(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(results)))

	rc := &domain.RetrievedContext{Passages: make([]domain.Passage, 0, len(results))}
	for _, r := range results {
		rc.Passages = append(rc.Passages, domain.Passage{
			Text:           r.chunk.Text,
			Title:          r.chunk.Title,
			Source:         r.chunk.Source,
			RelevanceScore: r.score,
		})
	}
	return rc, nil
}

// Search is the flattened view of Retrieve served over HTTP.
func (s *Service) Search(ctx context.Context, query string, topK int) (*domain.SearchResult, error) {
	rc, err := s.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := &domain.SearchResult{Sources: rc.Sources()}
	if out.Sources == nil {
		out.Sources = []domain.SourceRef{}
	}
	if rc.Empty() {
		return out, nil
	}

	parts := make([]string, len(rc.Passages))
	var sum float64
	for i, p := range rc.Passages {
		parts[i] = fmt.Sprintf("[%s]\n%s", p.Title, p.Text)
		sum += max(0, p.RelevanceScore)
	}
	out.Context = strings.Join(parts, "\n\n---\n\n")
	out.RelevanceScore = sum / float64(len(rc.Passages))
	return out, nil
}

func (s *Service) rank(ctx context.Context, query string, topK int) ([]scored, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidRequest("query is required").WithParam("query")
	}

	chunks, err := s.store.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// Cosine and term-overlap scores are never ranked together: vectors
	// are used only when every chunk carries one.
	var qvec []float64
	if dim := len(chunks[0].Embedding); embedded(chunks, dim) {
		if qvec = s.queryEmbedding(ctx, query); len(qvec) != dim {
			qvec = nil
		}
	} else if s.embedder != nil {
		s.logger.Debug("ranking by term overlap, some chunks have no embedding")
	}
	qterms := terms(query)

	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		var score float64
		if qvec != nil {
			score = Cosine(qvec, c.Embedding)
		} else {
			score = Overlap(qterms, c.Text)
		}
		if score > 0 {
			results = append(results, scored{chunk: c, score: score})
		}
	}

	slices.SortStableFunc(results, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return strings.Compare(a.chunk.ID, b.chunk.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// embedded reports whether every chunk has a vector of length dim.
func embedded(chunks []domain.Chunk, dim int) bool {
	if dim == 0 {
		return false
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return false
		}
	}
	return true
}

// queryEmbedding returns the cached or freshly computed query vector, or
// nil when no embedder is configured or embedding fails.
func (s *Service) queryEmbedding(ctx context.Context, query string) []float64 {
	if s.embedder == nil {
		return nil
	}
	if v, ok := s.cache.Get(query); ok {
		return v
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		if err == nil {
			err = errors.New("no embedding returned")
		}
		s.logger.Warn("query embedding failed, ranking by term overlap", slog.String("error", err.Error()))
		return nil
	}
	s.cache.Add(query, vecs[0])
	return vecs[0]
}

// Ping checks that the document store answers.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.store.ListDocuments(ctx)
	return err
}
