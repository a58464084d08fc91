// Package sqlite persists documents, chunks, and deliberations in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store is a SQLite implementation of ports.StorageProvider.
type Store struct {
	db *sqlx.DB
}

var _ ports.StorageProvider = (*Store)(nil)

// New opens (or creates) the database at dsn and ensures the schema exists.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			category TEXT NOT NULL,
			uploaded_at INTEGER NOT NULL,
			seq INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			category TEXT NOT NULL,
			FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS deliberations (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			perspective TEXT,
			consensus_score REAL NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			execution_time INTEGER NOT NULL,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS idx_deliberations_created ON deliberations(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Timestamps are stored as unix nanoseconds so ordering is exact.
type documentRow struct {
	ID         string `db:"id"`
	Title      string `db:"title"`
	Content    string `db:"content"`
	Source     string `db:"source"`
	Category   string `db:"category"`
	UploadedAt int64  `db:"uploaded_at"`
}

func (r documentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID:         r.ID,
		Title:      r.Title,
		Content:    r.Content,
		Source:     r.Source,
		Category:   r.Category,
		UploadedAt: time.Unix(0, r.UploadedAt).UTC(),
	}
}

type chunkRow struct {
	ID         string         `db:"id"`
	DocID      string         `db:"doc_id"`
	ChunkIndex int            `db:"chunk_index"`
	Text       string         `db:"text"`
	Embedding  sql.NullString `db:"embedding"`
	Title      string         `db:"title"`
	Source     string         `db:"source"`
	Category   string         `db:"category"`
}

type summaryRow struct {
	ID             string         `db:"id"`
	Query          string         `db:"query"`
	Perspective    sql.NullString `db:"perspective"`
	ConsensusScore float64        `db:"consensus_score"`
	Degraded       bool           `db:"degraded"`
	ExecutionTime  int64          `db:"execution_time"`
	CreatedAt      int64          `db:"created_at"`
}

func (s *Store) SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO documents (id, title, content, source, category, uploaded_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents))
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source = excluded.source,
			category = excluded.category,
			uploaded_at = excluded.uploaded_at`,
		doc.ID, doc.Title, doc.Content, doc.Source, doc.Category, doc.UploadedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for _, c := range chunks {
		row := chunkRow{
			ID:         c.ID,
			DocID:      doc.ID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Title:      c.Title,
			Source:     c.Source,
			Category:   c.Category,
		}
		if len(c.Embedding) > 0 {
			data, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding: %w", err)
			}
			row.Embedding = sql.NullString{String: string(data), Valid: true}
		}
		_, err := tx.NamedExecContext(ctx, `INSERT INTO chunks (id, doc_id, chunk_index, text, embedding, title, source, category)
			VALUES (:id, :doc_id, :chunk_index, :text, :embedding, :title, :source, :category)`, row)
		if err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT id, title, content, source, category, uploaded_at
		FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]*domain.Document, error) {
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, title, content, source, category, uploaded_at
		FROM documents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]*domain.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.toDomain())
	}
	return docs, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	var rows []chunkRow
	err := s.db.SelectContext(ctx, &rows, `SELECT c.id, c.doc_id, c.chunk_index, c.text, c.embedding, c.title, c.source, c.category
		FROM chunks c JOIN documents d ON d.id = c.doc_id
		ORDER BY d.seq, c.chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(rows))
	for _, r := range rows {
		c := domain.Chunk{
			ID:         r.ID,
			DocID:      r.DocID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Title:      r.Title,
			Source:     r.Source,
			Category:   r.Category,
		}
		if r.Embedding.Valid {
			if err := json.Unmarshal([]byte(r.Embedding.String), &c.Embedding); err != nil {
				return nil, fmt.Errorf("failed to unmarshal embedding for chunk %s: %w", r.ID, err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func (s *Store) SaveDeliberation(ctx context.Context, result *domain.ConsensusResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal deliberation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO deliberations (id, query, perspective, consensus_score, degraded, execution_time, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Query, result.Perspective, result.ConsensusScore, result.Degraded,
		result.ExecutionTime, string(data), result.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save deliberation: %w", err)
	}
	return nil
}

func (s *Store) GetDeliberation(ctx context.Context, id string) (*domain.ConsensusResult, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT result FROM deliberations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deliberation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deliberation: %w", err)
	}

	var result domain.ConsensusResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deliberation: %w", err)
	}
	return &result, nil
}

// ListDeliberations returns summaries newest first. A non-positive limit
// returns everything.
func (s *Store) ListDeliberations(ctx context.Context, limit int) ([]domain.DeliberationSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, query, perspective, consensus_score, degraded, execution_time, created_at
		FROM deliberations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliberations: %w", err)
	}

	out := make([]domain.DeliberationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.DeliberationSummary{
			ID:             r.ID,
			Query:          r.Query,
			Perspective:    r.Perspective.String,
			ConsensusScore: r.ConsensusScore,
			Degraded:       r.Degraded,
			ExecutionTime:  r.ExecutionTime,
			CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
		})
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
