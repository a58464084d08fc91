// Package council serves the council over HTTP.
package council

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/core/ports"
	core "github.com/tjfontaine/polyglot-council/internal/council"
	"github.com/tjfontaine/polyglot-council/internal/health"
	"github.com/tjfontaine/polyglot-council/internal/server"
)

const (
	minQueryLength       = 3
	minSearchQueryLength = 2
	maxQueryLength       = 5000

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	maxBodyBytes = 10 << 20
)

// Deliberator runs one council deliberation.
type Deliberator interface {
	Deliberate(ctx context.Context, req core.Request) (*domain.ConsensusResult, error)
}

// MemberLister exposes the current council membership.
type MemberLister interface {
	List() []domain.CouncilMember
}

// Documents is the knowledge-base surface of the retrieval service.
type Documents interface {
	Ingest(ctx context.Context, doc domain.Document) (*domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context) ([]*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Search(ctx context.Context, query string, topK int) (*domain.SearchResult, error)
}

// HealthReporter returns the cached health report.
type HealthReporter interface {
	Report() health.Report
}

// Deps are the collaborators a Handler serves. History and Health may be nil.
type Deps struct {
	Council   Deliberator
	Members   MemberLister
	Documents Documents
	History   ports.DeliberationStore
	Health    HealthReporter
}

type Handler struct {
	deps   Deps
	router chi.Router
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(deps Deps, opts ...Option) *Handler {
	h := &Handler{
		deps:   deps,
		router: chi.NewRouter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.router.Get("/members", h.handleMembers)
	h.router.Post("/ask", h.handleAsk)

	h.router.Get("/documents", h.handleListDocuments)
	h.router.Post("/documents", h.handleUploadDocument)
	h.router.Get("/documents/{docId}", h.handleGetDocument)
	h.router.Delete("/documents/{docId}", h.handleDeleteDocument)
	h.router.Post("/search", h.handleSearch)

	h.router.Get("/deliberations", h.handleListDeliberations)
	h.router.Get("/deliberations/{id}", h.handleGetDeliberation)

	h.router.Get("/health", h.handleHealth)

	h.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrNotFoundf("no route for %s %s", r.Method, r.URL.Path))
	})
	h.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, domain.ErrInvalidRequest(fmt.Sprintf("method %s not allowed", r.Method)).
			WithStatusCode(http.StatusMethodNotAllowed))
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	members := h.deps.Members.List()
	writeData(w, http.StatusOK, members, len(members))
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	query, err := validateQuery(req.Query, minQueryLength)
	if err != nil {
		writeError(w, r, err)
		return
	}

	useContext := true
	if req.UseRAG != nil {
		useContext = *req.UseRAG
	}
	server.AddLogField(r.Context(), "use_rag", strconv.FormatBool(useContext))
	if req.Madhab != "" {
		server.AddLogField(r.Context(), "madhab", req.Madhab)
	}

	result, err := h.deps.Council.Deliberate(r.Context(), core.Request{
		Query:       query,
		UseContext:  useContext,
		Perspective: req.Madhab,
		TopK:        req.TopK,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "deliberation_id", result.ID)
	server.AddLogField(r.Context(), "consensus_score", strconv.FormatFloat(result.ConsensusScore, 'f', 3, 64))

	if h.deps.History != nil {
		// The caller already has the result; a failed write is only logged.
		if err := h.deps.History.SaveDeliberation(context.WithoutCancel(r.Context()), result); err != nil {
			h.logger.Error("failed to persist deliberation",
				slog.String("request_id", server.GetRequestID(r.Context())),
				slog.String("deliberation_id", result.ID),
				slog.String("error", err.Error()))
		}
	}

	writeData(w, http.StatusOK, result, -1)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.Documents.ListDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, docs, len(docs))
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if utf8.RuneCountInString(req.Title) > 500 {
		writeError(w, r, domain.ErrInvalidRequest("title must be at most 500 characters").WithParam("title"))
		return
	}

	doc, err := h.deps.Documents.Ingest(r.Context(), domain.Document{
		ID:       strings.TrimSpace(req.DocID),
		Title:    req.Title,
		Content:  req.Content,
		Source:   req.Source,
		Category: req.Category,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "doc_id", doc.ID)

	writeData(w, http.StatusCreated, DocumentResponse{
		DocID:    doc.ID,
		Message:  fmt.Sprintf("Document %q ingested successfully", doc.Title),
		Document: doc,
	}, -1)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.Documents.GetDocument(r.Context(), chi.URLParam(r, "docId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, doc, -1)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "docId")
	if err := h.deps.Documents.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, DocumentResponse{DocID: id, Message: "Document deleted successfully"}, -1)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	query, err := validateQuery(req.Query, minSearchQueryLength)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.deps.Documents.Search(r.Context(), query, req.TopK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result, -1)
}

func (h *Handler) handleListDeliberations(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, r, errHistoryDisabled)
		return
	}

	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= maxHistoryLimit {
			limit = v
		}
	}

	list, err := h.deps.History.ListDeliberations(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list, len(list))
}

func (h *Handler) handleGetDeliberation(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeError(w, r, errHistoryDisabled)
		return
	}
	result, err := h.deps.History.GetDeliberation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result, -1)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Success: true}
	if h.deps.Health != nil {
		resp.Report = h.deps.Health.Report()
	} else {
		resp.Report = health.Report{Status: health.StatusUnknown}
	}

	status := http.StatusOK
	if resp.Status == health.StatusUnhealthy {
		resp.Success = false
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

var errHistoryDisabled = domain.NewAPIError(domain.ErrorTypeServer, "deliberation history is not configured").
	WithStatusCode(http.StatusServiceUnavailable)

func validateQuery(q string, minLen int) (string, error) {
	q = strings.TrimSpace(q)
	switch n := utf8.RuneCountInString(q); {
	case n == 0:
		return "", domain.ErrInvalidRequest("query is required").WithParam("query")
	case n < minLen:
		return "", domain.ErrInvalidRequest(fmt.Sprintf("query must be at least %d characters", minLen)).WithParam("query")
	case n > maxQueryLength:
		return "", domain.ErrInvalidRequest(fmt.Sprintf("query must be at most %d characters", maxQueryLength)).WithParam("query")
	}
	return q, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ErrInvalidRequest("request body too large").WithStatusCode(http.StatusRequestEntityTooLarge)
		}
		return domain.ErrInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// writeData writes a success envelope. count is omitted when negative.
func writeData(w http.ResponseWriter, status int, data any, count int) {
	env := envelope{Success: true, Data: data}
	if count >= 0 {
		env.Count = &count
	}
	writeJSON(w, status, env)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	apiErr := domain.ToAPIError(err)
	body := &errorBody{
		Type:    apiErr.Type,
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Param:   apiErr.Param,
	}
	var quorumErr *domain.QuorumError
	if errors.As(err, &quorumErr) {
		body.Obtained = &quorumErr.Obtained
		body.Required = &quorumErr.Required
	}
	writeJSON(w, apiErr.HTTPStatusCode(), envelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
