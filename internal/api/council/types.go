package council

import (
	"github.com/tjfontaine/polyglot-council/internal/core/domain"
	"github.com/tjfontaine/polyglot-council/internal/health"
)

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query string `json:"query"`
	// UseRAG defaults to true when omitted.
	UseRAG *bool  `json:"useRAG,omitempty"`
	Madhab string `json:"madhab,omitempty"`
	TopK   int    `json:"topK,omitempty"`
}

// DocumentRequest is the body of POST /documents.
type DocumentRequest struct {
	DocID    string `json:"docId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK,omitempty"`
}

// DocumentResponse acknowledges an ingested or deleted document.
type DocumentResponse struct {
	DocID    string           `json:"docId"`
	Message  string           `json:"message"`
	Document *domain.Document `json:"document,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Count   *int       `json:"count,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Type     domain.ErrorType `json:"type"`
	Code     domain.ErrorCode `json:"code,omitempty"`
	Message  string           `json:"message"`
	Param    string           `json:"param,omitempty"`
	Obtained *int             `json:"obtained,omitempty"`
	Required *int             `json:"required,omitempty"`
}

// healthResponse flattens the monitor report next to the success flag.
type healthResponse struct {
	Success bool `json:"success"`
	health.Report
}
