package domain

import "time"

// Purpose tells a reasoner which deliberation phase a call belongs to.
type Purpose string

const (
	PurposeInitial   Purpose = "initial"
	PurposeReview    Purpose = "review"
	PurposeSynthesis Purpose = "synthesis"
)

// ReasonRequest is one invocation of a reasoning capability.
type ReasonRequest struct {
	// Selector picks the capability, e.g. "openrouter/openai/gpt-4o".
	Selector    string
	Purpose     Purpose
	MemberID    string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// ReasonResult is the text a reasoner produced plus its self-reported
// confidence in [0,1].
type ReasonResult struct {
	Text       string
	Confidence float64
	Model      string
	Usage      Usage
}

// Usage is token accounting reported by the upstream API, when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Document is a knowledge-base entry owned by the retrieval collaborator.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Category   string    `json:"category"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Chunk is an indexed window of a document.
type Chunk struct {
	ID         string    `json:"id"`
	DocID      string    `json:"docId"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding,omitempty"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Category   string    `json:"category"`
}

// SearchResult is the flattened retrieval view served by /search.
type SearchResult struct {
	Context        string      `json:"context"`
	Sources        []SourceRef `json:"sources"`
	RelevanceScore float64     `json:"relevanceScore"`
}
