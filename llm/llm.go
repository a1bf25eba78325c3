// Package llm holds the clients for the two managed model services:
// the embedder that maps text to fixed-dimension vectors and the
// constrained generator that produces cited answer lines.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrDimMismatch is returned when the embedder responds with a
	// vector of the wrong dimension.
	ErrDimMismatch = errors.New("llm: embedding dimension mismatch")

	// ErrEmptyEmbedding is returned when the embedder responds with no
	// vector at all.
	ErrEmptyEmbedding = errors.New("llm: empty embedding response")
)

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dim is the vector dimension every Embed result has.
	Dim() int
}

// Passage is one numbered evidence passage shown to the generator.
type Passage struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// GenerateRequest asks the generator for a grounded answer.
type GenerateRequest struct {
	RequestID string    `json:"request_id"`
	Language  string    `json:"language"`
	Question  string    `json:"question"`
	Passages  []Passage `json:"passages"`
	System    string    `json:"system,omitempty"`
}

// AnswerLine is one line of generator output.
type AnswerLine struct {
	Text string `json:"text"`
}

// GenerateResult is the generator response. Either AnswerLines or the
// free-form Text is populated; Decision carries the generator's own
// verdict when it declines to answer.
type GenerateResult struct {
	Decision    string       `json:"decision,omitempty"`
	AnswerLines []AnswerLine `json:"answer_lines,omitempty"`
	Text        string       `json:"text,omitempty"`
}

// Generator produces a grounded answer from numbered passages.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
