package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestDeterministicEmbedder(t *testing.T) {
	e := NewDeterministicEmbedder(16)
	if e.Dim() != 16 {
		t.Errorf("Dim = %d, want 16", e.Dim())
	}

	a1, err := e.Embed(context.Background(), "ration card")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := e.Embed(context.Background(), "ration card")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a1, a2) {
		t.Error("identical text produced different vectors")
	}

	b, err := e.Embed(context.Background(), "voter id")
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a1, b) {
		t.Error("different texts produced identical vectors")
	}

	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s, want /api/embed", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "test-embed" || len(req.Input) != 1 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "test-embed", Dim: 3})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}

func TestHTTPEmbedderDimMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{0.1, 0.2}}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Dim: 3, Retries: 1, Backoff: time.Millisecond})
	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrDimMismatch) {
		t.Errorf("err = %v, want ErrDimMismatch", err)
	}
}

func TestHTTPEmbedderRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1, 2}}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Dim: 2, Retries: 2, Backoff: time.Millisecond})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(vec) != 2 {
		t.Errorf("len(vec) = %d", len(vec))
	}
}

func TestHTTPGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "test-gen" || req.Question == "" || len(req.Passages) != 1 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(GenerateResult{Text: "Apply at the office. [1]"})
	}))
	defer srv.Close()

	g := NewGenerator(GeneratorConfig{BaseURL: srv.URL, Model: "test-gen"})
	res, err := g.Generate(context.Background(), GenerateRequest{
		RequestID: "r1",
		Question:  "where do I apply",
		Passages:  []Passage{{Number: 1, Text: "Applications at the office."}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "Apply at the office. [1]" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestHTTPGeneratorErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGenerator(GeneratorConfig{BaseURL: srv.URL, Retries: 1, Backoff: time.Millisecond})
	if _, err := g.Generate(context.Background(), GenerateRequest{Question: "q"}); err == nil {
		t.Error("expected error for 500 response")
	}
}
