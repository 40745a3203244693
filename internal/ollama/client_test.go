package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHost(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", ResolveHost("", ""))
	assert.Equal(t, "http://box:11434", ResolveHost("box:11434", ""))
	assert.Equal(t, "https://ollama.lan", ResolveHost("https://ollama.lan/", ""))
	assert.Equal(t, "http://fallback:1234", ResolveHost("", "fallback:1234"))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	assert.NoError(t, c.Ping(context.Background()))

	srv.Close()
	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmbedPrimaryEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])
		assert.Equal(t, "hello", req["prompt"])
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	vec, err := c.Embed(context.Background(), "hello", "nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vec)
}

func TestEmbedFallsBackToEmbedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			http.Error(w, "not found", http.StatusNotFound)
		case "/api/embed":
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{{0.5, 0.6}}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	vec, err := c.Embed(context.Background(), "hello", "m")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6}, vec)
}

func TestEmbedBothFormsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), "hello", "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestEmbedMissingVectorIsExplicitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/embeddings" {
			_ = json.NewEncoder(w).Encode(map[string]any{})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float64{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Embed(context.Background(), "hello", "m")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestExpandParsesJSONArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": `["query one", "query two", "query three"]`})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got := c.Expand(context.Background(), "original", "expander")
	assert.Equal(t, []string{"query one", "query two"}, got)
}

func TestExpandFallsBackToLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "1. first variation\n2) second variation\n- third"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got := c.Expand(context.Background(), "original", "expander")
	assert.Equal(t, []string{"first variation", "second variation"}, got)
}

func TestExpandTransportFailureReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	assert.Empty(t, c.Expand(context.Background(), "original", "expander"))
}

func TestRerankParsesAndClamps(t *testing.T) {
	responses := map[string]string{
		"Alpha": "8",
		"Beta":  "Relevance: 25 out of 10",
		"Gamma": "no clue",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt := req["prompt"].(string)
		for title, resp := range responses {
			if strings.Contains(prompt, "Title: "+title) {
				_ = json.NewEncoder(w).Encode(map[string]string{"response": resp})
				return
			}
		}
		t.Fatalf("unexpected prompt: %s", prompt)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	scores := c.Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "a", Title: "Alpha", Snippet: "sa"},
		{ID: "b", Title: "Beta", Snippet: "sb"},
		{ID: "g", Title: "Gamma", Snippet: "sg"},
	}, "reranker")

	assert.InDelta(t, 0.8, scores["a"], 1e-9)
	assert.InDelta(t, 1.0, scores["b"], 1e-9) // clamped to 10 then normalized
	_, ok := scores["g"]
	assert.False(t, ok, "unscorable candidate must be absent")
}

func TestRerankSkipsFailedCalls(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "5"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	scores := c.Rerank(context.Background(), "q", []RerankCandidate{
		{ID: "a"}, {ID: "b"},
	}, "reranker")

	assert.Len(t, scores, 1)
	assert.InDelta(t, 0.5, scores["b"], 1e-9)
}

func TestParseExpansionsEmpty(t *testing.T) {
	assert.Empty(t, parseExpansions(""))
	assert.Empty(t, parseExpansions("   "))
}
