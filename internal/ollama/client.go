// Package ollama is the client for the external language-model service.
// It exposes the three capabilities qmx consumes: embedding text, expanding
// a query into alternate phrasings, and scoring query/candidate relevance.
//
// Every call is bounded by the configured request timeout and is attempted
// exactly once; degradation policy is the caller's concern, except where
// noted (Expand absorbs transport failures itself).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable marks failures to reach the embedding backend. Callers use
// it to distinguish "no query result possible" from ordinary errors.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Client calls the Ollama HTTP API.
type Client struct {
	host    string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client for the given host. The host may omit the
// scheme; a trailing slash is stripped. timeout bounds each request.
func NewClient(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}
	return &Client{
		host: ResolveHost(host, ""),
		// No http.Client.Timeout: per-request contexts carry the deadline.
		http:    &http.Client{Transport: transport},
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Host returns the resolved base URL.
func (c *Client) Host() string { return c.host }

// Ping checks that the Ollama API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama at %s: %w", c.host, ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ollama at %s returned %s: %w", c.host, resp.Status, ErrUnavailable)
	}
	return nil
}

// ResolveHost normalizes a host value, falling back to the OLLAMA_HOST
// environment variable and then to fallback. The result always carries a
// scheme and never a trailing slash.
func ResolveHost(host, fallback string) string {
	raw := strings.TrimSpace(host)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		raw = "http://localhost:11434"
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns the embedding vector for text. It first calls the legacy
// /api/embeddings form and falls back to /api/embed; if both protocol forms
// fail the error wraps ErrUnavailable rather than returning an empty vector.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var primary embeddingsResponse
	err := c.post(ctx, "/api/embeddings", embeddingsRequest{Model: model, Prompt: text}, &primary)
	if err == nil && len(primary.Embedding) > 0 {
		return primary.Embedding, nil
	}

	var fallback embedResponse
	if fbErr := c.post(ctx, "/api/embed", embedRequest{Model: model, Input: text}, &fallback); fbErr != nil {
		return nil, fmt.Errorf("%w: embed %q: %v", ErrUnavailable, model, fbErr)
	}
	if len(fallback.Embeddings) == 0 || len(fallback.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: embed %q: response missing vector", ErrUnavailable, model)
	}
	return fallback.Embeddings[0], nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Expand asks the expander model for up to two alternate phrasings of query.
// The model is expected to return a JSON array of strings; non-JSON output
// degrades to parsing numbered or bulleted lines. Any transport failure
// degrades to an empty list: expansion is best effort.
func (c *Client) Expand(ctx context.Context, query, model string) []string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := "You generate concise search query variations.\n" +
		"Return ONLY a JSON array of 2 strings.\n" +
		"Original query: " + query

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt}, &resp); err != nil {
		c.logger.Debug("query_expansion_failed", slog.String("error", err.Error()))
		return nil
	}

	return parseExpansions(resp.Response)
}

// parseExpansions extracts up to two non-empty variations from raw model
// output: a JSON string array when possible, otherwise line-based parsing
// with list markers stripped.
func parseExpansions(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		var out []string
		for _, v := range arr {
			s := strings.TrimSpace(fmt.Sprint(v))
			if s != "" {
				out = append(out, s)
			}
			if len(out) == 2 {
				break
			}
		}
		return out
	}

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimLeft(line, "-0123456789.) \t")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 2 {
			break
		}
	}
	return out
}

// RerankCandidate is one document offered to the reranker.
type RerankCandidate struct {
	ID      string
	Title   string
	Snippet string
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Rerank scores candidates against query, one generate call per candidate.
// The response is parsed by taking the first numeric token, clamping to
// [0, 10], and normalizing to [0, 1]. Candidates whose call fails or whose
// response carries no number are simply absent from the returned map.
func (c *Client) Rerank(ctx context.Context, query string, candidates []RerankCandidate, model string) map[string]float64 {
	out := make(map[string]float64, len(candidates))

	for _, cand := range candidates {
		score, ok := c.rerankOne(ctx, query, cand, model)
		if ok {
			out[cand.ID] = score
		}
	}
	return out
}

func (c *Client) rerankOne(ctx context.Context, query string, cand RerankCandidate, model string) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := strings.Join([]string{
		"Rate relevance from 0 to 10.",
		"Return ONLY one number.",
		"Query: " + query,
		"Title: " + cand.Title,
		"Snippet: " + cand.Snippet,
	}, "\n")

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt}, &resp); err != nil {
		c.logger.Debug("rerank_call_failed",
			slog.String("doc", cand.ID),
			slog.String("error", err.Error()))
		return 0, false
	}

	m := numberRe.FindString(resp.Response)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n / 10, true
}

// post issues a JSON POST and decodes a 2xx response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
