package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tobil/qmx/internal/ollama"
	"github.com/tobil/qmx/internal/store"
)

const (
	// DefaultLimit is the result count when the caller gives none.
	DefaultLimit = 5
	// elevatedLimit widens candidate gathering for fusion and reranking.
	elevatedLimit = 30
	// allLimit bounds "all" queries.
	allLimit = 1000
	// maxQueries caps multi-query expansion, original included.
	maxQueries = 3
)

// Result is one search hit with a score in (0, 1]. Hybrid results also
// carry the per-channel scores that fed fusion, when that channel saw the
// document at all.
type Result struct {
	DocID        string  `json:"docid"`
	DisplayPath  string  `json:"file"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	Snippet      string  `json:"snippet"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
}

// Models names the Ollama models each retrieval stage uses.
type Models struct {
	Embed    string
	Expander string
	Reranker string
}

// LLM is the generative surface hybrid search uses for query expansion and
// reranking. Both degrade gracefully, implementations return nothing on
// failure and the engine falls back to fused scores.
type LLM interface {
	Expand(ctx context.Context, query, model string) []string
	Rerank(ctx context.Context, query string, candidates []ollama.RerankCandidate, model string) map[string]float64
}

// Options scope a single search call.
type Options struct {
	// Collection restricts results to one collection by name, empty means
	// all collections.
	Collection string
	Limit      int
	// All lifts the limit: keyword and vector search cap at 1000, hybrid
	// returns every fused candidate.
	All      bool
	MinScore float64
}

// Engine runs keyword, vector, and hybrid retrieval over the store.
type Engine struct {
	store    *store.Store
	embedder ollama.Embedder
	llm      LLM
	models   Models
	logger   *slog.Logger
}

func New(st *store.Store, embedder ollama.Embedder, llm LLM, models Models, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, embedder: embedder, llm: llm, models: models, logger: logger}
}

func (e *Engine) collectionID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	c, err := e.store.GetCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// mapRelevance folds a backend-native relevance into (0, 1]. FTS5 bm25 is
// negative, lower is better; bleve scores are positive, higher is better.
func mapRelevance(r float64) float64 {
	if r <= 0 {
		return 1 / (1 - r)
	}
	return r / (1 + r)
}

func effectiveLimit(opts Options) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return DefaultLimit
}

// Keyword runs pure full-text retrieval.
func (e *Engine) Keyword(ctx context.Context, query string, opts Options) ([]Result, error) {
	colID, err := e.collectionID(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	limit := effectiveLimit(opts)
	if opts.All {
		limit = allLimit
	}

	rows, err := e.store.FullTextSearch(ctx, query, colID, limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		score := mapRelevance(row.Relevance)
		if score < opts.MinScore {
			continue
		}
		results = append(results, Result{
			DocID:       row.DocID,
			DisplayPath: row.DisplayPath,
			Title:       row.Title,
			Score:       score,
			Snippet:     row.Snippet,
		})
	}
	return results, nil
}

// Vector runs pure semantic retrieval: the query is embedded and scored by
// cosine against every stored document vector, rescaled to [0, 1].
func (e *Engine) Vector(ctx context.Context, query string, opts Options) ([]Result, error) {
	colID, err := e.collectionID(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	qvec, err := e.embedder.Embed(ctx, query, e.models.Embed)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.vectorScore(ctx, qvec, colID, opts.MinScore)
	if err != nil {
		return nil, err
	}
	limit := effectiveLimit(opts)
	if opts.All {
		limit = allLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) vectorScore(ctx context.Context, qvec []float64, colID int64, minScore float64) ([]Result, error) {
	cands, err := e.store.VectorCandidates(ctx, colID)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		var dvec []float64
		if err := json.Unmarshal([]byte(c.EmbeddingJSON), &dvec); err != nil {
			e.logger.Warn("corrupt embedding, skipping", "doc", c.DisplayPath)
			continue
		}
		score := (Cosine(qvec, dvec) + 1) / 2
		if score < minScore {
			continue
		}
		results = append(results, Result{
			DocID:       c.DocID,
			DisplayPath: c.DisplayPath,
			Title:       c.Title,
			Score:       score,
			Snippet:     store.Snippet(c.Content),
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].DisplayPath < results[b].DisplayPath
	})
	return results, nil
}

// Hybrid runs the full pipeline: multi-query expansion, keyword and vector
// retrieval per query, reciprocal rank fusion, then LLM reranking with a
// rank-dependent blend. Expansion and reranking are optional, when the
// generative model is unreachable the fused ordering stands. Query
// embedding is not: without it the vector channel is meaningless, so the
// search fails.
func (e *Engine) Hybrid(ctx context.Context, query string, opts Options) ([]Result, error) {
	colID, err := e.collectionID(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	limit := effectiveLimit(opts)
	gather := max(limit, elevatedLimit)
	if opts.All {
		gather = allLimit
	}

	queries := e.expandQueries(ctx, query)

	// Query variants run one at a time: every variant funnels into the same
	// local model server, so fanning out only builds a queue there. Per
	// channel a document keeps its best score across variants.
	kwRows := make(map[string]Result)
	vecRows := make(map[string]Result)
	for _, q := range queries {
		rows, err := e.store.FullTextSearch(ctx, q, colID, gather)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			score := mapRelevance(row.Relevance)
			if score < opts.MinScore {
				continue
			}
			if prev, ok := kwRows[row.DocID]; !ok || score > prev.Score {
				kwRows[row.DocID] = Result{
					DocID:       row.DocID,
					DisplayPath: row.DisplayPath,
					Title:       row.Title,
					Score:       score,
					Snippet:     row.Snippet,
				}
			}
		}

		qvec, err := e.embedder.Embed(ctx, q, e.models.Embed)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		scored, err := e.vectorScore(ctx, qvec, colID, opts.MinScore)
		if err != nil {
			return nil, err
		}
		if len(scored) > gather {
			scored = scored[:gather]
		}
		for _, r := range scored {
			if prev, ok := vecRows[r.DocID]; !ok || r.Score > prev.Score {
				vecRows[r.DocID] = r
			}
		}
	}

	fused := FuseRRF([][]Ranked{channelRanking(kwRows), channelRanking(vecRows)}, RRFK)

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		if f.Score < opts.MinScore {
			continue
		}
		kw, fromKW := kwRows[f.Key]
		vec, fromVec := vecRows[f.Key]
		// Keyword rows carry a real FTS snippet, prefer them.
		r := kw
		if !fromKW {
			r = vec
		}
		if fromKW {
			r.KeywordScore = kw.Score
		}
		if fromVec {
			r.VectorScore = vec.Score
		}
		r.Score = f.Score
		results = append(results, r)
	}

	cands := results
	if len(cands) > elevatedLimit {
		cands = cands[:elevatedLimit]
	}
	scores := e.rerank(ctx, query, cands)
	for i := range results {
		llmScore, ok := scores[results[i].DocID]
		if !ok {
			continue
		}
		w := rerankWeight(i)
		results[i].Score = w*results[i].Score + (1-w)*llmScore
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].DisplayPath < results[b].DisplayPath
	})

	if !opts.All && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// rerankWeight is how much of the fused retrieval score survives the blend
// at a given rank. Top hits mostly keep their retrieval score, deep hits
// lean on the reranker verdict.
func rerankWeight(rank int) float64 {
	switch {
	case rank < 3:
		return 0.75
	case rank < 10:
		return 0.6
	default:
		return 0.4
	}
}

// channelRanking flattens one channel's best-per-document scores into a
// descending list for fusion.
func channelRanking(rows map[string]Result) []Ranked {
	list := make([]Ranked, 0, len(rows))
	for id, r := range rows {
		list = append(list, Ranked{Key: id, Score: r.Score})
	}
	sort.Slice(list, func(a, b int) bool {
		if list[a].Score != list[b].Score {
			return list[a].Score > list[b].Score
		}
		return list[a].Key < list[b].Key
	})
	return list
}

func (e *Engine) rerank(ctx context.Context, query string, rows []Result) map[string]float64 {
	if e.llm == nil || e.models.Reranker == "" || len(rows) == 0 {
		return nil
	}
	cands := make([]ollama.RerankCandidate, 0, len(rows))
	for _, r := range rows {
		cands = append(cands, ollama.RerankCandidate{ID: r.DocID, Title: r.Title, Snippet: r.Snippet})
	}
	return e.llm.Rerank(ctx, query, cands, e.models.Reranker)
}

// expandQueries prepends the original query to at most two LLM variants,
// skipping blanks and duplicates.
func (e *Engine) expandQueries(ctx context.Context, query string) []string {
	queries := []string{query}
	if e.llm == nil || e.models.Expander == "" {
		return queries
	}
	for _, v := range e.llm.Expand(ctx, query, e.models.Expander) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, q := range queries {
			if strings.EqualFold(q, v) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		queries = append(queries, v)
		if len(queries) == maxQueries {
			break
		}
	}
	return queries
}
