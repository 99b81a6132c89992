// Package handler exposes the query engine over HTTP. It is the only layer
// that knows about query strings, status codes and response encodings; the
// engine itself takes plain terms and returns plain values.
package handler

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/mrtazz/admiral/internal/analytics"
	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/searcher/cache"
	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/internal/searcher/parser"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
	"github.com/mrtazz/admiral/pkg/logger"
)

type Handler struct {
	engine       *executor.Engine
	cache        *cache.QueryCache
	collector    *analytics.Collector
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. queryCache and collector may be nil.
func New(engine *executor.Engine, queryCache *cache.QueryCache, collector *analytics.Collector, defaultLimit, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		collector:    collector,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/intersect", h.Intersect)
	mux.HandleFunc("GET /api/v1/ranked", h.Ranked)
	mux.HandleFunc("GET /prefix_search", h.PrefixSearch)
	mux.HandleFunc("GET /api/v1/terms/{term}", h.Term)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	mode, err := parser.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}

	plan := parser.Parse(query, mode)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:     query,
			Mode:      plan.Mode.String(),
			Results:   []executor.Hit{},
			TermStats: map[string]int{},
		})
		return
	}

	var result *executor.SearchResult
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, limit, func() (*executor.SearchResult, error) {
			return h.engine.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.engine.Execute(ctx, plan, limit)
	}
	// Cached results are keyed by the normalized plan and may carry another
	// caller's spelling of the query.
	if err == nil && result.Query != query {
		echoed := *result
		echoed.Query = query
		result = &echoed
	}

	event := analytics.SearchEvent{
		Mode:     plan.Mode.String(),
		Query:    query,
		Terms:    plan.Terms,
		CacheHit: cacheHit,
	}
	if err != nil {
		event.Unrecognized = unknownTerm(err)
		event.Status = h.writeAppError(w, r, err)
		h.track(r, start, event)
		return
	}

	event.TotalHits = result.TotalHits
	event.Returned = len(result.Results)
	event.Unrecognized = unrecognized(plan.Terms, result.Recognized, plan.Mode)
	event.Status = http.StatusOK
	logger.FromContext(ctx).Info("search completed",
		"query", query,
		"mode", plan.Mode.String(),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.track(r, start, event)
	h.writeJSON(w, http.StatusOK, result)
}

type intersectResponse struct {
	Query     string         `json:"query"`
	Terms     []string       `json:"terms"`
	TotalHits int            `json:"total_hits"`
	Results   []executor.Hit `json:"results"`
}

// Intersect answers with every document containing all query terms. An
// unknown term is a 404 naming the term.
func (h *Handler) Intersect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	plan := parser.Parse(query, parser.ModeAnd)
	event := analytics.SearchEvent{Mode: "intersect", Query: query, Terms: plan.Terms}

	docs, err := h.engine.Intersect(plan.Terms)
	if err != nil {
		event.Unrecognized = unknownTerm(err)
		event.Status = h.writeAppError(w, r, err)
		h.track(r, start, event)
		return
	}
	resp := intersectResponse{
		Query:     query,
		Terms:     plan.Terms,
		TotalHits: len(docs),
		Results:   h.hits(docs),
	}
	event.TotalHits, event.Returned, event.Status = len(docs), len(docs), http.StatusOK
	h.track(r, start, event)
	h.writeJSON(w, http.StatusOK, resp)
}

type rankedResponse struct {
	Query        string         `json:"query"`
	Recognized   []string       `json:"recognized"`
	Unrecognized []string       `json:"unrecognized"`
	Results      []executor.Hit `json:"results"`
}

// Ranked runs and-ish retrieval. It never fails on unknown terms; they are
// reported in Unrecognized instead.
func (h *Handler) Ranked(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	plan := parser.Parse(query, parser.ModeRanked)
	rr := h.engine.RankedRetrieveLimit(plan.Terms, limit)

	resp := rankedResponse{
		Query:        query,
		Recognized:   rr.Recognized,
		Unrecognized: rr.Unrecognized,
		Results:      make([]executor.Hit, len(rr.Docs)),
	}
	idx := h.engine.Index()
	for i, doc := range rr.Docs {
		name, _ := idx.FileName(doc.DocID)
		resp.Results[i] = executor.Hit{DocID: doc.DocID, FileName: name, Score: doc.Score}
	}
	h.track(r, start, analytics.SearchEvent{
		Mode:         "ranked",
		Query:        query,
		Terms:        plan.Terms,
		Unrecognized: rr.Unrecognized,
		TotalHits:    len(rr.Docs),
		Returned:     len(rr.Docs),
		Status:       http.StatusOK,
	})
	h.writeJSON(w, http.StatusOK, resp)
}

type prefixResult struct {
	XMLName xml.Name              `xml:"result"`
	Items   []executor.Completion `xml:"item"`
}

// PrefixSearch completes a word prefix and answers in the XML shape the
// search box front-end expects.
func (h *Handler) PrefixSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !r.URL.Query().Has("query") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'query' is required")
		return
	}
	prefix := r.URL.Query().Get("query")
	pr := h.engine.PrefixSearch(prefix)

	h.track(r, start, analytics.SearchEvent{
		Mode:      "prefix",
		Query:     prefix,
		Terms:     []string{prefix},
		TotalHits: len(pr.Docs),
		Returned:  len(pr.Completions),
		Status:    http.StatusOK,
	})

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		h.logger.Error("failed to write response", "error", err)
		return
	}
	if err := xml.NewEncoder(w).Encode(prefixResult{Items: pr.Completions}); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

type termPosting struct {
	DocID     int     `json:"doc_id"`
	FileName  string  `json:"file_name"`
	Frequency int     `json:"frequency"`
	Weight    float64 `json:"weight"`
}

type termResponse struct {
	Term     string        `json:"term"`
	DocFreq  int           `json:"doc_freq"`
	Postings []termPosting `json:"postings"`
}

func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	term := r.PathValue("term")
	pl, err := h.engine.Lookup(term)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	idx := h.engine.Index()
	resp := termResponse{Term: term, DocFreq: len(pl), Postings: make([]termPosting, len(pl))}
	for i, p := range pl {
		name, _ := idx.FileName(p.DocID)
		resp.Postings[i] = termPosting{DocID: p.DocID, FileName: name, Frequency: p.Frequency, Weight: p.Weight}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Documents int                   `json:"documents"`
	Terms     int                   `json:"terms"`
	Postings  int                   `json:"postings"`
	TopTerms  []index.TermFrequency `json:"top_terms"`
	DocFreqs  []index.DocFreqCount  `json:"doc_freq_histogram"`
}

// Stats reports index size, the terms with the highest document frequency,
// and how many terms share each document frequency. ?top=N controls how
// many terms are listed (default 20).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := 20
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "top must be a non-negative integer")
			return
		}
		top = n
	}
	idx := h.engine.Index()
	freqs := idx.WordFrequencies()
	slices.Reverse(freqs)
	if len(freqs) > top {
		freqs = freqs[:top]
	}
	h.writeJSON(w, http.StatusOK, statsResponse{
		Documents: idx.DocCount(),
		Terms:     idx.TermCount(),
		Postings:  idx.PostingCount(),
		TopTerms:  freqs,
		DocFreqs:  idx.DocFreqHistogram(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// limit reads ?limit, clamped to maxResults. It writes a 400 and reports
// false when the value is malformed.
func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = parsed
	}
	if h.maxResults > 0 && limit > h.maxResults {
		limit = h.maxResults
	}
	return limit, true
}

func (h *Handler) hits(docs []int) []executor.Hit {
	idx := h.engine.Index()
	out := make([]executor.Hit, len(docs))
	for i, docID := range docs {
		name, _ := idx.FileName(docID)
		out[i] = executor.Hit{DocID: docID, FileName: name}
	}
	return out
}

func (h *Handler) track(r *http.Request, start time.Time, event analytics.SearchEvent) {
	if h.collector == nil {
		return
	}
	event.LatencyMs = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	event.RequestID = logger.RequestID(r.Context())
	h.collector.TrackSearch(event)
}

// writeAppError maps err to a status code and writes it. A missing term
// carries the term in the body. Internal errors are logged, not echoed.
func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) int {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, "internal server error")
		return status
	}
	body := map[string]string{"error": err.Error()}
	var notFound *apperrors.TermNotFoundError
	if errors.As(err, &notFound) {
		body["term"] = notFound.Term
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body["error"] = appErr.Message
	}
	h.writeJSON(w, status, body)
	return status
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func unknownTerm(err error) []string {
	var notFound *apperrors.TermNotFoundError
	if errors.As(err, &notFound) {
		return []string{notFound.Term}
	}
	return nil
}

// unrecognized lists the ranked query terms the index did not know.
func unrecognized(terms, recognized []string, mode parser.Mode) []string {
	if mode != parser.ModeRanked {
		return nil
	}
	var out []string
	for _, t := range terms {
		if !slices.Contains(recognized, t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
