package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest        = "bad_request"
	codeUnauthorized      = "unauthorized"
	codeNotFound          = "not_found"
	codePayloadTooLarge   = "payload_too_large"
	codeInvalidQuery      = "invalid_query"
	codeDocument          = "document_error"
	codeConfiguration     = "configuration_error"
	codeQuotaExceeded     = "embedding_quota_exceeded"
	codeCacheConsistency  = "cache_consistency_error"
	codeEmbedding         = "embedding_error"
	codeGenerationTimeout = "generation_timeout"
	codeGeneration        = "generation_error"
	codeInternal          = "internal_error"
)

type errorResponse struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
	Metrics   []stageJSON `json:"metrics,omitempty"`
}

type sourceJSON struct {
	Page    int     `json:"page"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

type stageJSON struct {
	Stage      string  `json:"stage"`
	DurationMs float64 `json:"duration_ms"`
}

// AnswerResponse is the JSON body of POST /v1/ask. The CLI prints the same
// shape for ask --json.
type AnswerResponse struct {
	RequestID   string       `json:"request_id"`
	Answer      string       `json:"answer"`
	Sources     []sourceJSON `json:"sources"`
	CacheHit    bool         `json:"cache_hit"`
	Fingerprint string       `json:"fingerprint"`
	Pages       int          `json:"pages"`
	Chunks      int          `json:"chunks"`
	Metrics     []stageJSON  `json:"metrics"`
	TotalMs     float64      `json:"total_ms"`
}

type answerTextResponse struct {
	Answer string `json:"answer"`
}

type cacheEntryJSON struct {
	Fingerprint string    `json:"fingerprint"`
	Chunks      int       `json:"chunks"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Dimensions  int       `json:"dimensions"`
	CreatedAt   time.Time `json:"created_at"`
}

type cacheListResponse struct {
	Items []cacheEntryJSON `json:"items"`
	Total int              `json:"total"`
}

type cacheClearResponse struct {
	Removed int `json:"removed"`
}

type reinitializeRequest struct {
	Reason string `json:"reason"`
}

type reinitializeResponse struct {
	Kind           string `json:"kind"`
	Reason         string `json:"reason"`
	Generation     uint64 `json:"generation"`
	WasInitialized bool   `json:"was_initialized"`
}

type budgetJSON struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	Action          string     `json:"action,omitempty"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

type usageResponse struct {
	Period        string     `json:"period"`
	PeriodStartAt *time.Time `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time `json:"period_end_at,omitempty"`
	Provider      string     `json:"provider"`
	Model         string     `json:"model"`
	Tokens        int64      `json:"tokens"`
	Budget        budgetJSON `json:"budget"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Messages map[string]string `json:"messages,omitempty"`
}

// NewAnswerResponse converts a pipeline result to its wire form.
func NewAnswerResponse(res domain.AnswerResult) AnswerResponse {
	return AnswerResponse{
		RequestID:   res.RequestID,
		Answer:      res.Answer,
		Sources:     toSources(res.Sources),
		CacheHit:    res.CacheHit,
		Fingerprint: res.Fingerprint,
		Pages:       res.Pages,
		Chunks:      res.Chunks,
		Metrics:     toStages(res.Metrics),
		TotalMs:     millis(res.Total),
	}
}

func toSources(src []domain.Source) []sourceJSON {
	out := make([]sourceJSON, len(src))
	for i, s := range src {
		out[i] = sourceJSON{Page: s.Page, Excerpt: s.Excerpt, Score: s.Score}
	}
	return out
}

func toStages(ms []domain.StageMetric) []stageJSON {
	out := make([]stageJSON, len(ms))
	for i, m := range ms {
		out[i] = stageJSON{Stage: string(m.Stage), DurationMs: millis(m.Duration)}
	}
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// errorHandler maps an error to a status and code. ok is false when err is not handled.
type errorHandler func(err error) (status int, code string, ok bool)

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(err error) (int, string, bool) {
		if !errors.Is(err, sentinel) {
			return 0, "", false
		}
		return status, code, true
	}
}

// generationTimeoutHandler matches generation errors caused by an expired deadline.
func generationTimeoutHandler(err error) (int, string, bool) {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) && genErr.Timeout {
		return http.StatusGatewayTimeout, codeGenerationTimeout, true
	}
	return 0, "", false
}

// domainErrorHandlers is ordered: quota before embedding, timeout before generation.
var domainErrorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidQuery, http.StatusUnprocessableEntity, codeInvalidQuery),
	sentinelHandler(domain.ErrDocument, http.StatusUnprocessableEntity, codeDocument),
	sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, codeQuotaExceeded),
	sentinelHandler(domain.ErrConfiguration, http.StatusServiceUnavailable, codeConfiguration),
	sentinelHandler(domain.ErrCacheConsistency, http.StatusConflict, codeCacheConsistency),
	sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, codeEmbedding),
	generationTimeoutHandler,
	sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, codeGeneration),
}

// classify returns the HTTP status and error code for a domain error.
func classify(err error) (int, string) {
	for _, h := range domainErrorHandlers {
		if status, code, ok := h(err); ok {
			return status, code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func toCacheEntry(e indexcache.Entry) cacheEntryJSON {
	id := e.Index.Identity()
	return cacheEntryJSON{
		Fingerprint: e.Fingerprint.String(),
		Chunks:      e.Chunks,
		Provider:    id.Provider,
		Model:       id.Model,
		Dimensions:  e.Index.Dimensions(),
		CreatedAt:   e.CreatedAt,
	}
}
