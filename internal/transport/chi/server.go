// Package chi is the HTTP API: question answering over uploaded PDFs plus
// cache, provider and usage administration.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/logger"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
)

// DefaultMaxUploadBytes bounds an ask request body.
const DefaultMaxUploadBytes = 50 << 20

// headerEmbeddingTokens reports embedding tokens spent on the request.
const headerEmbeddingTokens = "X-Embedding-Tokens"

// Server holds the HTTP handlers.
type Server struct {
	qa             QA
	cache          IndexCache
	providers      map[string]Reinitializer
	usage          UsageReporter
	health         HealthChecker
	maxUploadBytes int64
	logger         *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithProvider exposes a provider for POST /v1/providers/{kind}/reinitialize.
func WithProvider(kind string, p Reinitializer) Option {
	return func(s *Server) { s.providers[kind] = p }
}

// NewServer creates an HTTP API server.
func NewServer(
	qa QA,
	cache IndexCache,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		qa:             qa,
		cache:          cache,
		providers:      make(map[string]Reinitializer),
		usage:          usage,
		health:         health,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer s.closeUpload(r, u)

	ctx, usage := domain.WithRequestUsage(r.Context())
	res, err := s.qa.Ask(ctx, u.req)
	setUsageHeader(w, usage)
	if err != nil {
		s.writeDomainError(w, r, err, res.RequestID, res.Metrics)
		return
	}
	writeJSON(w, http.StatusOK, NewAnswerResponse(res))
}

// AskAnswer handles POST /v1/ask/answer and returns only the answer text.
func (s *Server) AskAnswer(w http.ResponseWriter, r *http.Request) {
	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer s.closeUpload(r, u)

	ctx, usage := domain.WithRequestUsage(r.Context())
	answer, err := s.qa.Answer(ctx, u.req)
	setUsageHeader(w, usage)
	if err != nil {
		s.writeDomainError(w, r, err, "", nil)
		return
	}
	writeJSON(w, http.StatusOK, answerTextResponse{Answer: answer})
}

// ListCache handles GET /v1/cache.
func (s *Server) ListCache(w http.ResponseWriter, _ *http.Request) {
	entries := s.cache.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })

	items := make([]cacheEntryJSON, len(entries))
	for i, e := range entries {
		items[i] = toCacheEntry(e)
	}
	writeJSON(w, http.StatusOK, cacheListResponse{Items: items, Total: len(items)})
}

// ClearCache handles DELETE /v1/cache.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.cache.Clear()
	logger.FromContext(r.Context()).Info("Index cache cleared", zap.Int("removed", n))
	writeJSON(w, http.StatusOK, cacheClearResponse{Removed: n})
}

// GetCacheEntry handles GET /v1/cache/{fingerprint}.
func (s *Server) GetCacheEntry(w http.ResponseWriter, r *http.Request) {
	fp, ok := fingerprintParam(w, r)
	if !ok {
		return
	}
	e, found := s.cache.Get(fp)
	if !found {
		writeError(w, http.StatusNotFound, codeNotFound, "no cached index for this fingerprint")
		return
	}
	writeJSON(w, http.StatusOK, toCacheEntry(e))
}

// RemoveCacheEntry handles DELETE /v1/cache/{fingerprint}.
func (s *Server) RemoveCacheEntry(w http.ResponseWriter, r *http.Request) {
	fp, ok := fingerprintParam(w, r)
	if !ok {
		return
	}
	if !s.cache.Remove(fp) {
		writeError(w, http.StatusNotFound, codeNotFound, "no cached index for this fingerprint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReinitializeProvider handles POST /v1/providers/{kind}/reinitialize.
func (s *Server) ReinitializeProvider(w http.ResponseWriter, r *http.Request) {
	kind := gochi.URLParam(r, "kind")
	p, ok := s.providers[kind]
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, "unknown provider kind "+kind)
		return
	}

	var req reinitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	wasInitialized := p.Initialized()
	ev := p.Reinitialize(r.Context(), req.Reason)
	s.logger.Info("Provider reinitialized",
		zap.String("kind", kind),
		zap.String("reason", ev.Reason),
		zap.Uint64("generation", ev.Generation),
		zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
	)
	writeJSON(w, http.StatusOK, reinitializeResponse{
		Kind:           kind,
		Reason:         ev.Reason,
		Generation:     ev.Generation,
		WasInitialized: wasInitialized,
	})
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, codeBadRequest, "period must be day, month or total")
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := usageResponse{
		Period:        string(report.Period),
		PeriodStartAt: timePtr(report.Start),
		PeriodEndAt:   timePtr(report.End),
		Provider:      report.Provider,
		Model:         report.Model,
		Tokens:        report.TokensUsed,
		Budget: budgetJSON{
			TokensLimit:     report.Budget.Limit,
			TokensRemaining: report.Budget.Remaining,
			IsExhausted:     report.Budget.Exhausted,
			Action:          report.Budget.Action,
			ResetsAt:        timePtr(report.Budget.ResetsAt),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:   string(report.Status),
		Checks:   checks,
		Messages: report.Messages,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	u, err := parseUpload(w, r, s.maxUploadBytes)
	if err == nil {
		return u, true
	}
	var bad *badRequestError
	if errors.As(err, &bad) {
		writeError(w, bad.status, bad.code, bad.msg)
		return nil, false
	}
	s.writeDomainError(w, r, err, "", nil)
	return nil, false
}

func (s *Server) closeUpload(r *http.Request, u *upload) {
	if err := u.Close(); err != nil {
		logger.FromContext(r.Context()).Warn("Failed to remove uploaded document", zap.Error(err))
	}
}

// writeDomainError maps err to a status and writes a user-safe message.
// Provider error text is logged, never returned.
func (s *Server) writeDomainError(
	w http.ResponseWriter, r *http.Request, err error, requestID string, stages []domain.StageMetric,
) {
	status, code := classify(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("code", code), zap.Error(err))
	} else {
		log.Warn("Request rejected", zap.String("code", code), zap.Error(err))
	}

	resp := errorResponse{
		Code:      code,
		Message:   domain.UserMessage(err),
		RequestID: requestID,
	}
	if len(stages) > 0 {
		resp.Metrics = toStages(stages)
	}
	writeJSON(w, status, resp)
}

// setUsageHeader must run before the status line is written.
func setUsageHeader(w http.ResponseWriter, usage *domain.RequestUsage) {
	if usage.Calls() > 0 {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(usage.Tokens()))
	}
}

func fingerprintParam(w http.ResponseWriter, r *http.Request) (fingerprint.Fingerprint, bool) {
	fp, err := fingerprint.Parse(gochi.URLParam(r, "fingerprint"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "fingerprint must be 64 hex characters")
		return fingerprint.Fingerprint{}, false
	}
	return fp, true
}
