package chi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/domain/fingerprint"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/index"
	"github.com/kailas-cloud/docqa/internal/repository/indexcache"
	healthuc "github.com/kailas-cloud/docqa/internal/usecase/health"
	"github.com/kailas-cloud/docqa/internal/usecase/lazy"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

// --- fakes ---

type fakeQA struct {
	res       domain.AnswerResult
	err       error
	stream    *qa.Stream
	streamErr error
	tokens    int

	gotReq     qa.Request
	gotContent string
}

func (f *fakeQA) capture(req qa.Request) {
	f.gotReq = req
	if req.Path != "" {
		data, _ := os.ReadFile(req.Path)
		f.gotContent = string(data)
	}
}

func (f *fakeQA) Ask(ctx context.Context, req qa.Request) (domain.AnswerResult, error) {
	f.capture(req)
	if f.tokens > 0 {
		domain.RequestUsageFrom(ctx).Add(f.tokens)
	}
	return f.res, f.err
}

func (f *fakeQA) Answer(_ context.Context, req qa.Request) (string, error) {
	f.capture(req)
	return f.res.Answer, f.err
}

func (f *fakeQA) AskStream(_ context.Context, req qa.Request) (*qa.Stream, error) {
	f.capture(req)
	return f.stream, f.streamErr
}

type fakeCache struct {
	entries []indexcache.Entry
	removed []fingerprint.Fingerprint
}

func (f *fakeCache) Entries() []indexcache.Entry { return f.entries }

func (f *fakeCache) Get(fp fingerprint.Fingerprint) (indexcache.Entry, bool) {
	for _, e := range f.entries {
		if e.Fingerprint == fp {
			return e, true
		}
	}
	return indexcache.Entry{}, false
}

func (f *fakeCache) Remove(fp fingerprint.Fingerprint) bool {
	for i, e := range f.entries {
		if e.Fingerprint == fp {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			f.removed = append(f.removed, fp)
			return true
		}
	}
	return false
}

func (f *fakeCache) Clear() int {
	n := len(f.entries)
	f.entries = nil
	return n
}

type fakeReinit struct {
	initialized bool
	generation  uint64
	reasons     []string
}

func (f *fakeReinit) Initialized() bool { return f.initialized }

func (f *fakeReinit) Reinitialize(_ context.Context, reason string) lazy.Event {
	f.generation++
	f.initialized = false
	f.reasons = append(f.reasons, reason)
	return lazy.Event{Kind: "embedding", Reason: reason, Generation: f.generation}
}

type fakeUsage struct {
	gotPeriod domusage.Period
}

func (f *fakeUsage) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	f.gotPeriod = period
	return domusage.Report{
		Period:     period,
		Start:      time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		TokensUsed: 1200,
		Budget:     domusage.Budget{Limit: 5000, Remaining: 3800, Action: "reject"},
	}
}

type fakeHealth struct {
	report healthuc.Report
}

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

// --- helpers ---

type fixture struct {
	qa      *fakeQA
	cache   *fakeCache
	reinit  *fakeReinit
	usage   *fakeUsage
	health  *fakeHealth
	handler http.Handler
}

func newFixture(t *testing.T, apiKeys []string, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		qa:     &fakeQA{},
		cache:  &fakeCache{},
		reinit: &fakeReinit{initialized: true},
		usage:  &fakeUsage{},
		health: &fakeHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"embedding": healthuc.CheckOK},
		}},
	}
	opts = append(opts, WithProvider("embedding", f.reinit))
	s := NewServer(f.qa, f.cache, f.usage, f.health, zap.NewNop(), opts...)
	f.handler = NewRouter(s, apiKeys, zap.NewNop())
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func askRequest(t *testing.T, path string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile(fieldFile, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func sampleMetrics() []domain.StageMetric {
	return []domain.StageMetric{
		{Stage: domain.StageLoad, Duration: 12 * time.Millisecond},
		{Stage: domain.StageChunk, Duration: 3 * time.Millisecond},
		{Stage: domain.StageEmbedOrCache, Duration: 0},
		{Stage: domain.StageGenerate, Duration: 0},
	}
}

// --- ask ---

func TestAsk_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.res = domain.AnswerResult{
		RequestID:   "req-1",
		Answer:      "Records are kept for seven years.",
		Sources:     []domain.Source{{Page: 2, Excerpt: "kept for seven years", Score: 0.91}},
		Metrics:     sampleMetrics(),
		CacheHit:    true,
		Fingerprint: strings.Repeat("ab", 32),
		Pages:       3,
		Chunks:      5,
		Total:       1500 * time.Millisecond,
	}

	rr := f.do(askRequest(t, "/v1/ask", map[string]string{
		fieldQuestion:    "How long are records kept?",
		fieldTopK:        "3",
		fieldTemperature: "0.2",
		fieldMaxTokens:   "256",
		fieldTimeoutSec:  "30",
	}, "Policy.PDF", "%PDF-1.4 fake"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decode[AnswerResponse](t, rr)
	if resp.Answer != "Records are kept for seven years." || resp.RequestID != "req-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Page != 2 {
		t.Errorf("sources: got %+v", resp.Sources)
	}
	if len(resp.Metrics) != 4 || resp.Metrics[0].Stage != "load" || resp.Metrics[0].DurationMs != 12 {
		t.Errorf("metrics: got %+v", resp.Metrics)
	}
	if resp.TotalMs != 1500 || !resp.CacheHit || resp.Chunks != 5 {
		t.Errorf("summary fields: got %+v", resp)
	}

	got := f.qa.gotReq
	if got.Query != "How long are records kept?" || got.TopK != 3 {
		t.Errorf("request: got %+v", got)
	}
	if got.Options.Temperature == nil || *got.Options.Temperature != 0.2 {
		t.Errorf("temperature: got %v", got.Options.Temperature)
	}
	if got.Options.MaxTokens != 256 || got.Options.Timeout != 30*time.Second {
		t.Errorf("options: got %+v", got.Options)
	}
	if !strings.HasSuffix(got.Path, ".pdf") {
		t.Errorf("spooled path should keep the lowercased extension, got %q", got.Path)
	}
	if f.qa.gotContent != "%PDF-1.4 fake" {
		t.Errorf("spooled content: got %q", f.qa.gotContent)
	}
	if _, err := os.Stat(got.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("upload %s should be removed after the request, stat err = %v", got.Path, err)
	}
}

func TestAsk_EmbeddingTokensHeader(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.res = domain.AnswerResult{Answer: "ok"}
	f.qa.tokens = 42

	rr := f.do(askRequest(t, "/v1/ask", map[string]string{fieldQuestion: "q"}, "a.pdf", "%PDF"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if got := rr.Header().Get(headerEmbeddingTokens); got != "42" {
		t.Errorf("%s: got %q, want 42", headerEmbeddingTokens, got)
	}

	f.qa.tokens = 0
	rr = f.do(askRequest(t, "/v1/ask", map[string]string{fieldQuestion: "q"}, "a.pdf", "%PDF"))
	if got := rr.Header().Get(headerEmbeddingTokens); got != "" {
		t.Errorf("header should be absent without embedding calls, got %q", got)
	}
}

func TestAsk_MissingFile_PassesEmptyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.err = domain.ErrMissingDocument

	rr := f.do(askRequest(t, "/v1/ask", map[string]string{fieldQuestion: "hi"}, "", ""))

	if f.qa.gotReq.Path != "" {
		t.Errorf("path: got %q, want empty", f.qa.gotReq.Path)
	}
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	resp := decode[errorResponse](t, rr)
	if resp.Code != codeDocument || resp.Message != domain.UserMessage(domain.ErrMissingDocument) {
		t.Errorf("error: got %+v", resp)
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	providerDetail := "dial tcp 10.0.0.7:11434: connection refused"

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty query", domain.ErrEmptyQuery, http.StatusUnprocessableEntity, codeInvalidQuery},
		{"query too long", domain.ErrQueryTooLong, http.StatusUnprocessableEntity, codeInvalidQuery},
		{"document", domain.NewDocumentError("a.txt", "only PDF files are supported", nil),
			http.StatusUnprocessableEntity, codeDocument},
		{"quota", &domain.EmbeddingError{Provider: "openai", Err: domain.ErrEmbeddingQuotaExceeded},
			http.StatusTooManyRequests, codeQuotaExceeded},
		{"configuration", domain.NewConfigurationError("generation", errors.New(providerDetail)),
			http.StatusServiceUnavailable, codeConfiguration},
		{"cache consistency", &domain.CacheConsistencyError{
			Want: domain.ProviderIdentity{Provider: "ollama", Model: "a"},
			Got:  domain.ProviderIdentity{Provider: "openai", Model: "b"},
		}, http.StatusConflict, codeCacheConsistency},
		{"embedding", &domain.EmbeddingError{Provider: "ollama", Err: errors.New(providerDetail)},
			http.StatusBadGateway, codeEmbedding},
		{"generation timeout", &domain.GenerationError{Provider: "ollama", Timeout: true, Err: context.DeadlineExceeded},
			http.StatusGatewayTimeout, codeGenerationTimeout},
		{"generation", &domain.GenerationError{Provider: "ollama", Err: errors.New(providerDetail)},
			http.StatusBadGateway, codeGeneration},
		{"unknown", errors.New(providerDetail), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.qa.res = domain.AnswerResult{RequestID: "req-err", Metrics: sampleMetrics()}
			f.qa.err = tt.err

			rr := f.do(askRequest(t, "/v1/ask", map[string]string{fieldQuestion: "q"}, "doc.pdf", "x"))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.wantStatus)
			}
			resp := decode[errorResponse](t, rr)
			if resp.Code != tt.wantCode {
				t.Errorf("code: got %s, want %s", resp.Code, tt.wantCode)
			}
			if resp.Message != domain.UserMessage(tt.err) {
				t.Errorf("message: got %q, want %q", resp.Message, domain.UserMessage(tt.err))
			}
			if strings.Contains(resp.Message, "10.0.0.7") {
				t.Errorf("message leaks provider detail: %q", resp.Message)
			}
			if resp.RequestID != "req-err" {
				t.Errorf("request_id: got %q", resp.RequestID)
			}
			if len(resp.Metrics) != len(domain.Stages) {
				t.Errorf("metrics should accompany errors, got %+v", resp.Metrics)
			}
		})
	}
}

func TestAsk_BadForm(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"top_k not a number", map[string]string{fieldQuestion: "q", fieldTopK: "abc"}},
		{"negative max_tokens", map[string]string{fieldQuestion: "q", fieldMaxTokens: "-1"}},
		{"temperature out of range", map[string]string{fieldQuestion: "q", fieldTemperature: "5"}},
		{"timeout not a number", map[string]string{fieldQuestion: "q", fieldTimeoutSec: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rr := f.do(askRequest(t, "/v1/ask", tt.fields, "doc.pdf", "x"))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if resp := decode[errorResponse](t, rr); resp.Code != codeBadRequest {
				t.Errorf("code: got %s, want %s", resp.Code, codeBadRequest)
			}
		})
	}
}

func TestAsk_NotMultipart(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")

	rr := f.do(req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAsk_UploadTooLarge(t *testing.T) {
	f := newFixture(t, nil, WithMaxUploadBytes(1024))

	rr := f.do(askRequest(t, "/v1/ask", map[string]string{fieldQuestion: "q"}, "big.pdf", strings.Repeat("x", 4096)))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codePayloadTooLarge {
		t.Errorf("code: got %s, want %s", resp.Code, codePayloadTooLarge)
	}
}

func TestAskAnswer_ReturnsText(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.res = domain.AnswerResult{Answer: "Seven years."}

	rr := f.do(askRequest(t, "/v1/ask/answer", map[string]string{fieldQuestion: "q"}, "doc.pdf", "x"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if resp := decode[answerTextResponse](t, rr); resp.Answer != "Seven years." {
		t.Errorf("answer: got %q", resp.Answer)
	}
}

// --- stream ---

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func fragments(parts []string, tail error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
		if tail != nil {
			yield("", tail)
		}
	}
}

func TestAskStream_Events(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.stream = &qa.Stream{
		RequestID: "req-s",
		Sources:   []domain.Source{{Page: 1, Excerpt: "e", Score: 0.5}},
		Chunks:    2,
		Fragments: fragments([]string{"Seven", " years."}, nil),
	}

	rr := f.do(askRequest(t, "/v1/ask/stream", map[string]string{fieldQuestion: "q"}, "doc.pdf", "x"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q", ct)
	}

	events := readEvents(t, rr.Body.String())
	var names []string
	for _, e := range events {
		names = append(names, e.name)
	}
	want := []string{eventMeta, eventToken, eventToken, eventDone}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("events: got %v, want %v", names, want)
	}

	var meta streamMetaJSON
	if err := json.Unmarshal([]byte(events[0].data), &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.RequestID != "req-s" || len(meta.Sources) != 1 || meta.Chunks != 2 {
		t.Errorf("meta: got %+v", meta)
	}

	var text strings.Builder
	for _, e := range events[1:3] {
		var tok streamTokenJSON
		if err := json.Unmarshal([]byte(e.data), &tok); err != nil {
			t.Fatalf("decode token: %v", err)
		}
		text.WriteString(tok.Text)
	}
	if text.String() != "Seven years." {
		t.Errorf("streamed text: got %q", text.String())
	}
}

func TestAskStream_FailureMidStream(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.stream = &qa.Stream{
		RequestID: "req-s",
		Fragments: fragments([]string{"Par"}, &domain.GenerationError{Provider: "ollama", Err: errors.New("eof")}),
	}

	rr := f.do(askRequest(t, "/v1/ask/stream", map[string]string{fieldQuestion: "q"}, "doc.pdf", "x"))

	events := readEvents(t, rr.Body.String())
	if len(events) != 3 || events[2].name != eventError {
		t.Fatalf("events: got %+v", events)
	}
	var resp errorResponse
	if err := json.Unmarshal([]byte(events[2].data), &resp); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if resp.Code != codeGeneration || resp.RequestID != "req-s" {
		t.Errorf("error event: got %+v", resp)
	}
}

func TestAskStream_FailureBeforeStream(t *testing.T) {
	f := newFixture(t, nil)
	f.qa.stream = &qa.Stream{RequestID: "req-s"}
	f.qa.streamErr = domain.ErrEmptyQuery

	rr := f.do(askRequest(t, "/v1/ask/stream", map[string]string{fieldQuestion: ""}, "doc.pdf", "x"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	resp := decode[errorResponse](t, rr)
	if resp.Code != codeInvalidQuery || resp.RequestID != "req-s" {
		t.Errorf("error: got %+v", resp)
	}
}

// --- cache ---

func cacheEntry(t *testing.T, text string, created time.Time) indexcache.Entry {
	t.Helper()
	chunks := []domain.Chunk{{Text: text, Page: 1}}
	idx, err := index.New(domain.ProviderIdentity{Provider: "ollama", Model: "nomic-embed-text"},
		chunks, [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return indexcache.Entry{Fingerprint: fingerprint.Of(chunks), Index: idx, CreatedAt: created, Chunks: 1}
}

func TestListCache_NewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	older := cacheEntry(t, "a", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := cacheEntry(t, "b", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	f.cache.entries = []indexcache.Entry{older, newer}

	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/cache", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decode[cacheListResponse](t, rr)
	if resp.Total != 2 || resp.Items[0].Fingerprint != newer.Fingerprint.String() {
		t.Fatalf("list: got %+v", resp)
	}
	if resp.Items[0].Provider != "ollama" || resp.Items[0].Dimensions != 3 {
		t.Errorf("entry: got %+v", resp.Items[0])
	}
}

func TestGetCacheEntry(t *testing.T) {
	f := newFixture(t, nil)
	e := cacheEntry(t, "a", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	f.cache.entries = []indexcache.Entry{e}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/v1/cache/" + e.Fingerprint.String(), http.StatusOK},
		{"missing", "/v1/cache/" + strings.Repeat("0", 64), http.StatusNotFound},
		{"malformed", "/v1/cache/xyz", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			got := decode[cacheEntryJSON](t, rr)
			if got.Fingerprint != e.Fingerprint.String() || got.Model != "nomic-embed-text" || got.Chunks != 1 {
				t.Errorf("entry: got %+v", got)
			}
		})
	}
}

func TestRemoveCacheEntry(t *testing.T) {
	f := newFixture(t, nil)
	e := cacheEntry(t, "a", time.Now())
	f.cache.entries = []indexcache.Entry{e}

	rr := f.do(httptest.NewRequest(http.MethodDelete, "/v1/cache/"+e.Fingerprint.String(), http.NoBody))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("remove: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = f.do(httptest.NewRequest(http.MethodDelete, "/v1/cache/"+e.Fingerprint.String(), http.NoBody))
	if rr.Code != http.StatusNotFound {
		t.Errorf("remove again: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = f.do(httptest.NewRequest(http.MethodDelete, "/v1/cache/not-hex", http.NoBody))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad fingerprint: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestClearCache(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.entries = []indexcache.Entry{cacheEntry(t, "a", time.Now()), cacheEntry(t, "b", time.Now())}

	rr := f.do(httptest.NewRequest(http.MethodDelete, "/v1/cache", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if resp := decode[cacheClearResponse](t, rr); resp.Removed != 2 {
		t.Errorf("removed: got %d, want 2", resp.Removed)
	}
}

// --- providers, usage, health ---

func TestReinitializeProvider(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/providers/embedding/reinitialize",
		strings.NewReader(`{"reason":"model swapped"}`))
	rr := f.do(req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decode[reinitializeResponse](t, rr)
	if resp.Kind != "embedding" || resp.Reason != "model swapped" || resp.Generation != 1 || !resp.WasInitialized {
		t.Errorf("response: got %+v", resp)
	}
}

func TestReinitializeProvider_EmptyBodyUsesDefaultReason(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/v1/providers/embedding/reinitialize", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if len(f.reinit.reasons) != 1 || f.reinit.reasons[0] != "api request" {
		t.Errorf("reasons: got %v", f.reinit.reasons)
	}
}

func TestReinitializeProvider_UnknownKind(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodPost, "/v1/providers/vision/reinitialize", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGetUsage(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/usage?period=month", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decode[usageResponse](t, rr)
	if resp.Period != "month" || resp.Tokens != 1200 || resp.Budget.TokensRemaining != 3800 {
		t.Errorf("usage: got %+v", resp)
	}
	if resp.PeriodStartAt == nil || resp.Budget.ResetsAt != nil {
		t.Errorf("timestamps: start %v resets %v", resp.PeriodStartAt, resp.Budget.ResetsAt)
	}
}

func TestGetUsage_InvalidPeriod(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/usage?period=week", http.NoBody))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHealthCheck_Status(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t, []string{"secret"})
			f.health.report = healthuc.Report{Status: tt.status, Checks: map[string]healthuc.CheckResult{}}

			rr := f.do(httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if resp := decode[healthResponse](t, rr); resp.Status != string(tt.status) {
				t.Errorf("body status: got %q", resp.Status)
			}
		})
	}
}

// --- router ---

func TestRouter_AuthAndRequestID(t *testing.T) {
	f := newFixture(t, []string{"secret"})

	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/cache", http.NoBody))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/cache", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr = f.do(req)
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/v1/collections", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeNotFound {
		t.Errorf("code: got %s", resp.Code)
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if resp := decode[errorResponse](t, rr); resp.Code != codeInternal {
		t.Errorf("code: got %s", resp.Code)
	}
}
