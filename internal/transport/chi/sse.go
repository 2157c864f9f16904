package chi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/logger"
)

// Server-sent event names emitted by AskStream.
const (
	eventMeta  = "meta"
	eventToken = "token"
	eventDone  = "done"
	eventError = "error"
)

type streamMetaJSON struct {
	RequestID   string       `json:"request_id"`
	Sources     []sourceJSON `json:"sources"`
	CacheHit    bool         `json:"cache_hit"`
	Fingerprint string       `json:"fingerprint"`
	Pages       int          `json:"pages"`
	Chunks      int          `json:"chunks"`
}

type streamTokenJSON struct {
	Text string `json:"text"`
}

type streamDoneJSON struct {
	Metrics []stageJSON `json:"metrics"`
}

// sseWriter writes text/event-stream frames and flushes each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	s.flusher.Flush()
	return nil
}

// AskStream handles POST /v1/ask/stream. Failures before the first fragment
// are plain JSON errors; later failures arrive as an error event.
func (s *Server) AskStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming is not supported")
		return
	}

	u, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer s.closeUpload(r, u)

	ctx, usage := domain.WithRequestUsage(r.Context())
	st, err := s.qa.AskStream(ctx, u.req)
	setUsageHeader(w, usage)
	if err != nil {
		var (
			requestID string
			stages    []domain.StageMetric
		)
		if st != nil {
			requestID = st.RequestID
			stages = st.Metrics()
		}
		s.writeDomainError(w, r, err, requestID, stages)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := &sseWriter{w: w, flusher: flusher}
	log := logger.FromContext(r.Context()).With(zap.String("qa_request_id", st.RequestID))

	if err := out.send(eventMeta, streamMetaJSON{
		RequestID:   st.RequestID,
		Sources:     toSources(st.Sources),
		CacheHit:    st.CacheHit,
		Fingerprint: st.Fingerprint,
		Pages:       st.Pages,
		Chunks:      st.Chunks,
	}); err != nil {
		log.Warn("Stream client went away", zap.Error(err))
		return
	}

	for frag, err := range st.Fragments {
		if err != nil {
			_, code := classify(err)
			log.Error("Answer stream failed", zap.String("code", code), zap.Error(err))
			if sendErr := out.send(eventError, errorResponse{
				Code:      code,
				Message:   domain.UserMessage(err),
				RequestID: st.RequestID,
				Metrics:   toStages(st.Metrics()),
			}); sendErr != nil {
				log.Warn("Stream client went away", zap.Error(sendErr))
			}
			return
		}
		if err := out.send(eventToken, streamTokenJSON{Text: frag}); err != nil {
			log.Warn("Stream client went away", zap.Error(err))
			return
		}
	}

	if err := out.send(eventDone, streamDoneJSON{Metrics: toStages(st.Metrics())}); err != nil {
		log.Warn("Stream client went away", zap.Error(err))
	}
}
