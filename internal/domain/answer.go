package domain

import "time"

// Stage names a timed step of the question answering pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageLoad         Stage = "load"
	StageChunk        Stage = "chunk"
	StageEmbedOrCache Stage = "embed_or_cache"
	StageGenerate     Stage = "generate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageLoad, StageChunk, StageEmbedOrCache, StageGenerate}

// StageMetric is the wall time spent in one stage.
type StageMetric struct {
	Stage    Stage
	Duration time.Duration
}

// Source is a retrieved passage cited by an answer.
type Source struct {
	Page    int
	Excerpt string
	Score   float64
}

// AnswerResult is the full response to one question.
type AnswerResult struct {
	RequestID   string
	Answer      string
	Sources     []Source
	Metrics     []StageMetric
	CacheHit    bool
	Fingerprint string
	Pages       int
	Chunks      int
	Total       time.Duration
}

// Duration returns the recorded duration of a stage, zero when absent.
func (r AnswerResult) Duration(stage Stage) time.Duration {
	for _, m := range r.Metrics {
		if m.Stage == stage {
			return m.Duration
		}
	}
	return 0
}
