// Package hugot runs sentence-transformer models in process through hugot.
package hugot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Provider is the identity name of in-process embedders.
const Provider = "local"

// Config selects and locates the model.
type Config struct {
	// Model is a Hugging Face repository, e.g. sentence-transformers/all-MiniLM-L6-v2.
	Model string
	// ModelDir caches downloaded models.
	ModelDir string
	// OnnxFilePath picks the ONNX file inside the repository.
	OnnxFilePath string
	// HFToken authenticates downloads of gated models.
	HFToken string
	// Device is the accelerator preference: "cpu" or "cuda".
	Device     string
	Dimensions int
	Normalize  bool
	Logger     *zap.Logger
}

type runFunc func(texts []string) ([][]float32, error)

// Embedder computes embeddings with a local ONNX model.
type Embedder struct {
	run        runFunc
	destroy    func() error
	model      string
	dimensions int
	normalize  bool
}

// NewEmbedder downloads the model if needed and starts a hugot session.
// Failures are configuration errors.
func NewEmbedder(_ context.Context, cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, domain.NewConfigurationError("embedding", errors.New("local model is not set"))
	}

	path, err := prepareModel(cfg)
	if err != nil {
		return nil, domain.NewConfigurationError("embedding", err)
	}

	if strings.EqualFold(cfg.Device, "cuda") {
		cfg.Logger.Warn("CUDA requested but the Go backend runs on CPU",
			zap.String("model", cfg.Model))
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, domain.NewConfigurationError("embedding", fmt.Errorf("create hugot session: %w", err))
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      "docqa-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			cfg.Logger.Warn("Failed to destroy hugot session", zap.Error(destroyErr))
		}
		return nil, domain.NewConfigurationError("embedding", fmt.Errorf("create feature extraction pipeline: %w", err))
	}

	cfg.Logger.Info("Local embedding model loaded",
		zap.String("model", cfg.Model),
		zap.String("path", path),
	)

	run := func(texts []string) ([][]float32, error) {
		out, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return out.Embeddings, nil
	}
	return newEmbedder(run, session.Destroy, cfg), nil
}

func newEmbedder(run runFunc, destroy func() error, cfg Config) *Embedder {
	return &Embedder{
		run:        run,
		destroy:    destroy,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		normalize:  cfg.Normalize,
	}
}

// prepareModel returns the local model directory, downloading it on first use.
func prepareModel(cfg Config) (string, error) {
	dir := cfg.ModelDir
	if dir == "" {
		dir = "./models"
	}
	path := filepath.Join(dir, strings.ReplaceAll(cfg.Model, "/", "_"))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = cfg.OnnxFilePath
	if opts.OnnxFilePath == "" {
		opts.OnnxFilePath = "onnx/model.onnx"
	}
	if cfg.HFToken != "" {
		opts.AuthToken = cfg.HFToken
	}

	downloaded, err := hugot.DownloadModel(cfg.Model, dir, opts)
	if err != nil {
		return "", fmt.Errorf("download model %s: %w", cfg.Model, err)
	}
	return downloaded, nil
}

// Identity reports the embedding space of this backend.
func (e *Embedder) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Provider: Provider, Model: e.model, Dimensions: e.dimensions}
}

// Embed vectorizes a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed vectorizes texts in one pipeline run.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	vectors, err := e.run(texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("run pipeline: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(vectors) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(vectors), domain.ErrEmbeddingProviderError)
	}

	if e.normalize {
		for _, v := range vectors {
			normalize(v)
		}
	}
	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// Close releases the hugot session.
func (e *Embedder) Close() error {
	if e.destroy == nil {
		return nil
	}
	return e.destroy()
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
