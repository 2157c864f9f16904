// Package document turns PDF files into page records and page records into chunks.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// ErrPDFToolNotFound indicates pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

const pdfTool = "pdftotext"

// CommandRunner executes external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PDFLoader extracts page text with pdftotext.
type PDFLoader struct {
	runner CommandRunner
	logger *zap.Logger
}

// NewPDFLoader creates a loader that runs the system pdftotext.
func NewPDFLoader(logger *zap.Logger) *PDFLoader {
	return &PDFLoader{runner: execRunner{}, logger: logger}
}

// NewPDFLoaderWithRunner creates a loader with a custom command runner.
func NewPDFLoaderWithRunner(runner CommandRunner, logger *zap.Logger) *PDFLoader {
	return &PDFLoader{runner: runner, logger: logger}
}

// Load returns the pages of the PDF at path in document order. Every failure
// is a *domain.DocumentError.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]domain.Page, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.NewDocumentError("", "no file provided", nil)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, domain.NewDocumentError(path, "file not found", nil)
	case err != nil:
		return nil, domain.NewDocumentError(path, "file is not readable", err)
	case info.IsDir():
		return nil, domain.NewDocumentError(path, "path is a directory", nil)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return nil, domain.NewDocumentError(path, fmt.Sprintf("expected a .pdf file, got %q", ext), nil)
	}
	if info.Size() == 0 {
		return nil, domain.NewDocumentError(path, "file is empty (0 bytes)", nil)
	}

	l.logger.Info("Loading PDF", zap.String("path", path), zap.Int64("bytes", info.Size()))

	out, err := l.runner.Run(ctx, pdfTool, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if errors.Is(err, ErrPDFToolNotFound) {
			return nil, domain.NewConfigurationError("pdf_loader", err)
		}
		return nil, domain.NewDocumentError(path, "failed to parse PDF", err)
	}

	pages := splitPages(string(out))
	if !hasText(pages) {
		return nil, domain.NewDocumentError(path,
			"no extractable text, the PDF may be scanned or image-only", nil)
	}

	l.logger.Info("Loaded PDF", zap.String("path", path), zap.Int("pages", len(pages)))
	return pages, nil
}

// splitPages cuts pdftotext output on form feeds. pdftotext terminates every
// page with one, so a trailing empty segment is dropped.
func splitPages(out string) []domain.Page {
	parts := strings.Split(out, "\f")
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}

	pages := make([]domain.Page, len(parts))
	for i, text := range parts {
		pages[i] = domain.Page{Number: i + 1, Text: text}
	}
	return pages
}

func hasText(pages []domain.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
