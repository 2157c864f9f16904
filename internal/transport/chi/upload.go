package chi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docqa/internal/domain"
	"github.com/kailas-cloud/docqa/internal/usecase/qa"
)

// multipartMemory is the part of a form kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// Form fields accepted by the ask endpoints.
const (
	fieldFile        = "file"
	fieldQuestion    = "question"
	fieldTopK        = "top_k"
	fieldTemperature = "temperature"
	fieldMaxTokens   = "max_tokens"
	fieldTimeoutSec  = "timeout_sec"
)

// badRequestError is a malformed form. Its message is safe to return.
type badRequestError struct {
	status int
	code   string
	msg    string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{status: http.StatusBadRequest, code: codeBadRequest, msg: fmt.Sprintf(format, args...)}
}

// upload is a parsed ask form. The document, when present, is spooled to a
// temporary file that Close removes.
type upload struct {
	req  qa.Request
	path string
}

func (u *upload) Close() error {
	if u.path == "" {
		return nil
	}
	if err := os.Remove(u.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// parseUpload reads a multipart ask form. A missing file part leaves the
// request path empty, which the pipeline reports as a missing document.
func parseUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &badRequestError{
				status: http.StatusRequestEntityTooLarge,
				code:   codePayloadTooLarge,
				msg:    fmt.Sprintf("upload exceeds %d MB", maxBytes>>20),
			}
		}
		return nil, badRequest("expected a multipart/form-data body with %q and %q fields", fieldFile, fieldQuestion)
	}

	u := &upload{}
	u.req.Query = r.FormValue(fieldQuestion)

	var err error
	if u.req.TopK, err = formInt(r, fieldTopK); err != nil {
		return nil, err
	}
	if u.req.Options.MaxTokens, err = formInt(r, fieldMaxTokens); err != nil {
		return nil, err
	}
	timeoutSec, err := formInt(r, fieldTimeoutSec)
	if err != nil {
		return nil, err
	}
	u.req.Options.Timeout = time.Duration(timeoutSec) * time.Second
	if v := r.FormValue(fieldTemperature); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 2 {
			return nil, badRequest("%s must be a number between 0 and 2", fieldTemperature)
		}
		u.req.Options.Temperature = &t
	}

	file, header, err := r.FormFile(fieldFile)
	if errors.Is(err, http.ErrMissingFile) {
		return u, nil
	}
	if err != nil {
		return nil, badRequest("unreadable %q part", fieldFile)
	}
	defer file.Close()

	path, err := spool(file, header.Filename)
	if err != nil {
		return nil, err
	}
	u.path = path
	u.req.Path = path
	return u, nil
}

// spool copies an uploaded part to a temporary file that keeps the client's
// extension, so the loader's type check sees what the user sent.
func spool(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	dst, err := os.CreateTemp("", "docqa-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", domain.NewDocumentError(filename, "upload was interrupted", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return dst.Name(), nil
}

func formInt(r *http.Request, field string) (int, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", field)
	}
	return n, nil
}
