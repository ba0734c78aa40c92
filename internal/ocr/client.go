package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/constants"
)

// ExtractionError is the single failure class the extraction client reports.
// Transport errors, non-2xx statuses and unparseable response shapes all
// collapse into it; callers do not distinguish further.
type ExtractionError struct {
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// ExtractionResult is the normalized output of one extraction call.
type ExtractionResult struct {
	Text       string
	Confidence *float64 // absent for response shapes that carry none
	Pages      int
	Raw        []byte // verbatim response body, retained for audit
}

// TextExtractor is the interface the pipeline depends on.
type TextExtractor interface {
	Extract(ctx context.Context, path, mimeType string) (ExtractionResult, error)
}

// Config holds the remote OCR service settings.
type Config struct {
	BaseURL  string
	APIKey   string // passed as api_key query parameter
	APIToken string // passed as bearer token
	Timeout  time.Duration
}

// Client calls the external OCR service over HTTP. The image and document
// code paths differ only in endpoint; both upload the file as multipart
// form data under the images[] field.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

const (
	imagePath    = "/v1/extract/image/text"
	documentPath = "/v1/extract/pdf/text"
)

// Extract uploads the file and returns the normalized extraction result. The
// mime type selects the document (PDF) or image endpoint.
func (c *Client) Extract(ctx context.Context, path, mimeType string) (ExtractionResult, error) {
	reqID := uuid.New().String()
	start := time.Now()

	endpoint := imagePath
	if constants.IsPDF(mimeType) {
		endpoint = documentPath
	}
	target := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	if c.cfg.APIKey != "" {
		target += "?api_key=" + url.QueryEscape(c.cfg.APIKey)
	}

	body, contentType, err := buildUpload(path)
	if err != nil {
		return ExtractionResult{}, &ExtractionError{Message: "read receipt file", Cause: err}
	}

	c.logger.Info("ocr.extract.request",
		"req_id", reqID,
		"endpoint", endpoint,
		"file", filepath.Base(path),
		"bytes", body.Len(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return ExtractionResult{}, &ExtractionError{Message: "build OCR request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ocr.extract.send_error",
			"req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return ExtractionResult{}, &ExtractionError{Message: "OCR request failed", Cause: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("ocr.extract.body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	c.logger.Info("ocr.extract.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return ExtractionResult{}, &ExtractionError{
			Message: fmt.Sprintf("OCR API request failed with status: %d", resp.StatusCode),
		}
	}

	res, err := normalizeResponse(raw)
	if err != nil {
		c.logger.Error("ocr.extract.normalize_error", "req_id", reqID, "error", err)
		return ExtractionResult{}, &ExtractionError{Message: "unexpected OCR response shape", Cause: err}
	}
	return res, nil
}

// buildUpload assembles the multipart body. The service expects the file under
// images[] for both code paths.
func buildUpload(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("images[]", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
