package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/receiptdev/receipt-manager/internal/llm"
)

// Parse implements llm.ReceiptParser using text-only chat/completions.
func (c *Client) Parse(ctx context.Context, req llm.ParseRequest) (llm.ParsedReceipt, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	if strings.TrimSpace(req.OCRText) == "" {
		return llm.ParsedReceipt{}, nil, &llm.ParseError{Message: "OCR text is empty"}
	}

	c.log.Info("llm.parse.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.OCRText),
		"taxonomy_entries", len(req.Taxonomy),
	)

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("llm.parse.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "LLM API request failed", Cause: err}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.parse.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "decode completion response", Cause: err}
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.parse.no_choices", "req_id", rid)
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "no choices in completion response"}
	}

	content, err := llm.ExtractJSONObject(cc.Choices[0].Message.Content)
	if err != nil {
		c.log.Error("llm.parse.invalid_content", "req_id", rid, "error", err)
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "Invalid JSON response from LLM", Cause: err}
	}
	content, err = llm.NormalizeParsedJSON(content, c.log)
	if err != nil {
		c.log.Error("llm.parse.invalid_json", "req_id", rid, "error", err)
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "Invalid JSON response from LLM", Cause: err}
	}

	if err := llm.ValidateAgainstSchema(llm.BuildParsedReceiptSchema(), content); err != nil {
		c.log.Error("llm.parse.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content))
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "schema validation failed", Cause: err}
	}

	var out llm.ParsedReceipt
	if err := json.Unmarshal(content, &out); err != nil {
		c.log.Error("llm.parse.unmarshal_failed", "req_id", rid, "error", err)
		return llm.ParsedReceipt{}, raw, &llm.ParseError{Message: "unmarshal parsed receipt", Cause: err}
	}

	c.log.Info("llm.parse.ok",
		"req_id", rid,
		"vendor", strOrEmpty(out.Vendor),
		"currency", strOrEmpty(out.Currency),
		"items", len(out.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, raw, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("llm response body close error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, fmt.Errorf("LLM API request failed with status: %d", resp.StatusCode)
	}
	return raw, nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
