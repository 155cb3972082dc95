// Package http implements the analysis backend client over its REST and
// server-sent-event endpoints.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vportnov/scriptrate"
)

// Client talks to the rating backend. It implements
// scriptrate.AnalysisService.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *log.Logger

	watchdogInterval time.Duration
}

var _ scriptrate.AnalysisService = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithWatchdogInterval sets the stream silence threshold.
func WithWatchdogInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.watchdogInterval = d }
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		httpc:            &http.Client{Timeout: 2 * time.Minute},
		logger:           log.New(io.Discard),
		watchdogInterval: 20 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Scenario fetches the parsed scene list for a document.
func (c *Client) Scenario(ctx context.Context, docID string) ([]scriptrate.Scene, error) {
	var payload struct {
		Scenes []scriptrate.Scene `json:"scenes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/scenario/"+url.PathEscape(docID), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Scenes, nil
}

// EditSentence submits an edited sentence and returns the updated analysis.
func (c *Client) EditSentence(ctx context.Context, docID string, sceneIndex, sentenceIndex int, text string) (*scriptrate.Analysis, error) {
	body := map[string]any{
		"scene_index":    sceneIndex,
		"sentence_index": sentenceIndex,
		"text":           text,
	}
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodPatch, "/api/edit/violation/sentence/"+url.PathEscape(docID), body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AddViolation registers a user-created violation on the backend.
func (c *Client) AddViolation(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodPost, "/api/edit/violation/add/"+url.PathEscape(docID), change, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateViolation replaces a violation's classification metadata.
func (c *Client) UpdateViolation(ctx context.Context, docID string, change scriptrate.ViolationChange) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodPut, "/api/edit/violation/update/"+url.PathEscape(docID), change, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CancelViolation withdraws a violation.
func (c *Client) CancelViolation(ctx context.Context, docID string, sceneIndex, sentenceIndex int) (*scriptrate.Analysis, error) {
	body := map[string]any{
		"scene_index":    sceneIndex,
		"sentence_index": sentenceIndex,
	}
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodPost, "/api/edit/violation/cancel/"+url.PathEscape(docID), body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RecalcRating asks the backend to recompute the whole-script rating from
// its current violation set.
func (c *Client) RecalcRating(ctx context.Context, docID string) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodGet, "/api/rating/recalc/"+url.PathEscape(docID), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// RecalcScene re-analyzes a single scene with its edited sentences.
func (c *Client) RecalcScene(ctx context.Context, docID string, req scriptrate.SceneRecalc) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	if err := c.doJSON(ctx, http.MethodPost, "/api/scene/recalc_one/"+url.PathEscape(docID), req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// StageResult fetches the stored result of a pipeline stage ("1", "2", or
// "final"). A stage the backend has not produced yet is reported as
// scriptrate.ErrStageNotReady.
func (c *Client) StageResult(ctx context.Context, docID, stage string) (*scriptrate.Analysis, error) {
	var a scriptrate.Analysis
	err := c.doJSON(ctx, http.MethodGet, "/api/stage/"+url.PathEscape(docID)+"/"+url.PathEscape(stage), nil, &a)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusConflict) {
			return nil, scriptrate.ErrStageNotReady
		}
		return nil, err
	}
	return &a, nil
}

// Replace submits an AI rewrite request for flagged sentences.
func (c *Client) Replace(ctx context.Context, docID string, req scriptrate.RewriteRequest) (*scriptrate.RewriteResult, error) {
	var result scriptrate.RewriteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai/replace/"+url.PathEscape(docID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Report downloads the rendered final report.
func (c *Client) Report(ctx context.Context, docID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/report/"+url.PathEscape(docID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Upload submits a screenplay file and returns the backend-assigned
// document id along with the parsed scenes.
func (c *Client) Upload(ctx context.Context, filename string, src io.Reader) (string, []scriptrate.Scene, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return "", nil, err
	}
	if err := form.Close(); err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/scenario/upload", &buf)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, readAPIError(resp)
	}
	var out struct {
		DocID  string             `json:"doc_id"`
		Scenes []scriptrate.Scene `json:"scenes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, err
	}
	return out.DocID, out.Scenes, nil
}

// Ping checks backend reachability.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return readAPIError(resp)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
		msg = detail.Detail
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
