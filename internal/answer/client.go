package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/dataghost/internal/core"
)

// DefaultTimeout bounds a request when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// maxErrorBody is how much of a non-2xx body is kept for logs.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the Answer Service over HTTP. It holds no per-session
// state and is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for opts.BaseURL.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8000"
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: base, http: hc}
}

// BaseURL returns the service root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask sends a question with its serialized data context.
//
// Transport failures and non-2xx statuses return *core.RequestError. A body
// that is not JSON or lacks an "answer" string returns *core.DecodeError.
func (c *Client) Ask(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	const op = "POST /ask"

	body, err := json.Marshal(req)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("marshal ask request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return QueryResponse{}, &core.RequestError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var wire struct {
		Answer         *string  `json:"answer"`
		Confidence     *float64 `json:"confidence"`
		Sources        []string `json:"sources"`
		SessionID      string   `json:"session_id"`
		ProcessingTime *float64 `json:"processing_time"`
	}
	if err := c.do(httpReq, op, &wire); err != nil {
		return QueryResponse{}, err
	}
	if wire.Answer == nil {
		return QueryResponse{}, &core.DecodeError{Op: op, Err: errors.New(`missing "answer" field`)}
	}

	return QueryResponse{
		Answer:         *wire.Answer,
		Confidence:     wire.Confidence,
		Sources:        wire.Sources,
		SessionID:      wire.SessionID,
		ProcessingTime: wire.ProcessingTime,
	}, nil
}

// Health probes GET /health/.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	const op = "GET /health/"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/", nil)
	if err != nil {
		return HealthStatus{}, &core.RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	var status HealthStatus
	if err := c.do(req, op, &status); err != nil {
		return HealthStatus{}, err
	}
	return status, nil
}

// Upload sends a CSV file as multipart field "file" to POST /upload.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (UploadResponse, error) {
	const op = "POST /upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResponse{}, fmt.Errorf("copy upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return UploadResponse{}, &core.RequestError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var resp UploadResponse
	if err := c.do(req, op, &resp); err != nil {
		return UploadResponse{}, err
	}
	return resp, nil
}

// ListFiles fetches GET /upload/files.
func (c *Client) ListFiles(ctx context.Context) (FileList, error) {
	const op = "GET /upload/files"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/upload/files", nil)
	if err != nil {
		return FileList{}, &core.RequestError{Op: op, Err: err}
	}

	var list FileList
	if err := c.do(req, op, &list); err != nil {
		return FileList{}, err
	}
	return list, nil
}

// DeleteFile removes a stored upload. A missing file is a *core.RequestError
// with StatusCode 404.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	const op = "DELETE /upload/files"

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/upload/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return &core.RequestError{Op: op, Err: err}
	}
	return c.do(req, op, nil)
}

// do executes req and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &core.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &core.RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A deadline hit mid-body is a transport failure, not a bad shape.
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return &core.RequestError{Op: op, Err: err}
		}
		return &core.DecodeError{Op: op, Err: err}
	}
	return nil
}
