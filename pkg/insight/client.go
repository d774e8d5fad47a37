package insight

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
	"github.com/marketlens/marketlens/pkg/assembler"
	"github.com/marketlens/marketlens/pkg/logger"
)

// Client is the native HTTP implementation of StreamClient. It posts the
// request to the endpoint's chat path and feeds the response body through
// the streaming assembler, so JSON-lines, SSE-framed and plain-text replies
// all yield the same accumulated text.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given endpoint base URL.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 90*time.Second)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze sends the request and assembles the response. A non-2xx status
// before streaming begins is returned as a *assembler.RequestFailedError
// carrying the status and body. Cancellation propagates as the context's
// error with no completion reported.
func (c *Client) Analyze(ctx context.Context, req Request, onUpdate UpdateFunc) (Analysis, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Analysis{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return Analysis{}, &assembler.RequestFailedError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	analysis := Analysis{
		ID:        uuid.NewString(),
		Model:     req.Model,
		CreatedAt: time.Now(),
	}

	asm := assembler.New(assembler.UpdateFunc(onUpdate), func(final string) {
		analysis.Text = final
	})

	if !isStreamingResponse(resp) {
		// Endpoint replied with a complete body: treat it as a single
		// already-complete message.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Analysis{}, &assembler.StreamError{Err: err}
		}
		asm.Feed(body)
		asm.Finish()
		analysis.RawLog = asm.RawLog()
		logger.Debug("insight %s assembled from non-streaming response (%d bytes)", analysis.ID, len(body))
		return analysis, nil
	}

	if err := asm.Consume(ctx, resp.Body); err != nil {
		return Analysis{}, err
	}
	analysis.RawLog = asm.RawLog()
	logger.Debug("insight %s assembled from %d stream lines", analysis.ID, len(analysis.RawLog))
	return analysis, nil
}

// isStreamingResponse reports whether the body should be consumed
// incrementally. Single-shot JSON replies are read whole instead.
func isStreamingResponse(resp *http.Response) bool {
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/event-stream") ||
		strings.HasPrefix(contentType, "application/x-ndjson") {
		return true
	}
	// Chunked replies without a declared length are streamed too.
	return resp.ContentLength < 0
}

// Verify interface compliance
var _ StreamClient = (*Client)(nil)
