package psychology

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marketlens/marketlens/pkg/assembler"
)

const questionnairePath = "/api/psychology/questionnaire"

// StartResponse is the payload of the questionnaire start operation. The
// backend may embed the first question directly, in which case no stream
// request is needed.
type StartResponse struct {
	SessionID      string `json:"session_id"`
	Question       string `json:"question,omitempty"`
	QuestionMeta   *Meta  `json:"question_meta,omitempty"`
	QuestionNumber int    `json:"question_number,omitempty"`
	TotalQuestions int    `json:"total_questions,omitempty"`
}

// AnswerResponse is the payload returned after submitting an answer.
type AnswerResponse struct {
	HasNextQuestion bool     `json:"has_next_question"`
	Question        string   `json:"question,omitempty"`
	QuestionMeta    *Meta    `json:"question_meta,omitempty"`
	QuestionNumber  int      `json:"question_number,omitempty"`
	TotalQuestions  int      `json:"total_questions,omitempty"`
	Advice          string   `json:"advice,omitempty"`
	Profile         *Profile `json:"profile,omitempty"`
	Analysis        string   `json:"analysis,omitempty"`
	InvestorType    string   `json:"investor_type,omitempty"`
}

// QuestionEvent is one decoded event of a question stream. Text carries an
// incremental fragment; Done marks end-of-question; Meta, when present,
// carries the normalized question fields.
type QuestionEvent struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
	Meta *Meta  `json:"meta,omitempty"`
}

// Backend is the remote questionnaire service surface the session depends
// on. APIClient is the HTTP implementation; tests substitute fakes.
type Backend interface {
	Start(ctx context.Context) (*StartResponse, error)
	StreamQuestion(ctx context.Context, sessionID string, number int) (io.ReadCloser, error)
	Answer(ctx context.Context, sessionID, answer string) (*AnswerResponse, error)
}

// APIClient talks to the questionnaire backend over HTTP.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a questionnaire client for the given base URL.
func NewAPIClient(baseURL string) *APIClient {
	return NewAPIClientWithTimeout(baseURL, 60*time.Second)
}

// NewAPIClientWithTimeout creates a questionnaire client with a custom
// request timeout. The timeout does not apply to question streams, which
// are bounded by their context instead.
func NewAPIClientWithTimeout(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Start creates a new questionnaire session.
func (c *APIClient) Start(ctx context.Context) (*StartResponse, error) {
	var out StartResponse
	if err := c.postJSON(ctx, questionnairePath+"/start", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Answer submits an answer for the session's current question.
func (c *APIClient) Answer(ctx context.Context, sessionID, answer string) (*AnswerResponse, error) {
	body := map[string]any{
		"session_id": sessionID,
		"answer":     answer,
	}
	var out AnswerResponse
	if err := c.postJSON(ctx, questionnairePath+"/answer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamQuestion opens the SSE-style stream for one question. The caller
// owns the returned body and must close it; cancelling ctx aborts the
// stream.
func (c *APIClient) StreamQuestion(ctx context.Context, sessionID string, number int) (io.ReadCloser, error) {
	payload := map[string]any{
		"session_id":      sessionID,
		"question_number": number,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + questionnairePath + "/stream-question"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	// Question streams must not be cut off by the client-wide timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &assembler.RequestFailedError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &assembler.RequestFailedError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ReadQuestionStream decodes "data: {...}" events off a question stream and
// hands each to handle until the done event, EOF, or cancellation. Lines
// that are not well-formed events are skipped. A cancelled context is
// returned as-is so callers can distinguish aborts from transport failures.
func ReadQuestionStream(ctx context.Context, body io.Reader, handle func(QuestionEvent) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event QuestionEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if !handle(event) {
			return nil
		}
		if event.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &assembler.StreamError{Err: err}
	}
	return nil
}
