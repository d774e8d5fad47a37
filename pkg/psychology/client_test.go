package psychology

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/pkg/assembler"
)

func TestAPIClientStart(t *testing.T) {
	t.Run("should create a session", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/psychology/questionnaire/start", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			json.NewEncoder(w).Encode(StartResponse{
				SessionID:      "sess-42",
				Question:       "請描述你最近一次的投資決策過程",
				QuestionNumber: 1,
				TotalQuestions: 5,
			})
		}))
		defer server.Close()

		client := NewAPIClient(server.URL)
		resp, err := client.Start(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "sess-42", resp.SessionID)
		assert.Equal(t, 1, resp.QuestionNumber)
		assert.Equal(t, 5, resp.TotalQuestions)
	})

	t.Run("non-200 surfaces as RequestFailedError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "backend exploded", http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewAPIClient(server.URL)
		_, err := client.Start(context.Background())

		var reqErr *assembler.RequestFailedError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusBadGateway, reqErr.StatusCode)
		assert.Contains(t, reqErr.Body, "backend exploded")
	})
}

func TestAPIClientAnswer(t *testing.T) {
	t.Run("should post the session id and answer text", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/psychology/questionnaire/answer", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sess-42", body["session_id"])
			assert.Equal(t, "觀望等待", body["answer"])

			json.NewEncoder(w).Encode(AnswerResponse{
				HasNextQuestion: true,
				QuestionNumber:  2,
			})
		}))
		defer server.Close()

		client := NewAPIClient(server.URL)
		resp, err := client.Answer(context.Background(), "sess-42", "觀望等待")
		require.NoError(t, err)
		assert.True(t, resp.HasNextQuestion)
		assert.Equal(t, 2, resp.QuestionNumber)
	})
}

func TestAPIClientStreamQuestion(t *testing.T) {
	t.Run("should open an event stream for the question", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/psychology/questionnaire/stream-question", r.URL.Path)
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "sess-42", body["session_id"])
			assert.Equal(t, float64(3), body["question_number"])

			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte(`data: {"text":"問題片段"}` + "\n"))
			w.Write([]byte(`data: {"done":true}` + "\n"))
		}))
		defer server.Close()

		client := NewAPIClient(server.URL)
		body, err := client.StreamQuestion(context.Background(), "sess-42", 3)
		require.NoError(t, err)
		defer body.Close()

		var events []QuestionEvent
		err = ReadQuestionStream(context.Background(), body, func(e QuestionEvent) bool {
			events = append(events, e)
			return true
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "問題片段", events[0].Text)
		assert.True(t, events[1].Done)
	})

	t.Run("non-200 closes the body and reports the failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no such session", http.StatusNotFound)
		}))
		defer server.Close()

		client := NewAPIClient(server.URL)
		_, err := client.StreamQuestion(context.Background(), "gone", 1)

		var reqErr *assembler.RequestFailedError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	})
}

func TestReadQuestionStream(t *testing.T) {
	t.Run("should skip lines that are not well-formed events", func(t *testing.T) {
		body := strings.NewReader(strings.Join([]string{
			`: keepalive comment`,
			``,
			`data: not json at all`,
			`data: {"text":"有效片段"}`,
			`event: message`,
			`data: {"done":true}`,
		}, "\n"))

		var texts []string
		err := ReadQuestionStream(context.Background(), body, func(e QuestionEvent) bool {
			if e.Text != "" {
				texts = append(texts, e.Text)
			}
			return true
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"有效片段"}, texts)
	})

	t.Run("should stop when the handler declines more events", func(t *testing.T) {
		body := strings.NewReader(strings.Join([]string{
			`data: {"text":"first"}`,
			`data: {"text":"second"}`,
		}, "\n"))

		var seen int
		err := ReadQuestionStream(context.Background(), body, func(e QuestionEvent) bool {
			seen++
			return false
		})
		require.NoError(t, err)
		assert.Equal(t, 1, seen)
	})

	t.Run("should not read past the done event", func(t *testing.T) {
		body := strings.NewReader(strings.Join([]string{
			`data: {"done":true}`,
			`data: {"text":"late"}`,
		}, "\n"))

		var texts []string
		err := ReadQuestionStream(context.Background(), body, func(e QuestionEvent) bool {
			texts = append(texts, e.Text)
			return true
		})
		require.NoError(t, err)
		assert.Empty(t, texts[0])
		assert.Len(t, texts, 1)
	})

	t.Run("transport failure surfaces as StreamError", func(t *testing.T) {
		err := ReadQuestionStream(context.Background(), &failingReader{}, func(QuestionEvent) bool {
			return true
		})
		var streamErr *assembler.StreamError
		require.ErrorAs(t, err, &streamErr)
	})
}

type failingReader struct{}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, assert.AnError
}
