package assembler

import "fmt"

// RequestFailedError reports a non-success HTTP status received before any
// streaming began. The raw response body is kept for diagnostics.
type RequestFailedError struct {
	StatusCode int
	Body       string
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// StreamError reports a transport failure that occurred mid-stream. It is
// distinct from intentional cancellation, which is never wrapped in it.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream reading error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
