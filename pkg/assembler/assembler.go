package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// UpdateFunc receives the full accumulated text after each extracted delta.
type UpdateFunc func(accumulated string)

// CompleteFunc receives the final accumulated text exactly once at stream end.
type CompleteFunc func(final string)

// Assembler turns a chunked response body into a continuously-updated text
// value. It tolerates mixed framing on the wire: JSON-lines, SSE-style
// "data:"-prefixed lines, and plain text lines. Partial lines are buffered as
// raw bytes until a newline arrives, so multi-byte UTF-8 sequences split
// across chunk boundaries are never corrupted.
type Assembler struct {
	onUpdate   UpdateFunc
	onComplete CompleteFunc

	buf         []byte
	accumulated strings.Builder
	rawLog      []string
	completed   bool
}

// New creates an Assembler. Either callback may be nil.
func New(onUpdate UpdateFunc, onComplete CompleteFunc) *Assembler {
	return &Assembler{
		onUpdate:   onUpdate,
		onComplete: onComplete,
	}
}

// Text returns the accumulated text so far. It never shrinks for the
// lifetime of one logical request.
func (a *Assembler) Text() string {
	return a.accumulated.String()
}

// RawLog returns the ordered log of processed lines, for diagnostics.
func (a *Assembler) RawLog() []string {
	return a.rawLog
}

// IsComplete reports whether Finish has run.
func (a *Assembler) IsComplete() bool {
	return a.completed
}

// Feed ingests a chunk of undecoded bytes. Every complete line is processed
// immediately; a trailing partial line is retained for the next chunk.
func (a *Assembler) Feed(chunk []byte) {
	a.buf = append(a.buf, chunk...)
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			return
		}
		line := string(a.buf[:i])
		a.buf = a.buf[i+1:]
		a.processLine(line)
	}
}

// Finish flushes any unterminated buffered line and fires the completion
// callback with the final accumulated text. It is idempotent: only the first
// call notifies.
func (a *Assembler) Finish() {
	if a.completed {
		return
	}
	if len(a.buf) > 0 {
		line := string(a.buf)
		a.buf = nil
		a.processLine(line)
	}
	a.completed = true
	if a.onComplete != nil {
		a.onComplete(a.accumulated.String())
	}
}

// Consume drives the assembler from a response body until EOF, cancellation,
// or a transport error. On EOF it calls Finish. On cancellation it stops
// reading without completing and returns the context error; the caller must
// not treat that as a failure. Any other read error is wrapped in a
// StreamError.
func (a *Assembler) Consume(ctx context.Context, body io.Reader) error {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := body.Read(buf)
		if n > 0 {
			a.Feed(buf[:n])
		}
		if err == io.EOF {
			a.Finish()
			return nil
		}
		if err != nil {
			// A body read aborted by context cancellation surfaces here.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			return &StreamError{Err: err}
		}
	}
}

// processLine applies the line-framing rules: strict JSON first, then
// "data:"-prefixed JSON, then plain text as a last resort.
func (a *Assembler) processLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	parsed, ok := parseJSONLine(line)
	if ok {
		delta, found := extractContent(parsed)
		if found && delta != "" {
			a.append(delta, line)
		}
		// JSON with no recognized content field is silently skipped.
		return
	}

	text := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if text == "" || strings.HasPrefix(text, "{") {
		// Malformed JSON fragments must not leak into visible text.
		return
	}
	a.append(text, text)
}

func (a *Assembler) append(delta, logged string) {
	a.accumulated.WriteString(delta)
	a.rawLog = append(a.rawLog, logged)
	if a.onUpdate != nil {
		a.onUpdate(a.accumulated.String())
	}
}

// parseJSONLine attempts a strict JSON parse of the line, and failing that,
// of the remainder after a literal "data:" prefix.
func parseJSONLine(line string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err == nil {
		return v, true
	}
	if strings.HasPrefix(line, "data:") {
		after := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if err := json.Unmarshal([]byte(after), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

// extractContent pulls a content delta out of a decoded JSON value. Known
// shapes are checked in order; the first string match wins:
//
//	message.content
//	choices[0].message.content
//	result
//	text
//	output
func extractContent(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}

	if msg, ok := obj["message"].(map[string]any); ok {
		if content, ok := msg["content"].(string); ok {
			return content, true
		}
	}
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if msg, ok := first["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok {
					return content, true
				}
			}
		}
	}
	if result, ok := obj["result"].(string); ok {
		return result, true
	}
	if text, ok := obj["text"].(string); ok {
		return text, true
	}
	if output, ok := obj["output"].(string); ok {
		return output, true
	}
	return "", false
}
