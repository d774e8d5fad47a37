package psychology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marketlens/marketlens/pkg/flow"
	"github.com/marketlens/marketlens/pkg/logger"
)

// State is the session's position in the questionnaire flow.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAwaitingQuestion
	StateAwaitingAnswer
	StateSubmitting
	StateFinished
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAwaitingQuestion:
		return "awaiting_question"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateSubmitting:
		return "submitting"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ValidationError reports an answer rejected before any network call. It is
// surfaced inline, never as a session failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AnswerInput carries the user's answer for the current question. For
// single-choice questions SelectedIndex identifies the option (-1 means no
// selection); for Likert questions LikertValue is the 1-5 rating; free text
// goes in Text.
type AnswerInput struct {
	Text          string
	SelectedIndex int
	LikertValue   int
}

// SessionConfig tunes the session. Zero values fall back to the reference
// behavior: 100ms streaming throttle, default malformed-question thresholds.
type SessionConfig struct {
	ThrottleInterval time.Duration
	Detection        DetectionConfig

	// OnQuestionText observes throttled streaming-question updates: the
	// partial text plus any provisionally extracted options.
	OnQuestionText func(text string, provisionalOptions []string)
}

// Session is the client-side questionnaire state machine. All state is
// in-memory and owned by the session; mutation happens only through Start,
// SubmitAnswer, Regenerate and Reset, plus the single in-flight question
// stream. At most one question stream is active at a time: newer streams
// cancel older ones.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	backend Backend
	cfg     SessionConfig

	state           State
	sessionID       string
	questionIndex   int
	totalQuestions  int
	current         *Question
	streamedOptions []string
	responses       []Response

	advice       string
	analysis     string
	investorType string
	profile      *Profile

	errMsg string

	// gen fences off callbacks from superseded work; it advances on
	// every reset and on every stream replacement.
	gen          int
	cancelStream context.CancelFunc
}

// NewSession creates a session bound to a questionnaire backend.
func NewSession(backend Backend, cfg SessionConfig) *Session {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = 100 * time.Millisecond
	}
	if cfg.Detection.MinLength <= 0 {
		cfg.Detection = DefaultDetectionConfig()
	}
	s := &Session{
		backend: backend,
		cfg:     cfg,
		state:   StateIdle,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start creates a remote session and obtains the first question, either
// embedded in the start response or via a question stream. A cancelled
// context is not an error; any other failure is recorded and the session
// returns to Idle so the user may retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.resetFieldsLocked()
	s.state = StateStarting
	gen := s.gen
	s.cond.Broadcast()
	s.mu.Unlock()

	resp, err := s.backend.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()

	if s.gen != gen {
		// Session was reset while the start call was in flight.
		return nil
	}
	if err != nil {
		s.state = StateIdle
		if isAborted(ctx, err) {
			return nil
		}
		s.errMsg = err.Error()
		return err
	}

	s.sessionID = resp.SessionID
	s.questionIndex = resp.QuestionNumber
	if s.questionIndex < 1 {
		s.questionIndex = 1
	}
	if resp.TotalQuestions > 0 {
		s.totalQuestions = resp.TotalQuestions
	}
	logger.Debug("questionnaire session %s started at question %d", s.sessionID, s.questionIndex)

	if resp.Question != "" {
		q := Normalize(resp.Question, resp.QuestionMeta)
		s.current = &q
		s.state = StateAwaitingAnswer
		return nil
	}

	s.state = StateAwaitingQuestion
	s.startStreamLocked(s.questionIndex)
	return nil
}

// SubmitAnswer validates and submits the answer for the current question.
// Validation failures return a *ValidationError without touching the
// network. On success the response record is appended and the session
// advances to the next question or to Finished. Network failures leave the
// session in AwaitingAnswer with an error message; they never corrupt the
// collected responses.
func (s *Session) SubmitAnswer(ctx context.Context, input AnswerInput) error {
	s.mu.Lock()

	if s.sessionID == "" {
		s.mu.Unlock()
		return &ValidationError{Message: "尚未開始測驗"}
	}
	if s.state != StateAwaitingAnswer || s.current == nil || s.current.IsStreaming {
		s.mu.Unlock()
		return &ValidationError{Message: "題目尚未就緒"}
	}

	record, err := s.composeRecordLocked(input)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	gen := s.gen
	sessionID := s.sessionID
	s.errMsg = ""
	s.state = StateSubmitting
	s.cond.Broadcast()
	s.mu.Unlock()

	resp, err := s.backend.Answer(ctx, sessionID, record.Answer)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.cond.Broadcast()

	if s.gen != gen {
		// Session was reset while the answer was in flight.
		return nil
	}
	if err != nil {
		s.state = StateAwaitingAnswer
		if isAborted(ctx, err) {
			return nil
		}
		s.errMsg = err.Error()
		return err
	}

	s.responses = append(s.responses, record)

	if !resp.HasNextQuestion {
		s.state = StateFinished
		s.current = nil
		s.streamedOptions = nil
		s.advice = resp.Advice
		s.analysis = resp.Analysis
		s.investorType = resp.InvestorType
		s.profile = resp.Profile
		logger.Info("questionnaire session %s finished after %d responses", sessionID, len(s.responses))
		return nil
	}

	// The server's reported index is authoritative.
	if resp.QuestionNumber > 0 {
		s.questionIndex = resp.QuestionNumber
	} else {
		s.questionIndex++
	}
	if resp.TotalQuestions > 0 {
		s.totalQuestions = resp.TotalQuestions
	}

	if resp.Question != "" {
		q := Normalize(resp.Question, resp.QuestionMeta)
		s.current = &q
		s.streamedOptions = nil
		s.state = StateAwaitingAnswer
		return nil
	}

	s.state = StateAwaitingQuestion
	s.startStreamLocked(s.questionIndex)
	return nil
}

// Regenerate re-requests the current question from the backend, cancelling
// any stream already in flight. It serves both the retry affordance after a
// stream failure and the advisory "regenerate" action for questions flagged
// as malformed.
func (s *Session) Regenerate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		return &ValidationError{Message: "尚未開始測驗"}
	}
	if s.state != StateAwaitingQuestion && s.state != StateAwaitingAnswer {
		return &ValidationError{Message: "目前無法重新生成題目"}
	}

	s.errMsg = ""
	s.state = StateAwaitingQuestion
	s.startStreamLocked(s.questionIndex)
	s.cond.Broadcast()
	return nil
}

// Reset aborts all in-flight work and returns the session to its initial
// empty state. Stream chunks still in flight when Reset runs are fenced off
// and cannot mutate the session afterwards.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetFieldsLocked()
	s.state = StateIdle
	s.cond.Broadcast()
}

// WaitForQuestion blocks until the session leaves its transitional states:
// it returns once a question is ready to answer, the questionnaire is
// finished, the session fell back to Idle, or an error message was
// recorded. Context cancellation unblocks it.
func (s *Session) WaitForQuestion(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-stop:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch s.state {
		case StateAwaitingAnswer, StateFinished, StateIdle:
			return nil
		}
		if s.errMsg != "" {
			return nil
		}
		s.cond.Wait()
	}
}

// composeRecordLocked turns the input into the answer text and response
// record for the current question type.
func (s *Session) composeRecordLocked(input AnswerInput) (Response, error) {
	q := s.current
	record := Response{Question: q.Text, Type: q.Type}

	switch q.Type {
	case TypeChoice:
		if input.SelectedIndex < 0 || input.SelectedIndex >= len(q.Options) {
			return Response{}, &ValidationError{Message: "請選擇一個選項"}
		}
		idx := input.SelectedIndex
		record.Answer = q.Options[idx]
		record.Value = &idx
	case TypeLikert:
		v := input.LikertValue
		if v < 1 || v > 5 {
			v = 3
		}
		descriptor := ""
		if v-1 < len(q.LikertOptions) {
			descriptor = q.LikertOptions[v-1]
		}
		if descriptor == "" {
			descriptor = DeriveLikertDescriptor(q.Text, v)
		}
		record.Answer = fmt.Sprintf("%d — %s", v, descriptor)
		record.Value = &v
	default:
		record.Answer = input.Text
	}
	return record, nil
}

// startStreamLocked opens the question stream for the given index,
// cancelling any previous one first. Caller holds s.mu.
func (s *Session) startStreamLocked(index int) {
	if s.cancelStream != nil {
		s.cancelStream()
	}
	// Each stream gets its own generation: a superseded stream that
	// outruns its cancellation still cannot touch the session.
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelStream = cancel
	s.current = &Question{IsStreaming: true}
	s.streamedOptions = nil

	go s.runStream(ctx, s.gen, s.sessionID, index)
}

func (s *Session) runStream(ctx context.Context, gen int, sessionID string, index int) {
	throttle := flow.NewThrottler(s.cfg.ThrottleInterval, func(text string) {
		s.applyStreamText(gen, text)
	})
	defer throttle.Cancel()

	body, err := s.backend.StreamQuestion(ctx, sessionID, index)
	if err != nil {
		if isAborted(ctx, err) {
			return
		}
		s.failStream(gen, err)
		return
	}
	defer body.Close()

	var accumulated strings.Builder
	var meta *Meta

	err = ReadQuestionStream(ctx, body, func(event QuestionEvent) bool {
		if event.Meta != nil {
			meta = event.Meta
		}
		if event.Done {
			return false
		}
		if event.Text != "" {
			accumulated.WriteString(event.Text)
			throttle.Offer(accumulated.String())
		}
		return true
	})

	throttle.Cancel()

	if err != nil {
		if isAborted(ctx, err) {
			return
		}
		s.failStream(gen, err)
		return
	}
	s.finalizeQuestion(gen, accumulated.String(), meta)
}

// applyStreamText publishes a throttled partial-question update, including a
// provisional option preview when the partial text already classifies as
// single-choice.
func (s *Session) applyStreamText(gen int, text string) {
	s.mu.Lock()
	if s.gen != gen || s.current == nil || !s.current.IsStreaming {
		s.mu.Unlock()
		return
	}
	s.current.Text = text

	var opts []string
	if DetectType(text) == TypeChoice {
		opts = ExtractOptions(text)
	}
	s.streamedOptions = opts

	observer := s.cfg.OnQuestionText
	s.mu.Unlock()

	if observer != nil {
		observer(text, opts)
	}
}

func (s *Session) finalizeQuestion(gen int, text string, meta *Meta) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	q := Normalize(text, meta)
	s.current = &q
	s.streamedOptions = nil
	s.state = StateAwaitingAnswer
	s.cancelStream = nil
	observer := s.cfg.OnQuestionText
	s.cond.Broadcast()
	s.mu.Unlock()

	if observer != nil {
		observer(q.Text, q.Options)
	}
}

func (s *Session) failStream(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	logger.Error("question stream failed: %v", err)
	s.errMsg = fmt.Sprintf("串流錯誤: %v", err)
	if s.current != nil {
		s.current.IsStreaming = false
	}
	s.state = StateAwaitingQuestion
	s.cancelStream = nil
	s.cond.Broadcast()
}

func (s *Session) resetFieldsLocked() {
	s.gen++
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
	s.sessionID = ""
	s.questionIndex = 0
	s.totalQuestions = 0
	s.current = nil
	s.streamedOptions = nil
	s.responses = nil
	s.advice = ""
	s.analysis = ""
	s.investorType = ""
	s.profile = nil
	s.errMsg = ""
}

func isAborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// Accessors. All return copies; the session's own state is never exposed
// for external mutation.

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the server-issued session identifier.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// QuestionIndex returns the server-authoritative question number.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionIndex
}

// TotalQuestions returns the reported total, or 0 while unknown.
func (s *Session) TotalQuestions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalQuestions
}

// CurrentQuestion returns a copy of the current question, if any.
func (s *Session) CurrentQuestion() (Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Question{}, false
	}
	q := *s.current
	q.Options = append([]string(nil), s.current.Options...)
	q.LikertOptions = append([]string(nil), s.current.LikertOptions...)
	return q, true
}

// StreamedOptions returns the provisional option preview extracted from the
// partial streaming text.
func (s *Session) StreamedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.streamedOptions...)
}

// Responses returns the accepted answers in submission order.
func (s *Session) Responses() []Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Response(nil), s.responses...)
}

// Finished reports whether the questionnaire reached its terminal state.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateFinished
}

// Advice returns the server-provided advice text after completion.
func (s *Session) Advice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advice
}

// Analysis returns the server-provided analysis text after completion.
func (s *Session) Analysis() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analysis
}

// InvestorType returns the server-assigned investor type after completion.
func (s *Session) InvestorType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.investorType
}

// ServerProfile returns the server-computed profile after completion.
func (s *Session) ServerProfile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// LocalProfile scores a profile from the responses collected so far.
func (s *Session) LocalProfile() Profile {
	return ComputeProfile(s.Responses())
}

// CheckCurrentQuestion runs the advisory malformed-question heuristics
// against the current question (streaming text included).
func (s *Session) CheckCurrentQuestion() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return CheckIncomplete(*s.current, s.cfg.Detection)
}

// Err returns the user-visible error message, if any.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearError discards the recorded error message before a retry.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}
