package insight

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marketlens/marketlens/pkg/flow"
	"github.com/marketlens/marketlens/pkg/logger"
)

// Callbacks observe an analysis in progress. OnUpdate delivers throttled
// accumulated text; OnComplete fires once with the finished analysis;
// OnError reports failures. Aborted requests report nothing.
type Callbacks struct {
	OnUpdate   func(accumulated string)
	OnComplete func(Analysis)
	OnError    func(error)
}

// Service coordinates insight requests for one UI concern: requests are
// debounced so rapid input churn does not fan out into redundant calls, and
// issuing a new request always cancels the previous one first, so two
// responses can never race to update the same state. Completed analyses are
// kept in an in-memory, append-only history.
type Service struct {
	mu sync.Mutex

	client    StreamClient
	callbacks Callbacks
	debounce  *flow.Debouncer
	throttle  time.Duration

	gen     int
	cancel  context.CancelFunc
	lastReq *Request
	lastErr error
	history []Analysis
}

// NewService creates a service around a StreamClient. Non-positive windows
// fall back to the reference behavior (250ms debounce, 100ms throttle).
func NewService(client StreamClient, debounceWindow, throttleInterval time.Duration, callbacks Callbacks) *Service {
	if debounceWindow <= 0 {
		debounceWindow = 250 * time.Millisecond
	}
	if throttleInterval <= 0 {
		throttleInterval = 100 * time.Millisecond
	}
	return &Service{
		client:    client,
		callbacks: callbacks,
		debounce:  flow.NewDebouncer(debounceWindow),
		throttle:  throttleInterval,
	}
}

// Analyze schedules a debounced analysis of req. Rapid successive calls
// collapse into the newest one.
func (s *Service) Analyze(req Request) {
	s.debounce.Trigger(func() {
		s.launch(req)
	})
}

// AnalyzeNow bypasses the debounce window and issues the request
// immediately, still cancelling any in-flight analysis first.
func (s *Service) AnalyzeNow(req Request) {
	s.debounce.Cancel()
	s.launch(req)
}

// Retry clears the recorded error and re-issues the last request.
func (s *Service) Retry() {
	s.mu.Lock()
	req := s.lastReq
	s.lastErr = nil
	s.mu.Unlock()

	if req != nil {
		s.AnalyzeNow(*req)
	}
}

// Cancel aborts any pending or in-flight analysis.
func (s *Service) Cancel() {
	s.debounce.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Err returns the most recent failure, if any.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// History returns the completed analyses in completion order.
func (s *Service) History() []Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Analysis(nil), s.history...)
}

func (s *Service) launch(req Request) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	reqCopy := req
	s.lastReq = &reqCopy
	s.lastErr = nil
	s.mu.Unlock()

	go s.run(ctx, gen, req)
}

func (s *Service) run(ctx context.Context, gen int, req Request) {
	throttle := flow.NewThrottler(s.throttle, func(text string) {
		if s.currentGen(gen) && s.callbacks.OnUpdate != nil {
			s.callbacks.OnUpdate(text)
		}
	})
	defer throttle.Cancel()

	analysis, err := s.client.Analyze(ctx, req, func(accumulated string) {
		throttle.Offer(accumulated)
	})

	throttle.Cancel()

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Intentionally cancelled; drop the orphaned result silently.
			return
		}
		s.mu.Lock()
		stale := s.gen != gen
		if !stale {
			s.lastErr = err
		}
		s.mu.Unlock()
		if stale {
			return
		}
		logger.Error("insight request failed: %v", err)
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.history = append(s.history, analysis)
	s.cancel = nil
	s.mu.Unlock()

	if s.callbacks.OnUpdate != nil && analysis.Text != "" {
		// The final value must never be lost to the throttle window.
		s.callbacks.OnUpdate(analysis.Text)
	}
	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(analysis)
	}
}

func (s *Service) currentGen(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}
