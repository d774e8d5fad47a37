package flow

import (
	"sync"
	"time"
)

// Throttler rate-limits delivery of a frequently-updated string value. Offer
// stores the latest value; at most one delivery happens per interval. The
// final value is never lost: callers flush at end of stream.
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	emit     func(string)
	latest   string
	hasValue bool
	timer    *time.Timer
}

// NewThrottler creates a throttler delivering values through emit. The emit
// callback runs without the throttler lock held, so it may re-enter.
func NewThrottler(interval time.Duration, emit func(string)) *Throttler {
	return &Throttler{interval: interval, emit: emit}
}

// Offer records value as the latest candidate and schedules a delivery if
// none is pending. Intermediate values may be skipped; the newest wins.
func (t *Throttler) Offer(value string) {
	t.mu.Lock()
	t.latest = value
	t.hasValue = true
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval, t.deliver)
	}
	t.mu.Unlock()
}

// Flush delivers the pending value immediately and cancels the timer.
func (t *Throttler) Flush() {
	t.deliver()
}

// Cancel drops any pending value and stops the timer.
func (t *Throttler) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.hasValue = false
	t.latest = ""
}

func (t *Throttler) deliver() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !t.hasValue {
		t.mu.Unlock()
		return
	}
	value := t.latest
	t.hasValue = false
	emit := t.emit
	t.mu.Unlock()

	if emit != nil {
		emit(value)
	}
}
