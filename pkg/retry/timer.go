package retry

import (
	"sync"
	"time"
)

// RecordingTimer is a backoff.Timer that fires immediately and remembers
// every delay it was asked to wait.
type RecordingTimer struct {
	mu     sync.Mutex
	c      chan time.Time
	delays []time.Duration
}

func NewRecordingTimer() *RecordingTimer {
	return &RecordingTimer{c: make(chan time.Time, 1)}
}

func (t *RecordingTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *RecordingTimer) Stop() {}

func (t *RecordingTimer) C() <-chan time.Time {
	return t.c
}

func (t *RecordingTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.delays))
	copy(out, t.delays)
	return out
}
