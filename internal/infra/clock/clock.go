package clock

import "time"

// Clock abstracts the time operations used by the agent loop and the
// proactive runner. Production wiring uses Real(); tests use Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after d elapses and returns a handle that can
	// cancel the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on its C channel every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable one-shot callback.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. Returns false if it already fired
// or was already stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Ticker delivers periodic ticks. The channel has capacity 1, so ticks are
// dropped when the reader falls behind.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
