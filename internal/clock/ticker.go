package clock

import "time"

// Ticker delivers periodic tick signals to a session.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for the given interval.
type TickerFactory func(interval time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}

// NewTicker wraps time.NewTicker.
func NewTicker(interval time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(interval)}
}

// FakeTicker is a manually driven Ticker for tests.
type FakeTicker struct {
	ch chan time.Time
}

func NewFakeTicker() *FakeTicker {
	// Buffered so tests can queue ticks before the session loop drains them.
	return &FakeTicker{ch: make(chan time.Time, 16)}
}

func (f *FakeTicker) C() <-chan time.Time {
	return f.ch
}

func (f *FakeTicker) Stop() {}

// Tick delivers one tick carrying t. It never blocks; ticks beyond the
// buffer are dropped, matching time.Ticker behavior under a slow receiver.
func (f *FakeTicker) Tick(t time.Time) {
	select {
	case f.ch <- t:
	default:
	}
}

// Factory returns a TickerFactory that always hands out this fake.
func (f *FakeTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return f }
}
