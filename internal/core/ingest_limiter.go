package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when every ingest slot stays busy for the
// limiter's whole wait time.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

const (
	DefaultIngestSlots = 5
	DefaultIngestWait  = 30 * time.Second
)

// IngestLimiter caps how many CSV files are parsed at once. A parsed file
// is held in memory whole, so the slot count bounds peak memory.
type IngestLimiter struct {
	slots chan struct{}
	wait  time.Duration

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed whenever active is zero
}

// NewIngestLimiter returns a limiter with the given number of slots.
// Non-positive arguments fall back to the defaults.
func NewIngestLimiter(slots int, wait time.Duration) *IngestLimiter {
	if slots <= 0 {
		slots = DefaultIngestSlots
	}
	if wait <= 0 {
		wait = DefaultIngestWait
	}

	idle := make(chan struct{})
	close(idle)
	return &IngestLimiter{
		slots: make(chan struct{}, slots),
		wait:  wait,
		idle:  idle,
	}
}

// Hold takes a slot, waiting at most the limiter's wait time. The returned
// func gives the slot back and must be called exactly once.
func (l *IngestLimiter) Hold(ctx context.Context) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTooManyUploads
	}

	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()

	var once sync.Once
	return func() { once.Do(l.release) }, nil
}

func (l *IngestLimiter) release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
	<-l.slots
}

// Parse runs p over r inside a slot.
func (l *IngestLimiter) Parse(ctx context.Context, p *Parser, r io.Reader) (CSVData, error) {
	release, err := l.Hold(ctx)
	if err != nil {
		return CSVData{}, err
	}
	defer release()
	return p.Parse(r)
}

// WaitForDrain blocks until no parse is running or ctx ends. Parses that
// start after it returns are not waited for.
func (l *IngestLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IngestStatus is a snapshot of slot usage, reported by health checks.
type IngestStatus struct {
	Active    int `json:"active"`
	Available int `json:"available"`
	Slots     int `json:"slots"`
}

// Status reports current slot usage.
func (l *IngestLimiter) Status() IngestStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	return IngestStatus{
		Active:    active,
		Available: cap(l.slots) - active,
		Slots:     cap(l.slots),
	}
}
