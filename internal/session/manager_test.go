package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, opts ManagerOptions) *Manager {
	t.Helper()
	if opts.Asker == nil {
		opts.Asker = &recordingAsker{answer: "ok"}
	}
	opts.Logger = logging.Discard()
	m := NewManager(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Close(ctx)
	})
	return m
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})

	c, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID() == "" {
		t.Fatal("Create() returned an empty id")
	}

	got, err := m.Get(c.ID())
	if err != nil || got != c {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	if err := m.Delete(c.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !c.Disposed() {
		t.Error("Delete() should dispose the controller")
	}
	if _, err := m.Get(c.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrSessionNotFound", err)
	}
	if err := m.Delete(c.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete() error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m := newTestManager(t, ManagerOptions{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		if _, err := m.Create(); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
	if _, err := m.Create(); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("Create() over limit error = %v, want ErrTooManySessions", err)
	}
}

func TestManager_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	asker := newBlockingAsker()
	m := newTestManager(t, ManagerOptions{
		Asker:       asker,
		IdleTimeout: 10 * time.Minute,
		Now:         clock.Now,
	})

	idle, _ := m.Create()
	active, _ := m.Create()
	pending, _ := m.Create()

	if err := pending.LoadData(core.CSVData{Headers: []string{"a"}, Rows: []core.Row{}}); err != nil {
		t.Fatal(err)
	}
	if err := pending.SubmitQuestion("q"); err != nil {
		t.Fatal(err)
	}
	<-asker.started

	clock.Advance(9 * time.Minute)
	if _, err := m.Get(active.ID()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if !idle.Disposed() {
		t.Error("idle session not disposed")
	}
	if active.Disposed() || pending.Disposed() {
		t.Error("active or pending session was swept")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	close(asker.release)
}

func TestManager_Ingest(t *testing.T) {
	m := newTestManager(t, ManagerOptions{})
	c, _ := m.Create()

	data, err := m.Ingest(context.Background(), c.ID(), strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if data.TotalRows != 1 || c.State() != StateReady {
		t.Errorf("Ingest() = %+v, state %v", data, c.State())
	}

	_, err = m.Ingest(context.Background(), c.ID(), strings.NewReader("a,b\n1,\"oops\n"))
	var perr *core.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Ingest(bad) error = %v, want *core.ParseError", err)
	}
	if got, _ := c.Data(); got.TotalRows != 1 || got.Headers[0] != "a" {
		t.Errorf("failed ingest replaced data: %+v", got)
	}

	if _, err := m.Ingest(context.Background(), "missing", strings.NewReader("a\n")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Ingest(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_IngestLimiterFull(t *testing.T) {
	limiter := core.NewIngestLimiter(1, 20*time.Millisecond)
	m := newTestManager(t, ManagerOptions{Limiter: limiter})
	c, _ := m.Create()

	release, err := limiter.Hold(context.Background())
	if err != nil {
		t.Fatalf("Hold() on an idle limiter: %v", err)
	}
	defer release()

	_, err = m.Ingest(context.Background(), c.ID(), strings.NewReader("a\n1\n"))
	if !errors.Is(err, core.ErrTooManyUploads) {
		t.Errorf("Ingest() error = %v, want ErrTooManyUploads", err)
	}
	if c.State() != StateEmpty {
		t.Errorf("State() = %v, want empty", c.State())
	}
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(ManagerOptions{
		Asker:           &recordingAsker{answer: "ok"},
		CleanupInterval: 5 * time.Millisecond,
		IdleTimeout:     time.Millisecond,
		Logger:          logging.Discard(),
	})
	c, _ := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for m.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("janitor never expired the idle session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !c.Disposed() {
		t.Error("expired session not disposed")
	}

	cancel()
	<-done
}

func TestManager_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	asker := newBlockingAsker()
	m := NewManager(ManagerOptions{Asker: asker, Logger: logging.Discard()})

	c, _ := m.Create()
	if err := c.LoadData(core.CSVData{Headers: []string{"a"}, Rows: []core.Row{}}); err != nil {
		t.Fatal(err)
	}
	if err := c.SubmitQuestion("q"); err != nil {
		t.Fatal(err)
	}
	<-asker.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !c.Disposed() || m.Len() != 0 {
		t.Errorf("Close() left sessions: disposed=%v len=%d", c.Disposed(), m.Len())
	}
}
