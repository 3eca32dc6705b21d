package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestIngestLimiter_Parse(t *testing.T) {
	l := NewIngestLimiter(2, time.Second)

	data, err := l.Parse(context.Background(), NewParser(ParseOptions{}), strings.NewReader("region,total\nwest,10\neast,4\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if data.TotalRows != 2 || data.Headers[1] != "total" {
		t.Errorf("Parse() = %+v", data)
	}
	if s := l.Status(); s.Active != 0 || s.Available != 2 {
		t.Errorf("slot leaked: %+v", s)
	}

	if _, err := l.Parse(context.Background(), NewParser(ParseOptions{}), strings.NewReader("a,b\n\"open\n")); err == nil {
		t.Fatal("Parse(malformed) should fail")
	}
	if s := l.Status(); s.Active != 0 {
		t.Errorf("failed parse leaked a slot: %+v", s)
	}
}

func TestIngestLimiter_FullRejects(t *testing.T) {
	l := NewIngestLimiter(1, 30*time.Millisecond)

	release, err := l.Hold(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	start := time.Now()
	_, err = l.Parse(context.Background(), NewParser(ParseOptions{}), strings.NewReader("a\n1\n"))
	if !errors.Is(err, ErrTooManyUploads) {
		t.Fatalf("Parse() on full limiter = %v, want ErrTooManyUploads", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("rejected after %v, before the wait time", elapsed)
	}
}

func TestIngestLimiter_HoldCanceled(t *testing.T) {
	l := NewIngestLimiter(1, 5*time.Second)
	release, _ := l.Hold(context.Background())
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Hold(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Hold() = %v, want context.Canceled", err)
	}
}

func TestIngestLimiter_ReleaseTwice(t *testing.T) {
	l := NewIngestLimiter(1, time.Second)
	release, _ := l.Hold(context.Background())
	release()
	release()

	if s := l.Status(); s.Active != 0 || s.Available != 1 {
		t.Errorf("Status() = %+v after double release", s)
	}
}

// blockingReader blocks the first Read until unblock is closed.
type blockingReader struct {
	started chan struct{}
	unblock chan struct{}
	once    sync.Once
	r       io.Reader
}

func (b *blockingReader) Read(p []byte) (int, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.unblock
	})
	return b.r.Read(p)
}

func TestIngestLimiter_WaitForDrain(t *testing.T) {
	l := NewIngestLimiter(2, time.Second)

	if err := l.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain() on idle limiter = %v", err)
	}

	br := &blockingReader{started: make(chan struct{}), unblock: make(chan struct{}), r: strings.NewReader("a\n1\n")}
	parsed := make(chan error, 1)
	go func() {
		_, err := l.Parse(context.Background(), NewParser(ParseOptions{}), br)
		parsed <- err
	}()
	<-br.started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForDrain() during parse = %v, want deadline exceeded", err)
	}

	drained := make(chan error, 1)
	go func() { drained <- l.WaitForDrain(context.Background()) }()
	close(br.unblock)

	select {
	case err := <-drained:
		if err != nil {
			t.Errorf("WaitForDrain() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForDrain() did not return after the parse finished")
	}
	if err := <-parsed; err != nil {
		t.Errorf("Parse() = %v", err)
	}
}

func TestIngestLimiter_Bounded(t *testing.T) {
	const slots = 3
	l := NewIngestLimiter(slots, time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		highest int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Hold(context.Background())
			if err != nil {
				t.Errorf("Hold() = %v", err)
				return
			}
			defer release()

			mu.Lock()
			if a := l.Status().Active; a > highest {
				highest = a
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if highest > slots {
		t.Errorf("observed %d concurrent ingests, limit %d", highest, slots)
	}
	if s := l.Status(); s.Active != 0 {
		t.Errorf("Status() after all done = %+v", s)
	}
}

func TestNewIngestLimiter_Defaults(t *testing.T) {
	if got := NewIngestLimiter(0, 0).Status().Slots; got != DefaultIngestSlots {
		t.Errorf("Slots = %d, want %d", got, DefaultIngestSlots)
	}
}
