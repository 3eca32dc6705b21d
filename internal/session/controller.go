// Package session holds the conversation state machine that sits between
// ingested CSV data and the Answer Service.
//
// A Controller owns one conversation: the loaded data, the ordered message
// history, the draft input and at most one in-flight request. A Manager keys
// controllers by id for the gateway and expires idle ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
)

// FallbackAnswer is appended in place of an answer whenever a request fails.
const FallbackAnswer = "Pardon the ethereal interruption! I'm temporarily out haunting our server room while some system upgrades take place. Give me a few moments to materialize back, and I'll be ready to help you uncover the insights hiding in your data."

var (
	// ErrRequestInFlight rejects a question while another is pending.
	ErrRequestInFlight = errors.New("session: request already in flight")

	// ErrDisposed is returned by every mutating call after Dispose.
	ErrDisposed = errors.New("session disposed")
)

// Asker sends one question to the Answer Service. *answer.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, req answer.QueryRequest) (answer.QueryResponse, error)
}

var _ Asker = (*answer.Client)(nil)

// State is the controller's position in its lifecycle.
type State int

const (
	StateEmpty   State = iota // no data loaded
	StateReady                // data loaded, nothing in flight
	StatePending              // one question awaiting its answer
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	case StatePending:
		return "pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state as its lowercase name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Outcome records how the most recent request settled. Err is nil on
// success; it never reaches SubmitQuestion's caller.
type Outcome struct {
	Question string
	Answer   string
	Err      error
	Category string // "" on success, otherwise core.FailureCategory(Err)
	Duration time.Duration
}

// Succeeded reports whether the answer came from the service.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// EventType names what changed in an Event.
type EventType string

const (
	EventMessage EventType = "message" // a message was appended
	EventState   EventType = "state"   // the state changed
	EventData    EventType = "data"    // new data was loaded
)

// Event is pushed to subscribers as the conversation changes.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Index     int       `json:"index"`                // position of Message, or message count
	TotalRows int       `json:"total_rows,omitempty"` // set on EventData
}

// Snapshot is a consistent copy of a controller's observable state.
type Snapshot struct {
	ID        string    `json:"session_id"`
	State     State     `json:"state"`
	Headers   []string  `json:"headers"`
	TotalRows int       `json:"total_rows"`
	Messages  []Message `json:"messages"`
	Draft     string    `json:"draft"`
}

// Options configures a Controller.
type Options struct {
	ID     string // generated when empty
	Asker  Asker
	Logger *slog.Logger

	// Now overrides the clock used for idle tracking.
	Now func() time.Time
}

// Controller drives one conversation. All methods are safe for concurrent
// use; SubmitQuestion returns immediately and the answer arrives on a
// background goroutine.
type Controller struct {
	id     string
	asker  Asker
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	data        core.CSVData
	messages    []Message
	draft       string
	lastOutcome *Outcome
	lastActive  time.Time
	disposed    bool
	cancel      context.CancelFunc // cancels the in-flight request
	settled     chan struct{}      // closed when the in-flight request settles

	listeners  []chan Event
	listenerMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a controller in StateEmpty.
func New(opts Options) *Controller {
	if opts.Asker == nil {
		panic("session: Options.Asker is required")
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		id:         id,
		asker:      opts.Asker,
		logger:     logger.With("session_id", id),
		now:        now,
		state:      StateEmpty,
		messages:   make([]Message, 0),
		lastActive: now(),
	}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the conversation so far.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Data returns the loaded data and whether any has been loaded.
func (c *Controller) Data() (core.CSVData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data, c.state != StateEmpty
}

// Draft returns the unsent input buffer.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the unsent input buffer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.draft = text
	c.lastActive = c.now()
}

// LastOutcome returns how the most recent request settled, if any has.
func (c *Controller) LastOutcome() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastOutcome == nil {
		return Outcome{}, false
	}
	return *c.lastOutcome, true
}

// LastActive reports when the controller was last touched by a caller.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastActive = c.now()
	c.mu.Unlock()
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Snapshot returns a consistent copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	headers := c.data.Headers
	if headers == nil {
		headers = []string{}
	}
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)

	return Snapshot{
		ID:        c.id,
		State:     c.state,
		Headers:   headers,
		TotalRows: c.data.TotalRows,
		Messages:  msgs,
		Draft:     c.draft,
	}
}

// LoadData replaces the active data and keeps the history. An empty
// controller becomes ready. A pending request keeps the context it was sent
// with; later questions use the new data.
func (c *Controller) LoadData(data core.CSVData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}

	c.data = data
	c.lastActive = c.now()
	c.emit(Event{Type: EventData, TotalRows: data.TotalRows, Index: len(c.messages)})

	if c.state == StateEmpty {
		c.setState(StateReady)
	}

	c.logger.Info("data loaded",
		"columns", len(data.Headers),
		"rows", data.TotalRows,
	)
	return nil
}

// SubmitQuestion appends the trimmed question and dispatches exactly one
// request in the background. It returns a *core.ValidationError for a blank
// question or missing data, ErrRequestInFlight while pending and ErrDisposed
// after Dispose. A rejected call changes nothing.
//
// Failures of the request itself are never returned; they settle into the
// fallback answer.
func (c *Controller) SubmitQuestion(question string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(question)
}

// SubmitDraft submits the current draft buffer.
func (c *Controller) SubmitDraft() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitLocked(c.draft)
}

func (c *Controller) submitLocked(question string) error {
	if c.disposed {
		return ErrDisposed
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return &core.ValidationError{Reason: core.ReasonEmptyQuestion}
	}
	if c.state == StateEmpty {
		return &core.ValidationError{Reason: core.ReasonNoData}
	}
	if c.state == StatePending {
		return ErrRequestInFlight
	}

	c.appendMessage(Message{Role: RoleUser, Content: question})
	c.draft = ""
	c.lastActive = c.now()

	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	c.cancel = cancel
	c.settled = settled
	c.setState(StatePending)

	// The context captured here is what the request carries even if
	// LoadData replaces the data before it settles.
	data := c.data

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		start := c.now()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("panic in question request", "panic", r)
				c.settle(settled, Outcome{
					Question: question,
					Err:      fmt.Errorf("internal error: %v", r),
					Duration: time.Since(start),
				})
			}
		}()

		c.settle(settled, c.ask(ctx, question, data, start))
	}()

	return nil
}

// ask performs the request and reports how it went. It does not touch
// controller state.
func (c *Controller) ask(ctx context.Context, question string, data core.CSVData, start time.Time) Outcome {
	outcome := Outcome{Question: question}

	contextJSON, err := data.ContextJSON()
	if err != nil {
		outcome.Err = fmt.Errorf("serialize context: %w", err)
		outcome.Duration = time.Since(start)
		return outcome
	}

	resp, err := c.asker.Ask(ctx, answer.QueryRequest{
		Question: question,
		Context:  contextJSON,
	})
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Answer = resp.Answer
	return outcome
}

// settle appends the assistant message for outcome and returns to ready.
// It does nothing once the controller is disposed.
func (c *Controller) settle(settled chan struct{}, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Settle at most once per request; a panic after settle must not
	// append a second reply.
	if c.settled != settled {
		return
	}
	c.settled = nil
	c.cancel = nil
	defer close(settled)

	if c.disposed {
		c.logger.Debug("dropping result for disposed session",
			"duration_ms", outcome.Duration.Milliseconds(),
		)
		return
	}

	content := outcome.Answer
	if outcome.Err != nil {
		outcome.Category = core.FailureCategory(outcome.Err)
		content = FallbackAnswer
		c.logger.Warn("question failed",
			"category", outcome.Category,
			"error", outcome.Err,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	} else {
		c.logger.Info("question answered",
			"answer_length", len(outcome.Answer),
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	}

	c.lastOutcome = &outcome
	c.appendMessage(Message{Role: RoleAssistant, Content: content})
	c.setState(StateReady)
}

// Wait blocks until no request is pending or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	if settled == nil {
		return nil
	}

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose cancels any in-flight request, closes every subscription and
// waits for the request goroutine to exit. A result arriving afterwards is
// dropped. Dispose is idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.disposed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.closeListeners()
	c.wg.Wait()

	c.logger.Debug("session disposed")
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The channel receives the current state first and is closed
// on unsubscribe or Dispose. Slow subscribers miss events rather than block
// the controller.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		close(ch)
		return ch, func() {}
	}

	c.listenerMu.Lock()
	c.listeners = append(c.listeners, ch)
	// Send current state immediately
	ch <- Event{Type: EventState, SessionID: c.id, State: c.state, Index: len(c.messages)}
	c.listenerMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { c.unsubscribe(ch) })
	}
}

func (c *Controller) unsubscribe(ch chan Event) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	for i, l := range c.listeners {
		if l == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// appendMessage must be called with mu held.
func (c *Controller) appendMessage(m Message) {
	c.messages = append(c.messages, m)
	msg := m
	c.emit(Event{Type: EventMessage, Message: &msg, Index: len(c.messages) - 1})
}

// setState must be called with mu held.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(Event{Type: EventState, Index: len(c.messages)})
}

// emit sends ev to all listeners. Must be called with mu held.
func (c *Controller) emit(ev Event) {
	ev.SessionID = c.id
	ev.State = c.state

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	for _, ch := range c.listeners {
		select {
		case ch <- ev:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (c *Controller) closeListeners() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	for _, ch := range c.listeners {
		close(ch)
	}
	c.listeners = nil
}
