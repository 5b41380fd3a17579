package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/evileye/pkg/api"
	"github.com/rhuss/evileye/pkg/logging"
	"github.com/rhuss/evileye/pkg/storage"
)

// Backend persists event records. Implementations live under pkg/storage.
type Backend interface {
	// Append stores rec. Its position must be one past the last record,
	// otherwise storage.ErrConflict is returned.
	Append(ctx context.Context, rec storage.Record) error

	// Load calls fn for every record in position order.
	Load(ctx context.Context, fn func(storage.Record) error) error

	// Reset discards all records.
	Reset(ctx context.Context) error

	// Durable reports whether records outlive the process.
	Durable() bool

	Close() error
}

// Event is an instance of a registered event type.
type Event struct {
	Type  string
	Props map[string]any
}

// Result is the outcome of a successful Apply.
type Result struct {
	State    State
	Position int64
	Props    map[string]any
}

// Projection describes one projection attempt. Err is set when it failed.
type Projection struct {
	Type     string
	Props    map[string]any
	Position int64
	Err      error
}

// Listener observes projections. Listeners run synchronously in apply
// order and must not call Apply.
type Listener func(Projection)

// Log is an event log with a projected state.
type Log struct {
	backend Backend
	logger  *logging.Logger
	now     func() time.Time

	// applyMu serializes Apply, Replay and Restart.
	applyMu   sync.Mutex
	defs      map[string]*Definition
	listeners []Listener
	initial   State
	closed    bool

	stateMu  sync.RWMutex
	state    State
	position int64
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used for projection and validation messages.
func WithLogger(l *logging.Logger) Option {
	return func(log *Log) { log.logger = l }
}

// WithClock overrides the clock stamping records.
func WithClock(now func() time.Time) Option {
	return func(log *Log) { log.now = now }
}

// New creates a log on backend starting from initial. Records already in
// the backend are not read until Replay.
func New(backend Backend, initial State, opts ...Option) *Log {
	l := &Log{
		backend: backend,
		logger:  logging.Discard(),
		now:     time.Now,
		defs:    make(map[string]*Definition),
		initial: Clone(initial),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.state = Clone(l.initial)

	l.OnProjection(l.logProjection)
	return l
}

// Register adds or replaces an event type definition.
func (l *Log) Register(def *Definition) error {
	if err := def.check(); err != nil {
		return err
	}

	l.applyMu.Lock()
	defer l.applyMu.Unlock()
	l.defs[def.Type] = def
	return nil
}

// Definition returns the registered definition for typ.
func (l *Log) Definition(typ string) (*Definition, bool) {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()
	def, ok := l.defs[typ]
	return def, ok
}

// OnProjection adds a listener for projection outcomes.
func (l *Log) OnProjection(fn Listener) {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Apply validates ev, projects it onto the current state and persists it.
// A failed validation or projection leaves both the log and the state
// untouched.
func (l *Log) Apply(ctx context.Context, ev Event) (Result, error) {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()

	if l.closed {
		return Result{}, ErrClosed
	}

	def, ok := l.defs[ev.Type]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}

	raw, props, err := normalize(ev.Props)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrValidation, ev.Type, err)
	}

	current, position := l.Snapshot()

	if err := def.checkProps(props); err != nil {
		l.logger.Debug(logging.MsgEventValidationFailed, slog.String("type", ev.Type), slog.Any("error", err))
		return Result{}, err
	}
	if def.Validate != nil {
		if err := def.Validate(props, current); err != nil {
			l.logger.Debug(logging.MsgEventValidationFailed, slog.String("type", ev.Type), slog.Any("error", err))
			return Result{}, fmt.Errorf("%w: %s: %w", ErrValidation, ev.Type, err)
		}
	}

	next := position + 1
	projected, err := def.Project(Clone(current), props, next)
	if err != nil {
		l.notify(Projection{Type: ev.Type, Props: props, Position: next, Err: err})
		return Result{}, fmt.Errorf("%w: %s: %w", ErrProjection, ev.Type, err)
	}
	if projected == nil {
		projected = State{}
	}

	rec := storage.Record{
		ID:         api.NewEventID(),
		Position:   next,
		Type:       ev.Type,
		Props:      raw,
		RecordedAt: l.now().UTC(),
	}
	if err := l.backend.Append(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("appending %s at position %d: %w", ev.Type, next, err)
	}

	l.stateMu.Lock()
	l.state = projected
	l.position = next
	l.stateMu.Unlock()

	l.notify(Projection{Type: ev.Type, Props: props, Position: next})

	return Result{State: projected, Position: next, Props: props}, nil
}

// Replay rebuilds the state from initial by projecting every stored
// record. Definitions for all stored types must be registered first.
func (l *Log) Replay(ctx context.Context) error {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()

	if l.closed {
		return ErrClosed
	}

	state := Clone(l.initial)
	var position int64
	err := l.backend.Load(ctx, func(rec storage.Record) error {
		if rec.Position != position+1 {
			return fmt.Errorf("replay: expected position %d, found %d", position+1, rec.Position)
		}
		def, ok := l.defs[rec.Type]
		if !ok {
			return fmt.Errorf("replay at position %d: %w: %q", rec.Position, ErrUnknownEventType, rec.Type)
		}

		var props map[string]any
		if err := json.Unmarshal(rec.Props, &props); err != nil {
			return fmt.Errorf("replay at position %d: decoding props: %w", rec.Position, err)
		}

		next, err := def.Project(state, props, rec.Position)
		if err != nil {
			return fmt.Errorf("replay at position %d: %w: %w", rec.Position, ErrProjection, err)
		}
		if next == nil {
			next = State{}
		}
		state = next
		position = rec.Position
		return nil
	})
	if err != nil {
		return err
	}

	l.stateMu.Lock()
	l.state = state
	l.position = position
	l.stateMu.Unlock()
	return nil
}

// Restart discards every record and resets the state to initial. It is
// only permitted on ephemeral backends.
func (l *Log) Restart(ctx context.Context, initial State) error {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.backend.Durable() {
		return ErrDurableLog
	}
	if err := l.backend.Reset(ctx); err != nil {
		return fmt.Errorf("resetting backend: %w", err)
	}

	l.initial = Clone(initial)
	l.stateMu.Lock()
	l.state = Clone(initial)
	l.position = 0
	l.stateMu.Unlock()
	return nil
}

// State returns the current state. Callers must treat it as read-only.
func (l *Log) State() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// Position returns the position of the last applied event, 0 when empty.
func (l *Log) Position() int64 {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.position
}

// Durable reports whether the backend keeps records across restarts.
func (l *Log) Durable() bool {
	return l.backend.Durable()
}

// Close closes the backend. It waits for an in-progress Apply.
func (l *Log) Close() error {
	l.applyMu.Lock()
	defer l.applyMu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.backend.Close()
}

// Snapshot returns the current state together with its position.
func (l *Log) Snapshot() (State, int64) {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state, l.position
}

func (l *Log) notify(p Projection) {
	for _, fn := range l.listeners {
		fn(p)
	}
}

func (l *Log) logProjection(p Projection) {
	if p.Err != nil {
		l.logger.Debug(logging.MsgEventProjectionFailed,
			slog.String("type", p.Type), slog.Int64("position", p.Position), slog.Any("error", p.Err))
		return
	}
	l.logger.Silly(logging.MsgEventProjected,
		slog.String("type", p.Type), slog.Any("props", p.Props), slog.Int64("position", p.Position))
}

// normalize round-trips props through JSON so live projections see the
// same value types as replayed ones.
func normalize(props map[string]any) (json.RawMessage, map[string]any, error) {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, err
	}
	return raw, out, nil
}
