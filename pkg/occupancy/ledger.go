// Package occupancy keeps the running head count fed by crossing events,
// persists it and raises capacity alerts.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
)

// Change is delivered to listeners after every count or capacity update
type Change struct {
	SessionID   string         `json:"session_id"`
	Event       tracking.Event `json:"event,omitempty"` // zero for capacity changes and restarts
	Occupancy   int            `json:"occupancy"`
	MaxCapacity int            `json:"max_capacity"`
	At          time.Time      `json:"at"`
}

// Snapshot is a copy of the ledger state
type Snapshot struct {
	Session   Session         `json:"session"`
	Occupancy int             `json:"occupancy"`
	Entries   []time.Duration `json:"entries"` // offsets since session start
	Exits     []time.Duration `json:"exits"`
}

// Options configures a Ledger
type Options struct {
	Store       Store   // nil keeps sessions in memory
	Alerter     Alerter // nil logs alerts
	MaxCapacity int     // 0 disables alerts
	Now         func() time.Time
}

// Ledger counts people in the monitored space
type Ledger struct {
	mu        sync.Mutex
	store     Store
	alerter   Alerter
	now       func() time.Time
	session   Session
	occupancy int
	entries   []time.Duration
	exits     []time.Duration
	listeners []func(Change)
}

// NewLedger creates a ledger and starts its first session
func NewLedger(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.MaxCapacity < 0 {
		return nil, fmt.Errorf("max capacity must be >= 0, got %d", opts.MaxCapacity)
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Alerter == nil {
		opts.Alerter = LogAlerter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Ledger{
		store:   opts.Store,
		alerter: opts.Alerter,
		now:     opts.Now,
	}
	if err := l.startSession(ctx, opts.MaxCapacity); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) startSession(ctx context.Context, maxCapacity int) error {
	sess := Session{
		ID:          uuid.New().String(),
		StartedAt:   l.now(),
		MaxCapacity: maxCapacity,
	}
	if err := l.store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	l.mu.Lock()
	l.session = sess
	l.occupancy = 0
	l.entries = nil
	l.exits = nil
	l.mu.Unlock()

	log.Info("occupancy session started", "session", sess.ID, "max_capacity", maxCapacity)
	return nil
}

// Restart begins a new session with zero occupancy, keeping the capacity
func (l *Ledger) Restart(ctx context.Context) error {
	l.mu.Lock()
	maxCapacity := l.session.MaxCapacity
	l.mu.Unlock()

	if err := l.startSession(ctx, maxCapacity); err != nil {
		return err
	}
	l.notify(l.change(0, l.now()))
	return nil
}

// OnChange registers fn to be called after every update.
// fn runs on the caller's goroutine and must not block.
func (l *Ledger) OnChange(fn func(Change)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// PersonEntered records an entry. When a max capacity is set and the
// count reaches it exactly, an alert is raised.
func (l *Ledger) PersonEntered(ctx context.Context) error {
	l.mu.Lock()
	at := l.now()
	offset := at.Sub(l.session.StartedAt)
	l.entries = append(l.entries, offset)
	l.occupancy++
	rec := l.recordLocked(tracking.PersonEntered, offset, at)
	maxCapacity := l.session.MaxCapacity
	reached := maxCapacity > 0 && l.occupancy == maxCapacity
	l.mu.Unlock()

	var errs []error
	if err := l.store.RecordEvent(ctx, rec); err != nil {
		errs = append(errs, err)
	}

	l.notify(l.change(tracking.PersonEntered, at))

	if reached {
		if err := l.alerter.Alert(ctx, capacityAlert(rec.SessionID, maxCapacity, at)); err != nil {
			errs = append(errs, fmt.Errorf("capacity alert: %w", err))
		}
	}

	return errors.Join(errs...)
}

// PersonExited records an exit. Exits at zero occupancy are ignored.
func (l *Ledger) PersonExited(ctx context.Context) error {
	l.mu.Lock()
	if l.occupancy == 0 {
		l.mu.Unlock()
		log.Debug("exit ignored at zero occupancy")
		return nil
	}
	at := l.now()
	offset := at.Sub(l.session.StartedAt)
	l.exits = append(l.exits, offset)
	l.occupancy--
	rec := l.recordLocked(tracking.PersonExited, offset, at)
	l.mu.Unlock()

	err := l.store.RecordEvent(ctx, rec)
	l.notify(l.change(tracking.PersonExited, at))
	return err
}

// Apply records every event in order
func (l *Ledger) Apply(ctx context.Context, events []tracking.Event) error {
	var errs []error
	for _, ev := range events {
		var err error
		switch ev {
		case tracking.PersonEntered:
			err = l.PersonEntered(ctx)
		case tracking.PersonExited:
			err = l.PersonExited(ctx)
		default:
			err = fmt.Errorf("unknown event %d", int(ev))
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetMaxCapacity changes the alert threshold. 0 disables alerts.
func (l *Ledger) SetMaxCapacity(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("max capacity must be >= 0, got %d", n)
	}

	l.mu.Lock()
	sessionID := l.session.ID
	l.session.MaxCapacity = n
	l.mu.Unlock()

	if err := l.store.UpdateMaxCapacity(ctx, sessionID, n); err != nil {
		return fmt.Errorf("persist max capacity: %w", err)
	}
	l.notify(l.change(0, l.now()))
	return nil
}

// Occupancy returns the current head count
func (l *Ledger) Occupancy() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.occupancy
}

// Session returns the current session
func (l *Ledger) Session() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Snapshot returns a copy of the ledger state
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Session:   l.session,
		Occupancy: l.occupancy,
		Entries:   append([]time.Duration(nil), l.entries...),
		Exits:     append([]time.Duration(nil), l.exits...),
	}
}

// Store returns the backing store
func (l *Ledger) Store() Store {
	return l.store
}

func (l *Ledger) recordLocked(kind tracking.Event, offset time.Duration, at time.Time) Record {
	return Record{
		SessionID: l.session.ID,
		Kind:      kind,
		Offset:    offset,
		Occupancy: l.occupancy,
		At:        at,
	}
}

func (l *Ledger) change(ev tracking.Event, at time.Time) Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Change{
		SessionID:   l.session.ID,
		Event:       ev,
		Occupancy:   l.occupancy,
		MaxCapacity: l.session.MaxCapacity,
		At:          at,
	}
}

func (l *Ledger) notify(c Change) {
	l.mu.Lock()
	listeners := append([]func(Change)(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}
