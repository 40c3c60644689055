package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hust/bookingclient/core"
	"github.com/hust/bookingclient/ports"
)

var legalTransitions = map[core.State][]core.State{
	core.StateAnonymous:     {core.StateAuthenticated},
	core.StateAuthenticated: {core.StateRefreshing, core.StateAnonymous},
	core.StateRefreshing:    {core.StateAuthenticated, core.StateAnonymous},
}

// SessionMachine owns the session state and its legal transitions
type SessionMachine struct {
	mu       sync.Mutex
	state    core.State
	watchers map[int]chan core.StateChange
	nextID   int

	events  ports.EventPublisher
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewSessionMachine creates a machine in the Anonymous state. events and metrics may be nil.
func NewSessionMachine(events ports.EventPublisher, metrics *Metrics, log *slog.Logger) *SessionMachine {
	return &SessionMachine{
		watchers: make(map[int]chan core.StateChange),
		events:   events,
		metrics:  metrics,
		log:      orDiscard(log),
		now:      time.Now,
	}
}

// State returns the current state
func (m *SessionMachine) State() core.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Subscribe registers an observer of transitions. Changes are dropped for an
// observer whose buffer is full. The returned func unsubscribes.
func (m *SessionMachine) Subscribe(buffer int) (<-chan core.StateChange, func()) {
	if buffer < 1 {
		buffer = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan core.StateChange, buffer)
	m.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.watchers, id)
			close(ch)
		})
	}
}

// Authenticate moves Anonymous to Authenticated after login or rehydration
func (m *SessionMachine) Authenticate(ctx context.Context, reason string) error {
	return m.transition(ctx, []core.State{core.StateAnonymous}, core.StateAuthenticated, reason)
}

// BeginRefresh moves Authenticated to RefreshingCredential. Refreshing without a
// session is a programming error and fails with ErrIllegalTransition.
func (m *SessionMachine) BeginRefresh(ctx context.Context) error {
	return m.transition(ctx, []core.State{core.StateAuthenticated}, core.StateRefreshing, core.ReasonRefreshStarted)
}

// CompleteRefresh moves RefreshingCredential back to Authenticated
func (m *SessionMachine) CompleteRefresh(ctx context.Context) error {
	return m.transition(ctx, []core.State{core.StateRefreshing}, core.StateAuthenticated, core.ReasonRefreshSucceeded)
}

// End forces the session to Anonymous. Ending an anonymous session is a no-op.
func (m *SessionMachine) End(ctx context.Context, reason string) {
	_ = m.transition(ctx, []core.State{core.StateAuthenticated, core.StateRefreshing}, core.StateAnonymous, reason)
}

// transition moves to `to` when the current state is one of sources. Every
// operation names its own sources; the table is checked on top of that.
func (m *SessionMachine) transition(ctx context.Context, sources []core.State, to core.State, reason string) error {
	m.mu.Lock()
	from := m.state
	if from == to && to == core.StateAnonymous {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(sources, from) || !slices.Contains(legalTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", core.ErrIllegalTransition, from, to)
	}

	m.state = to
	change := core.StateChange{From: from, To: to, Reason: reason, At: m.now()}
	for id, ch := range m.watchers {
		select {
		case ch <- change:
		default:
			m.log.Warn("dropping session change for slow observer", "observer", id, "to", to.String())
		}
	}
	m.mu.Unlock()

	m.metrics.transition(from, to)
	m.log.Info("session transition", "from", from.String(), "to", to.String(), "reason", reason)

	if m.events != nil {
		if err := m.events.PublishStateChange(ctx, change); err != nil {
			m.log.Warn("failed to publish session change", "error", err)
		}
	}
	return nil
}
