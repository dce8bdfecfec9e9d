// Package notify manages transient status toasts for the review UIs.
//
// Toasts are ordered by creation, expire on a timer unless sticky, and at
// most one sticky toast is live at a time: pushing a new sticky replaces the
// previous one.
package notify

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies a toast for presentation.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// DefaultTTL is how long a non-sticky toast stays visible.
const DefaultTTL = 4 * time.Second

// Toast is one visible notification.
type Toast struct {
	ID      string
	Kind    Kind
	Message string
	Sticky  bool
}

// Manager holds the live toast list. All methods are safe for concurrent
// use.
type Manager struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	ttl     time.Duration

	toasts   []Toast
	timers   map[string]*time.Timer
	stickyID string

	// onChange, if set, runs after every mutation with a snapshot of the
	// live list. Used by UIs to redraw.
	onChange func([]Toast)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the auto-dismiss duration for non-sticky toasts.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithOnChange registers a redraw callback. It is invoked outside the
// manager lock with a copy of the toast list.
func WithOnChange(fn func([]Toast)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// NewManager creates an empty toast manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		ttl:     DefaultTTL,
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// Push adds a toast that auto-dismisses after the TTL. It returns the toast
// ID.
func (m *Manager) Push(kind Kind, message string) string {
	m.mu.Lock()
	id := m.newID()
	m.toasts = append(m.toasts, Toast{ID: id, Kind: kind, Message: message})
	m.timers[id] = time.AfterFunc(m.ttl, func() { m.Dismiss(id) })
	snapshot := m.snapshot()
	m.mu.Unlock()

	m.notify(snapshot)
	return id
}

// PushSticky adds a toast that stays until dismissed or replaced. Any
// previous sticky toast is removed first, so long-running states (uploading,
// exporting) never stack.
func (m *Manager) PushSticky(kind Kind, message string) string {
	m.mu.Lock()
	if m.stickyID != "" {
		m.removeLocked(m.stickyID)
	}
	id := m.newID()
	m.toasts = append(m.toasts, Toast{ID: id, Kind: kind, Message: message, Sticky: true})
	m.stickyID = id
	snapshot := m.snapshot()
	m.mu.Unlock()

	m.notify(snapshot)
	return id
}

// Dismiss removes a toast by ID. Dismissing an unknown or already-expired ID
// is a no-op.
func (m *Manager) Dismiss(id string) {
	m.mu.Lock()
	removed := m.removeLocked(id)
	snapshot := m.snapshot()
	m.mu.Unlock()

	if removed {
		m.notify(snapshot)
	}
}

// Clear removes every toast and cancels all timers.
func (m *Manager) Clear() {
	m.mu.Lock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.toasts = nil
	m.stickyID = ""
	m.mu.Unlock()

	m.notify(nil)
}

// Active returns the live toasts in creation order.
func (m *Manager) Active() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Manager) removeLocked(id string) bool {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
	for i, toast := range m.toasts {
		if toast.ID == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			if m.stickyID == id {
				m.stickyID = ""
			}
			return true
		}
	}
	return false
}

func (m *Manager) snapshot() []Toast {
	out := make([]Toast, len(m.toasts))
	copy(out, m.toasts)
	return out
}

func (m *Manager) notify(toasts []Toast) {
	if m.onChange != nil {
		m.onChange(toasts)
	}
}
