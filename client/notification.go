package client

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Default display time per severity
var (
	SuccessTTL = 5 * time.Second
	ErrorTTL   = 7 * time.Second
	WarningTTL = 5 * time.Second
	InfoTTL    = 5 * time.Second
)

type Notification struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Severity  Severity      `json:"severity"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
}

// ErrorNotifier is the part of the Notifier the pipeline reports to
type ErrorNotifier interface {
	Error(message string, ttl ...time.Duration) string
}

// Notifier keeps the list of visible notifications. Entries with a positive
// ttl are removed automatically once it elapses.
type Notifier struct {
	mu        sync.Mutex
	items     []Notification
	timers    map[string]*time.Timer
	listeners map[string]func([]Notification)
	now       func() time.Time
}

func NewNotifier() *Notifier {
	return &Notifier{
		timers:    map[string]*time.Timer{},
		listeners: map[string]func([]Notification){},
		now:       time.Now,
	}
}

// Show adds a notification and returns its id. A ttl of zero or less keeps
// it until removed.
func (n *Notifier) Show(message string, severity Severity, ttl time.Duration) string {
	item := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		TTL:       ttl,
		CreatedAt: n.now(),
	}

	n.mu.Lock()
	n.items = append(n.items, item)
	if ttl > 0 {
		id := item.ID
		n.timers[id] = time.AfterFunc(ttl, func() {
			n.Remove(id)
		})
	}
	n.mu.Unlock()

	n.notify()

	return item.ID
}

func (n *Notifier) Success(message string, ttl ...time.Duration) string {
	return n.Show(message, SeveritySuccess, pickTTL(ttl, SuccessTTL))
}

func (n *Notifier) Error(message string, ttl ...time.Duration) string {
	return n.Show(message, SeverityError, pickTTL(ttl, ErrorTTL))
}

func (n *Notifier) Warning(message string, ttl ...time.Duration) string {
	return n.Show(message, SeverityWarning, pickTTL(ttl, WarningTTL))
}

func (n *Notifier) Info(message string, ttl ...time.Duration) string {
	return n.Show(message, SeverityInfo, pickTTL(ttl, InfoTTL))
}

// Remove drops the notification with id, reporting whether it was present
func (n *Notifier) Remove(id string) bool {
	n.mu.Lock()
	idx := slices.IndexFunc(n.items, func(item Notification) bool {
		return item.ID == id
	})
	if idx < 0 {
		n.mu.Unlock()
		return false
	}

	n.items = slices.Delete(n.items, idx, idx+1)
	if t, ok := n.timers[id]; ok {
		t.Stop()
		delete(n.timers, id)
	}
	n.mu.Unlock()

	n.notify()
	return true
}

func (n *Notifier) Clear() {
	n.mu.Lock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	n.items = nil
	n.mu.Unlock()

	n.notify()
}

// List returns a snapshot, oldest first
func (n *Notifier) List() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.items)
}

// OnChange registers fn to receive the list after every change. The returned
// func unsubscribes.
func (n *Notifier) OnChange(fn func([]Notification)) func() {
	id := uuid.NewString()

	n.mu.Lock()
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) notify() {
	n.mu.Lock()
	snapshot := slices.Clone(n.items)
	listeners := make([]func([]Notification), 0, len(n.listeners))
	for _, fn := range n.listeners {
		listeners = append(listeners, fn)
	}
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func pickTTL(ttl []time.Duration, def time.Duration) time.Duration {
	if len(ttl) > 0 {
		return ttl[0]
	}
	return def
}
