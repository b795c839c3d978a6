// Package hooks provides an event hook system for observing and
// intercepting queue lifecycle events. Pre-hooks run synchronously and may
// cancel the operation by returning an error; post-hooks are informational
// and may run asynchronously.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/INLOpen/flashfifo/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// Record lifecycle events.
	EventPrePushBack     EventType = "PrePushBack"
	EventPostPushBack    EventType = "PostPushBack"
	EventPostDeleteFront EventType = "PostDeleteFront"

	// Metadata lifecycle events.
	EventPostHeaderCommit EventType = "PostHeaderCommit"
	EventPostRecovery     EventType = "PostRecovery"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// HookListener defines the interface for components that want to listen to
// events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is
	// triggered. Returning an error from a "Pre" hook cancels the operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers run first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously
	// for Post-events.
	IsAsync() bool
}

// PrePushBackPayload contains the data for a PrePushBack event. Record is
// the record about to be written; listeners may inspect but must not
// resize it.
type PrePushBackPayload struct {
	Record []byte
}

// NewPrePushBackEvent creates a new event for before a record is pushed.
func NewPrePushBackEvent(payload PrePushBackPayload) HookEvent {
	return &BaseEvent{eventType: EventPrePushBack, payload: payload}
}

// PostPushBackPayload contains the data for a PostPushBack event.
type PostPushBackPayload struct {
	Front     uint32
	RecordNum uint32
	Discarded uint32 // records dropped by an overwrite advance, 0 otherwise
}

// NewPostPushBackEvent creates a new event for after a record is pushed.
func NewPostPushBackEvent(payload PostPushBackPayload) HookEvent {
	return &BaseEvent{eventType: EventPostPushBack, payload: payload}
}

// PostDeleteFrontPayload contains the data for a PostDeleteFront event.
type PostDeleteFrontPayload struct {
	Front     uint32
	RecordNum uint32
}

// NewPostDeleteFrontEvent creates a new event for after the front record is
// deleted.
func NewPostDeleteFrontEvent(payload PostDeleteFrontPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeleteFront, payload: payload}
}

// PostHeaderCommitPayload contains the data for a PostHeaderCommit event.
type PostHeaderCommitPayload struct {
	Slot   int // header copy the commit landed in, 0 or 1
	Header core.Header
}

// NewPostHeaderCommitEvent creates a new event for after a metadata commit.
func NewPostHeaderCommitEvent(payload PostHeaderCommitPayload) HookEvent {
	return &BaseEvent{eventType: EventPostHeaderCommit, payload: payload}
}

// PostRecoveryPayload contains the data for a PostRecovery event.
type PostRecoveryPayload struct {
	Repaired  bool // true when the all-0xFF probe reinstated a record
	Front     uint32
	RecordNum uint32
}

// NewPostRecoveryEvent creates a new event for after mount-time recovery.
func NewPostRecoveryEvent(payload PostRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostRecovery, payload: payload}
}

// preHook reports whether an event type may cancel the operation it
// precedes. Cancellable events always dispatch synchronously.
func (t EventType) preHook() bool {
	return strings.HasPrefix(string(t), "Pre")
}

// registration pins the priority a listener reported at Register time, so
// a listener whose Priority() answer drifts later cannot reorder dispatch.
type registration struct {
	HookListener
	rank int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	regMu   sync.RWMutex
	regs    map[EventType][]registration
	pending sync.WaitGroup // in-flight async listeners
	logger  *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		regs:   make(map[EventType][]registration),
		logger: logger,
	}
}

// Register adds a listener for a specific event type. Dispatch order is by
// ascending priority; listeners sharing a priority run in registration
// order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	regs := append(m.regs[eventType], registration{HookListener: listener, rank: listener.Priority()})
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].rank < regs[j].rank })
	m.regs[eventType] = regs
}

// Trigger fires all registered listeners for a given event in priority
// order. Pre-hooks are always synchronous so they can cancel the
// operation; post-hooks honor each listener's IsAsync preference.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.regMu.RLock()
	regs := m.regs[event.Type()]
	m.regMu.RUnlock()

	if event.Type().preHook() {
		return m.dispatchPre(ctx, event, regs)
	}
	m.dispatchPost(ctx, event, regs)
	return nil
}

func (m *DefaultHookManager) dispatchPre(ctx context.Context, event HookEvent, regs []registration) error {
	for _, reg := range regs {
		if reg.IsAsync() {
			m.logger.Warn("Cancellable events run synchronously; ignoring the listener's async preference.", "event", event.Type(), "priority", reg.rank)
		}
		if err := reg.OnEvent(ctx, event); err != nil {
			return fmt.Errorf("%s listener (priority %d) rejected the operation: %w", event.Type(), reg.rank, err)
		}
	}
	return nil
}

func (m *DefaultHookManager) dispatchPost(ctx context.Context, event HookEvent, regs []registration) {
	for _, reg := range regs {
		if !reg.IsAsync() {
			if err := reg.OnEvent(ctx, event); err != nil {
				m.logger.Error("Post-hook listener failed.", "event", event.Type(), "priority", reg.rank, "error", err)
			}
			continue
		}
		m.pending.Add(1)
		go func(reg registration) {
			defer m.pending.Done()
			if err := reg.OnEvent(ctx, event); err != nil {
				m.logger.Error("Async post-hook listener failed.", "event", event.Type(), "priority", reg.rank, "error", err)
			}
		}(reg)
	}
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.pending.Wait()
}

// ListenerFunc adapts a plain function to the HookListener interface with
// priority 100 and synchronous execution.
type ListenerFunc func(ctx context.Context, event HookEvent) error

func (f ListenerFunc) OnEvent(ctx context.Context, event HookEvent) error { return f(ctx, event) }
func (f ListenerFunc) Priority() int                                      { return 100 }
func (f ListenerFunc) IsAsync() bool                                      { return false }
