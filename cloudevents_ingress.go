// Package trellis: CloudEvents ingress adapter. An EventBus receives
// CloudEvents from outside the process (an HTTP receiver, a message broker
// subscription, a test harness) and feeds each one into the discrete input
// cell registered for its event type, inside its own pulse — external
// events join the reactive graph the same way a timer tick or an fsnotify
// notification does.
//
// Grounded on the teacher framework's observer.go/observer_cloudevents.go
// (Observer/Subject/ObserverInfo, NewCloudEvent/generateEventID), adapted
// from a callback-fanout Subject into a Controller-fed event source: the
// CloudEvents vocabulary and helpers survive, and delivery now always sets
// a cell, with registered callbacks notified after it.
package trellis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// ErrNoSubjectForEventEmission marks an event emission that had nothing to
// emit through. No function in this package returns it; it mirrors the
// teacher framework's sentinel of the same name, kept for
// HandleEventEmissionError, which treats it as handled.
var ErrNoSubjectForEventEmission = errors.New("trellis: no subject available for event emission")

// EventObserverInfo describes a registered EventBus subscription, for
// introspection.
//
// Grounded on the teacher framework's ObserverInfo.
type EventObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventObserver is a callback-style subscriber an EventBus notifies
// alongside feeding its matching input cell — useful for logging or
// metrics that want to see every inbound event without reading it back out
// of a cell.
//
// Grounded on the teacher framework's Observer/FunctionalObserver.
type EventObserver interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// FunctionalEventObserver adapts a plain function to EventObserver.
type FunctionalEventObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalEventObserver builds an EventObserver from handler.
func NewFunctionalEventObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalEventObserver {
	return &FunctionalEventObserver{id: id, handler: handler}
}

func (f *FunctionalEventObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalEventObserver) ObserverID() string { return f.id }

type eventSubscription struct {
	observer   EventObserver
	eventTypes map[string]struct{}
	registered time.Time
}

// EventBus is the CloudEvents ingress point: every inbound Accept call
// feeds the discrete input cell registered for that event's type (creating
// one lazily on first use) and fans the raw event out to any
// EventObservers subscribed to that type.
type EventBus struct {
	ctrl   *Controller
	logger Logger

	mu     sync.Mutex
	cells  map[string]*Value
	subs   map[string]*eventSubscription
}

// NewEventBus creates an EventBus that feeds cells through ctrl.
func NewEventBus(ctrl *Controller, logger Logger) *EventBus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventBus{
		ctrl:   ctrl,
		logger: logger,
		cells:  make(map[string]*Value),
		subs:   make(map[string]*eventSubscription),
	}
}

// Cell returns the discrete input cell fed by CloudEvents of the given
// type, creating it on first use. A rule or observer reads it like any
// other Value; it resets to nil at the start of the pulse following the
// one that received the event.
func (b *EventBus) Cell(eventType string) *Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cells[eventType]; ok {
		return c
	}
	c := NewDiscreteValue(b.ctrl)
	b.cells[eventType] = c
	return c
}

// RegisterObserver subscribes observer to eventTypes (all types, if none
// are given).
//
// Grounded on the teacher framework's Subject.RegisterObserver.
func (b *EventBus) RegisterObserver(observer EventObserver, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	b.subs[observer.ObserverID()] = &eventSubscription{
		observer:   observer,
		eventTypes: types,
		registered: time.Now(),
	}
	return nil
}

// UnregisterObserver removes observer; idempotent.
func (b *EventBus) UnregisterObserver(observer EventObserver) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, observer.ObserverID())
	return nil
}

// Observers lists current subscriptions, for introspection.
func (b *EventBus) Observers() []EventObserverInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]EventObserverInfo, 0, len(b.subs))
	for id, s := range b.subs {
		types := make([]string, 0, len(s.eventTypes))
		for t := range s.eventTypes {
			types = append(types, t)
		}
		out = append(out, EventObserverInfo{ID: id, EventTypes: types, RegisteredAt: s.registered})
	}
	return out
}

// Accept delivers event: it sets the matching input cell (scheduling every
// rule that reads it) inside its own pulse, then notifies any subscribed
// EventObservers.
func (b *EventBus) Accept(ctx context.Context, event cloudevents.Event) error {
	if err := ValidateCloudEvent(event); err != nil {
		return err
	}

	cell := b.Cell(event.Type())
	if err := b.ctrl.Atomically(func() error {
		return cell.Set(event)
	}); err != nil {
		return err
	}

	b.mu.Lock()
	subs := make([]*eventSubscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if len(s.eventTypes) > 0 {
			if _, ok := s.eventTypes[event.Type()]; !ok {
				continue
			}
		}
		if err := s.observer.OnEvent(ctx, event); err != nil {
			b.logger.Warn("event observer failed", "observer", s.observer.ObserverID(), "error", err)
		}
	}
	return nil
}

// EventType constants for CloudEvents this package itself emits.
//
// Grounded on the teacher framework's EventType* constants.
const (
	EventTypeCellCommitted = "io.trellis.cell.committed"
	EventTypeCircularity   = "io.trellis.pulse.circularity"
)

// NewCloudEvent builds a CloudEvent with a generated ID and JSON-encoded
// data, the way the teacher framework's NewCloudEvent helper does.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for k, v := range metadata {
		event.SetExtension(k, v)
	}
	return event
}

func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates event against the CloudEvents spec.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// HandleEventEmissionError standardizes handling of an event-emission
// failure: it reports true (handled) for ErrNoSubjectForEventEmission and
// logs anything else via logger, also reporting true so routine emission
// failures don't propagate as hard errors. With a nil logger, any other
// error is reported as false (not handled).
func HandleEventEmissionError(err error, logger Logger, source, eventType string) bool {
	if errors.Is(err, ErrNoSubjectForEventEmission) {
		return true
	}
	if logger != nil {
		logger.Debug("failed to emit event", "source", source, "eventType", eventType, "error", err)
		return true
	}
	return false
}
