package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing component change events.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *ComponentChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishChanged is a no-op.
func (p *NoOpPublisher) PublishChanged(_ context.Context, _ *ComponentChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ComponentChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ComponentChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged calls the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *ComponentChangedEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher hands every event to each publisher in order. Every
// publisher is tried; the errors are joined.
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher skips nil entries.
func NewMultiPublisher(pubs ...EventPublisher) *MultiPublisher {
	m := &MultiPublisher{}
	for _, p := range pubs {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// PublishChanged fans the event out.
func (m *MultiPublisher) PublishChanged(ctx context.Context, event *ComponentChangedEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len is the number of wrapped publishers.
func (m *MultiPublisher) Len() int { return len(m.publishers) }
