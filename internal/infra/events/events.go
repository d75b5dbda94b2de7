// Package events delivers workflow events to live subscribers: websocket
// clients through Hub and other services through NATS.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/propdesk/turnover/internal/domain"
	"github.com/propdesk/turnover/internal/infra/metrics"
)

// Sink is a named publisher, the name labels the events_published metric.
type Sink struct {
	Name      string
	Publisher domain.EventPublisher
}

// Multi fans one event out to every sink. A failing sink does not stop
// delivery to the others.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out publisher; nil publishers are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s.Publisher != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish implements domain.EventPublisher.
func (m *Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publisher.Publish(ctx, ev); err != nil {
			metrics.EventsPublished.WithLabelValues(s.Name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		metrics.EventsPublished.WithLabelValues(s.Name, "ok").Inc()
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }
