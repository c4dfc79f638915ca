// Package bus fans rule lifecycle events out to other processes.
package bus

import (
	"context"

	"github.com/valyc0/fraudM/internal/domain/rules"
)

type Bus interface {
	Publish(ctx context.Context, ev rules.Event) error
	StartForwarder(ctx context.Context, onEvent func(ev rules.Event)) error
	Close() error
}

type noopBus struct{}

// NewNoopBus drops every event. Used when no broker is configured.
func NewNoopBus() Bus { return noopBus{} }

func (noopBus) Publish(context.Context, rules.Event) error { return nil }

func (noopBus) StartForwarder(ctx context.Context, _ func(rules.Event)) error { return nil }

func (noopBus) Close() error { return nil }
