// Package channels connects messaging platforms to the orchestrator via the
// message bus. The only customer-facing channel is WhatsApp; the vendor side
// is served by the notify package.
package channels

import (
	"context"
	"sync"

	"github.com/pedidolabs/pedidobot/internal/bus"
)

// Channel defines the interface all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing.
	IsRunning() bool
}

// BaseChannel provides shared plumbing for channel implementations.
type BaseChannel struct {
	name string
	bus  *bus.MessageBus

	mu      sync.Mutex
	running bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

func (c *BaseChannel) Name() string { return c.name }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

func (c *BaseChannel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}
