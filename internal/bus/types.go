// Package bus decouples channels from the orchestrator: channels publish
// inbound messages and consume outbound ones without knowing who processes
// them, and gateway components broadcast events to WebSocket observers.
package bus

import "context"

// Message kinds a channel can deliver.
const (
	KindText     = "text"
	KindImage    = "image"
	KindAudio    = "audio"
	KindLocation = "location"
)

// InboundMessage represents a message received from a channel.
type InboundMessage struct {
	Channel   string  `json:"channel"`
	MessageID string  `json:"message_id"` // platform message id, used for dedupe
	Sender    string  `json:"sender"`     // raw sender identifier as the platform sent it
	ChatID    string  `json:"chat_id"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content,omitempty"`
	MediaID   string  `json:"media_id,omitempty"`
	MimeType  string  `json:"mime_type,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // platform epoch seconds
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string `json:"name"` // e.g. "order", "handoff", "emergency", "health"
	Payload any    `json:"payload,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription. Used by the
// gateway server to decouple from the concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound routing between channels and the
// orchestrator.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	ConsumeOutbound(ctx context.Context) (OutboundMessage, bool)
}
