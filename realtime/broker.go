// Package realtime delivers row-change notifications. Events identify the
// changed row but carry no payload meant for display: subscribers react by
// invalidating cached views and re-querying.
package realtime

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when publishing to or subscribing on a closed broker.
var ErrClosed = errors.New("realtime: broker closed")

// EventType names the kind of row change.
type EventType string

const EventInsert EventType = "INSERT"

// Event describes one row change.
type Event struct {
	Table          string    `json:"table"`
	Type           EventType `json:"type"`
	RecordID       string    `json:"record_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	At             time.Time `json:"at"`
}

// MessagesTopic is the channel carrying message inserts for one conversation.
func MessagesTopic(conversationID string) string {
	return "messages:" + conversationID
}

// MessageInserted builds the event published after a message is stored.
func MessageInserted(messageID, conversationID, senderID string, at time.Time) Event {
	return Event{
		Table:          "messages",
		Type:           EventInsert,
		RecordID:       messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		At:             at,
	}
}

// Publisher sends events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Subscription receives the events of one topic until closed. Events is
// closed once the subscription ends. Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker is a topic-scoped publish/subscribe channel. A subscription also
// ends when the context passed to Subscribe is cancelled.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// subscriptionBuffer bounds undelivered events per subscriber. Extra events
// are dropped: one pending event already forces a re-fetch.
const subscriptionBuffer = 16
