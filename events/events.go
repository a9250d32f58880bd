/*
Package events publishes ledger activity to downstream consumers.

PURPOSE:
  Every committed posting is announced so external systems (booking
  confirmation, notifications, reporting pipelines) can react without
  polling the ledger. Publishing is best-effort and strictly after
  commit; the ledger is the source of truth either way.

IMPLEMENTATIONS:
  - Nop:             discards events (default, tests)
  - kafka.Publisher: JSON messages to a Kafka topic
*/
package events

import "context"

// TopicEntryPosted carries one message per committed ledger entry.
const TopicEntryPosted = "credit.entry.posted"

// Publisher delivers an event to a topic. Implementations own encoding.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
