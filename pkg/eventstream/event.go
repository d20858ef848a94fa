// Package eventstream defines the transport-neutral event emitted after a
// completed exchange is persisted, and the Publisher interface backends
// implement.
package eventstream

import (
	"time"

	"github.com/papercomputeco/relay/pkg/chat"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "relay.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted
// user/assistant exchange.
type TurnPersistedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	ThreadID      string          `json:"thread_id"`
	Title         string          `json:"title"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	User          chat.Message    `json:"user"`
	Assistant     chat.Message    `json:"assistant"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	DeltaCount  int       `json:"delta_count"`
}
