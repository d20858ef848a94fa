package relay

import (
	"github.com/papercomputeco/relay/pkg/eventstream"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Publisher is an optional sink for persisted-turn events.
	// If nil, turn events are disabled.
	Publisher eventstream.Publisher

	// EventWorkers is the number of background event workers (defaults to 3).
	EventWorkers uint

	// EventQueueSize is the capacity of the event queue (defaults to 256).
	EventQueueSize uint
}
