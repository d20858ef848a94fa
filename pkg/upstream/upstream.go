// Package upstream defines the interface to the external language-model
// provider. A provider may deliver a reply as one delta (batch) or many
// (true streaming); consumers see both as the same lazy sequence.
package upstream

import (
	"context"
	"fmt"

	"github.com/papercomputeco/relay/pkg/chat"
)

// Delta is one increment of assistant text from the provider. A Delta with
// a non-nil Err is terminal; the channel is closed after it.
type Delta struct {
	Text string
	Err  error
}

// Completer generates assistant content for a conversation context.
//
// Complete returns an error for failures detected before any content is
// produced. The returned channel closes after the final delta; cancelling
// ctx stops delivery and releases the provider connection promptly.
type Completer interface {
	Complete(ctx context.Context, messages []chat.Message) (<-chan Delta, error)
}

// Kind classifies provider failures.
type Kind int

const (
	// KindTransport covers network-level failures reaching the provider.
	KindTransport Kind = iota

	// KindStatus covers non-success HTTP statuses from the provider.
	KindStatus

	// KindMalformed covers a missing or malformed content field in an
	// otherwise successful response.
	KindMalformed

	// KindTimeout covers the per-call deadline expiring.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status for KindStatus, zero otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("upstream %s error: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("upstream %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
