package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/sse"
	"github.com/papercomputeco/relay/pkg/storage"
	"github.com/papercomputeco/relay/pkg/upstream"
	"github.com/papercomputeco/relay/relay/worker"
)

// SessionState tracks where a streaming exchange is in its lifecycle.
type SessionState int

const (
	StateInit SessionState = iota
	StateLoadingThread
	StateAwaitingUpstream
	StateStreamingDeltas
	StateFinalizing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoadingThread:
		return "loading_thread"
	case StateAwaitingUpstream:
		return "awaiting_upstream"
	case StateStreamingDeltas:
		return "streaming_deltas"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// maxSeedTitleLen caps thread titles derived from the first user message.
const maxSeedTitleLen = 80

// Session drives one streaming exchange: load the thread, append the user
// turn, relay provider deltas to the client one frame at a time, then persist
// the assistant turn and emit a terminal frame.
//
// A write failure on the outbound frame writer means the client went away.
// The session then cancels the provider context, discards the accumulated
// text, and persists nothing for the assistant turn.
type Session struct {
	store     storage.Driver
	completer upstream.Completer
	pool      *worker.Pool
	logger    *zap.Logger

	state SessionState
}

// NewSession creates a Session over the given collaborators. pool may be nil
// when turn events are disabled.
func NewSession(store storage.Driver, completer upstream.Completer, pool *worker.Pool, logger *zap.Logger) *Session {
	return &Session{
		store:     store,
		completer: completer,
		pool:      pool,
		logger:    logger,
		state:     StateInit,
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// Run executes the exchange, writing frames to w until a terminal state is
// reached. It always leaves the session in one of StateCompleted,
// StateFailed, or StateCancelled.
func (s *Session) Run(ctx context.Context, w *sse.Writer, threadID, message string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.state = StateLoadingThread

	threadID = strings.TrimSpace(threadID)
	if threadID == "" || strings.TrimSpace(message) == "" {
		s.fail(w, "threadId and message are required")
		return
	}

	thread, err := s.store.LoadOrCreate(ctx, threadID, seedTitle(message))
	if err != nil {
		s.logger.Error("failed to load thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		s.fail(w, "failed to load conversation")
		return
	}

	// The user turn is persisted before the provider call so a failure
	// mid-stream never loses it, even when the reply is lost.
	userMsg := chat.NewMessage(chat.RoleUser, message)
	thread, err = s.store.AppendMessage(ctx, threadID, userMsg)
	if err != nil {
		s.logger.Error("failed to append user message",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		s.fail(w, "failed to save message")
		return
	}

	s.state = StateAwaitingUpstream
	startedAt := time.Now().UTC()

	deltas, err := s.completer.Complete(ctx, thread.Messages)
	if err != nil {
		s.logger.Error("provider call failed",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		s.fail(w, upstreamErrorMessage(err))
		return
	}

	var reply strings.Builder
	deltaCount := 0

	for delta := range deltas {
		if delta.Err != nil {
			s.logger.Error("provider stream failed",
				zap.String("thread_id", threadID),
				zap.Int("delta_count", deltaCount),
				zap.Error(delta.Err),
			)
			s.fail(w, upstreamErrorMessage(delta.Err))
			return
		}

		s.state = StateStreamingDeltas

		if err := writeContentFrame(w, delta.Text); err != nil {
			// The client disconnected. Cancelling ctx releases the
			// provider connection; the accumulated text is discarded.
			s.logger.Debug("client disconnected mid-stream",
				zap.String("thread_id", threadID),
				zap.Int("delta_count", deltaCount),
			)
			s.state = StateCancelled
			return
		}

		reply.WriteString(delta.Text)
		deltaCount++
	}

	if err := ctx.Err(); err != nil {
		s.state = StateCancelled
		return
	}

	s.state = StateFinalizing

	content := reply.String()
	if strings.TrimSpace(content) == "" {
		// Blank replies are never persisted, but the exchange still ends
		// cleanly for the client.
		s.logger.Debug("skipping blank assistant reply", zap.String("thread_id", threadID))
		s.finish(w)
		return
	}

	assistantMsg := chat.NewMessage(chat.RoleAssistant, content)
	thread, err = s.store.AppendMessage(ctx, threadID, assistantMsg)
	if err != nil {
		// The client already has the full reply, so this is a warning,
		// not a stream error. The turn event is not published.
		s.logger.Warn("failed to persist assistant message",
			zap.String("thread_id", threadID),
			zap.Int("delta_count", deltaCount),
			zap.Error(err),
		)
		s.state = StateFailed
		_ = writeEndFrame(w)
		return
	}

	s.publishTurn(thread, userMsg, assistantMsg, startedAt, deltaCount)
	s.finish(w)
}

// fail emits a terminal error frame and marks the session failed.
func (s *Session) fail(w *sse.Writer, message string) {
	s.state = StateFailed

	payload, err := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: message})
	if err != nil {
		return
	}

	_ = w.WriteEvent(sse.Event{Type: "error", Data: string(payload)})
}

// finish emits the terminal success frame and marks the session completed.
func (s *Session) finish(w *sse.Writer) {
	if err := writeEndFrame(w); err != nil {
		s.state = StateCancelled
		return
	}
	s.state = StateCompleted
}

func (s *Session) publishTurn(thread *chat.Thread, user, assistant chat.Message, startedAt time.Time, deltaCount int) {
	if s.pool == nil {
		return
	}

	completedAt := time.Now().UTC()
	s.pool.Enqueue(&eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     completedAt,
		ThreadID:      thread.ThreadID,
		Title:         thread.Title,
		RequestMeta: eventstream.TurnRequestMeta{
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
			Streaming:   deltaCount > 1,
			DeltaCount:  deltaCount,
		},
		User:      user,
		Assistant: assistant,
	})
}

func writeContentFrame(w *sse.Writer, text string) error {
	payload, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: text})
	if err != nil {
		return err
	}

	return w.WriteEvent(sse.Event{Data: string(payload)})
}

func writeEndFrame(w *sse.Writer) error {
	return w.WriteEvent(sse.Event{Type: "end", Data: `{"done": true}`})
}

// upstreamErrorMessage maps a provider failure to a client-safe message.
func upstreamErrorMessage(err error) string {
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		return "provider request failed"
	}

	switch ue.Kind {
	case upstream.KindTimeout:
		return "provider request timed out"
	case upstream.KindStatus:
		return "provider returned an error"
	case upstream.KindMalformed:
		return "provider returned an unreadable response"
	default:
		return "provider is unreachable"
	}
}

// seedTitle derives a thread title from the first user message.
func seedTitle(message string) string {
	title := strings.TrimSpace(message)
	if line, _, found := strings.Cut(title, "\n"); found {
		title = line
	}

	runes := []rune(title)
	if len(runes) > maxSeedTitleLen {
		title = string(runes[:maxSeedTitleLen])
	}

	return title
}
