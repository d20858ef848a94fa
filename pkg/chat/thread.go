package chat

import "time"

// Thread is a persisted conversation identified by an opaque,
// externally supplied id. Messages are append-only; insertion order is
// conversation order.
type Thread struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ThreadSummary is the sidebar view of a thread: id and title only.
type ThreadSummary struct {
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
}

// NewThread creates an empty thread. The title is set once at creation
// and is not revised by later appends.
func NewThread(threadID, title string) *Thread {
	return &Thread{
		ThreadID:  threadID,
		Title:     title,
		Messages:  []Message{},
		UpdatedAt: time.Now().UTC(),
	}
}

// Append adds a message and bumps UpdatedAt.
func (t *Thread) Append(msg Message) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (t *Thread) Clone() *Thread {
	msgs := make([]Message, len(t.Messages))
	copy(msgs, t.Messages)
	return &Thread{
		ThreadID:  t.ThreadID,
		Title:     t.Title,
		Messages:  msgs,
		UpdatedAt: t.UpdatedAt,
	}
}
