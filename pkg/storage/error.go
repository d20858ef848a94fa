package storage

// NotFoundError is returned when a thread doesn't exist in the store.
type NotFoundError struct {
	ThreadID string
}

func (e NotFoundError) Error() string {
	if e.ThreadID == "" {
		return "thread not found"
	}

	return "thread not found: " + e.ThreadID
}
