package chat

// LoadError reports a failed initial message fetch. The sequence stays
// empty; the caller decides whether to surface a retry.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return "chat: failed to load messages: " + e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SendError reports a failed message insert. The optimistic entry has been
// rolled back and Content restored to the draft so the user can retry.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return "chat: failed to send message: " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}
