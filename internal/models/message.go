package models

// Message represents a single chat message.
// Messages are immutable once created and are never edited or deleted.
// A message outlives its author's session: AuthorID is a non-owning
// back-reference that may point at a participant who has since left.
type Message struct {
	// ID is assigned at send time. It is prefixed with the send timestamp
	// so that lexical order tracks send order, which keeps the display
	// order stable when two messages share a millisecond.
	ID string `json:"id"`

	// AuthorID is the sender's display name at the time of send.
	AuthorID string `json:"author_id"`

	// Text is the message body, trimmed of surrounding whitespace.
	// Text that trims to empty is rejected before a message is created.
	Text string `json:"text"`

	// Timestamp is when the message was sent, in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

// SendMessageRequest is the request body for sending a message over the
// polling fallback API.
type SendMessageRequest struct {
	AuthorID string `json:"author_id" validate:"required,min=2,max=20"`
	Text     string `json:"text" validate:"required"`
}

// GetMessagesResponse is the response for fetching messages.
type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}
