package models

// DeltaKind identifies the type of state change carried by a Delta.
type DeltaKind string

const (
	DeltaJoin    DeltaKind = "join"
	DeltaLeave   DeltaKind = "leave"
	DeltaMessage DeltaKind = "message"
	DeltaTyping  DeltaKind = "typing"
)

// Delta is a single state-change event exchanged over the channel.
// Exactly one shape applies per kind:
//   - join/leave: ParticipantID, Timestamp
//   - message:    ID, AuthorID, Text, Timestamp
//   - typing:     ParticipantID, IsTyping
type Delta struct {
	Kind          DeltaKind `json:"kind"`
	ParticipantID string    `json:"participant_id,omitempty"`
	ID            string    `json:"id,omitempty"`
	AuthorID      string    `json:"author_id,omitempty"`
	Text          string    `json:"text,omitempty"`
	Timestamp     int64     `json:"timestamp,omitempty"`
	IsTyping      bool      `json:"is_typing,omitempty"`
}

// JoinDelta builds a presence join delta for a participant.
func JoinDelta(participantID string, ts int64) Delta {
	return Delta{Kind: DeltaJoin, ParticipantID: participantID, Timestamp: ts}
}

// LeaveDelta builds a presence leave delta for a participant.
func LeaveDelta(participantID string, ts int64) Delta {
	return Delta{Kind: DeltaLeave, ParticipantID: participantID, Timestamp: ts}
}

// MessageDelta builds a message delta from a stored message.
func MessageDelta(msg Message) Delta {
	return Delta{
		Kind:      DeltaMessage,
		ID:        msg.ID,
		AuthorID:  msg.AuthorID,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
}

// TypingDelta builds a typing indicator delta for a participant.
func TypingDelta(participantID string, isTyping bool) Delta {
	return Delta{Kind: DeltaTyping, ParticipantID: participantID, IsTyping: isTyping}
}
