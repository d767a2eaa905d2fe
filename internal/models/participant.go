package models

// Status indicates whether a participant is currently connected.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Participant represents a connected chat user.
// Participants are anonymous and identified only by their chosen display name.
// A record exists exactly while the user is connected: it is created on join
// and deleted on leave, so absence from the registry means "gone".
type Participant struct {
	// ID is the user-chosen display name (2-20 characters).
	// Two sessions may pick the same name; the last join wins.
	ID string `json:"id"`

	// Status of the participant. The registry never holds offline-only
	// entries, since leaving deletes the record.
	Status Status `json:"status"`

	// LastSeen is the last activity timestamp in milliseconds since epoch.
	// It is monotonically non-decreasing for the lifetime of the record.
	LastSeen int64 `json:"last_seen"`

	// IsTyping reports the effective typing state: the participant has typed
	// recently and is still present.
	IsTyping bool `json:"is_typing"`
}

// JoinRequest carries a display name chosen at login.
type JoinRequest struct {
	Username string `json:"username" validate:"required,min=2,max=20"`
}

// UsersResponse is the presence snapshot returned by the polling API
// and pushed over WebSocket.
type UsersResponse struct {
	Users       map[string]Participant `json:"users"`
	OnlineCount int                    `json:"online_count"`
}
