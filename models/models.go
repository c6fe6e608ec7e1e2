package models

// Identity is the authenticated user as returned by signup/login.
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserSummary is one roster entry.
type UserSummary struct {
	ID     int64
	Name   string
	Email  string
	Online bool
	Unread int // realtime messages received while another peer was selected
}

// Message is a single direct message. Field names follow the backend's JSON.
type Message struct {
	ID           int64  `json:"id"`
	SenderID     int64  `json:"sender_id"`
	ReceiverID   int64  `json:"receiver_id"`
	Text         string `json:"message"`
	CreatedAt    string `json:"created_at"`
	SenderName   string `json:"sender_name,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
}

// Involves reports whether the message was sent to or by the given user.
func (m Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Summarize builds a roster entry from an identity. Presence starts offline.
func Summarize(id Identity) UserSummary {
	return UserSummary{ID: id.ID, Name: id.Name, Email: id.Email}
}
