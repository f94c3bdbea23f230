package chat

import "time"

// Turn is one capture→reply cycle. Only the turn log keeps it.
type Turn struct {
	ID        string    `json:"id"`
	Digest    string    `json:"digest"`
	UserText  string    `json:"userText,omitempty"`
	ReplyText string    `json:"replyText,omitempty"`
	Audio     Audio     `json:"-"`
	Failure   string    `json:"failure,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
