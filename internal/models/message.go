package models

import "time"

// Message is one chat message as seen by the classifier and digest aggregator.
type Message struct {
	Text    string `json:"text" validate:"required"`
	Channel string `json:"channel" validate:"required"`
	Author  string `json:"author" validate:"required"`
	// AuthorID is the chat platform's user id, when known. Display names
	// are not unique.
	AuthorID  string    `json:"author_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// MessageTS is the chat platform's message id.
	MessageTS string `json:"message_ts,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}
