package model

import "time"

// ConversationRecord is one persisted chat exchange. Records are created
// only by the chat flow and never updated or deleted.
type ConversationRecord struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"` // The verbatim user message.
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}
