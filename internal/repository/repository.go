package repository

import (
	"context"

	"beru/backend/internal/model"
)

// ConversationRepository stores completed chat exchanges. There is no update
// or delete: records are immutable once written.
type ConversationRepository interface {
	InsertConversation(ctx context.Context, title, response string) error
	ListConversations(ctx context.Context) ([]model.ConversationRecord, error)
}
