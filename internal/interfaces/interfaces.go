package interfaces

import (
	"context"

	"beru/backend/internal/model"
)

// This file defines the interfaces for our core services.
// The API layer depends on these instead of concrete implementations so that
// handlers can be tested against mocks.

// ChatService defines the contract for chat-related business logic.
type ChatService interface {
	SendMessage(ctx context.Context, message string) (string, error)
	ListHistory(ctx context.Context) ([]model.ConversationRecord, error)
	AttachFile(ctx context.Context) string
}
