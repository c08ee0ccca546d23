package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	app_errors "beru/backend/internal/errors"
	"beru/backend/internal/llm"
	"beru/backend/internal/model"
	"beru/backend/internal/repository"
)

const (
	// promptTemplate embeds the raw user message. The message is not escaped
	// or trimmed, so it can steer the prompt.
	promptTemplate = "My monarch commands: %s"

	attachPlaceholder = "File upload is not yet implemented, my monarch."
)

type ChatService struct {
	repo repository.ConversationRepository
	llm  llm.Provider
}

func NewChatService(repo repository.ConversationRepository, llm llm.Provider) *ChatService {
	return &ChatService{repo: repo, llm: llm}
}

// SendMessage relays message to the model and stores the exchange. Nothing is
// stored when inference fails.
func (s *ChatService) SendMessage(ctx context.Context, message string) (string, error) {
	output, err := s.llm.Predict(ctx, fmt.Sprintf(promptTemplate, message))
	if err != nil {
		return "", err
	}
	response := strings.TrimSpace(output)

	if err := s.repo.InsertConversation(ctx, message, response); err != nil {
		slog.Error("Failed to store conversation", "error", err)
		return "", storageError(err)
	}
	return response, nil
}

// ListHistory returns every stored exchange, most recent first.
func (s *ChatService) ListHistory(ctx context.Context) ([]model.ConversationRecord, error) {
	records, err := s.repo.ListConversations(ctx)
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		return nil, storageError(err)
	}
	return records, nil
}

// AttachFile is a placeholder; uploads are not supported.
func (s *ChatService) AttachFile(ctx context.Context) string {
	return attachPlaceholder
}

func storageError(err error) error {
	if errors.Is(err, repository.ErrConnection) {
		return app_errors.Wrap(app_errors.ErrStorage, "Database connection error", err)
	}
	return app_errors.Wrap(app_errors.ErrStorage, "Database error", err)
}
