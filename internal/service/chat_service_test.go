package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "beru/backend/internal/errors"
	mock_llm "beru/backend/internal/llm/mocks"
	"beru/backend/internal/model"
	"beru/backend/internal/repository"
	mock_repo "beru/backend/internal/repository/mocks"
	"beru/backend/internal/service"
)

type Mocks struct {
	repo *mock_repo.MockConversationRepository
	llm  *mock_llm.MockProvider
}

func setupChatService(t *testing.T) (*service.ChatService, Mocks) {
	mocks := Mocks{
		repo: mock_repo.NewMockConversationRepository(t),
		llm:  mock_llm.NewMockProvider(t),
	}
	return service.NewChatService(mocks.repo, mocks.llm), mocks
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - prompt is templated and output trimmed", func(t *testing.T) {
		chatService, mocks := setupChatService(t)

		mocks.llm.On("Predict", ctx, "My monarch commands: build more roads").Return("  Yes, my liege.\n", nil).Once()
		mocks.repo.On("InsertConversation", ctx, "build more roads", "Yes, my liege.").Return(nil).Once()

		response, err := chatService.SendMessage(ctx, "build more roads")
		require.NoError(t, err)
		assert.Equal(t, "Yes, my liege.", response)
	})

	t.Run("Success - message is used verbatim", func(t *testing.T) {
		chatService, mocks := setupChatService(t)
		message := `  "quoted" — ünïcødé 王 `

		mocks.llm.On("Predict", ctx, "My monarch commands: "+message).Return("ok", nil).Once()
		mocks.repo.On("InsertConversation", ctx, message, "ok").Return(nil).Once()

		_, err := chatService.SendMessage(ctx, message)
		require.NoError(t, err)
	})

	t.Run("Failure - inference error persists nothing", func(t *testing.T) {
		chatService, mocks := setupChatService(t)
		upstream := app_errors.New(app_errors.ErrUpstream, "Replicate API prediction failed")

		mocks.llm.On("Predict", ctx, "My monarch commands: raise taxes").Return("", upstream).Once()

		_, err := chatService.SendMessage(ctx, "raise taxes")
		assert.ErrorIs(t, err, app_errors.ErrUpstream)
		mocks.repo.AssertNotCalled(t, "InsertConversation")
	})

	t.Run("Failure - storage error", func(t *testing.T) {
		chatService, mocks := setupChatService(t)

		mocks.llm.On("Predict", ctx, "My monarch commands: raise taxes").Return("As you wish.", nil).Once()
		mocks.repo.On("InsertConversation", ctx, "raise taxes", "As you wish.").
			Return(errors.New("could not insert conversation: deadlock")).Once()

		_, err := chatService.SendMessage(ctx, "raise taxes")
		require.ErrorIs(t, err, app_errors.ErrStorage)
		detail, _ := app_errors.DetailOf(err)
		assert.Equal(t, "Database error", detail)
	})
}

func TestChatService_ListHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		chatService, mocks := setupChatService(t)
		expected := []model.ConversationRecord{
			{ID: 2, Title: "build more roads", Response: "Yes, my liege.", Timestamp: time.Now()},
			{ID: 1, Title: "raise taxes", Response: "As you wish.", Timestamp: time.Now().Add(-time.Minute)},
		}
		mocks.repo.On("ListConversations", ctx).Return(expected, nil).Once()

		records, err := chatService.ListHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, records)
	})

	t.Run("Failure - connection error", func(t *testing.T) {
		chatService, mocks := setupChatService(t)
		mocks.repo.On("ListConversations", ctx).Return(nil, repository.ErrConnection).Once()

		_, err := chatService.ListHistory(ctx)
		require.ErrorIs(t, err, app_errors.ErrStorage)
		detail, _ := app_errors.DetailOf(err)
		assert.Equal(t, "Database connection error", detail)
	})
}

func TestChatService_AttachFile(t *testing.T) {
	chatService, _ := setupChatService(t)

	first := chatService.AttachFile(context.Background())
	second := chatService.AttachFile(context.Background())

	assert.Equal(t, "File upload is not yet implemented, my monarch.", first)
	assert.Equal(t, first, second)
}
