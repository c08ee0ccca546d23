package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	app_errors "beru/backend/internal/errors"
	"beru/backend/internal/interfaces"
	"beru/backend/internal/model"
)

// ChatHandler handles the chat, history and attachment endpoints.
type ChatHandler struct {
	service interfaces.ChatService
}

func NewChatHandler(svc interfaces.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// HandleChat godoc
// @Summary      Send a chat message
// @Description  Relays the message to the language model, stores the exchange and returns the trimmed reply. Blocks until the prediction finishes.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        request  body      ChatRequest  true  "Message to the advisor"
// @Success      200      {object}  ChatResponse
// @Failure      422      {object}  ErrorResponse
// @Failure      500      {object}  ErrorResponse
// @Router       /chat [post]
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, app_errors.Wrap(app_errors.ErrValidation, "Invalid request body", err))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	response, err := h.service.SendMessage(r.Context(), *req.Message)
	if err != nil {
		respondWithError(w, err)
		return
	}

	slog.Debug("Chat message answered", "request_id", middleware.GetReqID(r.Context()))
	respondWithJSON(w, http.StatusOK, ChatResponse{Response: response})
}

// HandleHistory godoc
// @Summary      List conversation history
// @Description  Returns every stored exchange, most recent first.
// @Tags         Chat
// @Produce      json
// @Success      200  {object}  HistoryResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /history [get]
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListHistory(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	entries := lo.Map(records, func(rec model.ConversationRecord, _ int) HistoryEntry {
		return HistoryEntry{Title: rec.Title, Response: rec.Response, Timestamp: rec.Timestamp}
	})
	respondWithJSON(w, http.StatusOK, HistoryResponse{History: entries})
}

// HandleAttach godoc
// @Summary      Attach a file
// @Description  Placeholder: file uploads are not implemented and the body is ignored.
// @Tags         Chat
// @Produce      json
// @Success      200  {object}  ChatResponse
// @Router       /attach [post]
func (h *ChatHandler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, ChatResponse{Response: h.service.AttachFile(r.Context())})
}
