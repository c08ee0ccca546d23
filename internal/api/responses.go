package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	app_errors "beru/backend/internal/errors"
)

// This file contains shared DTOs (Data Transfer Objects) for API requests and
// responses and helper functions for sending consistent HTTP responses.

// ErrorResponse defines the standard JSON structure for error messages.
type ErrorResponse struct {
	Detail string `json:"detail" example:"Replicate API prediction failed"`
}

// ChatRequest is the body of POST /chat. The message is required to be
// present but is otherwise accepted as-is.
type ChatRequest struct {
	Message *string `json:"message" validate:"required" example:"build more roads"`
}

// ChatResponse is returned by POST /chat and POST /attach.
type ChatResponse struct {
	Response string `json:"response" example:"Yes, my liege."`
}

// HistoryEntry is one conversation as exposed by GET /history.
type HistoryEntry struct {
	Title     string    `json:"title" example:"build more roads"`
	Response  string    `json:"response" example:"Yes, my liege."`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// respondWithError is the centralized error handling function for the API layer.
// Configuration, upstream and storage failures all collapse into a 500 carrying
// the error's detail; only unreadable request bodies get their own status.
func respondWithError(w http.ResponseWriter, err error) {
	var statusCode int
	var message string

	detail, hasDetail := app_errors.DetailOf(err)

	switch {
	case errors.Is(err, app_errors.ErrValidation):
		statusCode = http.StatusUnprocessableEntity
		message = detail
	case hasDetail && (errors.Is(err, app_errors.ErrConfiguration) ||
		errors.Is(err, app_errors.ErrUpstream) ||
		errors.Is(err, app_errors.ErrStorage)):
		statusCode = http.StatusInternalServerError
		message = detail
	default:
		// Anything else is unexpected; keep implementation details out of the body.
		statusCode = http.StatusInternalServerError
		message = "An unexpected internal server error occurred."
	}

	slog.Warn("Responding with error", "status_code", statusCode, "client_message", message, "internal_error", err)

	respondWithJSON(w, statusCode, ErrorResponse{Detail: message})
}

// respondWithJSON is a low-level helper for marshaling a payload to JSON
// and writing it to the http.ResponseWriter with a given status code.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}
