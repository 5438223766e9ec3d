package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "baseproof/pkg/domain-errors"
	"baseproof/pkg/requestcontext"
)

type errorResponse struct {
	Error   dErrors.Code `json:"error"`
	Message string       `json:"message"`
}

// WriteJSON serializes v with the given status. Serialization failures are
// logged; by then the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", "error", err)
	}
}

// WriteError maps a coded error onto the API error envelope. Uncoded errors
// surface as internal with a generic message so infrastructure details never
// leak.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	WriteJSON(w, logger, status, errorResponse{Error: code, Message: dErrors.MessageOf(err)})
}
