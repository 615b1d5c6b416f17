// Package api provides the HTTP surface of KeikobaBot: the signed messaging
// webhook and the admin CRUD endpoints for groups and practices.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the uniform error response shape.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewErrorBody builds the error body keyed by HTTP status.
func NewErrorBody(statusCode int, message string) ErrorBody {
	errText := "Internal Server Error"
	switch statusCode {
	case http.StatusBadRequest:
		errText = "Bad Request"
	case http.StatusForbidden:
		errText = "Forbidden"
	case http.StatusNotFound:
		errText = "Not Found"
	}
	return ErrorBody{Error: errText, Message: message}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		statusCode = http.StatusInternalServerError
		jsonData = []byte(`{"error":"Internal Server Error","message":"response encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(jsonData); err != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", err)
	}
}

// writeError writes the uniform {error, message} body.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, NewErrorBody(statusCode, message))
}
