package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as the operator-facing message from
// importer.MapError. The message code also picks the HTTP status.

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

var errRateLimited = errors.New("rate limit exceeded")

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form. A statusCode of 0
// derives the status from the message code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	msg := importer.MapError(err)
	if statusCode == 0 {
		statusCode = statusForCode(msg.Code)
	}

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusForCode maps a message code family to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case "FILE001":
		return http.StatusRequestEntityTooLarge
	case "DB001":
		return http.StatusConflict
	case "DB003", "DB004", "RUN001":
		return http.StatusServiceUnavailable
	case "RUN002":
		return http.StatusNotFound
	case "RUN004":
		return http.StatusGatewayTimeout
	case "RUN005":
		return http.StatusBadRequest
	case "RATE001":
		return http.StatusTooManyRequests
	}

	switch {
	case strings.HasPrefix(code, "FILE"), strings.HasPrefix(code, "VAL"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
