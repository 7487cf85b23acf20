package web

// errors.go provides unified error response handling for the web layer.
//
// Technical errors are logged with the request id and mapped through
// core.MapError to a message, an action and a code for the client.

import (
	"errors"
	"net"
	"net/http"

	"github.com/JonMunkholm/tradejournal/internal/core"
	"github.com/JonMunkholm/tradejournal/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
}

// respondError logs err and writes a user-friendly JSON error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", "path", r.URL.Path, "status", statusCode, "error", err, "code", userMsg.Code)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", statusCode, "error", err, "code", userMsg.Code)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	var ie *core.ImportError
	if errors.As(err, &ie) {
		resp.Kind = string(ie.Kind)
	}
	writeJSON(w, statusCode, resp)
}

// respondCode writes a fixed error that has no underlying Go error.
func respondCode(w http.ResponseWriter, r *http.Request, statusCode int, msg core.UserMessage) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path, "status", statusCode, "code", msg.Code)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// importErrorStatus maps a fatal import error to an HTTP status.
func importErrorStatus(err error) int {
	var ie *core.ImportError
	if !errors.As(err, &ie) {
		return http.StatusInternalServerError
	}
	switch ie.Kind {
	case core.KindMalformedArchive, core.KindMissingManifest:
		return http.StatusBadRequest
	case core.KindUnsupportedVersion:
		return http.StatusUnprocessableEntity
	case core.KindOwnerNotFound:
		return http.StatusNotFound
	case core.KindArchiveTooLarge:
		return http.StatusRequestEntityTooLarge
	case core.KindTooManyImports:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientIP returns the host part of RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
