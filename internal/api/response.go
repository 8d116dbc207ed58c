package api

import (
	"net/http"

	"suite-backup/internal/backup"
	appErrors "suite-backup/internal/errors"

	"github.com/goccy/go-json"
)

// statusFor maps an operation error onto an HTTP status. Partial failures
// still completed and are reported as success with status "partial" in the body.
func statusFor(err error, success int) int {
	if err == nil || appErrors.IsPartialFailure(err) {
		return success
	}
	switch appErrors.GetErrorType(err) {
	case appErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case appErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case appErrors.ErrorTypeConfiguration:
		return http.StatusConflict
	case appErrors.ErrorTypePermission:
		return http.StatusForbidden
	case appErrors.ErrorTypeConnection, appErrors.ErrorTypeInterruption:
		return http.StatusServiceUnavailable
	case appErrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error","message":"response encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
	w.Write([]byte("\n"))
}

// writeOutcome renders an operation's result as an Outcome
func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, result interface{}, err error, success int) {
	if err != nil && !appErrors.IsPartialFailure(err) {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Warn("Request failed")
	}
	writeJSON(w, statusFor(err, success), backup.NewOutcome(result, err))
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.writeOutcome(w, r, nil, appErrors.NewValidationError(msg, nil), http.StatusOK)
}
