package httputil

import (
	"encoding/json"
	"net/http"

	"aichat/internal/domain"
)

// RespondJSON writes a JSON response with the given status code.
// It marshals first so a failed encoding never produces a partial body
// after headers are sent.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, domain.CodeInternal, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ErrorBody is the client-facing error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the stable code and the human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondError writes a coded error envelope.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	payload, err := json.Marshal(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		// Fallback to plain text if JSON encoding fails
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondDomainError maps any error onto the coded envelope via
// domain.AsError.
func RespondDomainError(w http.ResponseWriter, err error) {
	e := domain.AsError(err)
	RespondError(w, e.StatusCode(), e.ErrorCode(), e.Error())
}
