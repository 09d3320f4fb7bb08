package common

import (
	"encoding/json"
	"net/http"
)

// Envelope is the single response shape consumed by the storefront. Exactly
// one of Data or Error is populated depending on Succeeded.
type Envelope struct {
	Succeeded bool       `json:"succeeded"`
	Data      any        `json:"data,omitempty"`
	Message   string     `json:"message"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success renders a successful envelope.
func Success(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Succeeded: true, Data: data, Message: message})
}

// JSONError renders a failed envelope using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, Envelope{
		Succeeded: false,
		Message:   message,
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// JSONErrorWithData renders a failed envelope that still carries a payload,
// e.g. a fresh quote alongside a conflict.
func JSONErrorWithData(w http.ResponseWriter, status int, code, message string, data any) {
	JSON(w, status, Envelope{
		Succeeded: false,
		Data:      data,
		Message:   message,
		Error:     &ErrorBody{Code: code, Message: message},
	})
}

// WriteAppError renders err, unwrapping an AppError when present.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	if appErr == nil {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	code := appErr.Code
	if code == "" {
		code = CodeValidation
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
}
