package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"scriptd/internal/errors"
)

// ErrorResponse is the JSON body for every failed request
type ErrorResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Code    string             `json:"code,omitempty"`
	Details interface{}        `json:"details,omitempty"`
	Errors  []errors.FieldError `json:"errors,omitempty"`
}

// WriteError writes a coded error with automatic status mapping
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{
		Status:  "error",
		Message: err.Error(),
		Code:    string(errors.Internal),
	}

	var coded *errors.Error
	if stderrors.As(err, &coded) {
		status = statusForCode(coded.Code)
		resp.Code = string(coded.Code)
		resp.Message = coded.Message
		if fields, ok := coded.Details.([]errors.FieldError); ok {
			resp.Errors = fields
		} else {
			resp.Details = coded.Details
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// statusForCode maps error codes to HTTP status codes
func statusForCode(code errors.Code) int {
	switch code {
	case errors.ValidationFailed:
		return http.StatusBadRequest // 400
	case errors.UnsafeContent:
		return http.StatusUnprocessableEntity // 422
	case errors.DuplicateContent:
		return http.StatusConflict // 409
	case errors.NotAuthorized:
		return http.StatusForbidden // 403
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.AnalysisUnavailable:
		return http.StatusServiceUnavailable // 503
	case errors.StoreFailure:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.ValidationFailed, message))
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.NotFound, message))
}

// Unauthorized writes a 401 response for requests without a usable token
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="scriptd"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Message: message,
		Code:    string(errors.NotAuthorized),
	})
}

// MethodNotAllowed writes a 405 response
func MethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(ErrorResponse{
		Status:  "error",
		Message: "method not allowed",
		Code:    string(errors.ValidationFailed),
	})
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.Internal, message))
}
