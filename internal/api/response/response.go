package response

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/claimdesk/expense-ledger/internal/domain/errors"
)

// ResponseMetadata carries common response metadata
type ResponseMetadata struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success  bool             `json:"success"`
	Data     interface{}      `json:"data,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success          bool             `json:"success"`
	Error            string           `json:"error"`
	ErrorDescription ErrorDescription `json:"error_description"`
	Metadata         ResponseMetadata `json:"metadata"`
}

// ErrorDescription represents the error details
type ErrorDescription struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteSuccess writes a success response with the given status code and data
func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	resp := SuccessResponse{
		Success: true,
		Data:    data,
		Metadata: ResponseMetadata{
			Version:   "1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response to an HTTP response writer
func WriteError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := "INTERNAL_ERROR"
	message := "An unexpected error occurred"
	details := make(map[string]interface{})

	// Convert to AppError if possible
	if appErr, ok := err.(errors.AppError); ok {
		statusCode = appErr.StatusCode
		errorCode = appErr.Code
		message = appErr.Message
		details = appErr.Details
	} else {
		// For non-AppError, use the error message
		message = err.Error()
	}

	resp := ErrorResponse{
		Success: false,
		Error:   errorCode,
		ErrorDescription: ErrorDescription{
			Message: message,
			Details: details,
		},
		Metadata: ResponseMetadata{
			Version:   "1.0",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
