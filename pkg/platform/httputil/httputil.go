// Package httputil holds the JSON response and request helpers shared by
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "jornada/pkg/domain-errors"
)

// maxBodyBytes caps request bodies; journey payloads are small.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidTransition:
		return http.StatusConflict
	case dErrors.CodeBusinessRule:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as JSON. Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	resp := ErrorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.Description = dErrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Validatable requests check and normalise themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := new(T)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		msg := "invalid json body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request", "request_id", requestID, "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, msg))
		return nil, false
	}
	if v, ok := any(req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			if logger != nil {
				logger.InfoContext(ctx, "invalid request", "request_id", requestID, "error", err)
			}
			WriteError(w, err)
			return nil, false
		}
	}
	return req, true
}
