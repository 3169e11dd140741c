package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gatekeep/gatekeep-go/internal/service"
)

const maxBodyBytes = 1 << 20 // 1MB

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(kind service.Kind, msg string) errorBody {
	return errorBody{Error: string(kind), Message: msg}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindDuplicateAccount:
		return http.StatusBadRequest
	case service.KindInvalidCredentials, service.KindUnauthenticated,
		service.KindTokenExpired, service.KindTokenInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err using only the safe parts of a service error.
func writeError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = service.ErrInternal
	}

	body := errorResponse(svcErr.Kind, svcErr.Message)
	if svcErr.Kind == service.KindInternal {
		body.Message = service.ErrInternal.Message
	} else {
		body.Fields = svcErr.Fields
	}
	writeJSON(w, statusFor(svcErr.Kind), body)
}

// decodeJSON reads a size-limited JSON body into v. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(service.KindValidation, "request body too large"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse(service.KindValidation, "invalid request body"))
		return false
	}
	return true
}
