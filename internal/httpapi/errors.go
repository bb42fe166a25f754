package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aegislabs/promptgate/internal/core"
	"github.com/google/uuid"
)

// errorBody is the wire shape of every error response: { "detail": {...} }.
type errorBody struct {
	Detail errorDetail `json:"detail"`
}

type errorDetail struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// WriteError renders err as a structured error body and the appropriate
// status code. GatewayErrors carry their own Kind.HTTPStatus(); any other
// error is treated as an opaque internal failure and gets a request_id for
// correlation, since its context is not safe to expose.
func WriteError(w http.ResponseWriter, err error) {
	gwErr, ok := err.(*core.GatewayError)
	if !ok {
		requestID := uuid.NewString()
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Detail: errorDetail{
				Message: "internal error",
				Context: map[string]interface{}{"request_id": requestID},
			},
		})
		return
	}

	status := gwErr.Kind.HTTPStatus()
	context := gwErr.Context
	if context == nil {
		context = map[string]interface{}{}
	}

	if gwErr.Kind == core.KindCircuitOpen {
		if retryAfter, ok := context["retry_after_seconds"]; ok {
			if secs, ok := retryAfter.(int); ok {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
	}

	if status == http.StatusInternalServerError {
		context["request_id"] = uuid.NewString()
	}

	writeJSON(w, status, errorBody{Detail: errorDetail{Message: gwErr.Message, Context: context}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
