// Package httputil holds the JSON response helpers shared by the handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Brownie44l1/fkp-api/internal/model"
	"github.com/Brownie44l1/fkp-api/internal/monitoring"
	"github.com/Brownie44l1/fkp-api/internal/tensor"
)

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// ModelError maps an error from the model or its history store to a
// response: shape mismatches are 400 and a missing prediction is 404.
// Anything else is logged and answered with a 500 carrying only msg.
func ModelError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, tensor.ErrShapeMismatch):
		BadRequest(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		NotFound(w, err.Error())
	default:
		monitoring.Logf("%s: %v", msg, err)
		InternalServerError(w, msg)
	}
}
