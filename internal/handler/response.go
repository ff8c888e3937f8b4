package handler

// RESPONSE HELPERS:
// Two response shapes leave this package.
//
// GraphQL routes answer with a GraphQL response:
//   {"data": {...}, "errors": [{"message": "...", "extensions": {"code": "..."}}]}
//
// The plain REST routes (OAuth callback, health) answer with:
//   {"error": "not_found", "message": "user not found: octocat"}
//
// Both go through writeJSON so headers are always set before the body.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"

	"github.com/sakif/photo-share/internal/apperror"
)

// ErrorResponse is the error shape of the REST routes.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// graphQLResponse mirrors graphql.Result but drops "data" when there is
// none. A document refused before execution must not carry a data key.
type graphQLResponse struct {
	Data       interface{}                `json:"data,omitempty"`
	Errors     []gqlerrors.FormattedError `json:"errors,omitempty"`
	Extensions map[string]interface{}     `json:"extensions,omitempty"`
}

func newGraphQLResponse(res *graphql.Result) graphQLResponse {
	return graphQLResponse{Data: res.Data, Errors: res.Errors, Extensions: res.Extensions}
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The headers are already sent, so all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeGraphQLError answers a GraphQL route with a single error and no data.
func writeGraphQLError(w http.ResponseWriter, status int, err error) {
	appErr := apperror.From(err)
	writeJSON(w, status, graphQLResponse{
		Errors: []gqlerrors.FormattedError{{
			Message:    appErr.Message,
			Extensions: appErr.Extensions(),
		}},
	})
}

// writeError maps a domain error to an HTTP status code and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. GraphQL
// reports the same errors per field with a code in extensions; only the
// REST routes need a status.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never expose internal error details to the client.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrProvider):
		status, errorType = http.StatusUnauthorized, "provider_error"
	case errors.Is(err, apperror.ErrUpstreamUnavailable):
		status, errorType = http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, apperror.ErrQueryTooDeep), errors.Is(err, apperror.ErrQueryTooComplex):
		status, errorType = http.StatusBadRequest, "query_rejected"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
	})
}
