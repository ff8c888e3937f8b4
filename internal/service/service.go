// Package service contains the business rules of the photo-share API.
//
// THE LAYERS:
//
//	graph (GraphQL resolvers) → service (business rules) → repository (storage)
//
// Resolvers only translate GraphQL arguments into service calls. Everything
// that decides whether something is allowed, what gets stored and what gets
// published lives here, so it can be tested with plain Go calls.
//
// PER-REQUEST DEPENDENCIES:
// Services are built once at startup with their long-lived collaborators
// (logger, GitHub client, fake user generator). The store, the event bus and
// the current user arrive with every call in an *auth.RequestContext, the
// same value for HTTP requests and WebSocket subscriptions.
//
// ERRORS:
// Every error leaving this package is an *apperror.AppError. Storage
// failures that aren't already classified become UpstreamUnavailable, so no
// database internals reach a client.
package service

import (
	"errors"

	"github.com/sakif/photo-share/internal/apperror"
)

// storeError keeps classified errors (NotFound, ...) and reports anything
// else as the database being unavailable.
func storeError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.UpstreamUnavailable("database", err)
}
