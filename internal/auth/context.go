package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
	"github.com/sakif/photo-share/internal/repository"
)

// RequestContext is everything a resolver may touch for one operation.
//
// HTTP requests and WebSocket subscriptions build the exact same shape, so
// resolvers never need to know which transport they are serving.
type RequestContext struct {
	CurrentUser *model.User // nil when the caller is anonymous
	Store       repository.Store
	Bus         *pubsub.Bus
	RequestedAt time.Time // when the operation began
}

// Authenticated reports whether a user was resolved from the credential.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.CurrentUser != nil
}

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only this package can create the key, so nothing else can read or shadow
// the value.
type contextKey string

const requestContextKey contextKey = "requestContext"

// WithContext attaches rc to ctx.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the RequestContext attached by WithContext.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(*RequestContext)
	return rc, ok && rc != nil
}

// connectionPayloadKeys are the connection_init fields a client may put its
// credential under, checked in order.
var connectionPayloadKeys = []string{"Authorization", "authorization", "authToken"}

// Builder resolves credentials into RequestContexts.
type Builder struct {
	store  repository.Store
	bus    *pubsub.Bus
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder sharing the process-wide store and bus.
func NewBuilder(store repository.Store, bus *pubsub.Bus, logger *slog.Logger) *Builder {
	return &Builder{store: store, bus: bus, logger: logger, now: time.Now}
}

// FromRequest builds the context for an HTTP request from its Authorization
// header. Both a raw token and "Bearer <token>" are accepted.
func (b *Builder) FromRequest(r *http.Request) (*RequestContext, error) {
	return b.build(r.Context(), bearer(r.Header.Get("Authorization")))
}

// FromConnection builds the context for a WebSocket connection from its
// connection_init payload.
func (b *Builder) FromConnection(ctx context.Context, payload map[string]interface{}) (*RequestContext, error) {
	var token string
	for _, k := range connectionPayloadKeys {
		if s, ok := payload[k].(string); ok && s != "" {
			token = s
			break
		}
	}
	return b.build(ctx, bearer(token))
}

// build looks the credential up. An unknown or missing credential yields an
// anonymous context, not an error: reads are open to everyone. Only a store
// failure is an error.
func (b *Builder) build(ctx context.Context, token string) (*RequestContext, error) {
	rc := &RequestContext{
		Store:       b.store,
		Bus:         b.bus,
		RequestedAt: b.now(),
	}
	if token == "" {
		return rc, nil
	}

	user, err := b.store.Users().GetByToken(ctx, token)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		b.logger.Debug("credential matched no user")
		return rc, nil
	case err != nil:
		return nil, apperror.UpstreamUnavailable("user store", err)
	}

	rc.CurrentUser = user
	return rc, nil
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
