package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/model"
	"github.com/sakif/photo-share/internal/pubsub"
)

// Limits for addFakeUsers. randomuser.me serves at most a few thousand per
// call, but a demo database never needs more than a page of people.
const (
	MinFakeUsers = 1
	MaxFakeUsers = 100
)

// IdentityExchanger trades an OAuth code for a GitHub identity.
// *auth.GitHubProvider is the production implementation.
type IdentityExchanger interface {
	Exchange(ctx context.Context, req auth.ExchangeRequest) (*auth.Identity, error)
}

// UserGenerator produces synthetic users.
// *randomuser.Client is the production implementation.
type UserGenerator interface {
	Generate(ctx context.Context, count int) ([]model.User, error)
}

// OAuthApp identifies the GitHub OAuth application the server runs as.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
}

// AuthService handles sign-in.
//
// DEPENDENCIES (injected via NewAuthService):
//   - exchanger  IdentityExchanger → GitHub code exchange
//   - generator  UserGenerator     → fake users for development
//   - app        OAuthApp          → client credentials sent with each exchange
//   - logger     *slog.Logger      → structured logging
type AuthService struct {
	exchanger IdentityExchanger
	generator UserGenerator
	app       OAuthApp
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(exchanger IdentityExchanger, generator UserGenerator, app OAuthApp, logger *slog.Logger) *AuthService {
	return &AuthService{
		exchanger: exchanger,
		generator: generator,
		app:       app,
		logger:    logger,
	}
}

// GitHubAuth signs a user in with a GitHub OAuth code.
//
//  1. Exchange the code (with our client credentials) for an identity.
//  2. If GitHub refused, fail with ProviderError carrying GitHub's message.
//  3. Upsert the user keyed by login, overwriting name, avatar and token.
//  4. Return the user together with the token they should send from now on.
//
// WHY UPSERT?
// Signing in twice must not create two users, and the second sign-in must
// replace the now stale token. A first sign-in is announced on the
// "user-added" topic.
func (s *AuthService) GitHubAuth(ctx context.Context, rc *auth.RequestContext, code string) (*model.AuthPayload, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}

	identity, err := s.exchanger.Exchange(ctx, auth.ExchangeRequest{
		ClientID:     s.app.ClientID,
		ClientSecret: s.app.ClientSecret,
		Code:         code,
	})
	if err != nil {
		s.logger.Error("GitHub exchange failed", slog.String("error", err.Error()))
		return nil, apperror.UpstreamUnavailable("GitHub", err)
	}
	if identity.Message != "" {
		return nil, apperror.Provider(identity.Message)
	}

	user := &model.User{
		GitHubLogin: identity.Login,
		Name:        identity.Name,
		Avatar:      identity.AvatarURL,
		GitHubToken: identity.AccessToken,
	}
	created, err := rc.Store.Users().Upsert(ctx, user)
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("login", user.GitHubLogin),
		slog.Bool("created", created),
	)
	if created {
		rc.Bus.Publish(pubsub.TopicUserAdded, cloneUser(user))
	}

	return &model.AuthPayload{User: user, Token: identity.AccessToken}, nil
}

// AddFakeUsers inserts count generated users in one batch and announces
// each of them on "user-added".
func (s *AuthService) AddFakeUsers(ctx context.Context, rc *auth.RequestContext, count int) ([]model.User, error) {
	if count < MinFakeUsers || count > MaxFakeUsers {
		return nil, apperror.ValidationFailed("count",
			fmt.Sprintf("count must be between %d and %d", MinFakeUsers, MaxFakeUsers))
	}

	users, err := s.generator.Generate(ctx, count)
	if err != nil {
		s.logger.Error("fake user generator failed", slog.String("error", err.Error()))
		return nil, apperror.UpstreamUnavailable("fake user generator", err)
	}
	if err := rc.Store.Users().InsertMany(ctx, users); err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("fake users added", slog.Int("count", len(users)))
	for i := range users {
		rc.Bus.Publish(pubsub.TopicUserAdded, cloneUser(&users[i]))
	}
	return users, nil
}

// FakeUserAuth signs in as an existing user without GitHub. It hands out
// the user's stored token, so it must stay disabled in production.
func (s *AuthService) FakeUserAuth(ctx context.Context, rc *auth.RequestContext, githubLogin string) (*model.AuthPayload, error) {
	user, err := rc.Store.Users().GetByLogin(ctx, githubLogin)
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Warn("fake user sign-in", slog.String("login", user.GitHubLogin))
	return &model.AuthPayload{User: user, Token: user.GitHubToken}, nil
}

// cloneUser copies u so subscribers never share memory with the caller.
func cloneUser(u *model.User) *model.User {
	c := *u
	return &c
}
