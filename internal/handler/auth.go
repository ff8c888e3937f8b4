package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/photo-share/internal/apperror"
	"github.com/sakif/photo-share/internal/auth"
	"github.com/sakif/photo-share/internal/service"
)

var errNoRequestContext = errors.New("handler: no request context attached")

// AuthHandler runs the browser side of the GitHub OAuth flow for clients
// that would rather not build the authorize URL themselves.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code and run the githubAuth mutation's flow
//
// DEPENDENCY CHAIN:
//   - github *auth.GitHubProvider → builds the authorize URL
//   - states *auth.StateTokens    → signs and checks the OAuth state
//   - auth   *service.AuthService → exchanges the code and upserts the user
type AuthHandler struct {
	github   *auth.GitHubProvider
	states   *auth.StateTokens
	auth     *service.AuthService
	clientID string
	logger   *slog.Logger
}

func NewAuthHandler(
	github *auth.GitHubProvider,
	states *auth.StateTokens,
	authService *service.AuthService,
	clientID string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		github:   github,
		states:   states,
		auth:     authService,
		clientID: clientID,
		logger:   logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// The state is a short-lived JWT signed with our secret. When GitHub calls
// back, HandleGitHubCallback checks the signature and expiry. Only this
// server can mint a valid state, so a forged callback is refused without
// keeping any per-login record on the server.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.states.Issue()
	if err != nil {
		h.logger.Error("auth login: issuing state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	http.Redirect(w, r, h.github.AuthURL(h.clientID, state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Hand the code to AuthService.GitHubAuth, the same flow the githubAuth
//     mutation runs
//  3. Return the AuthPayload as JSON. The client keeps the token and sends
//     it back in the Authorization header.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := h.states.Verify(q.Get("state")); err != nil {
		h.logger.Warn("auth callback: invalid state", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// GitHub sends error=access_denied when the user declines.
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		writeError(w, apperror.Unauthorized("authorization denied: "+errParam))
		return
	}

	rc, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, apperror.UpstreamUnavailable("request context", errNoRequestContext))
		return
	}

	payload, err := h.auth.GitHubAuth(r.Context(), rc, q.Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
