package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// DefaultAPIBaseURL is GitHub's REST API root.
const DefaultAPIBaseURL = "https://api.github.com"

// ExchangeRequest is what the githubAuth mutation hands to the provider.
// Client credentials travel with every call so a single provider can serve
// whatever OAuth app the server is configured with.
type ExchangeRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
}

// Identity is the outcome of a code exchange.
//
// When GitHub rejects the exchange (expired code, bad credentials) Message
// holds GitHub's own wording and the other fields are empty. That is a
// normal result, not an error: the caller decides how to surface it. A
// non-nil error from Exchange means GitHub could not be reached at all.
type Identity struct {
	Message     string
	AccessToken string
	Login       string
	Name        string
	AvatarURL   string
}

// githubUser is the portion of the GitHub /user API response we care about.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Message   string `json:"message"` // set on 4xx responses, e.g. "Bad credentials"
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The client sends the user to GitHub's authorization endpoint.
//  2. GitHub redirects back with a short-lived "code".
//  3. The client hands the code to the githubAuth mutation.
//  4. We exchange the code for an access token (server-to-server, using the
//     client secret).
//  5. We call the GitHub API with that token to learn who the user is.
//
// The access token doubles as the API credential: clients send it back in
// the Authorization header and the context builder looks the user up by it.
type GitHubProvider struct {
	endpoint    oauth2.Endpoint
	apiBaseURL  string
	redirectURL string
	httpClient  *http.Client
}

// ProviderOption customizes a GitHubProvider.
type ProviderOption func(*GitHubProvider)

// WithEndpoint overrides the OAuth endpoints. Tests point this at an
// httptest server; GitHub Enterprise installs point it at their own host.
func WithEndpoint(e oauth2.Endpoint) ProviderOption {
	return func(p *GitHubProvider) { p.endpoint = e }
}

// WithAPIBaseURL overrides the REST API root used for the /user call.
func WithAPIBaseURL(u string) ProviderOption {
	return func(p *GitHubProvider) { p.apiBaseURL = strings.TrimRight(u, "/") }
}

// WithRedirectURL sets the callback URL sent during the exchange. It must
// match the "Authorization callback URL" configured on the OAuth app.
func WithRedirectURL(u string) ProviderOption {
	return func(p *GitHubProvider) { p.redirectURL = u }
}

// WithHTTPClient sets the client used for both the token and API calls.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *GitHubProvider) { p.httpClient = c }
}

// NewGitHubProvider creates a GitHubProvider talking to github.com.
func NewGitHubProvider(opts ...ProviderOption) *GitHubProvider {
	p := &GitHubProvider{
		endpoint:   github.Endpoint, // pre-defined GitHub OAuth endpoints
		apiBaseURL: DefaultAPIBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GitHubProvider) config(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  p.redirectURL,
		Scopes:       []string{"read:user"},
		Endpoint:     p.endpoint,
	}
}

// AuthURL returns the URL to redirect a browser to for authorization.
// state is echoed back by GitHub on the callback and must be verified there.
func (p *GitHubProvider) AuthURL(clientID, state string) string {
	return p.config(clientID, "").AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the caller's GitHub identity.
func (p *GitHubProvider) Exchange(ctx context.Context, req ExchangeRequest) (*Identity, error) {
	// oauth2 picks up a custom *http.Client from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	cfg := p.config(req.ClientID, req.ClientSecret)

	// Step 1: code → access token.
	// GitHub answers a bad code with 200 and an "error" field; oauth2 turns
	// both that and 4xx replies into a *RetrieveError with ErrorCode set.
	token, err := cfg.Exchange(ctx, req.Code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode != "" {
			msg := rerr.ErrorDescription
			if msg == "" {
				msg = rerr.ErrorCode
			}
			return &Identity{Message: msg}, nil
		}
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// Step 2: token → profile.
	// cfg.Client adds "Authorization: Bearer <token>" to every request.
	apiReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	apiReq.Header.Set("Accept", "application/vnd.github+json")

	resp, err := cfg.Client(ctx, token).Do(apiReq)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	var gh githubUser
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if gh.Message == "" {
			gh.Message = fmt.Sprintf("GitHub /user API returned status %d", resp.StatusCode)
		}
		return &Identity{Message: gh.Message}, nil
	}
	if gh.Login == "" {
		return nil, errors.New("auth: GitHub returned a user without a login")
	}

	name := gh.Name
	if name == "" {
		name = gh.Login
	}
	return &Identity{
		AccessToken: token.AccessToken,
		Login:       gh.Login,
		Name:        name,
		AvatarURL:   gh.AvatarURL,
	}, nil
}
