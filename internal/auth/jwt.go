// Package auth turns credentials into identities.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. A client obtains a GitHub OAuth code, either on its own or through the
//     /auth/github/login redirect helper.
//  2. The githubAuth mutation (or /auth/github/callback) exchanges the code
//     via GitHubProvider and upserts the user with the fresh access token.
//  3. The client sends that token on every request: the Authorization
//     header over HTTP, the connection_init payload over WebSocket.
//  4. Builder looks the token up and produces a RequestContext that the
//     resolvers read. An unknown token is simply anonymous.
//
// JWTs appear only in the redirect helper, as the signed OAuth "state"
// parameter. The API credential itself is GitHub's token, looked up by
// equality.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	stateIssuer   = "photo-share"
	stateAudience = "github-oauth-state"
	stateLifetime = 10 * time.Minute
)

// StateTokens issues and verifies the OAuth "state" parameter.
//
// WHY A SIGNED STATE?
// The state protects the callback against CSRF: GitHub echoes it back and we
// only accept callbacks carrying a state we issued. Signing it as a short
// lived JWT means the server needs no session storage to remember which
// states are outstanding. The signature proves we minted it and the expiry
// bounds how long it is usable.
type StateTokens struct {
	secret []byte
	now    func() time.Time
}

// NewStateTokens creates a StateTokens with the given HMAC secret.
// The secret should be at least 32 bytes of random data in production.
// Example: PHOTOSHARE_AUTH_STATESECRET=$(openssl rand -hex 32)
func NewStateTokens(secret string) (*StateTokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: state secret must be at least 16 characters")
	}
	return &StateTokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a fresh state value. Each carries a random xid as its JWT ID
// so two states are never equal.
func (s *StateTokens) Issue() (string, error) {
	now := s.now()
	c := jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Issuer:    stateIssuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing state: %w", err)
	}
	return signed, nil
}

// Verify checks that state was issued by Issue and has not expired.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, an attacker could send a token signed with
// "none". jwt.WithValidMethods rejects anything but HS256.
func (s *StateTokens) Verify(state string) error {
	_, err := jwt.ParseWithClaims(
		state,
		&jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return errors.New("auth: state expired")
		}
		return fmt.Errorf("auth: invalid state: %w", err)
	}
	return nil
}
