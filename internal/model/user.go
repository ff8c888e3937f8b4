// Package model defines the data structures used throughout the application.
package model

// User represents a person who can post photos and appear in them.
//
// WHY GitHubLogin AS THE KEY?
// GitHub is the identity provider, and a login is unique on GitHub, so it
// doubles as our primary key. Re-authenticating with the same login replaces
// the stored profile instead of creating a second row (upsert semantics).
//
// WHY json:"-" ON GitHubToken?
// The token is a live provider credential. It is what clients send back as
// their bearer credential, so it is stored, but it must never be rendered
// in an API response by accident.
type User struct {
	GitHubLogin string `json:"githubLogin"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar"` // Profile picture URL
	GitHubToken string `json:"-"`
}

// AuthPayload is the transient result of an authentication mutation.
// It is never persisted.
type AuthPayload struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
