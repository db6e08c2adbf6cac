// Package auth is the identity provider used by the client to authenticate
// GraphQL requests and subscription connections.
package auth

// AuthEvent is an authentication state change
type AuthEvent string

const (
	SignedIn  AuthEvent = "SIGNED_IN"
	SignedOut AuthEvent = "SIGNED_OUT"
)

// User is the signed in user
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	DefaultRole string   `json:"defaultRole,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Session is an authenticated session
type Session struct {
	AccessToken string `json:"accessToken"`
	// AccessTokenExpiresIn is the token lifetime in seconds
	AccessTokenExpiresIn int    `json:"accessTokenExpiresIn"`
	RefreshToken         string `json:"refreshToken"`
	User                 *User  `json:"user,omitempty"`
}

// TokenChangedFunc is called with the new session after a token change
type TokenChangedFunc func(session *Session)

// AuthStateChangedFunc is called after sign in and sign out
type AuthStateChangedFunc func(event AuthEvent, session *Session)

// Provider supplies authentication state. The returned functions remove the
// listener.
type Provider interface {
	IsAuthenticated() bool
	AccessToken() string
	OnTokenChanged(fn TokenChangedFunc) func()
	OnAuthStateChanged(fn AuthStateChangedFunc) func()
}
