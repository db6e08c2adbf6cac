package auth

import (
	"context"
	"sync"
	"time"

	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/utils/interval"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultRefreshMargin = 30 * time.Second

var (
	// ErrNoRefreshToken is returned when refreshing without a session
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrSessionChanged is returned when the session was signed out or
	// replaced while a refresh was in flight, the refreshed session is dropped
	ErrSessionChanged = errors.New("session changed during refresh")
)

// RefreshFunc exchanges a refresh token for a new session
type RefreshFunc func(ctx context.Context, refreshToken string) (*Session, error)

// Options configures the auth client
type Options struct {
	Refresh RefreshFunc

	// RefreshMargin is how long before expiry the token is refreshed
	RefreshMargin time.Duration
	LogFunc       logger.LogFunc
}

// Client is an in-memory identity provider
type Client struct {
	refresh       RefreshFunc
	refreshMargin time.Duration
	log           *logger.LogWrapper

	mx             sync.RWMutex
	generation     uint64
	session        *Session
	claims         *Claims
	refreshTimer   *interval.Interval
	tokenListeners map[string]TokenChangedFunc
	stateListeners map[string]AuthStateChangedFunc
}

// NewClient creates an auth client
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}

	margin := opts.RefreshMargin
	if margin == 0 {
		margin = defaultRefreshMargin
	}

	return &Client{
		refresh:        opts.Refresh,
		refreshMargin:  margin,
		log:            logger.NewLogWrapper(opts.LogFunc, nil).WithField("component", "auth"),
		tokenListeners: map[string]TokenChangedFunc{},
		stateListeners: map[string]AuthStateChangedFunc{},
	}
}

// IsAuthenticated returns true while a session with an access token exists
func (c *Client) IsAuthenticated() bool {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.session != nil && c.session.AccessToken != ""
}

// AccessToken returns the current access token
func (c *Client) AccessToken() string {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Session returns a copy of the current session
func (c *Client) Session() *Session {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Claims returns the decoded access token claims
func (c *Client) Claims() *Claims {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.claims
}

// OnTokenChanged adds a token listener
func (c *Client) OnTokenChanged(fn TokenChangedFunc) func() {
	id := uuid.NewString()
	c.mx.Lock()
	c.tokenListeners[id] = fn
	c.mx.Unlock()

	return func() {
		c.mx.Lock()
		delete(c.tokenListeners, id)
		c.mx.Unlock()
	}
}

// OnAuthStateChanged adds an auth state listener
func (c *Client) OnAuthStateChanged(fn AuthStateChangedFunc) func() {
	id := uuid.NewString()
	c.mx.Lock()
	c.stateListeners[id] = fn
	c.mx.Unlock()

	return func() {
		c.mx.Lock()
		delete(c.stateListeners, id)
		c.mx.Unlock()
	}
}

// SignIn stores a session and notifies the auth state listeners before the
// token listeners
func (c *Client) SignIn(session *Session) error {
	if session == nil || session.AccessToken == "" {
		return errors.New("session has no access token")
	}

	if err := c.setSession(session); err != nil {
		return err
	}

	c.log.Debugf("signed in")
	s := c.Session()
	c.emitState(SignedIn, s)
	c.emitToken(s)
	return nil
}

// SignOut clears the session and notifies listeners
func (c *Client) SignOut() {
	c.mx.Lock()
	interval.ClearTimeout(c.refreshTimer)
	c.refreshTimer = nil
	c.generation++
	c.session = nil
	c.claims = nil
	c.mx.Unlock()

	c.log.Debugf("signed out")
	c.emitState(SignedOut, nil)
}

// Refresh exchanges the refresh token for a new session. The result is
// dropped with ErrSessionChanged when the session is signed out or replaced
// before the exchange completes.
func (c *Client) Refresh(ctx context.Context) error {
	c.mx.RLock()
	var refreshToken string
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	generation := c.generation
	c.mx.RUnlock()

	if refreshToken == "" {
		return ErrNoRefreshToken
	}
	if c.refresh == nil {
		return errors.New("no refresh function configured")
	}

	session, err := c.refresh(ctx, refreshToken)
	if err != nil {
		c.log.WithError(err).Errorf("failed to refresh session")
		return errors.Wrap(err, "refresh failed")
	}
	if session == nil {
		return errors.New("refresh returned no session")
	}
	claims, err := ParseClaims(session.AccessToken)
	if err != nil {
		return err
	}

	s := *session
	if s.RefreshToken == "" {
		s.RefreshToken = refreshToken
	}

	c.mx.Lock()
	if c.generation != generation {
		c.mx.Unlock()
		c.log.Debugf("session changed during refresh, dropping refreshed token")
		return ErrSessionChanged
	}
	if s.User == nil && c.session != nil {
		s.User = c.session.User
	}
	c.storeSession(&s, claims)
	c.mx.Unlock()

	c.log.Debugf("refreshed access token")
	c.emitToken(c.Session())
	return nil
}

// Close stops the scheduled refresh
func (c *Client) Close() {
	c.mx.Lock()
	defer c.mx.Unlock()
	interval.ClearTimeout(c.refreshTimer)
	c.refreshTimer = nil
}

func (c *Client) setSession(session *Session) error {
	claims, err := ParseClaims(session.AccessToken)
	if err != nil {
		return err
	}

	s := *session

	c.mx.Lock()
	defer c.mx.Unlock()
	c.storeSession(&s, claims)
	return nil
}

// storeSession must be called with the lock held
func (c *Client) storeSession(session *Session, claims *Claims) {
	c.generation++
	c.session = session
	c.claims = claims
	c.scheduleRefresh(expiresAt(claims, session))
}

// scheduleRefresh must be called with the lock held
func (c *Client) scheduleRefresh(expires time.Time) {
	interval.ClearTimeout(c.refreshTimer)
	c.refreshTimer = nil

	if c.refresh == nil || c.session.RefreshToken == "" || expires.IsZero() {
		return
	}

	delay := time.Until(expires) - c.refreshMargin
	if delay < 0 {
		delay = 0
	}

	c.refreshTimer = interval.SetTimeout(func() {
		if err := c.Refresh(context.Background()); err != nil {
			c.log.WithError(err).Warnf("scheduled refresh failed")
		}
	}, delay)
}

func expiresAt(claims *Claims, session *Session) time.Time {
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if session.AccessTokenExpiresIn > 0 {
		return time.Now().Add(time.Duration(session.AccessTokenExpiresIn) * time.Second)
	}
	return time.Time{}
}

func (c *Client) emitToken(session *Session) {
	c.mx.RLock()
	listeners := make([]TokenChangedFunc, 0, len(c.tokenListeners))
	for _, fn := range c.tokenListeners {
		listeners = append(listeners, fn)
	}
	c.mx.RUnlock()

	for _, fn := range listeners {
		fn(session)
	}
}

func (c *Client) emitState(event AuthEvent, session *Session) {
	c.mx.RLock()
	listeners := make([]AuthStateChangedFunc, 0, len(c.stateListeners))
	for _, fn := range c.stateListeners {
		listeners = append(listeners, fn)
	}
	c.mx.RUnlock()

	for _, fn := range listeners {
		fn(event, session)
	}
}
