package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToken(t *testing.T, userID string, expires time.Duration) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expires)),
		},
		Hasura: &HasuraClaims{
			DefaultRole:  "user",
			AllowedRoles: []string{"user", "me"},
			UserID:       userID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

type recorder struct {
	mx     sync.Mutex
	tokens []string
	events []AuthEvent
}

func (r *recorder) bind(c *Client) (func(), func()) {
	unToken := c.OnTokenChanged(func(s *Session) {
		r.mx.Lock()
		defer r.mx.Unlock()
		r.tokens = append(r.tokens, s.AccessToken)
	})
	unState := c.OnAuthStateChanged(func(event AuthEvent, s *Session) {
		r.mx.Lock()
		defer r.mx.Unlock()
		r.events = append(r.events, event)
	})
	return unToken, unState
}

func (r *recorder) tokenCount() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.tokens)
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims(newToken(t, "u1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	require.NotNil(t, claims.Hasura)
	assert.Equal(t, "user", claims.Hasura.DefaultRole)
	assert.Equal(t, []string{"user", "me"}, claims.Hasura.AllowedRoles)

	_, err = ParseClaims("not-a-token")
	assert.Error(t, err)
}

func TestSignInSignOut(t *testing.T) {
	c := NewClient(nil)
	defer c.Close()
	r := &recorder{}
	r.bind(c)

	assert.False(t, c.IsAuthenticated())
	assert.Equal(t, "", c.AccessToken())
	assert.Nil(t, c.Session())

	token := newToken(t, "u1", time.Hour)
	require.NoError(t, c.SignIn(&Session{AccessToken: token, User: &User{ID: "u1"}}))

	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, token, c.AccessToken())
	assert.Equal(t, "u1", c.Claims().Hasura.UserID)
	assert.Equal(t, "u1", c.Session().User.ID)

	c.SignOut()
	assert.False(t, c.IsAuthenticated())
	assert.Nil(t, c.Claims())

	assert.Equal(t, []string{token}, r.tokens)
	assert.Equal(t, []AuthEvent{SignedIn, SignedOut}, r.events)
}

func TestSignInInvalid(t *testing.T) {
	c := NewClient(nil)
	assert.Error(t, c.SignIn(nil))
	assert.Error(t, c.SignIn(&Session{AccessToken: "garbage"}))
	assert.False(t, c.IsAuthenticated())
}

func TestUnsubscribe(t *testing.T) {
	c := NewClient(nil)
	r := &recorder{}
	unToken, unState := r.bind(c)
	unToken()
	unState()

	require.NoError(t, c.SignIn(&Session{AccessToken: newToken(t, "u1", time.Hour)}))
	c.SignOut()
	assert.Empty(t, r.tokens)
	assert.Empty(t, r.events)
}

func TestRefresh(t *testing.T) {
	refreshed := newToken(t, "u1", 2*time.Hour)
	var gotToken string
	c := NewClient(&Options{
		Refresh: func(ctx context.Context, refreshToken string) (*Session, error) {
			gotToken = refreshToken
			return &Session{AccessToken: refreshed}, nil
		},
	})
	defer c.Close()

	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNoRefreshToken)

	require.NoError(t, c.SignIn(&Session{
		AccessToken:  newToken(t, "u1", time.Hour),
		RefreshToken: "rt",
		User:         &User{ID: "u1"},
	}))

	r := &recorder{}
	r.bind(c)
	require.NoError(t, c.Refresh(context.Background()))

	assert.Equal(t, "rt", gotToken)
	assert.Equal(t, refreshed, c.AccessToken())
	assert.Equal(t, "rt", c.Session().RefreshToken)
	assert.Equal(t, "u1", c.Session().User.ID)
	assert.Equal(t, []string{refreshed}, r.tokens)
	assert.Empty(t, r.events)
}

func TestRefreshFailure(t *testing.T) {
	c := NewClient(&Options{
		Refresh: func(ctx context.Context, refreshToken string) (*Session, error) {
			return nil, assert.AnError
		},
	})
	defer c.Close()

	token := newToken(t, "u1", time.Hour)
	require.NoError(t, c.SignIn(&Session{AccessToken: token, RefreshToken: "rt"}))
	assert.ErrorIs(t, c.Refresh(context.Background()), assert.AnError)
	assert.Equal(t, token, c.AccessToken())
}

func TestRefreshDroppedAfterSignOut(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	refreshed := newToken(t, "u1", 2*time.Hour)
	c := NewClient(&Options{
		Refresh: func(ctx context.Context, refreshToken string) (*Session, error) {
			close(started)
			<-release
			return &Session{AccessToken: refreshed}, nil
		},
	})
	defer c.Close()

	require.NoError(t, c.SignIn(&Session{AccessToken: newToken(t, "u1", time.Hour), RefreshToken: "rt"}))

	r := &recorder{}
	r.bind(c)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Refresh(context.Background()) }()
	<-started

	c.SignOut()
	close(release)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionChanged)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}

	assert.False(t, c.IsAuthenticated())
	assert.Nil(t, c.Session())
	assert.Equal(t, 0, r.tokenCount())
}

func TestScheduledRefresh(t *testing.T) {
	refreshed := newToken(t, "u1", time.Hour)
	c := NewClient(&Options{
		RefreshMargin: 10 * time.Second,
		Refresh: func(ctx context.Context, refreshToken string) (*Session, error) {
			return &Session{AccessToken: refreshed, RefreshToken: "rt2"}, nil
		},
	})
	defer c.Close()

	r := &recorder{}
	r.bind(c)

	// expires within the refresh margin so the refresh runs right away
	require.NoError(t, c.SignIn(&Session{AccessToken: newToken(t, "u1", 5*time.Second), RefreshToken: "rt"}))

	assert.Eventually(t, func() bool { return c.AccessToken() == refreshed }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return r.tokenCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "rt2", c.Session().RefreshToken)
}

func TestHTTPRefresher(t *testing.T) {
	token := newToken(t, "u1", time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refreshToken"] != "rt" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Session{AccessToken: token, AccessTokenExpiresIn: 900, RefreshToken: "rt2"})
	}))
	defer srv.Close()

	refresh := NewHTTPRefresher(srv.URL+"/v1/", nil)

	session, err := refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, token, session.AccessToken)
	assert.Equal(t, 900, session.AccessTokenExpiresIn)
	assert.Equal(t, "rt2", session.RefreshToken)

	_, err = refresh(context.Background(), "bad")
	assert.Error(t, err)
}
