package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// NewHTTPRefresher returns a RefreshFunc that posts the refresh token to the
// token endpoint of an auth service
func NewHTTPRefresher(authURL string, httpClient *http.Client) RefreshFunc {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	endpoint := strings.TrimRight(authURL, "/") + "/token"

	return func(ctx context.Context, refreshToken string) (*Session, error) {
		body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		rsp, err := httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "token request failed")
		}
		defer rsp.Body.Close()

		if rsp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("token request failed: %s", rsp.Status)
		}

		session := &Session{}
		if err := json.NewDecoder(rsp.Body).Decode(session); err != nil {
			return nil, errors.Wrap(err, "failed to decode session")
		}
		if session.AccessToken == "" {
			return nil, errors.New("token response has no access token")
		}
		return session, nil
	}
}
