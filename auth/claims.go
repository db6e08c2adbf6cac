package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// HasuraClaimsNamespace is the claim holding the hasura session variables
const HasuraClaimsNamespace = "https://hasura.io/jwt/claims"

// HasuraClaims are the hasura session variables
type HasuraClaims struct {
	DefaultRole  string   `json:"x-hasura-default-role"`
	AllowedRoles []string `json:"x-hasura-allowed-roles"`
	UserID       string   `json:"x-hasura-user-id"`
}

// Claims are the access token claims
type Claims struct {
	jwt.RegisteredClaims
	Hasura *HasuraClaims `json:"https://hasura.io/jwt/claims,omitempty"`
}

// ParseClaims decodes an access token without verifying its signature,
// verification is the job of the GraphQL backend
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "failed to parse access token")
	}
	return claims, nil
}
