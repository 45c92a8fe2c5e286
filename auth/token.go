// Package auth reads the server-issued session token. The client only
// consumes tokens: it learns its own identity for proposer-side checks and
// attaches the raw token to every transport exchange. Signature validation
// belongs to the server, which holds the key.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nego-lab/errors"
)

// Claims is the payload of the marketplace session token.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is the authenticated user as seen by this client.
type Identity struct {
	UserID string
	Roles  []string
	Token  string
}

// ParseIdentity decodes the token claims without verifying the signature
// (the signing key never leaves the server) but refuses tokens that are
// already expired, so a dead session fails before any transport opens.
func ParseIdentity(tokenString string, now time.Time) (Identity, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return Identity{}, fmt.Errorf("parsing session token: %w", err)
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("session token carries no user id")
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return Identity{}, errors.ErrTokenExpired
	}
	return Identity{
		UserID: claims.UserID,
		Roles:  claims.Roles,
		Token:  tokenString,
	}, nil
}

// BearerHeader is the Authorization value attached to HTTP polls and the
// socket handshake.
func (i Identity) BearerHeader() string {
	return "Bearer " + i.Token
}
