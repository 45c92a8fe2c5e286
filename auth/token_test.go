package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nego-lab/errors"
)

func signedToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		Roles:  []string{"buyer"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "marketplace",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("server-side-secret"))
	require.NoError(t, err)
	return token
}

func TestParseIdentity_Reads_Own_User_ID(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	identity, err := ParseIdentity(signedToken(t, "buyer-42", now.Add(time.Hour)), now)

	req.NoError(err)
	req.Equal("buyer-42", identity.UserID)
	req.Equal([]string{"buyer"}, identity.Roles)
	req.Contains(identity.BearerHeader(), "Bearer ")
}

func TestParseIdentity_Refuses_Expired_Token(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	_, err := ParseIdentity(signedToken(t, "buyer-42", now.Add(-time.Minute)), now)

	req.ErrorIs(err, errors.ErrTokenExpired)
}

func TestParseIdentity_Refuses_Garbage(t *testing.T) {
	req := require.New(t)

	_, err := ParseIdentity("not-a-jwt", time.Now())

	req.Error(err)
}
