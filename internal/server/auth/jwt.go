// Package auth implements the credential primitives of the service: the
// RS256 access-token codec and the bcrypt password hasher. Both are pure and
// independent of storage.
package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/ezidp/ezidp/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered JWT claims plus the owning user id. Claims
// are constructed fresh per issuance and embedded verbatim in the signed
// token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// GenerateToken signs a fresh access token for userID, scoped to audience.
// The issued-at claim is always "now". Signing uses the private key only;
// verifiers never need it.
func GenerateToken(userID, audience string, key *rsa.PrivateKey, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: signing access token: %v", common.ErrInternal, err)
	}
	return signed, nil
}

// ParseToken verifies a signed access token offline with the public key and
// the expected audience, and returns its claims. Malformed structure, a bad
// signature, an expired token, and an audience mismatch all surface as
// common.ErrUnauthenticated; the wrapped detail stays available for logging.
func ParseToken(tokenString, audience string, key *rsa.PublicKey) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid access token: %v", common.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid access token", common.ErrUnauthenticated)
	}

	return claims, nil
}
