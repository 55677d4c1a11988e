package auth

import (
	"fmt"

	"github.com/ezidp/ezidp/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt digest of plain at the default cost. The
// cost is a fixed policy constant; failures are library faults, not user
// errors.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: hashing password: %v", common.ErrInternal, err)
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt digest.
// A false result is not an error; callers translate it into an
// unauthenticated failure with a message that does not reveal whether the
// email or the password was wrong.
func VerifyPassword(digest, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
