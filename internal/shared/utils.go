// Package shared provides small helpers used across the service, currently
// the generation of random bearer secrets.
package shared

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a random hexadecimal string from size bytes of
// crypto/rand data; the resulting string is twice as long as size. Used for
// refresh-token and confirmation-token values.
//
// It returns an error only if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
