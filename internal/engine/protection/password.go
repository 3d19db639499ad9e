package protection

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the hex SHA-256 of the UTF-8 password.
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword compares plain against a stored hash. Hashes produced by
// bcrypt are recognised by their "$2" prefix.
func VerifyPassword(plain, hash string) bool {
	if hash == "" {
		return false
	}
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	}
	computed := HashPassword(plain)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(hash))) == 1
}
