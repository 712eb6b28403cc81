package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTokenLength = 64
	sessionTokenChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateSessionToken returns a 64-character alphanumeric bearer token.
// Each character carries ~5.95 bits of entropy, so collisions are
// negligible at any realistic issuance volume.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenLength)
	max := big.NewInt(int64(len(sessionTokenChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = sessionTokenChars[n.Int64()]
	}
	return string(buf), nil
}

// HashIP returns a keyed one-way hash of a network address. Only this hash
// is ever stored; the raw address never reaches the session store.
func HashIP(salt, ip string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
