package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize      = 16
	argonTime     = 1
	argonMemoryKB = 64 * 1024
	argonThreads  = 4
)

var ErrInvalidHash = errors.New("invalid password hash")

func deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemoryKB, argonThreads, KeySize)
}

// HashPassword returns "salt$key" with both parts base64 encoded.
func HashPassword(password string) string {
	salt := common.GenerateRandByteArray(saltSize)
	key := deriveKey([]byte(password), salt)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(key)
}

// VerifyPassword reports whether password matches a HashPassword result.
func VerifyPassword(password, hash string) (bool, error) {
	saltPart, keyPart, ok := strings.Cut(hash, "$")
	if !ok {
		return false, ErrInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(saltPart)
	if err != nil {
		return false, ErrInvalidHash
	}
	want, err := base64.RawStdEncoding.DecodeString(keyPart)
	if err != nil || len(want) != KeySize {
		return false, ErrInvalidHash
	}
	got := deriveKey([]byte(password), salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
