package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/tansanrao/nexus/pkg/apperr"
)

// Argon2id parameters, matching the original Rust PasswordService exactly:
// 19 MiB memory, 2 passes, 1 degree of parallelism.
const (
	argon2Memory  = 19 * 1024 // KiB
	argon2Time    = 2
	argon2Threads = 1
	argon2KeyLen  = 32
	saltLen       = 16
)

// PasswordService hashes and verifies passwords using argon2id, encoding
// hashes in the same PHC string format ($argon2id$v=19$m=...,t=...,p=...$salt$hash)
// the original implementation produces, so hashes are portable across a
// migration either direction.
type PasswordService struct{}

func NewPasswordService() *PasswordService {
	return &PasswordService{}
}

func (PasswordService) HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", apperr.Fatal("generate password salt", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyPassword reports whether password matches the PHC-encoded hash,
// using constant-time comparison on the derived key.
func (PasswordService) VerifyPassword(password, encoded string) (bool, error) {
	memory, time_, threads, salt, hash, err := decodePHC(encoded)
	if err != nil {
		return false, apperr.InvalidCredentials()
	}
	candidate := argon2.IDKey([]byte(password), salt, time_, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(candidate, hash) == 1, nil
}

func decodePHC(encoded string) (memory uint32, time_ uint32, threads uint8, salt, hash []byte, err error) {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=...,t=...,p=...", "<salt>", "<hash>"
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id version")
	}
	var m uint32
	var t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id params")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id salt")
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash field")
	}
	return m, t, p, salt, hash, nil
}
