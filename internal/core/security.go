// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid password hash")

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// PasswordHasher produces salted argon2id digests in PHC string format.
// It is safe for concurrent use.
type PasswordHasher struct {
	params Argon2Params

	dummyOnce sync.Once
	dummyHash string
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: params}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Threads,
		h.params.KeyLen,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	params, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey(
		[]byte(password),
		salt,
		params.Time,
		params.Memory,
		params.Threads,
		params.KeyLen,
	)

	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// VerifyWithRehash returns a fresh digest when the stored one was produced
// with parameters other than the hasher's.
func (h *PasswordHasher) VerifyWithRehash(
	password, encodedHash string,
) (bool, string, error) {
	valid, err := h.Verify(password, encodedHash)
	if err != nil || !valid {
		return false, "", err
	}

	if !h.NeedsRehash(encodedHash) {
		return true, "", nil
	}

	newHash, err := h.Hash(password)
	if err != nil {
		//nolint:nilerr // password verified; rehash failure is non-critical
		return true, "", nil
	}

	return true, newHash, nil
}

// VerifyTimingSafe always pays for one argon2 computation, so a missing
// account costs the same as a wrong password.
func (h *PasswordHasher) VerifyTimingSafe(
	password string,
	encodedHash *string,
) (bool, string, error) {
	if encodedHash == nil || *encodedHash == "" {
		//nolint:errcheck // result discarded on purpose
		_, _ = h.Verify(password, h.dummy())
		return false, "", nil
	}

	return h.VerifyWithRehash(password, *encodedHash)
}

func (h *PasswordHasher) NeedsRehash(encodedHash string) bool {
	params, _, _, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}

	return params.Memory != h.params.Memory ||
		params.Time != h.params.Time ||
		params.Threads != h.params.Threads ||
		params.KeyLen != h.params.KeyLen
}

func (h *PasswordHasher) dummy() string {
	h.dummyOnce.Do(func() {
		hash, err := h.Hash("dummy_password_for_timing_attack_prevention")
		if err != nil {
			panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
		}
		h.dummyHash = hash
	})
	return h.dummyHash
}

func decodeHash(encodedHash string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, nil, fmt.Errorf("%w: bad format", ErrInvalidHash)
	}

	if parts[1] != "argon2id" {
		return nil, nil, nil, fmt.Errorf(
			"%w: unsupported algorithm %s",
			ErrInvalidHash,
			parts[1],
		)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
	}

	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf(
			"%w: incompatible version %d",
			ErrInvalidHash,
			version,
		)
	}

	params := &Argon2Params{}
	_, err := fmt.Sscanf(
		parts[3],
		"m=%d,t=%d,p=%d",
		&params.Memory,
		&params.Time,
		&params.Threads,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: params: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}

	//nolint:gosec // G115: key length is always small (32 bytes for argon2id)
	params.KeyLen = uint32(len(key))
	//nolint:gosec // G115: salt length is always small
	params.SaltLen = uint32(len(salt))

	return params, salt, key, nil
}

func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(32)
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
