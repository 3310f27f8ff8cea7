// Package password hashes client auth verifiers with argon2id.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithm      = "argon2id"
	minMemoryKiB   = 8 * 1024
	saltLength     = 16
	keyLength      = 32
	maxVerifierLen = 1024
)

var (
	// ErrInvalidHash is returned when a stored hash is not a valid argon2id PHC string.
	ErrInvalidHash = errors.New("invalid argon2id hash")
	// ErrInvalidVerifier is returned for empty or oversized verifiers.
	ErrInvalidVerifier = errors.New("invalid verifier")
)

// Params are argon2id cost parameters.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// Hasher produces and checks PHC-encoded argon2id hashes.
type Hasher struct {
	params Params
}

// NewHasher validates params and returns a Hasher.
func NewHasher(params Params) (*Hasher, error) {
	if params.Memory < minMemoryKiB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKiB)
	}
	if params.Time < 1 {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if params.Parallelism < 1 {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	return &Hasher{params: params}, nil
}

// Hash returns a PHC string for verifier using a fresh random salt.
func (h *Hasher) Hash(verifier string) (string, error) {
	if verifier == "" || len(verifier) > maxVerifierLen {
		return "", ErrInvalidVerifier
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(verifier), salt, h.params.Time, h.params.Memory, h.params.Parallelism, keyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether verifier matches encoded. The comparison is constant time.
func (h *Hasher) Verify(verifier, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(verifier), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return Params{}, nil, nil, ErrInvalidHash
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, parts[2])
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: zero cost parameter", ErrInvalidHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}

	return p, salt, key, nil
}
