package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"ideaboard/config"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/errors"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when a stored hash is not in the encoded argon2id format.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// Argon2Params are the cost parameters written into every encoded hash.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
	SaltLen   int
}

type argon2Hasher struct {
	params Argon2Params
	pool   *Pool
}

// NewArgon2Hasher builds the Hasher from configuration.
func NewArgon2Hasher(cfg *config.Config) service.Hasher {
	return NewArgon2HasherWithParams(Argon2Params{
		Time:      cfg.Hasher.Time,
		MemoryKiB: cfg.Hasher.MemoryKiB,
		Threads:   cfg.Hasher.Threads,
		KeyLen:    cfg.Hasher.KeyLen,
		SaltLen:   cfg.Hasher.SaltLen,
	}, NewPool(cfg.Hasher.Workers))
}

// NewArgon2HasherWithParams builds a Hasher with explicit parameters and pool.
func NewArgon2HasherWithParams(params Argon2Params, pool *Pool) service.Hasher {
	return &argon2Hasher{params: params, pool: pool}
}

// HashPassword returns "$argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>".
func (h *argon2Hasher) HashPassword(ctx context.Context, plain string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}

	var key []byte
	if err := h.pool.Do(ctx, func() {
		key = argon2.IDKey([]byte(plain), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)
	}); err != nil {
		return "", err
	}

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword recomputes the key with the parameters stored in encoded.
func (h *argon2Hasher) VerifyPassword(ctx context.Context, plain, encoded string) (bool, error) {
	params, salt, want, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false, err
	}

	var got []byte
	if err := h.pool.Do(ctx, func() {
		got = argon2.IDKey([]byte(plain), salt, params.Time, params.MemoryKiB, params.Threads, params.KeyLen)
	}); err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (h *argon2Hasher) HashOpaque(secret string) string {
	return HashOpaque(secret)
}

func (h *argon2Hasher) ConstantTimeEquals(a, b string) bool {
	return ConstantTimeEquals(a, b)
}

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, errors.WithStack(ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, errors.Wrap(ErrMalformedHash, "version")
	}
	if version != argon2.Version {
		return params, nil, nil, errors.Wrapf(ErrMalformedHash, "unsupported version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, errors.Wrap(ErrMalformedHash, "parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, errors.Wrap(ErrMalformedHash, "salt")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, errors.Wrap(ErrMalformedHash, "key")
	}

	params.SaltLen = len(salt)
	params.KeyLen = uint32(len(key))

	return params, salt, key, nil
}
