// Package security contains password hashing for accounts allowed to manage media
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid hash format")

type ArgonHash struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func New() *ArgonHash {
	return &ArgonHash{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type params struct {
	memory, iterations uint32
	parallelism        uint8
	salt, hash         []byte
}

// decode parses a PHC formatted argon2id hash
func decode(e string) (*params, error) {
	parts := strings.Split(e, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	p := &params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrInvalidHash, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrInvalidHash, err)
	}

	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w, %v", ErrInvalidHash, err)
	}

	return p, nil
}

func (a *ArgonHash) GenerateFromPassword(pw string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(pw), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.Memory, a.Iterations, a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPasswd compares a password with the stored PHC encoded hash e
func (a *ArgonHash) VerifyPasswd(pw, e string) (bool, error) {
	p, err := decode(e)
	if err != nil {
		return false, err
	}

	calc := argon2.IDKey([]byte(pw), p.salt, p.iterations, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(p.hash, calc) == 1, nil
}

// NeedsRehash reports whether e was produced with weaker parameters than a
func (a *ArgonHash) NeedsRehash(e string) bool {
	p, err := decode(e)
	if err != nil {
		return true
	}

	return p.memory < a.Memory || p.iterations < a.Iterations || uint32(len(p.hash)) < a.KeyLength
}
