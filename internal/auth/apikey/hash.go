package apikey

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash algorithm constants.
const (
	HashAlgSHA256 = "sha256"
	HashAlgSHA512 = "sha512"
	HashAlgBcrypt = "bcrypt"
)

// Hasher turns a peppered secret into its stored form and verifies
// candidates against it. Verify must run in time independent of where the
// inputs first differ.
type Hasher interface {
	Hash(pepper, secret string) (string, error)
	Verify(pepper, secret, stored string) bool
}

// NewHasher returns the Hasher for the named algorithm.
func NewHasher(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", HashAlgSHA256:
		return SHA256Hasher{}, nil
	case HashAlgSHA512:
		return SHA512Hasher{}, nil
	case HashAlgBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// peppered joins pepper and secret the way every algorithm expects.
func peppered(pepper, secret string) []byte {
	return []byte(pepper + ":" + secret)
}

// SHA256Hasher stores hex(sha256(pepper ":" secret)).
type SHA256Hasher struct{}

// Hash implements Hasher.
func (SHA256Hasher) Hash(pepper, secret string) (string, error) {
	sum := sha256.Sum256(peppered(pepper, secret))
	return hex.EncodeToString(sum[:]), nil
}

// Verify implements Hasher.
func (h SHA256Hasher) Verify(pepper, secret, stored string) bool {
	actual, _ := h.Hash(pepper, secret)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(actual)) == 1
}

// SHA512Hasher stores hex(sha512(pepper ":" secret)).
type SHA512Hasher struct{}

// Hash implements Hasher.
func (SHA512Hasher) Hash(pepper, secret string) (string, error) {
	sum := sha512.Sum512(peppered(pepper, secret))
	return hex.EncodeToString(sum[:]), nil
}

// Verify implements Hasher.
func (h SHA512Hasher) Verify(pepper, secret, stored string) bool {
	actual, _ := h.Hash(pepper, secret)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(actual)) == 1
}

// BcryptHasher stores bcrypt(hex(sha256(pepper ":" secret))). The sha256
// step keeps the bcrypt input at 64 bytes whatever the pepper length.
type BcryptHasher struct {
	Cost int
}

// Hash implements Hasher.
func (h BcryptHasher) Hash(pepper, secret string) (string, error) {
	pre, _ := SHA256Hasher{}.Hash(pepper, secret)
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(pre), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

// Verify implements Hasher.
func (BcryptHasher) Verify(pepper, secret, stored string) bool {
	pre, _ := SHA256Hasher{}.Hash(pepper, secret)
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pre)) == nil
}
