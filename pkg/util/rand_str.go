// Package util contains any functions used across the application that don't match
// any other package
package util

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand/v2"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandStr returns n random letters. Not suitable for secrets, use GenerateToken
func RandStr(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = charset[rand.IntN(len(charset))]
	}

	return string(b)
}

// GenerateToken returns n random bytes hex encoded
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)

	_, err := crand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
