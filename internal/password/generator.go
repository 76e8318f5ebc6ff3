// Package password generates temporary passwords that satisfy the default
// Cognito user pool password policy.
package password

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

const (
	Lowercase = "abcdefghijklmnopqrstuvwxyz"
	Uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Digits    = "0123456789"
	Symbols   = "!@#$%^&*"

	// MinLength leaves room for one character of every required class and
	// matches the Cognito minimum
	MinLength = 8

	// DefaultLength is used when no length is configured
	DefaultLength = 16
)

// Alphabet is the full character set the remaining characters are drawn from
const Alphabet = Lowercase + Uppercase + Digits + Symbols

// Generator produces temporary passwords from a random source
type Generator struct {
	random io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{random: rand.Reader}
}

// Generate returns a password of the given length containing at least one
// lowercase letter, uppercase letter, digit and symbol
func (g *Generator) Generate(length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("password length must be at least %d, got %d", MinLength, length)
	}

	out := make([]byte, 0, length)
	for _, class := range []string{Lowercase, Uppercase, Digits, Symbols} {
		c, err := g.pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := g.pick(Alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Fisher-Yates so the guaranteed characters are not always in front
	for i := len(out) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}

	return string(out), nil
}

// Generate is a convenience wrapper around a crypto/rand backed Generator
func Generate(length int) (string, error) {
	return NewGenerator().Generate(length)
}

func (g *Generator) pick(set string) (byte, error) {
	i, err := g.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}
