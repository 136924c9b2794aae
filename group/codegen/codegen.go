// Package codegen issues short human-typeable session codes.
package codegen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/wricardo/groupcart/group/session"
)

const (
	// Alphabet omits I, O, 0 and 1. Its 32 symbols map one-to-one onto 5 random bits.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	DefaultLength      = 6
	DefaultMaxAttempts = 8
)

// ErrExhausted is returned when every candidate drawn was already taken.
var ErrExhausted = fmt.Errorf("%w: could not find a free session code", session.ErrConflict)

// ExistsFunc reports whether a code is already in use.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws random codes and skips ones that are taken.
type Generator struct {
	Exists      ExistsFunc
	Length      int
	MaxAttempts int
}

// New returns a Generator with default length and attempt budget.
func New(exists ExistsFunc) *Generator {
	return &Generator{Exists: exists, Length: DefaultLength, MaxAttempts: DefaultMaxAttempts}
}

// Generate returns a code not currently in use. A free code here is only a
// hint; the store's unique key is what settles concurrent creators.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := Random(g.length())
		if err != nil {
			return "", err
		}
		if g.Exists == nil {
			return code, nil
		}
		taken, err := g.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code %s: %w", code, err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

func (g *Generator) length() int {
	if g.Length <= 0 {
		return DefaultLength
	}
	return g.Length
}

// Random returns n characters from Alphabet.
func Random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[b&31]
	}
	return string(buf), nil
}

// Valid reports whether code has the expected length and only alphabet symbols.
func Valid(code string) bool {
	if len(code) != DefaultLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isSymbol(code[i]) {
			return false
		}
	}
	return true
}

func isSymbol(c byte) bool {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return true
		}
	}
	return false
}

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
