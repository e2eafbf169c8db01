package credentials

import (
	"fmt"

	"identity-link/internal/utils"
)

const (
	numeric   = "0123456789"
	lowerCase = "abcdefghijklmnopqrstuvwxyz"
	upperCase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Symbols accepted by the directory's password policy.
	Symbols = "^$*.[]{}()?\"!@#%&/\\,><':;|_~`=+-"
)

const (
	DefaultMinLength = 8
	DefaultMaxLength = 16
	minimumLength    = 4 // one character of each class
)

// Generator produces temporary passwords with at least one digit, one
// lowercase letter, one uppercase letter and one symbol.
type Generator struct {
	Min int
	Max int
}

// NewGenerator returns a generator for lengths in [min, max].
func NewGenerator(min, max int) (*Generator, error) {
	if min < minimumLength {
		return nil, fmt.Errorf("credentials: minimum password length is %d, got %d", minimumLength, min)
	}
	if max < min {
		return nil, fmt.Errorf("credentials: invalid password length range [%d, %d]", min, max)
	}
	return &Generator{Min: min, Max: max}, nil
}

// Generate returns a new random password.
func (g *Generator) Generate() (string, error) {
	lo, hi := g.Min, g.Max
	if lo == 0 && hi == 0 {
		lo, hi = DefaultMinLength, DefaultMaxLength
	}
	if lo < minimumLength || hi < lo {
		return "", fmt.Errorf("credentials: invalid password length range [%d, %d]", lo, hi)
	}

	length, err := utils.RandomRange(lo, hi)
	if err != nil {
		return "", err
	}

	// Split the length across the four classes, leaving room for the rest.
	digits, err := utils.RandomRange(1, length-3)
	if err != nil {
		return "", err
	}
	lower, err := utils.RandomRange(1, length-digits-2)
	if err != nil {
		return "", err
	}
	upper, err := utils.RandomRange(1, length-digits-lower-1)
	if err != nil {
		return "", err
	}
	symbols := length - digits - lower - upper

	out := make([]byte, 0, length)
	for _, part := range []struct {
		set   string
		count int
	}{
		{numeric, digits},
		{lowerCase, lower},
		{upperCase, upper},
		{Symbols, symbols},
	} {
		for i := 0; i < part.count; i++ {
			idx, err := utils.RandomInt(len(part.set))
			if err != nil {
				return "", err
			}
			out = append(out, part.set[idx])
		}
	}

	if err := utils.Shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}
