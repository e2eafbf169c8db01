package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomInt returns a uniformly distributed integer in [0, n).
func RandomInt(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("utils: random bound must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("utils: read random: %w", err)
	}
	return int(v.Int64()), nil
}

// RandomRange returns a uniformly distributed integer in [lo, hi].
func RandomRange(lo, hi int) (int, error) {
	if hi < lo {
		return 0, fmt.Errorf("utils: empty random range [%d, %d]", lo, hi)
	}
	v, err := RandomInt(hi - lo + 1)
	if err != nil {
		return 0, err
	}
	return lo + v, nil
}

// Shuffle permutes b in place (Fisher-Yates).
func Shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := RandomInt(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
