package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateNumericCode returns a zero-padded decimal code of the given width.
func GenerateNumericCode(digits int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
