package crypto

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var ErrInvalidLength = errors.New("random string length must be positive")

// RandomString returns n characters drawn uniformly from [A-Za-z0-9] using
// crypto/rand.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}

	max := big.NewInt(int64(len(randomAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = randomAlphabet[idx.Int64()]
	}
	return string(out), nil
}
