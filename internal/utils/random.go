package utils

import (
	"crypto/rand"
	"math/big"
)

const codeSpace = 1_000_000

// RandomCode: равномерно распределённое число 0..999999.
func RandomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
