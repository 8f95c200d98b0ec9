package gamestream

import (
	"crypto/rand"
	"math/big"
)

// GeneratePIN returns four random digits in 1..9 to be entered on the host.
func GeneratePIN() (string, error) {
	pin := make([]byte, 4)
	for i := range pin {
		n, err := rand.Int(rand.Reader, big.NewInt(9))
		if err != nil {
			return "", err
		}
		pin[i] = byte('1' + n.Int64())
	}
	return string(pin), nil
}
