package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenLength   = 45
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateToken mints a 45-character alphanumeric bearer token.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// randomBotID picks a ten-digit bot id.
func randomBotID() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(botIDMax-botIDMin))
	if err != nil {
		return 0, fmt.Errorf("generate bot id: %w", err)
	}
	return botIDMin + n.Int64(), nil
}

// randomAccessHash picks a non-negative 63-bit access hash.
func randomAccessHash() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(0).Lsh(big.NewInt(1), 62))
	if err != nil {
		return 0, fmt.Errorf("generate access hash: %w", err)
	}
	return n.Int64(), nil
}

// randomCode picks a five-digit verification code.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%d", 10000+n.Int64()), nil
}
