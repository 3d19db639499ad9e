package qrcodes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

const (
	shortCodeChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	shortCodeLength = 7
	maxRetries      = 5
)

var reservedCodes = []string{"api", "admin", "content", "dashboard", "health", "metrics", "q"}

type CodeAvailabilityChecker interface {
	ExistsByShortCode(ctx context.Context, code string) (bool, error)
}

// GenerateShortCode returns customCode when it is valid and free, otherwise a
// random base62 code. Persistent collisions grow the code by one character.
func GenerateShortCode(ctx context.Context, customCode string, checker CodeAvailabilityChecker) (string, error) {
	if customCode != "" {
		if err := ValidateShortCode(customCode); err != nil {
			return "", err
		}
		exists, err := checker.ExistsByShortCode(ctx, customCode)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ErrShortCodeTaken
		}
		return customCode, nil
	}

	for i := 0; i <= maxRetries; i++ {
		length := shortCodeLength
		if i == maxRetries {
			length++
		}
		code := generateRandomCode(length)

		exists, err := checker.ExistsByShortCode(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate unique short code")
}

func generateRandomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = shortCodeChars[rand.Intn(len(shortCodeChars))]
	}
	return string(b)
}

func ValidateShortCode(code string) error {
	if len(code) < 3 || len(code) > 12 {
		return fmt.Errorf("%w: short code must be 3-12 characters", ErrInvalid)
	}
	for _, c := range code {
		if !strings.ContainsRune(shortCodeChars, c) {
			return fmt.Errorf("%w: short code must be alphanumeric", ErrInvalid)
		}
	}
	for _, r := range reservedCodes {
		if strings.EqualFold(code, r) {
			return fmt.Errorf("%w: short code %q is reserved", ErrInvalid, code)
		}
	}
	return nil
}
