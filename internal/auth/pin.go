package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

type PINPolicy struct {
	MinLength  int
	MaxLength  int
	DigitsOnly bool
	HashCost   int
}

func DefaultPINPolicy() PINPolicy {
	return PINPolicy{
		MinLength:  4,
		MaxLength:  6,
		DigitsOnly: true,
		HashCost:   bcrypt.DefaultCost,
	}
}

func (p PINPolicy) Validate(pin string) error {
	length := utf8.RuneCountInString(pin)
	if length < p.MinLength || length > p.MaxLength {
		return fmt.Errorf("%w: length must be %d-%d", ErrPINPolicy, p.MinLength, p.MaxLength)
	}
	if p.DigitsOnly {
		for _, r := range pin {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return fmt.Errorf("%w: digits only", ErrPINPolicy)
			}
		}
	}
	return nil
}

// Hash validates pin and returns its bcrypt hash.
func (p PINPolicy) Hash(pin string) (string, error) {
	if err := p.Validate(pin); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), p.cost())
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func (p PINPolicy) cost() int {
	if p.HashCost < bcrypt.MinCost || p.HashCost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return p.HashCost
}
