package account

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// PasswordStrength grades a password by how many of five checks it passes:
// ASCII lower case, ASCII upper case, ASCII digit, one of !@#$%^&*, and at
// least 8 characters.
type PasswordStrength string

const (
	StrengthNone   PasswordStrength = "none"
	StrengthWeak   PasswordStrength = "weak"
	StrengthMedium PasswordStrength = "medium"
	StrengthStrong PasswordStrength = "strong"
)

func GradePassword(pw string) PasswordStrength {
	if pw == "" {
		return StrengthNone
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case 'a' <= r && r <= 'z':
			lower = true
		case 'A' <= r && r <= 'Z':
			upper = true
		case '0' <= r && r <= '9':
			digit = true
		}
	}
	score := 0
	for _, ok := range []bool{lower, upper, digit, strings.ContainsAny(pw, "!@#$%^&*"), utf8.RuneCountInString(pw) >= 8} {
		if ok {
			score++
		}
	}
	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}
