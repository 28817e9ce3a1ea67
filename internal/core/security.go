// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptRounds is the audited work factor. Historical hashes at 10
// rounds are still verifiable but flagged for rehash on next login.
const (
	DefaultBcryptRounds = 14
	MinBcryptRounds     = 12
	MaxBcryptRounds     = 17

	PasswordMinLength = 8
	PasswordMaxLength = 128

	passwordSpecialSet = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

var bcryptRounds = DefaultBcryptRounds

// SetBcryptRounds applies the configured work factor, clamped so a typo in
// an env file can neither weaken hashing nor stall every login. Returns the
// effective value.
func SetBcryptRounds(rounds int) int {
	clamped := rounds
	if clamped < MinBcryptRounds {
		clamped = MinBcryptRounds
	}
	if clamped > MaxBcryptRounds {
		clamped = MaxBcryptRounds
	}

	if clamped != rounds {
		slog.Warn("bcrypt cost outside safe range, clamped",
			"requested", rounds,
			"effective", clamped,
		)
	}

	bcryptRounds = clamped
	refreshDummyHash()
	return clamped
}

func BcryptRounds() int {
	return bcryptRounds
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptRounds)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(password, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(encodedHash),
		[]byte(password),
	) == nil
}

// RoundsFromHash parses the cost factor from the hash's structured prefix.
// Malformed input degrades to 0; this runs in hot paths that must not fail
// on a corrupt row.
func RoundsFromHash(encodedHash string) int {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return 0
	}
	return cost
}

type PasswordCheck struct {
	Valid       bool
	NeedsRehash bool
	Rounds      int
}

var dummyHash string

func init() {
	refreshDummyHash()
}

func refreshDummyHash() {
	hash, err := bcrypt.GenerateFromPassword(
		[]byte("dummy_password_for_timing_attack_prevention"),
		bcryptRounds,
	)
	if err != nil {
		panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
	}
	dummyHash = string(hash)
}

// VerifyPasswordTimingSafe always performs a comparison of equivalent cost,
// substituting a dummy hash when the account has no stored hash, so the
// wall-clock time of a login attempt does not reveal whether the account
// exists. An absent hash is unconditionally invalid with Rounds 0 no matter
// what the dummy comparison returned.
func VerifyPasswordTimingSafe(password string, encodedHash *string) PasswordCheck {
	hashToVerify := dummyHash
	if encodedHash != nil && *encodedHash != "" {
		hashToVerify = *encodedHash
	}

	valid := VerifyPassword(password, hashToVerify)

	if encodedHash == nil || *encodedHash == "" {
		return PasswordCheck{Valid: false, NeedsRehash: false, Rounds: 0}
	}

	rounds := RoundsFromHash(*encodedHash)

	return PasswordCheck{
		Valid:       valid,
		NeedsRehash: rounds < bcryptRounds,
		Rounds:      rounds,
	}
}

type StrengthResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePasswordStrength accumulates every violated rule instead of
// short-circuiting so the caller can render the complete list.
func ValidatePasswordStrength(password string) StrengthResult {
	var violations []string

	if len(password) < PasswordMinLength {
		violations = append(violations, fmt.Sprintf(
			"must be at least %d characters", PasswordMinLength))
	}
	if len(password) > PasswordMaxLength {
		violations = append(violations, fmt.Sprintf(
			"must be at most %d characters", PasswordMaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSpecialSet, r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain a special character")
	}

	return StrengthResult{Valid: len(violations) == 0, Errors: violations}
}

const (
	tempPasswordUpper  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	tempPasswordLower  = "abcdefghijkmnpqrstuvwxyz"
	tempPasswordDigits = "23456789"
)

const DefaultTempPasswordLength = 12

// GenerateTemporaryPassword seeds one character per required class, fills
// the remainder from the full alphabet, then shuffles. The result always
// passes ValidatePasswordStrength.
func GenerateTemporaryPassword(length int) (string, error) {
	if length < PasswordMinLength {
		length = DefaultTempPasswordLength
	}

	classes := []string{
		tempPasswordUpper,
		tempPasswordLower,
		tempPasswordDigits,
		passwordSpecialSet,
	}
	full := strings.Join(classes, "")

	chars := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for len(chars) < length {
		c, err := randomByte(full)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle temporary password: %w", err)
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate random character: %w", err)
	}
	return alphabet[n.Int64()], nil
}
