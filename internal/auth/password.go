package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Staff password bounds. bcrypt ignores everything past 72 bytes, so longer
// passwords are refused instead of silently truncated.
const (
	MinStaffPasswordLen = 8
	MaxStaffPasswordLen = 72
)

var (
	ErrPasswordTooShort = errors.New("must have at least 8 characters")
	ErrPasswordTooLong  = errors.New("must have at most 72 bytes")
	ErrPasswordBlank    = errors.New("must not be blank")
)

// ValidateStaffPassword applies the staff password policy.
func ValidateStaffPassword(password string) error {
	switch {
	case strings.TrimSpace(password) == "":
		return ErrPasswordBlank
	case len(password) < MinStaffPasswordLen:
		return ErrPasswordTooShort
	case len(password) > MaxStaffPasswordLen:
		return ErrPasswordTooLong
	}
	return nil
}

// HashStaffPassword validates and hashes a staff password. A cost outside
// bcrypt's range falls back to bcrypt.DefaultCost.
func HashStaffPassword(password string, cost int) (string, error) {
	if err := ValidateStaffPassword(password); err != nil {
		return "", err
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckStaffPassword reports whether plain matches the stored hash. Staff
// rows without a hash (invited, never activated) never match.
func CheckStaffPassword(hashed, plain string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
