package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ombudsman-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, expires, err := tm.GenerateToken(&domain.StaffMember{ID: "staff-1", Role: domain.StaffRoleOperator})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), expires, 5*time.Second)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.Subject)
	assert.Equal(t, domain.StaffRoleOperator, claims.Role)
}

func TestTokenRejectsOtherSecret(t *testing.T) {
	token, _, err := NewTokenManager("a", 5).GenerateToken(&domain.StaffMember{ID: "s", Role: domain.StaffRoleAdmin})
	require.NoError(t, err)
	_, err = NewTokenManager("b", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken(&domain.StaffMember{ID: "s", Role: domain.StaffRoleAdmin})
	require.NoError(t, err)
	_, err = tm.ParseToken(token)
	assert.Error(t, err)
}

func TestStaffPasswordPolicy(t *testing.T) {
	hash, err := HashStaffPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, CheckStaffPassword(hash, "correct horse"))
	assert.False(t, CheckStaffPassword(hash, "wrong"))
	assert.False(t, CheckStaffPassword("", "correct horse"))

	_, err = HashStaffPassword("short", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = HashStaffPassword("         ", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordBlank)
	_, err = HashStaffPassword(strings.Repeat("a", MaxStaffPasswordLen+1), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	hash, err = HashStaffPassword("correct horse", 99)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
