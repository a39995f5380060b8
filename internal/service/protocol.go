package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	apperrors "github.com/spec-kit/ombudsman-service/pkg/util/errorutil"
)

const (
	protocolAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	protocolLength      = 12
	protocolMaxAttempts = 10
)

// ProtocolChecker reports whether a protocol is already taken.
type ProtocolChecker interface {
	ProtocolExists(ctx context.Context, protocol string) (bool, error)
}

// ProtocolGenerator issues unique XXXX-XXXX-XXXX case references.
type ProtocolGenerator struct {
	checker ProtocolChecker
	random  func([]byte) (int, error)
}

// NewProtocolGenerator builds a generator backed by crypto/rand.
func NewProtocolGenerator(checker ProtocolChecker) *ProtocolGenerator {
	return &ProtocolGenerator{checker: checker, random: rand.Read}
}

// Generate draws candidates until one is free, giving up after a fixed budget.
func (g *ProtocolGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < protocolMaxAttempts; attempt++ {
		candidate, err := g.candidate()
		if err != nil {
			return "", err
		}
		exists, err := g.checker.ProtocolExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", apperrors.NewExhausted("could not allocate a unique protocol", nil)
}

func (g *ProtocolGenerator) candidate() (string, error) {
	buf := make([]byte, protocolLength)
	if _, err := g.random(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	// 256 is a multiple of 32, so the modulo is unbiased.
	for i, b := range buf {
		buf[i] = protocolAlphabet[int(b)%len(protocolAlphabet)]
	}
	return formatProtocol(string(buf)), nil
}

func formatProtocol(raw string) string {
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12]
}

// ParseProtocol strips dashes and upper-cases a citizen-typed protocol.
func ParseProtocol(protocol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(protocol), "-", ""))
}

// NormalizeProtocol returns the canonical dashed form, or "" when the input
// is not a well-formed protocol.
func NormalizeProtocol(protocol string) string {
	if !IsValidProtocolFormat(protocol) {
		return ""
	}
	return formatProtocol(ParseProtocol(protocol))
}

// IsValidProtocolFormat checks length and alphabet, ignoring dashes and case.
func IsValidProtocolFormat(protocol string) bool {
	cleaned := ParseProtocol(protocol)
	if len(cleaned) != protocolLength {
		return false
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(protocolAlphabet, r) {
			return false
		}
	}
	return true
}
