package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	notFound := ToDomainError(fmt.Errorf("lookup: %w", pgx.ErrNoRows))
	assert.Equal(t, "NOT_FOUND", notFound.Code)
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)

	forbidden := ToDomainError(NewForbidden("nope"))
	assert.Equal(t, http.StatusForbidden, forbidden.HTTPStatus)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.ErrorContains(t, internal, "boom")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewExhausted("no protocol", nil))
	assert.True(t, IsCode(err, "PROTOCOL_EXHAUSTED"))
	assert.False(t, IsCode(err, "NOT_FOUND"))
}

func TestToDomainErrorFromFiber(t *testing.T) {
	de := ToDomainError(fiber.NewError(http.StatusNotFound, "Cannot GET /nope"))
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)
}
