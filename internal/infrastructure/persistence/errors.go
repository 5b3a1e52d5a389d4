package persistence

import (
	"errors"
	"strings"

	"github.com/labfix/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique constraint violation.
// Translated errors are matched first; the message checks cover drivers
// that do not implement gorm's ErrorTranslator.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// notFound maps gorm.ErrRecordNotFound to a NOT_FOUND domain error.
func notFound(err error, kind string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NotFoundError(kind, id)
	}
	return err
}
