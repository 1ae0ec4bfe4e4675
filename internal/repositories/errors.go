package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundError reports whether err represents a missing record,
// unwrapping gorm's sentinel from any wrapping chain.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
