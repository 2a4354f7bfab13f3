package postgres

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SQLSTATE codes checked when the dialector hands back an untranslated error.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
)

// violates needs TranslateError on the gorm config for the typed error to surface.
func violates(err, translated error, sqlState string) bool {
	return errors.Is(err, translated) || strings.Contains(err.Error(), sqlState)
}

func isUniqueConstraintViolation(err error) bool {
	return violates(err, gorm.ErrDuplicatedKey, sqlStateUniqueViolation)
}

func isForeignKeyConstraintViolation(err error) bool {
	return violates(err, gorm.ErrForeignKeyViolated, sqlStateForeignKeyViolation)
}

func isCheckConstraintViolation(err error) bool {
	return violates(err, gorm.ErrCheckConstraintViolated, sqlStateCheckViolation)
}
