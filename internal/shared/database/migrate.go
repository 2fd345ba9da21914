package database

import (
	"gorm.io/gorm"

	"socialhub/internal/users"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
	)
}
