package database

import (
	"gorm.io/gorm"
)

// MigrateConstraints adds indexes AutoMigrate cannot express
func MigrateConstraints(db *gorm.DB) error {
	// emails compare case-insensitively at the database level too
	err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower
		ON users (LOWER(email));
	`).Error
	if err != nil {
		return err
	}

	return nil
}
