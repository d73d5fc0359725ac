package models

import (
	"gorm.io/gorm"
)

// SetupModels runs the auto-migrations for all event service tables
func SetupModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Event{},
		&DeadLetterEvent{},
		&EventSubscription{},
	)
}
