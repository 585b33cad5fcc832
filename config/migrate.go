package config

import (
	"log"
	"tradechat_backend/models"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	// Migrate the schema
	err := db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.ListingImage{},
		&models.Region{},
		&models.Trade{},
		&models.TradeRecord{},
		&models.Message{},
		&models.MessageImage{},
	)

	if err != nil {
		log.Printf("Failed to migrate database schema: %v", err)
		return err
	}

	log.Println("Database Migrations completed succesfully...")

	// Region rows are collaborator data the negotiation engine resolves
	// against; make sure they exist even on normal migration.
	SeedRegions(db)

	return err
}
