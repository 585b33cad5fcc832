package config

import (
	"log"
	"tradechat_backend/models"
	"tradechat_backend/utils"

	"gorm.io/gorm"
)

// SeedRegions loads a starter set of region codes for in-person/shipping
// requests. Unknown codes still work; they fall back to the raw code.
func SeedRegions(db *gorm.DB) {
	regions := []models.Region{
		{RegionCode: "1111010100", Sido: "Seoul", Sigungu: "Jongno-gu", Eubmyeonli: "Cheongun-dong"},
		{RegionCode: "1168010100", Sido: "Seoul", Sigungu: "Gangnam-gu", Eubmyeonli: "Yeoksam-dong"},
		{RegionCode: "2611010100", Sido: "Busan", Sigungu: "Jung-gu", Eubmyeonli: "Jungang-dong"},
		{RegionCode: "2814010100", Sido: "Incheon", Sigungu: "Jung-gu", Eubmyeonli: "Sinpo-dong"},
	}

	for _, region := range regions {
		var existing models.Region
		if err := db.Where("region_code = ?", region.RegionCode).First(&existing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				if err := db.Create(&region).Error; err != nil {
					log.Printf("Failed to seed region %s: %v", region.RegionCode, err)
				}
			}
		}
	}
}

func SeedUsers(db *gorm.DB) {
	log.Println("🌱 Seeding users...")

	password, _ := utils.HashPassword("password123")

	users := []models.User{
		{
			Username: "user1",
			Email:    "user1@example.com",
			Password: password,
		},
		{
			Username: "user2",
			Email:    "user2@example.com",
			Password: password,
		},
	}

	for _, user := range users {
		var existingUser models.User
		if err := db.Where("email = ?", user.Email).First(&existingUser).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				if err := db.Create(&user).Error; err != nil {
					log.Printf("Failed to seed user %s: %v", user.Username, err)
				} else {
					log.Printf("User seeded: %s (ID: %d)", user.Username, user.ID)
				}
			}
		} else {
			log.Printf("User already exists: %s", user.Username)
		}
	}

	log.Println("✅ Seeding complete.")
}

func SeedListings(db *gorm.DB) {
	log.Println("🌱 Seeding listings...")

	var seller models.User
	if err := db.Where("username = ?", "user1").First(&seller).Error; err != nil {
		log.Printf("Skipping listing seed, no seed user: %v", err)
		return
	}

	listings := []models.Listing{
		{
			SellerID:    seller.ID,
			Title:       "Used road bike",
			Description: "Ridden one season, well maintained.",
			Price:       350000,
			Status:      "available",
		},
		{
			SellerID:    seller.ID,
			Title:       "Bookshelf speaker pair",
			Description: "Minor scuffs, sounds great.",
			Price:       120000,
			Status:      "available",
		},
	}

	for _, listing := range listings {
		var existing models.Listing
		if err := db.Where("seller_id = ? AND title = ?", listing.SellerID, listing.Title).
			First(&existing).Error; err == gorm.ErrRecordNotFound {
			if err := db.Create(&listing).Error; err != nil {
				log.Printf("Failed to seed listing %s: %v", listing.Title, err)
			}
		}
	}
}
