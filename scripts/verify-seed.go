package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/models"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Initialize database connection
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	fmt.Println("🔍 Verifying seed data...")
	fmt.Println()

	// Count records
	var userCount, connCount, interactionCount int64

	database.DB.Model(&models.User{}).Where("deleted_at IS NULL").Count(&userCount)
	database.DB.Model(&models.ConnectedPlatform{}).Where("deleted_at IS NULL").Count(&connCount)
	database.DB.Model(&models.Interaction{}).Where("deleted_at IS NULL").Count(&interactionCount)

	fmt.Println("📊 Record Counts:")
	fmt.Printf("  Users:                %d\n", userCount)
	fmt.Printf("  Platform Connections: %d\n", connCount)
	fmt.Printf("  Interactions:         %d\n", interactionCount)
	fmt.Println()

	// Status and platform breakdowns
	type bucket struct {
		Key   string
		Count int64
	}

	var byStatus []bucket
	database.DB.Model(&models.Interaction{}).
		Select("status AS key, COUNT(*) AS count").
		Group("status").Order("count DESC").
		Scan(&byStatus)

	fmt.Println("📝 Interactions by status:")
	for _, b := range byStatus {
		fmt.Printf("  %-10s %d\n", b.Key, b.Count)
	}
	fmt.Println()

	var byPlatform []bucket
	database.DB.Model(&models.Interaction{}).
		Select("platform AS key, COUNT(*) AS count").
		Group("platform").Order("count DESC").
		Scan(&byPlatform)

	fmt.Println("🔗 Interactions by platform:")
	for _, b := range byPlatform {
		fmt.Printf("  %-10s %d\n", b.Key, b.Count)
	}
	fmt.Println()

	// Sample data
	var sample []models.Interaction
	database.DB.Order("created_at DESC").Limit(3).Find(&sample)

	fmt.Println("📬 Most recent interactions:")
	for _, in := range sample {
		content := in.Content
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		fmt.Printf("  [%s/%s] %s: %s\n", in.Platform, in.Status, in.AuthorName, content)
	}
	fmt.Println()

	if userCount == 0 || connCount == 0 || interactionCount == 0 {
		log.Fatal("❌ Seed data incomplete, run: go run ./cmd/seed dev")
	}

	fmt.Println("✅ Seed data looks good!")
}
