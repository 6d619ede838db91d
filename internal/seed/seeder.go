// Package seed fills a development database with realistic inbox data.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db}
}

// DevPassword is the password every seeded dev account gets
const DevPassword = "password123"

// SeedDev seeds the development database with a handful of business accounts,
// their platform connections, and a month of interactions
func (s *Seeder) SeedDev() error {
	logger.Log.Info("Creating users...")
	users, err := s.seedUsers(10)
	if err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	logger.Log.Info("Connecting platforms...")
	connections, err := s.seedConnections(users)
	if err != nil {
		return fmt.Errorf("failed to seed platform connections: %w", err)
	}

	logger.Log.Info("Creating interactions...")
	if err := s.seedInteractions(connections, 2000); err != nil {
		return fmt.Errorf("failed to seed interactions: %w", err)
	}

	logger.Log.Info("✅ Dev seed complete",
		zap.Int("users", len(users)),
		zap.Int("connections", len(connections)))
	return nil
}

// Clean wipes all seeded data. Dev use only.
func (s *Seeder) Clean() error {
	for _, model := range []interface{}{
		&models.Interaction{},
		&models.ConnectedPlatform{},
		&models.User{},
	} {
		if err := s.db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			return err
		}
	}
	logger.Log.Info("🧹 Database cleaned")
	return nil
}

func (s *Seeder) seedUsers(count int) ([]models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DevPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	for i := 0; i < count; i++ {
		company := gofakeit.Company()
		user := models.User{
			Email:        fmt.Sprintf("%d-%s", i, gofakeit.Email()),
			DisplayName:  gofakeit.Name(),
			CompanyName:  company,
			PasswordHash: string(hash),
		}
		lastActive := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())
		user.LastActiveAt = &lastActive

		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) seedConnections(users []models.User) ([]models.ConnectedPlatform, error) {
	connections := make([]models.ConnectedPlatform, 0)
	for _, user := range users {
		// Each account gets 2-4 connected platforms
		platforms := append([]models.Platform(nil), models.AllPlatforms...)
		rand.Shuffle(len(platforms), func(i, j int) {
			platforms[i], platforms[j] = platforms[j], platforms[i]
		})
		n := 2 + rand.Intn(3)

		for _, platform := range platforms[:n] {
			conn := models.ConnectedPlatform{
				UserID:            user.ID,
				Platform:          platform,
				PlatformAccountID: gofakeit.UUID(),
				AccessToken:       gofakeit.UUID(),
				IsActive:          rand.Float64() > 0.1, // some dormant connections
				Metadata:          metadataFor(platform),
			}
			if err := s.db.Create(&conn).Error; err != nil {
				return nil, err
			}
			connections = append(connections, conn)
		}
	}
	return connections, nil
}

func metadataFor(platform models.Platform) *models.PlatformMetadata {
	switch platform {
	case models.PlatformGoogle:
		return &models.PlatformMetadata{Google: &models.GoogleMetadata{
			LocationID:   gofakeit.UUID(),
			LocationName: gofakeit.Company(),
		}}
	case models.PlatformFacebook:
		return &models.PlatformMetadata{Meta: &models.MetaMetadata{
			PageID:   gofakeit.UUID(),
			PageName: gofakeit.Company(),
		}}
	case models.PlatformInstagram:
		return &models.PlatformMetadata{Meta: &models.MetaMetadata{
			IGBusinessID: gofakeit.UUID(),
		}}
	case models.PlatformTrustpilot:
		return &models.PlatformMetadata{Trustpilot: &models.TrustpilotMetadata{
			BusinessUnitID: gofakeit.UUID(),
			Domain:         gofakeit.DomainName(),
		}}
	case models.PlatformYelp:
		return &models.PlatformMetadata{Yelp: &models.YelpMetadata{
			BusinessID:    gofakeit.UUID(),
			BusinessAlias: gofakeit.Word(),
		}}
	}
	return nil
}

var interactionTypes = []models.InteractionType{
	models.InteractionComment,
	models.InteractionReview,
	models.InteractionMention,
	models.InteractionDM,
}

var statuses = []models.InteractionStatus{
	models.StatusPending, models.StatusPending, models.StatusPending,
	models.StatusResponded,
	models.StatusEscalated,
	models.StatusArchived,
}

func (s *Seeder) seedInteractions(connections []models.ConnectedPlatform, count int) error {
	if len(connections) == 0 {
		return nil
	}

	for i := 0; i < count; i++ {
		conn := connections[rand.Intn(len(connections))]

		status := statuses[rand.Intn(len(statuses))]
		urgency := 1 + rand.Intn(10)
		sentiment := randomSentiment()
		score := sentimentScore(sentiment)

		item := models.Interaction{
			UserID:         conn.UserID,
			Platform:       conn.Platform,
			ExternalID:     gofakeit.UUID(),
			Type:           interactionTypes[rand.Intn(len(interactionTypes))],
			Content:        gofakeit.Sentence(8 + rand.Intn(20)),
			AuthorName:     gofakeit.Name(),
			AuthorHandle:   gofakeit.Username(),
			Sentiment:      &sentiment,
			SentimentScore: &score,
			UrgencyScore:   urgency,
			Status:         status,
			CreatedAt:      gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now()),
		}

		if status == models.StatusResponded {
			response := gofakeit.Sentence(10)
			respondedAt := gofakeit.DateRange(item.CreatedAt, time.Now())
			item.Response = &response
			item.RespondedAt = &respondedAt
		}

		if err := s.db.Create(&item).Error; err != nil {
			return err
		}
	}
	return nil
}

func randomSentiment() models.Sentiment {
	switch rand.Intn(3) {
	case 0:
		return models.SentimentPositive
	case 1:
		return models.SentimentNeutral
	default:
		return models.SentimentNegative
	}
}

func sentimentScore(s models.Sentiment) float64 {
	switch s {
	case models.SentimentPositive:
		return 0.7 + rand.Float64()*0.3
	case models.SentimentNeutral:
		return 0.4 + rand.Float64()*0.2
	default:
		return rand.Float64() * 0.4
	}
}
