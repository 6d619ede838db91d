package connectors

import (
	"context"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ingestor writes normalized vendor events into the store and announces
// the genuinely new ones on the changefeed.
type Ingestor struct {
	db        *gorm.DB
	publisher *changefeed.Publisher
}

// NewIngestor creates an ingestor. publisher may be nil (sync without
// live sessions, seeding, tests).
func NewIngestor(db *gorm.DB, publisher *changefeed.Publisher) *Ingestor {
	return &Ingestor{db: db, publisher: publisher}
}

// Ingest inserts the rows one at a time so each item's fate is known:
// a conflict on (user_id, external_id) is counted as skipped, an insert
// is counted as new and published, and a failure is collected without
// stopping the pass.
func (g *Ingestor) Ingest(ctx context.Context, userID string, rows []models.Interaction) (int, int, []ItemError) {
	var inserted, skipped int
	var itemErrors []ItemError

	for i := range rows {
		row := rows[i]
		row.UserID = userID

		res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(&row)

		if res.Error != nil {
			itemErrors = append(itemErrors, ItemError{
				ExternalID: row.ExternalID,
				Message:    res.Error.Error(),
			})
			continue
		}

		if res.RowsAffected == 0 {
			skipped++
			continue
		}

		inserted++
		if g.publisher != nil {
			if err := g.publisher.PublishChange(ctx, userID, changefeed.OpInsert, row); err != nil {
				logger.Log.Warn("Failed to publish ingested interaction",
					logger.WithUserID(userID),
					logger.WithInteractionID(row.ID),
					zap.Error(err))
			}
		}
	}

	return inserted, skipped, itemErrors
}
