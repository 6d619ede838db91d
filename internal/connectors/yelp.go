package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	apierrors "github.com/replyhub/backend/internal/errors"
	"github.com/replyhub/backend/internal/models"
)

const yelpAPIBase = "https://api.yelp.com/v3"

// yelpTimeLayout is the timestamp format the Fusion API returns
const yelpTimeLayout = "2006-01-02 15:04:05"

// YelpConnector syncs business reviews via the Yelp Fusion API
type YelpConnector struct {
	http     *resty.Client
	apiKey   string
	ingestor *Ingestor
}

// NewYelpConnector creates the Yelp connector
func NewYelpConnector(apiKey string, ingestor *Ingestor) *YelpConnector {
	return &YelpConnector{
		http:     newVendorClient(yelpAPIBase),
		apiKey:   apiKey,
		ingestor: ingestor,
	}
}

// SetBaseURL points the connector at a different API host, for tests
func (c *YelpConnector) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

func (c *YelpConnector) Platform() models.Platform {
	return models.PlatformYelp
}

type yelpUser struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

type yelpReview struct {
	ID          string   `json:"id"`
	Rating      int      `json:"rating"`
	Text        string   `json:"text"`
	User        yelpUser `json:"user"`
	TimeCreated string   `json:"time_created"`
}

type yelpReviewsPage struct {
	Reviews []yelpReview `json:"reviews"`
	Total   int          `json:"total"`
}

func (c *YelpConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	if conn.Metadata == nil || conn.Metadata.Yelp == nil || conn.Metadata.Yelp.BusinessID == "" {
		return nil, fmt.Errorf("yelp connection %s has no business configured", conn.ID)
	}
	businessID := conn.Metadata.Yelp.BusinessID

	var body yelpReviewsPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetQueryParam("sort_by", "newest").
		SetResult(&body).
		Get(fmt.Sprintf("/businesses/%s/reviews", businessID))
	if err != nil {
		return nil, fmt.Errorf("yelp reviews fetch failed: %w", err)
	}
	if resp.IsError() {
		return nil, apierrors.VendorAPI("yelp", fmt.Sprintf("reviews fetch returned %d", resp.StatusCode()))
	}

	rows := make([]models.Interaction, 0, len(body.Reviews))
	for _, review := range body.Reviews {
		sentiment, score := sentimentFromStars(review.Rating)
		createdAt, err := time.Parse(yelpTimeLayout, review.TimeCreated)
		if err != nil {
			createdAt = time.Now()
		}
		rows = append(rows, models.Interaction{
			Platform:       models.PlatformYelp,
			ExternalID:     review.ID,
			Type:           models.InteractionReview,
			Content:        review.Text,
			AuthorName:     review.User.Name,
			AuthorAvatar:   review.User.ImageURL,
			Sentiment:      &sentiment,
			SentimentScore: &score,
			UrgencyScore:   urgencyFromStars(review.Rating),
			Status:         models.StatusPending,
			CreatedAt:      createdAt,
		})
	}

	result := &SyncResult{Platform: models.PlatformYelp}
	result.New, result.Skipped, result.Errors = c.ingestor.Ingest(ctx, conn.UserID, rows)
	return result, nil
}

// Reply is not supported: the Fusion API has no endpoint for posting
// owner responses, those go through Yelp for Business directly.
func (c *YelpConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	return apierrors.VendorAPI("yelp", "review replies must be posted through Yelp for Business")
}
