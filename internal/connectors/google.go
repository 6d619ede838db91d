package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	apierrors "github.com/replyhub/backend/internal/errors"
	"github.com/replyhub/backend/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"
)

// googleAPIBase is the Google Business Profile reviews API
const googleAPIBase = "https://mybusiness.googleapis.com/v4"

// syncMaxPages bounds one sync pass; older items are picked up by dedup
// on the next sweep anyway
const syncMaxPages = 10

// GoogleConnector syncs Google Business Profile reviews
type GoogleConnector struct {
	http     *resty.Client
	oauth    *oauth2.Config
	db       *gorm.DB
	ingestor *Ingestor
}

// NewGoogleConnector creates the Google reviews connector
func NewGoogleConnector(clientID, clientSecret string, db *gorm.DB, ingestor *Ingestor) *GoogleConnector {
	return &GoogleConnector{
		http: newVendorClient(googleAPIBase),
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/business.manage"},
		},
		db:       db,
		ingestor: ingestor,
	}
}

// SetBaseURL points the connector at a different API host, for tests
func (c *GoogleConnector) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

func (c *GoogleConnector) Platform() models.Platform {
	return models.PlatformGoogle
}

type googleReviewer struct {
	DisplayName     string `json:"displayName"`
	ProfilePhotoURL string `json:"profilePhotoUrl"`
}

type googleReview struct {
	ReviewID   string         `json:"reviewId"`
	Reviewer   googleReviewer `json:"reviewer"`
	StarRating string         `json:"starRating"`
	Comment    string         `json:"comment"`
	CreateTime time.Time      `json:"createTime"`
}

type googleReviewsPage struct {
	Reviews       []googleReview `json:"reviews"`
	NextPageToken string         `json:"nextPageToken"`
}

// starRatingValue maps the API's enum rating onto 1-5
func starRatingValue(rating string) int {
	switch rating {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	}
	return 3
}

func (c *GoogleConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	if conn.Metadata == nil || conn.Metadata.Google == nil || conn.Metadata.Google.LocationID == "" {
		return nil, fmt.Errorf("google connection %s has no location configured", conn.ID)
	}
	locationID := conn.Metadata.Google.LocationID

	token, err := tokenFor(ctx, c.db, c.oauth, conn)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Platform: models.PlatformGoogle}
	pageToken := ""

	for page := 0; page < syncMaxPages; page++ {
		var body googleReviewsPage
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&body)
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		resp, err := req.Get(fmt.Sprintf("/accounts/-/locations/%s/reviews", locationID))
		if err != nil {
			return nil, fmt.Errorf("google reviews fetch failed: %w", err)
		}
		if resp.IsError() {
			return nil, apierrors.VendorAPI("google", fmt.Sprintf("reviews fetch returned %d", resp.StatusCode()))
		}

		rows := make([]models.Interaction, 0, len(body.Reviews))
		for _, review := range body.Reviews {
			rows = append(rows, c.normalize(review))
		}
		added, skipped, itemErrors := c.ingestor.Ingest(ctx, conn.UserID, rows)
		result.New += added
		result.Skipped += skipped
		result.Errors = append(result.Errors, itemErrors...)

		pageToken = body.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return result, nil
}

func (c *GoogleConnector) normalize(review googleReview) models.Interaction {
	stars := starRatingValue(review.StarRating)
	sentiment, score := sentimentFromStars(stars)

	content := review.Comment
	if content == "" {
		content = fmt.Sprintf("%d star review (no comment)", stars)
	}

	return models.Interaction{
		Platform:       models.PlatformGoogle,
		ExternalID:     review.ReviewID,
		Type:           models.InteractionReview,
		Content:        content,
		AuthorName:     review.Reviewer.DisplayName,
		AuthorAvatar:   review.Reviewer.ProfilePhotoURL,
		Sentiment:      &sentiment,
		SentimentScore: &score,
		UrgencyScore:   urgencyFromStars(stars),
		Status:         models.StatusPending,
		CreatedAt:      review.CreateTime,
	}
}

func (c *GoogleConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	if conn.Metadata == nil || conn.Metadata.Google == nil || conn.Metadata.Google.LocationID == "" {
		return fmt.Errorf("google connection %s has no location configured", conn.ID)
	}

	token, err := tokenFor(ctx, c.db, c.oauth, conn)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]string{"comment": message}).
		Put(fmt.Sprintf("/accounts/-/locations/%s/reviews/%s/reply",
			conn.Metadata.Google.LocationID, interaction.ExternalID))
	if err != nil {
		return fmt.Errorf("google reply failed: %w", err)
	}
	if resp.IsError() {
		return apierrors.VendorAPI("google", fmt.Sprintf("reply returned %d", resp.StatusCode()))
	}
	return nil
}
