package connectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	apierrors "github.com/replyhub/backend/internal/errors"
	"github.com/replyhub/backend/internal/models"
)

const trustpilotAPIBase = "https://api.trustpilot.com/v1"

// TrustpilotConnector syncs business-unit reviews from Trustpilot
type TrustpilotConnector struct {
	http     *resty.Client
	apiKey   string
	ingestor *Ingestor
}

// NewTrustpilotConnector creates the Trustpilot connector. Review reads use
// the API key; replies use the connection's OAuth business token.
func NewTrustpilotConnector(apiKey string, ingestor *Ingestor) *TrustpilotConnector {
	return &TrustpilotConnector{
		http:     newVendorClient(trustpilotAPIBase),
		apiKey:   apiKey,
		ingestor: ingestor,
	}
}

// SetBaseURL points the connector at a different API host, for tests
func (c *TrustpilotConnector) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

func (c *TrustpilotConnector) Platform() models.Platform {
	return models.PlatformTrustpilot
}

type trustpilotConsumer struct {
	DisplayName string `json:"displayName"`
}

type trustpilotReview struct {
	ID        string             `json:"id"`
	Stars     int                `json:"stars"`
	Title     string             `json:"title"`
	Text      string             `json:"text"`
	Consumer  trustpilotConsumer `json:"consumer"`
	CreatedAt time.Time          `json:"createdAt"`
}

type trustpilotReviewsPage struct {
	Reviews []trustpilotReview `json:"reviews"`
}

func (c *TrustpilotConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	if conn.Metadata == nil || conn.Metadata.Trustpilot == nil || conn.Metadata.Trustpilot.BusinessUnitID == "" {
		return nil, fmt.Errorf("trustpilot connection %s has no business unit configured", conn.ID)
	}
	unitID := conn.Metadata.Trustpilot.BusinessUnitID

	result := &SyncResult{Platform: models.PlatformTrustpilot}

	for page := 1; page <= syncMaxPages; page++ {
		var body trustpilotReviewsPage
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("apikey", c.apiKey).
			SetQueryParam("page", strconv.Itoa(page)).
			SetQueryParam("perPage", "50").
			SetQueryParam("orderBy", "createdat.desc").
			SetResult(&body).
			Get(fmt.Sprintf("/business-units/%s/reviews", unitID))
		if err != nil {
			return nil, fmt.Errorf("trustpilot reviews fetch failed: %w", err)
		}
		if resp.IsError() {
			return nil, apierrors.VendorAPI("trustpilot", fmt.Sprintf("reviews fetch returned %d", resp.StatusCode()))
		}

		if len(body.Reviews) == 0 {
			break
		}

		rows := make([]models.Interaction, 0, len(body.Reviews))
		for _, review := range body.Reviews {
			rows = append(rows, c.normalize(review))
		}
		added, skipped, itemErrors := c.ingestor.Ingest(ctx, conn.UserID, rows)
		result.New += added
		result.Skipped += skipped
		result.Errors = append(result.Errors, itemErrors...)

		if len(body.Reviews) < 50 {
			break
		}
	}

	return result, nil
}

func (c *TrustpilotConnector) normalize(review trustpilotReview) models.Interaction {
	sentiment, score := sentimentFromStars(review.Stars)

	content := review.Text
	if review.Title != "" {
		content = review.Title + "\n\n" + review.Text
	}

	return models.Interaction{
		Platform:       models.PlatformTrustpilot,
		ExternalID:     review.ID,
		Type:           models.InteractionReview,
		Content:        content,
		AuthorName:     review.Consumer.DisplayName,
		Sentiment:      &sentiment,
		SentimentScore: &score,
		UrgencyScore:   urgencyFromStars(review.Stars),
		Status:         models.StatusPending,
		CreatedAt:      review.CreatedAt,
	}
}

func (c *TrustpilotConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetBody(map[string]string{"message": message}).
		Post(fmt.Sprintf("/private/reviews/%s/reply", interaction.ExternalID))
	if err != nil {
		return fmt.Errorf("trustpilot reply failed: %w", err)
	}
	if resp.IsError() {
		return apierrors.VendorAPI("trustpilot", fmt.Sprintf("reply returned %d", resp.StatusCode()))
	}
	return nil
}
