package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	apierrors "github.com/replyhub/backend/internal/errors"
	"github.com/replyhub/backend/internal/models"
)

// graphAPIBase is the Meta Graph API for both Facebook pages and
// Instagram business accounts
const graphAPIBase = "https://graph.facebook.com/v19.0"

// graphTimeLayout is the timestamp format the Graph API returns
const graphTimeLayout = "2006-01-02T15:04:05-0700"

type graphFrom struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type graphComment struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	From        graphFrom `json:"from"`
	CreatedTime string    `json:"created_time"`
}

type graphCommentEdge struct {
	Data []graphComment `json:"data"`
}

type graphPost struct {
	ID          string           `json:"id"`
	Message     string           `json:"message"`
	From        graphFrom        `json:"from"`
	CreatedTime string           `json:"created_time"`
	Comments    graphCommentEdge `json:"comments"`
}

type graphPaging struct {
	Cursors struct {
		After string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

type graphFeedPage struct {
	Data   []graphPost `json:"data"`
	Paging graphPaging `json:"paging"`
}

func graphTime(value string) time.Time {
	if t, err := time.Parse(graphTimeLayout, value); err == nil {
		return t
	}
	return time.Now()
}

// FacebookConnector syncs page feed comments and page mentions
type FacebookConnector struct {
	http     *resty.Client
	ingestor *Ingestor
}

// NewFacebookConnector creates the Facebook pages connector. Page access
// tokens are long-lived, so there is no refresh flow here.
func NewFacebookConnector(ingestor *Ingestor) *FacebookConnector {
	return &FacebookConnector{
		http:     newVendorClient(graphAPIBase),
		ingestor: ingestor,
	}
}

// SetBaseURL points the connector at a different API host, for tests
func (c *FacebookConnector) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

func (c *FacebookConnector) Platform() models.Platform {
	return models.PlatformFacebook
}

func (c *FacebookConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	if conn.Metadata == nil || conn.Metadata.Meta == nil || conn.Metadata.Meta.PageID == "" {
		return nil, fmt.Errorf("facebook connection %s has no page configured", conn.ID)
	}
	pageID := conn.Metadata.Meta.PageID

	result := &SyncResult{Platform: models.PlatformFacebook}

	// Comments on page posts
	if err := c.syncFeed(ctx, conn, pageID, result); err != nil {
		return nil, err
	}

	// Posts the page is tagged in surface as mentions
	if err := c.syncTagged(ctx, conn, pageID, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *FacebookConnector) syncFeed(ctx context.Context, conn *models.ConnectedPlatform, pageID string, result *SyncResult) error {
	after := ""
	for page := 0; page < syncMaxPages; page++ {
		var body graphFeedPage
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("access_token", conn.AccessToken).
			SetQueryParam("fields", "id,message,created_time,comments{id,message,from,created_time}").
			SetResult(&body)
		if after != "" {
			req.SetQueryParam("after", after)
		}

		resp, err := req.Get(fmt.Sprintf("/%s/feed", pageID))
		if err != nil {
			return fmt.Errorf("facebook feed fetch failed: %w", err)
		}
		if resp.IsError() {
			return apierrors.VendorAPI("facebook", fmt.Sprintf("feed fetch returned %d", resp.StatusCode()))
		}

		var rows []models.Interaction
		for _, post := range body.Data {
			for _, comment := range post.Comments.Data {
				// The page's own comments are replies, not inbox items
				if comment.From.ID == pageID {
					continue
				}
				rows = append(rows, models.Interaction{
					Platform:   models.PlatformFacebook,
					ExternalID: comment.ID,
					Type:       models.InteractionComment,
					Content:    comment.Message,
					AuthorName: comment.From.Name,
					Status:     models.StatusPending,
					CreatedAt:  graphTime(comment.CreatedTime),
				})
			}
		}
		added, skipped, itemErrors := c.ingestor.Ingest(ctx, conn.UserID, rows)
		result.New += added
		result.Skipped += skipped
		result.Errors = append(result.Errors, itemErrors...)

		after = body.Paging.Cursors.After
		if after == "" || body.Paging.Next == "" {
			break
		}
	}
	return nil
}

func (c *FacebookConnector) syncTagged(ctx context.Context, conn *models.ConnectedPlatform, pageID string, result *SyncResult) error {
	var body graphFeedPage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", conn.AccessToken).
		SetQueryParam("fields", "id,message,from,created_time").
		SetResult(&body).
		Get(fmt.Sprintf("/%s/tagged", pageID))
	if err != nil {
		return fmt.Errorf("facebook tagged fetch failed: %w", err)
	}
	if resp.IsError() {
		return apierrors.VendorAPI("facebook", fmt.Sprintf("tagged fetch returned %d", resp.StatusCode()))
	}

	var rows []models.Interaction
	for _, post := range body.Data {
		rows = append(rows, models.Interaction{
			Platform:   models.PlatformFacebook,
			ExternalID: post.ID,
			Type:       models.InteractionMention,
			Content:    post.Message,
			AuthorName: post.From.Name,
			Status:     models.StatusPending,
			CreatedAt:  graphTime(post.CreatedTime),
		})
	}
	added, skipped, itemErrors := c.ingestor.Ingest(ctx, conn.UserID, rows)
	result.New += added
	result.Skipped += skipped
	result.Errors = append(result.Errors, itemErrors...)
	return nil
}

func (c *FacebookConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", conn.AccessToken).
		SetBody(map[string]string{"message": message}).
		Post(fmt.Sprintf("/%s/comments", interaction.ExternalID))
	if err != nil {
		return fmt.Errorf("facebook reply failed: %w", err)
	}
	if resp.IsError() {
		return apierrors.VendorAPI("facebook", fmt.Sprintf("reply returned %d", resp.StatusCode()))
	}
	return nil
}

// InstagramConnector syncs media comments for an Instagram business account
type InstagramConnector struct {
	http     *resty.Client
	ingestor *Ingestor
}

// NewInstagramConnector creates the Instagram connector. It rides the same
// Graph API and page token as Facebook.
func NewInstagramConnector(ingestor *Ingestor) *InstagramConnector {
	return &InstagramConnector{
		http:     newVendorClient(graphAPIBase),
		ingestor: ingestor,
	}
}

// SetBaseURL points the connector at a different API host, for tests
func (c *InstagramConnector) SetBaseURL(url string) {
	c.http.SetBaseURL(url)
}

func (c *InstagramConnector) Platform() models.Platform {
	return models.PlatformInstagram
}

type igComment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

type igMedia struct {
	ID       string `json:"id"`
	Comments struct {
		Data []igComment `json:"data"`
	} `json:"comments"`
}

type igMediaPage struct {
	Data   []igMedia   `json:"data"`
	Paging graphPaging `json:"paging"`
}

func (c *InstagramConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error) {
	if conn.Metadata == nil || conn.Metadata.Meta == nil || conn.Metadata.Meta.IGBusinessID == "" {
		return nil, fmt.Errorf("instagram connection %s has no business account configured", conn.ID)
	}
	igID := conn.Metadata.Meta.IGBusinessID

	result := &SyncResult{Platform: models.PlatformInstagram}
	after := ""

	for page := 0; page < syncMaxPages; page++ {
		var body igMediaPage
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("access_token", conn.AccessToken).
			SetQueryParam("fields", "id,comments{id,text,username,timestamp}").
			SetResult(&body)
		if after != "" {
			req.SetQueryParam("after", after)
		}

		resp, err := req.Get(fmt.Sprintf("/%s/media", igID))
		if err != nil {
			return nil, fmt.Errorf("instagram media fetch failed: %w", err)
		}
		if resp.IsError() {
			return nil, apierrors.VendorAPI("instagram", fmt.Sprintf("media fetch returned %d", resp.StatusCode()))
		}

		var rows []models.Interaction
		for _, media := range body.Data {
			for _, comment := range media.Comments.Data {
				rows = append(rows, models.Interaction{
					Platform:     models.PlatformInstagram,
					ExternalID:   comment.ID,
					Type:         models.InteractionComment,
					Content:      comment.Text,
					AuthorHandle: comment.Username,
					Status:       models.StatusPending,
					CreatedAt:    graphTime(comment.Timestamp),
				})
			}
		}
		added, skipped, itemErrors := c.ingestor.Ingest(ctx, conn.UserID, rows)
		result.New += added
		result.Skipped += skipped
		result.Errors = append(result.Errors, itemErrors...)

		after = body.Paging.Cursors.After
		if after == "" || body.Paging.Next == "" {
			break
		}
	}

	return result, nil
}

func (c *InstagramConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", conn.AccessToken).
		SetBody(map[string]string{"message": message}).
		Post(fmt.Sprintf("/%s/replies", interaction.ExternalID))
	if err != nil {
		return fmt.Errorf("instagram reply failed: %w", err)
	}
	if resp.IsError() {
		return apierrors.VendorAPI("instagram", fmt.Sprintf("reply returned %d", resp.StatusCode()))
	}
	return nil
}
