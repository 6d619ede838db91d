package connectors

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// tokenFor returns a usable access token for the connection, refreshing
// through the OAuth endpoint when the stored one has expired. A refreshed
// token is persisted so the next sync starts warm.
func tokenFor(ctx context.Context, db *gorm.DB, cfg *oauth2.Config, conn *models.ConnectedPlatform) (string, error) {
	tok := &oauth2.Token{AccessToken: conn.AccessToken}
	if conn.RefreshToken != nil {
		tok.RefreshToken = *conn.RefreshToken
	}
	if conn.TokenExpiry != nil {
		tok.Expiry = *conn.TokenExpiry
	}

	if tok.Valid() || tok.RefreshToken == "" {
		return tok.AccessToken, nil
	}

	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed for %s: %w", conn.Platform, err)
	}

	if fresh.AccessToken != conn.AccessToken {
		updates := map[string]interface{}{
			"access_token": fresh.AccessToken,
			"token_expiry": fresh.Expiry,
		}
		if fresh.RefreshToken != "" {
			updates["refresh_token"] = fresh.RefreshToken
		}
		if err := db.WithContext(ctx).Model(conn).Updates(updates).Error; err != nil {
			logger.Log.Warn("Failed to persist refreshed token",
				logger.WithPlatform(string(conn.Platform)),
				zap.Error(err))
		}
		conn.AccessToken = fresh.AccessToken
		expiry := fresh.Expiry
		conn.TokenExpiry = &expiry
		if fresh.RefreshToken != "" {
			rt := fresh.RefreshToken
			conn.RefreshToken = &rt
		}
	}

	return fresh.AccessToken, nil
}

// newVendorClient is the shared resty setup for vendor API clients.
// Outbound calls are traced so slow vendor APIs show up in spans.
func newVendorClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", "ReplyHub/1.0").
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))
}
