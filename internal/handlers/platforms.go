package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"github.com/replyhub/backend/internal/util"
	"github.com/replyhub/backend/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apierrors "github.com/replyhub/backend/internal/errors"
)

// ConnectPlatformRequest carries the credentials for a new vendor link
type ConnectPlatformRequest struct {
	Platform          models.Platform          `json:"platform" binding:"required"`
	PlatformAccountID string                   `json:"platform_account_id" binding:"required"`
	AccessToken       string                   `json:"access_token" binding:"required"`
	RefreshToken      *string                  `json:"refresh_token,omitempty"`
	TokenExpiry       *time.Time               `json:"token_expiry,omitempty"`
	Metadata          *models.PlatformMetadata `json:"metadata,omitempty"`
}

// ListPlatforms returns every vendor connection for the account
func (h *Handlers) ListPlatforms(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var conns []models.ConnectedPlatform
	err := database.DB.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("platform").
		Find(&conns).Error
	if err != nil {
		util.RespondInternalError(c, "failed to load platforms")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platforms": conns,
		"supported": h.registry.Platforms(),
	})
}

// ConnectPlatform stores vendor credentials and activates the connection.
// Reconnecting an existing platform replaces its credentials.
func (h *Handlers) ConnectPlatform(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req ConnectPlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	if !req.Platform.Valid() {
		util.RespondValidationError(c, "platform", "unknown platform")
		return
	}

	ctx := c.Request.Context()

	var conn models.ConnectedPlatform
	err := database.DB.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, req.Platform).
		First(&conn).Error

	switch {
	case err == nil:
		conn.PlatformAccountID = req.PlatformAccountID
		conn.AccessToken = req.AccessToken
		conn.RefreshToken = req.RefreshToken
		conn.TokenExpiry = req.TokenExpiry
		conn.Metadata = req.Metadata
		conn.IsActive = true
		if err := database.DB.WithContext(ctx).Save(&conn).Error; err != nil {
			util.RespondInternalError(c, "failed to update platform connection")
			return
		}

	case errors.Is(err, gorm.ErrRecordNotFound):
		conn = models.ConnectedPlatform{
			UserID:            userID,
			Platform:          req.Platform,
			PlatformAccountID: req.PlatformAccountID,
			AccessToken:       req.AccessToken,
			RefreshToken:      req.RefreshToken,
			TokenExpiry:       req.TokenExpiry,
			Metadata:          req.Metadata,
			IsActive:          true,
		}
		if err := database.DB.WithContext(ctx).Create(&conn).Error; err != nil {
			util.RespondInternalError(c, "failed to connect platform")
			return
		}

	default:
		util.RespondInternalError(c, "failed to look up platform connection")
		return
	}

	h.notifyPlatformsChanged(c, userID)
	c.JSON(http.StatusCreated, conn)
}

// DisconnectPlatform deactivates a vendor connection. Its interactions stay
// in the store but disappear from every surface until reconnect.
func (h *Handlers) DisconnectPlatform(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	platform := models.Platform(c.Param("platform"))

	result := database.DB.WithContext(c.Request.Context()).
		Model(&models.ConnectedPlatform{}).
		Where("user_id = ? AND platform = ? AND is_active = ?", userID, platform, true).
		Update("is_active", false)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to disconnect platform")
		return
	}
	if result.RowsAffected == 0 {
		util.RespondNotFound(c, "platform connection")
		return
	}

	h.notifyPlatformsChanged(c, userID)
	c.JSON(http.StatusOK, gin.H{"platform": platform, "status": "disconnected"})
}

// TriggerSync runs one sync pass for a platform outside the schedule
func (h *Handlers) TriggerSync(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	platform := models.Platform(c.Param("platform"))

	if h.sync == nil {
		util.RespondInternalError(c, "sync service unavailable")
		return
	}

	ctx := c.Request.Context()

	var conn models.ConnectedPlatform
	err := database.DB.WithContext(ctx).
		First(&conn, "user_id = ? AND platform = ? AND is_active = ?", userID, platform, true).Error
	if err != nil {
		util.RespondWithAPIError(c, apierrors.PlatformInactive(string(platform)))
		return
	}

	result, err := h.sync.SyncOne(ctx, &conn)
	if err != nil {
		util.RespondWithAPIError(c, apierrors.VendorAPI(string(platform), err.Error()))
		return
	}

	if h.hub != nil {
		h.hub.SendToUser(userID, websocket.NewMessage(websocket.MessageTypeSyncResult, websocket.SyncResultPayload{
			Platform: string(result.Platform),
			New:      result.New,
			Skipped:  result.Skipped,
			Errors:   len(result.Errors),
		}))
	}

	c.JSON(http.StatusOK, result)
}

// notifyPlatformsChanged pings the changefeed so live sessions re-read the
// connected set, best effort
func (h *Handlers) notifyPlatformsChanged(c *gin.Context, userID string) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishPlatformsChanged(c.Request.Context(), userID); err != nil {
		logger.Log.Warn("Failed to publish platform change",
			logger.WithUserID(userID),
			zap.Error(err))
	}
}
