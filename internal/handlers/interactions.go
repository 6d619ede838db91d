package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/inbox"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"github.com/replyhub/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// connectedPlatforms reads the active platform set for one user
func connectedPlatforms(ctx context.Context, userID string) ([]models.Platform, error) {
	var platforms []models.Platform
	err := database.DB.WithContext(ctx).
		Model(&models.ConnectedPlatform{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("platform").
		Pluck("platform", &platforms).Error
	return platforms, err
}

// ListInteractions returns one filtered page of the inbox
func (h *Handlers) ListInteractions(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var filter inbox.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}
	offset := util.ParseInt(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	connected, err := connectedPlatforms(c.Request.Context(), userID)
	if err != nil {
		util.RespondInternalError(c, "failed to load connected platforms")
		return
	}

	var rows []models.Interaction
	err = filter.Apply(database.DB.WithContext(c.Request.Context()), userID, connected).
		Order("created_at DESC").
		Limit(inbox.PageSize).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		util.RespondInternalError(c, "failed to load interactions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interactions": rows,
		"offset":       offset,
		"page_size":    inbox.PageSize,
		"has_more":     len(rows) == inbox.PageSize,
	})
}

// GetCounts returns the aggregate inbox counters over the connected set
func (h *Handlers) GetCounts(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	connected, err := connectedPlatforms(ctx, userID)
	if err != nil {
		util.RespondInternalError(c, "failed to load connected platforms")
		return
	}

	base := inbox.Filter{}.Apply(database.DB.WithContext(ctx), userID, connected)

	var counts inbox.Counts
	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		util.RespondInternalError(c, "failed to count interactions")
		return
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", models.StatusPending).
		Count(&counts.Pending).Error; err != nil {
		util.RespondInternalError(c, "failed to count interactions")
		return
	}
	if err := base.Session(&gorm.Session{}).
		Where("urgency_score >= ?", models.UrgentThreshold).
		Count(&counts.Urgent).Error; err != nil {
		util.RespondInternalError(c, "failed to count interactions")
		return
	}

	c.JSON(http.StatusOK, counts)
}

// UpdateInteraction patches one interaction
func (h *Handlers) UpdateInteraction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var patch inbox.UpdatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	updates := patch.Changes()
	if len(updates) > 0 {
		result := database.DB.WithContext(ctx).Model(&models.Interaction{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if result.Error != nil {
			util.RespondInternalError(c, "failed to update interaction")
			return
		}
		if result.RowsAffected == 0 {
			util.RespondNotFound(c, "interaction")
			return
		}
	}

	var row models.Interaction
	if err := database.DB.WithContext(ctx).
		First(&row, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		util.HandleDBError(c, err, "interaction")
		return
	}

	h.publishChanges(ctx, userID, changefeed.OpUpdate, []models.Interaction{row})
	c.JSON(http.StatusOK, row)
}

// BulkUpdateInteractions applies one patch to a set of interactions
func (h *Handlers) BulkUpdateInteractions(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		IDs   []string          `json:"ids" binding:"required,min=1"`
		Patch inbox.UpdatePatch `json:"patch"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	updates := req.Patch.Changes()
	if len(updates) == 0 {
		util.RespondBadRequest(c, "patch is empty")
		return
	}

	result := database.DB.WithContext(ctx).Model(&models.Interaction{}).
		Where("id IN ? AND user_id = ?", req.IDs, userID).
		Updates(updates)
	if result.Error != nil {
		util.RespondInternalError(c, "failed to update interactions")
		return
	}

	var rows []models.Interaction
	if err := database.DB.WithContext(ctx).
		Where("id IN ? AND user_id = ?", req.IDs, userID).
		Find(&rows).Error; err != nil {
		util.RespondInternalError(c, "failed to reload interactions")
		return
	}

	h.publishChanges(ctx, userID, changefeed.OpUpdate, rows)
	c.JSON(http.StatusOK, gin.H{
		"updated":      result.RowsAffected,
		"interactions": rows,
	})
}

// DeleteInteraction removes one interaction
func (h *Handlers) DeleteInteraction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	h.deleteInteractions(c, userID, []string{c.Param("id")})
}

// BulkDeleteInteractions removes a set of interactions
func (h *Handlers) BulkDeleteInteractions(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req struct {
		IDs []string `json:"ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	h.deleteInteractions(c, userID, req.IDs)
}

func (h *Handlers) deleteInteractions(c *gin.Context, userID string, ids []string) {
	ctx := c.Request.Context()

	// Load the rows first so delete envelopes carry full snapshots
	var rows []models.Interaction
	if err := database.DB.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, userID).
		Find(&rows).Error; err != nil {
		util.RespondInternalError(c, "failed to load interactions")
		return
	}
	if len(rows) == 0 {
		util.RespondNotFound(c, "interaction")
		return
	}

	result := database.DB.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, userID).
		Delete(&models.Interaction{})
	if result.Error != nil {
		util.RespondInternalError(c, "failed to delete interactions")
		return
	}

	h.publishChanges(ctx, userID, changefeed.OpDelete, rows)
	c.JSON(http.StatusOK, gin.H{"deleted": result.RowsAffected})
}

// publishChanges echoes REST mutations onto the changefeed, best effort
func (h *Handlers) publishChanges(ctx context.Context, userID string, op changefeed.Op, rows []models.Interaction) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishChanges(ctx, userID, op, rows); err != nil {
		logger.Log.Warn("Failed to publish changes",
			logger.WithUserID(userID),
			zap.String("op", string(op)),
			zap.Error(err))
	}
}
