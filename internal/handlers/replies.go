package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/metrics"
	"github.com/replyhub/backend/internal/models"
	"github.com/replyhub/backend/internal/telemetry"
	"github.com/replyhub/backend/internal/util"

	apierrors "github.com/replyhub/backend/internal/errors"
)

// ReplyToInteraction posts a response back to the vendor, then marks the
// interaction responded. The vendor write happens first; a rejected reply
// leaves the workflow state untouched.
func (h *Handlers) ReplyToInteraction(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	var row models.Interaction
	if err := database.DB.WithContext(ctx).
		First(&row, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		util.HandleDBError(c, err, "interaction")
		return
	}

	var conn models.ConnectedPlatform
	err := database.DB.WithContext(ctx).
		First(&conn, "user_id = ? AND platform = ? AND is_active = ?", userID, row.Platform, true).Error
	if err != nil {
		util.RespondWithAPIError(c, apierrors.PlatformInactive(string(row.Platform)))
		return
	}

	connector, ok := h.registry.Get(row.Platform)
	if !ok {
		util.RespondWithAPIError(c, apierrors.VendorAPI(string(row.Platform), "no connector registered"))
		return
	}

	ctx, span := telemetry.GetEvents().TraceVendorReply(ctx, string(row.Platform), row.ID)
	defer span.End()

	if err := connector.Reply(ctx, &conn, &row, req.Message); err != nil {
		metrics.Get().RepliesTotal.WithLabelValues(string(row.Platform), "error").Inc()
		telemetry.RecordVendorError(span, err, false)

		var apiErr *apierrors.APIError
		if errors.As(err, &apiErr) {
			util.RespondWithAPIError(c, apiErr)
			return
		}
		util.RespondWithAPIError(c, apierrors.VendorAPI(string(row.Platform), err.Error()))
		return
	}

	metrics.Get().RepliesTotal.WithLabelValues(string(row.Platform), "ok").Inc()

	updates := map[string]interface{}{
		"response":     req.Message,
		"responded_at": time.Now().UTC(),
		"status":       models.StatusResponded,
	}
	err = database.DB.WithContext(ctx).Model(&models.Interaction{}).
		Where("id = ?", row.ID).
		Updates(updates).Error
	if err != nil {
		// The vendor already accepted the reply
		util.RespondInternalError(c, "reply posted but workflow update failed")
		return
	}
	if err := database.DB.WithContext(ctx).First(&row, "id = ?", row.ID).Error; err != nil {
		util.HandleDBError(c, err, "interaction")
		return
	}

	h.publishChanges(ctx, userID, changefeed.OpUpdate, []models.Interaction{row})
	c.JSON(http.StatusOK, row)
}
