package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/replyhub/backend/internal/auth"
	"github.com/replyhub/backend/internal/connectors"
	"github.com/replyhub/backend/internal/database"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apierrors "github.com/replyhub/backend/internal/errors"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeConnector is a registry entry for tests; it records replies and can
// be primed to fail
type fakeConnector struct {
	platform models.Platform
	replyErr error
	replies  []string
}

func (f *fakeConnector) Platform() models.Platform { return f.platform }

func (f *fakeConnector) Sync(ctx context.Context, conn *models.ConnectedPlatform) (*connectors.SyncResult, error) {
	return &connectors.SyncResult{Platform: f.platform, New: 3, Skipped: 1}, nil
}

func (f *fakeConnector) Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, message)
	return nil
}

type testEnv struct {
	handlers *Handlers
	router   *gin.Engine
	db       *gorm.DB
	user     *models.User
	google   *fakeConnector
}

func setupTest(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.ConnectedPlatform{}, &models.Interaction{}))
	database.DB = db

	user := &models.User{
		Email:        fmt.Sprintf("owner-%d@example.com", time.Now().UnixNano()),
		DisplayName:  "Test Owner",
		PasswordHash: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)

	google := &fakeConnector{platform: models.PlatformGoogle}
	h := NewHandlers(auth.NewService([]byte("test-secret")), connectors.NewRegistry(google))

	router := gin.New()
	router.POST("/auth/register", h.Register)
	router.POST("/auth/login", h.Login)

	api := router.Group("/api", func(c *gin.Context) {
		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	})
	api.GET("/me", h.Me)
	api.GET("/interactions", h.ListInteractions)
	api.GET("/interactions/counts", h.GetCounts)
	api.PATCH("/interactions/:id", h.UpdateInteraction)
	api.POST("/interactions/bulk_update", h.BulkUpdateInteractions)
	api.DELETE("/interactions/:id", h.DeleteInteraction)
	api.POST("/interactions/bulk_delete", h.BulkDeleteInteractions)
	api.POST("/interactions/:id/reply", h.ReplyToInteraction)
	api.GET("/platforms", h.ListPlatforms)
	api.POST("/platforms", h.ConnectPlatform)
	api.DELETE("/platforms/:platform", h.DisconnectPlatform)

	return &testEnv{handlers: h, router: router, db: db, user: user, google: google}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) connectPlatform(t *testing.T, userID string, platform models.Platform) *models.ConnectedPlatform {
	conn := &models.ConnectedPlatform{
		UserID:            userID,
		Platform:          platform,
		PlatformAccountID: fmt.Sprintf("acct-%s", platform),
		AccessToken:       "test-token",
		IsActive:          true,
	}
	require.NoError(t, e.db.Create(conn).Error)
	return conn
}

func (e *testEnv) seedInteraction(t *testing.T, userID string, platform models.Platform, content string) models.Interaction {
	item := models.Interaction{
		UserID:     userID,
		Platform:   platform,
		ExternalID: fmt.Sprintf("%s-ext-%d", platform, time.Now().UnixNano()),
		Type:       models.InteractionComment,
		Content:    content,
		AuthorName: "Some Customer",
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, e.db.Create(&item).Error)
	return item
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), target))
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTest(t)

	w := env.request(t, http.MethodPost, "/auth/register", gin.H{
		"email":        "new@example.com",
		"password":     "super-secret-pw",
		"display_name": "New Owner",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created auth.AuthResponse
	decodeBody(t, w, &created)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "new@example.com", created.User.Email)

	w = env.request(t, http.MethodPost, "/auth/login", gin.H{
		"email":    "new@example.com",
		"password": "super-secret-pw",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Duplicate registration conflicts
	w = env.request(t, http.MethodPost, "/auth/register", gin.H{
		"email":        "new@example.com",
		"password":     "super-secret-pw",
		"display_name": "New Owner",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListInteractionsScopedToConnectedPlatforms(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "google review")
	env.seedInteraction(t, env.user.ID, models.PlatformYelp, "yelp review") // not connected

	w := env.request(t, http.MethodGet, "/api/interactions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Interactions []models.Interaction `json:"interactions"`
		HasMore      bool                 `json:"has_more"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Interactions, 1)
	assert.Equal(t, models.PlatformGoogle, resp.Interactions[0].Platform)
	assert.False(t, resp.HasMore)
}

func TestListInteractionsNoPlatformsConnected(t *testing.T) {
	env := setupTest(t)
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "orphaned review")

	w := env.request(t, http.MethodGet, "/api/interactions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeBody(t, w, &resp)
	assert.Empty(t, resp.Interactions)
}

func TestListInteractionsFilterAndSearch(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "Terrible coffee and slow service")
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "Great atmosphere")

	w := env.request(t, http.MethodGet, "/api/interactions?search=coffee", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Interactions, 1)
	assert.Contains(t, resp.Interactions[0].Content, "coffee")
}

func TestGetCounts(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "one")
	urgent := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "two")
	require.NoError(t, env.db.Model(&models.Interaction{}).
		Where("id = ?", urgent.ID).
		Updates(map[string]interface{}{"urgency_score": 8, "status": models.StatusEscalated}).Error)

	w := env.request(t, http.MethodGet, "/api/interactions/counts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var counts struct {
		Total   int64 `json:"total"`
		Pending int64 `json:"pending"`
		Urgent  int64 `json:"urgent"`
	}
	decodeBody(t, w, &counts)
	assert.Equal(t, int64(2), counts.Total)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(1), counts.Urgent)
}

func TestUpdateInteraction(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	row := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "pending item")

	w := env.request(t, http.MethodPatch, "/api/interactions/"+row.ID, gin.H{
		"status": "archived",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var updated models.Interaction
	decodeBody(t, w, &updated)
	assert.Equal(t, models.StatusArchived, updated.Status)

	var stored models.Interaction
	require.NoError(t, env.db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, models.StatusArchived, stored.Status)
}

func TestUpdateInteractionNotFoundForForeignRow(t *testing.T) {
	env := setupTest(t)

	other := &models.User{
		Email:        fmt.Sprintf("other-%d@example.com", time.Now().UnixNano()),
		DisplayName:  "Other Owner",
		PasswordHash: "not-a-real-hash",
	}
	require.NoError(t, env.db.Create(other).Error)
	foreign := env.seedInteraction(t, other.ID, models.PlatformGoogle, "not yours")

	w := env.request(t, http.MethodPatch, "/api/interactions/"+foreign.ID, gin.H{
		"status": "archived",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var stored models.Interaction
	require.NoError(t, env.db.First(&stored, "id = ?", foreign.ID).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestBulkUpdateInteractions(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	a := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "first")
	b := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "second")

	w := env.request(t, http.MethodPost, "/api/interactions/bulk_update", gin.H{
		"ids":   []string{a.ID, b.ID},
		"patch": gin.H{"status": "responded"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Updated int64 `json:"updated"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, int64(2), resp.Updated)

	var pending int64
	require.NoError(t, env.db.Model(&models.Interaction{}).
		Where("user_id = ? AND status = ?", env.user.ID, models.StatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(0), pending)
}

func TestBulkUpdateRejectsEmptyPatch(t *testing.T) {
	env := setupTest(t)
	row := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "untouched")

	w := env.request(t, http.MethodPost, "/api/interactions/bulk_update", gin.H{
		"ids":   []string{row.ID},
		"patch": gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteInteractions(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	a := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "first")
	b := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "second")
	c := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "third")

	w := env.request(t, http.MethodDelete, "/api/interactions/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodPost, "/api/interactions/bulk_delete", gin.H{
		"ids": []string{b.ID, c.ID},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var remaining int64
	require.NoError(t, env.db.Model(&models.Interaction{}).
		Where("user_id = ?", env.user.ID).
		Count(&remaining).Error)
	assert.Equal(t, int64(0), remaining)

	// Deleting again returns not found
	w = env.request(t, http.MethodDelete, "/api/interactions/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplyToInteraction(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	row := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "needs a reply")

	w := env.request(t, http.MethodPost, "/api/interactions/"+row.ID+"/reply", gin.H{
		"message": "Thanks for the feedback!",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.google.replies, 1)
	assert.Equal(t, "Thanks for the feedback!", env.google.replies[0])

	var stored models.Interaction
	require.NoError(t, env.db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, models.StatusResponded, stored.Status)
	require.NotNil(t, stored.Response)
	assert.Equal(t, "Thanks for the feedback!", *stored.Response)
	assert.NotNil(t, stored.RespondedAt)
}

func TestReplyVendorRejectionLeavesWorkflowUntouched(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	env.google.replyErr = apierrors.VendorAPI("google", "review no longer exists")
	row := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "gone upstream")

	w := env.request(t, http.MethodPost, "/api/interactions/"+row.ID+"/reply", gin.H{
		"message": "Hello?",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var stored models.Interaction
	require.NoError(t, env.db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.Response)
}

func TestReplyOnDisconnectedPlatform(t *testing.T) {
	env := setupTest(t)
	row := env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "platform is gone")

	w := env.request(t, http.MethodPost, "/api/interactions/"+row.ID+"/reply", gin.H{
		"message": "Anyone there?",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestConnectAndDisconnectPlatform(t *testing.T) {
	env := setupTest(t)

	w := env.request(t, http.MethodPost, "/api/platforms", gin.H{
		"platform":            "google",
		"platform_account_id": "locations/123",
		"access_token":        "fresh-token",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var conn models.ConnectedPlatform
	decodeBody(t, w, &conn)
	assert.Equal(t, models.PlatformGoogle, conn.Platform)
	assert.True(t, conn.IsActive)

	// Reconnecting replaces credentials on the same row
	w = env.request(t, http.MethodPost, "/api/platforms", gin.H{
		"platform":            "google",
		"platform_account_id": "locations/456",
		"access_token":        "rotated-token",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var count int64
	require.NoError(t, env.db.Model(&models.ConnectedPlatform{}).
		Where("user_id = ?", env.user.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var stored models.ConnectedPlatform
	require.NoError(t, env.db.First(&stored, "user_id = ? AND platform = ?", env.user.ID, models.PlatformGoogle).Error)
	assert.Equal(t, "rotated-token", stored.AccessToken)
	assert.Equal(t, "locations/456", stored.PlatformAccountID)

	w = env.request(t, http.MethodDelete, "/api/platforms/google", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, env.db.First(&stored, "user_id = ? AND platform = ?", env.user.ID, models.PlatformGoogle).Error)
	assert.False(t, stored.IsActive)

	// Disconnecting an already-inactive platform is not found
	w = env.request(t, http.MethodDelete, "/api/platforms/google", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConnectPlatformRejectsUnknown(t *testing.T) {
	env := setupTest(t)

	w := env.request(t, http.MethodPost, "/api/platforms", gin.H{
		"platform":            "myspace",
		"platform_account_id": "x",
		"access_token":        "y",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisconnectHidesInteractionsFromList(t *testing.T) {
	env := setupTest(t)
	env.connectPlatform(t, env.user.ID, models.PlatformGoogle)
	env.seedInteraction(t, env.user.ID, models.PlatformGoogle, "visible while connected")

	w := env.request(t, http.MethodGet, "/api/interactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var before struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeBody(t, w, &before)
	require.Len(t, before.Interactions, 1)

	w = env.request(t, http.MethodDelete, "/api/platforms/google", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/interactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after struct {
		Interactions []models.Interaction `json:"interactions"`
	}
	decodeBody(t, w, &after)
	assert.Empty(t, after.Interactions)

	// The rows themselves survive for reconnection
	var count int64
	require.NoError(t, env.db.Model(&models.Interaction{}).
		Where("user_id = ?", env.user.ID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
