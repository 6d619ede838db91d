package websocket

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/inbox"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.User{}, &models.ConnectedPlatform{}, &models.Interaction{})
	require.NoError(t, err)

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *models.User {
	user := &models.User{
		Email:        fmt.Sprintf("owner-%d@example.com", time.Now().UnixNano()),
		DisplayName:  "Test Owner",
		PasswordHash: "not-a-real-hash",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func connectTestPlatform(t *testing.T, db *gorm.DB, userID string, platform models.Platform) *models.ConnectedPlatform {
	conn := &models.ConnectedPlatform{
		UserID:            userID,
		Platform:          platform,
		PlatformAccountID: fmt.Sprintf("acct-%s", platform),
		AccessToken:       "test-token",
		IsActive:          true,
	}
	require.NoError(t, db.Create(conn).Error)
	return conn
}

func seedInteraction(t *testing.T, db *gorm.DB, userID string, platform models.Platform, content string) models.Interaction {
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
	require.NoError(t, db.Create(&item).Error)
	return item
}

// testSession builds a session manager with no live changefeed and attaches
// one client for a fresh user
func testSession(t *testing.T, db *gorm.DB, throttle time.Duration) (*SessionManager, *Client, *models.User) {
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)

	sm := NewSessionManager(db, nil, nil, SessionConfig{Throttle: throttle})
	client := NewClient(NewHub(), nil, user.ID, user.DisplayName)
	return sm, client, user
}

// nextMessage pops the next queued outbound message for a client
func nextMessage(t *testing.T, client *Client, timeout time.Duration) *Message {
	t.Helper()
	select {
	case data := <-client.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.allClients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.unicast)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.handlers)
}

func TestRateLimiter(t *testing.T) {
	// Create a rate limiter allowing 5 per second with burst of 10
	rl := NewRateLimiter(5, 10)

	// Should allow first 10 requests (burst)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}

	// Next request should be denied (no tokens left)
	assert.False(t, rl.Allow(), "Request 11 should be denied")

	// After waiting, should be allowed again
	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(MessageTypeSnapshot, map[string]string{"test": "data"})

	assert.Equal(t, MessageTypeSnapshot, msg.Type)
	assert.NotNil(t, msg.Payload)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestNewReply(t *testing.T) {
	original := NewMessage(MessageTypePing, nil)
	original.ID = "original-id"
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test_error", "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	assert.True(t, ok)
	assert.Equal(t, "test_error", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
}

func TestMessageParsePayload(t *testing.T) {
	msg := NewMessage(MessageTypePing, map[string]interface{}{
		"client_time": float64(1234567890),
	})

	var ping PingPayload
	err := msg.ParsePayload(&ping)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234567890), ping.ClientTime)
}

func TestFlexibleTimeAcceptsBothFormats(t *testing.T) {
	var ft FlexibleTime
	require.NoError(t, json.Unmarshal([]byte(`1700000000000`), &ft))
	assert.Equal(t, int64(1700000000000), ft.UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`"2023-11-14T22:13:20Z"`), &ft))
	assert.Equal(t, int64(1700000000), ft.Unix())

	assert.Error(t, json.Unmarshal([]byte(`"not-a-time"`), &ft))
}

func TestHubMetrics(t *testing.T) {
	hub := NewHub()

	m := hub.GetMetrics()
	assert.Equal(t, int64(0), m.TotalConnections)
	assert.Equal(t, int64(0), m.ActiveConnections)
	assert.Equal(t, int64(0), m.MessagesReceived)
	assert.Equal(t, int64(0), m.MessagesSent)

	// Test metrics string representation
	str := m.String()
	assert.Contains(t, str, "connections=0/0")
}

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, 10, config.MaxMessagesPerSecond)
	assert.Equal(t, 20, config.BurstSize)
	assert.Equal(t, time.Second, config.Window)
}

func TestHubRegisterHandler(t *testing.T) {
	hub := NewHub()

	hub.RegisterHandler("test_type", func(client *Client, msg *Message) error {
		return nil
	})

	handler, ok := hub.GetHandler("test_type")
	assert.True(t, ok)
	assert.NotNil(t, handler)

	_, ok = hub.GetHandler("nonexistent")
	assert.False(t, ok)
}

func TestHubIsUserOnline(t *testing.T) {
	hub := NewHub()

	assert.False(t, hub.IsUserOnline("user-123"))
	assert.Equal(t, 0, hub.GetUserConnectionCount("user-123"))
}

func TestMessageTypesUnique(t *testing.T) {
	types := []string{
		MessageTypeSystem,
		MessageTypePing,
		MessageTypePong,
		MessageTypeError,
		MessageTypeAuth,
		MessageTypeSnapshot,
		MessageTypeInteractionBatch,
		MessageTypeCountsUpdate,
		MessageTypePlatformStatus,
		MessageTypeSyncResult,
		MessageTypeLoad,
		MessageTypeLoadMore,
		MessageTypeUpdate,
		MessageTypeBulkUpdate,
		MessageTypeDelete,
		MessageTypeBulkDelete,
		MessageTypeFlush,
	}

	seen := make(map[string]bool)
	for _, typ := range types {
		assert.NotEmpty(t, typ)
		assert.False(t, seen[typ], "Duplicate message type: %s", typ)
		seen[typ] = true
	}
}

func TestSessionConnectPushesInitialSnapshot(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, time.Hour)
	seedInteraction(t, db, user.ID, models.PlatformGoogle, "first review")
	seedInteraction(t, db, user.ID, models.PlatformGoogle, "second review")

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)

	assert.Equal(t, 1, sm.Count())

	msg := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeSnapshot, msg.Type)

	var snapshot inbox.Snapshot
	require.NoError(t, msg.ParsePayload(&snapshot))
	assert.Len(t, snapshot.Interactions, 2)
	assert.Equal(t, int64(2), snapshot.Counts.Total)
	assert.Equal(t, int64(2), snapshot.Counts.Pending)
}

func TestSessionBatchAppliedAndPushed(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, 50*time.Millisecond)

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second) // initial snapshot

	session, ok := sm.session(client)
	require.True(t, ok)

	// The envelope carries the full row; it must also be in the store so
	// the refreshed counters see it
	row := seedInteraction(t, db, user.ID, models.PlatformGoogle, "new comment")
	session.OnChange(changefeed.Change{Op: changefeed.OpInsert, Interaction: row})

	msg := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeInteractionBatch, msg.Type)

	var batch BatchPayload
	require.NoError(t, msg.ParsePayload(&batch))
	require.Len(t, batch.Changes, 1)
	assert.Equal(t, changefeed.OpInsert, batch.Changes[0].Op)
	assert.Equal(t, row.ID, batch.Changes[0].Interaction.ID)
	assert.Equal(t, int64(1), batch.Counts.Total)

	assert.Equal(t, 1, session.cache.Len())
}

func TestSessionBatchFiltersDisconnectedPlatformInsert(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, 50*time.Millisecond)

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second) // initial snapshot

	session, ok := sm.session(client)
	require.True(t, ok)

	// Only google is connected; a yelp envelope may not surface anywhere
	stray := models.Interaction{
		ID:         "stray-yelp",
		UserID:     user.ID,
		Platform:   models.PlatformYelp,
		ExternalID: "stray-ext",
		Content:    "yelp was disconnected",
		CreatedAt:  time.Now(),
	}
	session.OnChange(changefeed.Change{Op: changefeed.OpInsert, Interaction: stray})

	// A fully-dropped batch pushes only refreshed counters
	msg := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeCountsUpdate, msg.Type)
	assert.Equal(t, 0, session.cache.Len())

	// Mixed batch: the google row goes out, the yelp row still does not
	row := seedInteraction(t, db, user.ID, models.PlatformGoogle, "google comment")
	session.OnChange(changefeed.Change{Op: changefeed.OpInsert, Interaction: stray})
	session.OnChange(changefeed.Change{Op: changefeed.OpInsert, Interaction: row})

	msg = nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeInteractionBatch, msg.Type)

	var batch BatchPayload
	require.NoError(t, msg.ParsePayload(&batch))
	require.Len(t, batch.Changes, 1)
	assert.Equal(t, row.ID, batch.Changes[0].Interaction.ID)
	for _, change := range batch.Changes {
		assert.NotEqual(t, "stray-yelp", change.Interaction.ID)
	}
	assert.Equal(t, 1, session.cache.Len())
}

func TestSessionFlushSkipsThrottle(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, time.Hour)

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second)

	session, ok := sm.session(client)
	require.True(t, ok)

	row := seedInteraction(t, db, user.ID, models.PlatformGoogle, "buffered comment")
	session.OnChange(changefeed.Change{Op: changefeed.OpInsert, Interaction: row})

	// With an hour-long throttle, only an explicit flush delivers
	require.NoError(t, sm.handleFlush(client, NewMessage(MessageTypeFlush, nil)))

	msg := nextMessage(t, client, time.Second)
	assert.Equal(t, MessageTypeInteractionBatch, msg.Type)
}

func TestSessionLoadHandlerAppliesFilter(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, time.Hour)
	connectTestPlatform(t, db, user.ID, models.PlatformYelp)
	seedInteraction(t, db, user.ID, models.PlatformGoogle, "google review")
	seedInteraction(t, db, user.ID, models.PlatformYelp, "yelp review")

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second)

	// Sit out the load debounce window before filtering
	time.Sleep(600 * time.Millisecond)

	load := NewMessage(MessageTypeLoad, LoadPayload{Filter: inbox.Filter{Platform: "yelp"}})
	require.NoError(t, sm.handleLoad(client, load))

	msg := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeSnapshot, msg.Type)

	var snapshot inbox.Snapshot
	require.NoError(t, msg.ParsePayload(&snapshot))
	require.Len(t, snapshot.Interactions, 1)
	assert.Equal(t, models.PlatformYelp, snapshot.Interactions[0].Platform)
}

func TestSessionUpdateHandlerPushesCounts(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, time.Hour)
	row := seedInteraction(t, db, user.ID, models.PlatformGoogle, "needs a reply")

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second)

	responded := models.StatusResponded
	update := NewMessage(MessageTypeUpdate, UpdatePayload{
		ID:    row.ID,
		Patch: inbox.UpdatePatch{Status: &responded},
	})
	require.NoError(t, sm.handleUpdate(client, update))

	msg := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeCountsUpdate, msg.Type)

	var counts inbox.Counts
	require.NoError(t, msg.ParsePayload(&counts))
	assert.Equal(t, int64(1), counts.Total)
	assert.Equal(t, int64(0), counts.Pending)

	var stored models.Interaction
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, models.StatusResponded, stored.Status)
}

func TestSessionPlatformsChangedPrunesAndPushes(t *testing.T) {
	db := setupTestDB(t)
	sm, client, user := testSession(t, db, time.Hour)
	yelpConn := connectTestPlatform(t, db, user.ID, models.PlatformYelp)
	seedInteraction(t, db, user.ID, models.PlatformGoogle, "google review")
	seedInteraction(t, db, user.ID, models.PlatformYelp, "yelp review")

	sm.OnClientConnect(client)
	defer sm.OnClientDisconnect(client)
	nextMessage(t, client, time.Second)

	session, ok := sm.session(client)
	require.True(t, ok)

	require.NoError(t, db.Model(&models.ConnectedPlatform{}).
		Where("id = ?", yelpConn.ID).
		Update("is_active", false).Error)

	session.OnPlatformsChanged()

	status := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypePlatformStatus, status.Type)

	var platforms PlatformStatusPayload
	require.NoError(t, status.ParsePayload(&platforms))
	assert.Equal(t, []models.Platform{models.PlatformGoogle}, platforms.Platforms)

	snap := nextMessage(t, client, time.Second)
	require.Equal(t, MessageTypeSnapshot, snap.Type)

	var snapshot inbox.Snapshot
	require.NoError(t, snap.ParsePayload(&snapshot))
	require.Len(t, snapshot.Interactions, 1)
	assert.Equal(t, models.PlatformGoogle, snapshot.Interactions[0].Platform)
	assert.Equal(t, int64(1), snapshot.Counts.Total)
}

func TestSessionDisconnectCleansUp(t *testing.T) {
	db := setupTestDB(t)
	sm, client, _ := testSession(t, db, time.Hour)

	sm.OnClientConnect(client)
	nextMessage(t, client, time.Second)
	require.Equal(t, 1, sm.Count())

	sm.OnClientDisconnect(client)
	assert.Equal(t, 0, sm.Count())

	err := sm.handleLoadMore(client, NewMessage(MessageTypeLoadMore, nil))
	assert.ErrorIs(t, err, errNoSession)

	// A second disconnect for the same client is a no-op
	sm.OnClientDisconnect(client)
	assert.Equal(t, 0, sm.Count())
}
