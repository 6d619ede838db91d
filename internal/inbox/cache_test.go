package inbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLoadedCache(t *testing.T, db *gorm.DB, userID string, limit int) *Cache {
	c := NewCache(db, nil, userID, limit)
	require.NoError(t, c.Load(context.Background(), Filter{}))
	return c
}

func insertChange(i models.Interaction) changefeed.Change {
	return changefeed.Change{Op: changefeed.OpInsert, Interaction: i}
}

func TestCacheLoadFirstPageAndCounts(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 60)

	c := newLoadedCache(t, db, user.ID, 0)
	snap := c.Snapshot()

	require.Len(t, snap.Interactions, PageSize)
	assert.True(t, snap.HasMore)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	assert.Equal(t, int64(60), snap.Counts.Total)
	assert.Equal(t, int64(60), snap.Counts.Pending)
	assert.Equal(t, int64(0), snap.Counts.Urgent)

	// Newest first
	for i := 1; i < len(snap.Interactions); i++ {
		assert.False(t, snap.Interactions[i].CreatedAt.After(snap.Interactions[i-1].CreatedAt))
	}
}

func TestCacheLoadDebounceDropsRapidCalls(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	connectTestPlatform(t, db, user.ID, models.PlatformYelp)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 3)
	seedInteractions(t, db, user.ID, models.PlatformYelp, 4)

	c := NewCache(db, nil, user.ID, 0)
	require.NoError(t, c.Load(context.Background(), Filter{Platform: string(models.PlatformYelp)}))

	// Arrives inside the coalescing window: dropped, not queued
	require.NoError(t, c.Load(context.Background(), Filter{Platform: string(models.PlatformGoogle)}))

	snap := c.Snapshot()
	require.Len(t, snap.Interactions, 4)
	for _, row := range snap.Interactions {
		assert.Equal(t, models.PlatformYelp, row.Platform)
	}
}

func TestCacheLoadMoreTerminatesOnShortPage(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 87)

	c := newLoadedCache(t, db, user.ID, 0)
	require.True(t, c.Snapshot().HasMore)

	// Second page is short (37 rows), so pagination must stop
	require.NoError(t, c.LoadMore(context.Background()))
	snap := c.Snapshot()
	assert.Len(t, snap.Interactions, 87)
	assert.False(t, snap.HasMore)

	// Further calls are no-ops
	require.NoError(t, c.LoadMore(context.Background()))
	assert.Len(t, c.Snapshot().Interactions, 87)
}

func TestCacheLoadMoreFullPageKeepsHasMore(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 100)

	c := newLoadedCache(t, db, user.ID, 0)

	// Exactly two full pages: the heuristic cannot tell 100 from 101, so
	// hasMore stays true until an empty page comes back
	require.NoError(t, c.LoadMore(context.Background()))
	snap := c.Snapshot()
	assert.Len(t, snap.Interactions, 100)
	assert.True(t, snap.HasMore)

	require.NoError(t, c.LoadMore(context.Background()))
	snap = c.Snapshot()
	assert.Len(t, snap.Interactions, 100)
	assert.False(t, snap.HasMore)
}

func TestCacheEmptyConnectedSetYieldsNothing(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 10)

	c := newLoadedCache(t, db, user.ID, 0)
	snap := c.Snapshot()

	assert.Empty(t, snap.Interactions)
	assert.False(t, snap.HasMore)
	assert.Equal(t, int64(0), snap.Counts.Total)
}

func TestCacheApplyBatchInsertUpdateDelete(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	items := seedInteractions(t, db, user.ID, models.PlatformGoogle, 3)

	c := newLoadedCache(t, db, user.ID, 0)
	ctx := context.Background()

	fresh := models.Interaction{
		ID:         "live-1",
		UserID:     user.ID,
		Platform:   models.PlatformGoogle,
		ExternalID: "live-ext-1",
		Content:    "brand new comment",
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}
	updated := items[2]
	updated.Status = models.StatusResponded

	c.ApplyBatch(ctx, []changefeed.Change{
		insertChange(fresh),
		{Op: changefeed.OpUpdate, Interaction: updated},
		{Op: changefeed.OpDelete, Interaction: items[1]},
	})

	snap := c.Snapshot()
	require.Len(t, snap.Interactions, 3)

	// Insert lands at the head
	assert.Equal(t, "live-1", snap.Interactions[0].ID)

	// Update replaced in place, no reorder
	assert.Equal(t, items[2].ID, snap.Interactions[2].ID)
	assert.Equal(t, models.StatusResponded, snap.Interactions[2].Status)

	// Deleted row is gone
	for _, row := range snap.Interactions {
		assert.NotEqual(t, items[1].ID, row.ID)
	}
}

func TestCacheApplyBatchDropsInsertForDisconnectedPlatform(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 2)

	c := newLoadedCache(t, db, user.ID, 0)

	stray := models.Interaction{
		ID:         "stray-1",
		UserID:     user.ID,
		Platform:   models.PlatformYelp,
		ExternalID: "stray-ext",
		Content:    "should never surface",
		CreatedAt:  time.Now(),
	}
	applied := c.ApplyBatch(context.Background(), []changefeed.Change{insertChange(stray)})

	assert.Empty(t, applied)
	snap := c.Snapshot()
	assert.Len(t, snap.Interactions, 2)
	for _, row := range snap.Interactions {
		assert.NotEqual(t, "stray-1", row.ID)
	}
}

func TestCacheApplyBatchIgnoresUpdateForUnknownRow(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 2)

	c := newLoadedCache(t, db, user.ID, 0)

	ghost := models.Interaction{ID: "never-loaded", UserID: user.ID, Platform: models.PlatformGoogle}
	applied := c.ApplyBatch(context.Background(), []changefeed.Change{
		{Op: changefeed.OpUpdate, Interaction: ghost},
		{Op: changefeed.OpDelete, Interaction: ghost},
	})

	assert.Empty(t, applied)
	assert.Len(t, c.Snapshot().Interactions, 2)
}

func TestCacheApplyBatchReturnsOnlyAppliedChanges(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	items := seedInteractions(t, db, user.ID, models.PlatformGoogle, 2)

	c := newLoadedCache(t, db, user.ID, 0)

	fresh := models.Interaction{
		ID:         "live-2",
		UserID:     user.ID,
		Platform:   models.PlatformGoogle,
		ExternalID: "live-ext-2",
		Content:    "new google comment",
		CreatedAt:  time.Now(),
	}
	stray := models.Interaction{
		ID:         "stray-2",
		UserID:     user.ID,
		Platform:   models.PlatformYelp,
		ExternalID: "stray-ext-2",
		Content:    "yelp is not connected",
		CreatedAt:  time.Now(),
	}
	ghost := models.Interaction{ID: "never-loaded", UserID: user.ID, Platform: models.PlatformGoogle}

	applied := c.ApplyBatch(context.Background(), []changefeed.Change{
		insertChange(stray),
		insertChange(fresh),
		{Op: changefeed.OpUpdate, Interaction: ghost},
		{Op: changefeed.OpDelete, Interaction: items[0]},
	})

	// Only the connected insert and the in-set delete survive, in order
	require.Len(t, applied, 2)
	assert.Equal(t, changefeed.OpInsert, applied[0].Op)
	assert.Equal(t, "live-2", applied[0].Interaction.ID)
	assert.Equal(t, changefeed.OpDelete, applied[1].Op)
	assert.Equal(t, items[0].ID, applied[1].Interaction.ID)
}

func TestCacheApplyBatchTrimsToCeiling(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 5)

	c := newLoadedCache(t, db, user.ID, 6)
	require.Equal(t, 5, c.Len())

	var batch []changefeed.Change
	for i := 0; i < 4; i++ {
		batch = append(batch, insertChange(models.Interaction{
			ID:         fmt.Sprintf("live-%d", i),
			UserID:     user.ID,
			Platform:   models.PlatformGoogle,
			ExternalID: fmt.Sprintf("live-ext-%d", i),
			Content:    "live arrival",
			CreatedAt:  time.Now(),
		}))
	}
	c.ApplyBatch(context.Background(), batch)

	snap := c.Snapshot()
	require.Len(t, snap.Interactions, 6)

	// The oldest-loaded end was trimmed; live arrivals survive at the head
	assert.Equal(t, "live-3", snap.Interactions[0].ID)
	assert.Equal(t, "live-0", snap.Interactions[3].ID)
}

func TestCacheSetConnectedPlatformsPrunesImmediately(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	connectTestPlatform(t, db, user.ID, models.PlatformYelp)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 3)
	seedInteractions(t, db, user.ID, models.PlatformYelp, 2)

	c := newLoadedCache(t, db, user.ID, 0)
	require.Equal(t, 5, c.Len())

	c.SetConnectedPlatforms([]models.Platform{models.PlatformGoogle})

	snap := c.Snapshot()
	require.Len(t, snap.Interactions, 3)
	for _, row := range snap.Interactions {
		assert.Equal(t, models.PlatformGoogle, row.Platform)
	}
}

func TestCacheRefreshPlatformsExcludesDisconnectedFromCounts(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	yelp := connectTestPlatform(t, db, user.ID, models.PlatformYelp)
	seedInteractions(t, db, user.ID, models.PlatformGoogle, 3)
	seedInteractions(t, db, user.ID, models.PlatformYelp, 2)

	c := newLoadedCache(t, db, user.ID, 0)
	require.Equal(t, int64(5), c.Snapshot().Counts.Total)

	require.NoError(t, db.Model(yelp).Update("is_active", false).Error)
	require.NoError(t, c.RefreshPlatforms(context.Background()))

	snap := c.Snapshot()
	assert.Len(t, snap.Interactions, 3)
	assert.Equal(t, int64(3), snap.Counts.Total)
}

func TestCacheUpdateOneReconcilesStoreAndWorkingSet(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	items := seedInteractions(t, db, user.ID, models.PlatformGoogle, 3)

	c := newLoadedCache(t, db, user.ID, 0)
	require.Equal(t, int64(3), c.Snapshot().Counts.Pending)

	responded := models.StatusResponded
	reply := "thanks for the feedback"
	err := c.UpdateOne(context.Background(), items[0].ID, UpdatePatch{
		Status:   &responded,
		Response: &reply,
	})
	require.NoError(t, err)

	var stored models.Interaction
	require.NoError(t, db.First(&stored, "id = ?", items[0].ID).Error)
	assert.Equal(t, models.StatusResponded, stored.Status)
	require.NotNil(t, stored.Response)
	assert.Equal(t, reply, *stored.Response)

	snap := c.Snapshot()
	assert.Equal(t, models.StatusResponded, snap.Interactions[0].Status)
	assert.Equal(t, int64(2), snap.Counts.Pending)
}

func TestCacheUpdateOneEmptyPatchIsNoop(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	items := seedInteractions(t, db, user.ID, models.PlatformGoogle, 1)

	c := newLoadedCache(t, db, user.ID, 0)
	require.NoError(t, c.UpdateOne(context.Background(), items[0].ID, UpdatePatch{}))
	assert.Equal(t, models.StatusPending, c.Snapshot().Interactions[0].Status)
}

func TestCacheBulkUpdateScopesToOwner(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	other := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	mine := seedInteractions(t, db, user.ID, models.PlatformGoogle, 2)
	theirs := seedInteractions(t, db, other.ID, models.PlatformGoogle, 1)

	c := newLoadedCache(t, db, user.ID, 0)

	archived := models.StatusArchived
	ids := []string{mine[0].ID, mine[1].ID, theirs[0].ID}
	require.NoError(t, c.BulkUpdate(context.Background(), ids, UpdatePatch{Status: &archived}))

	snap := c.Snapshot()
	for _, row := range snap.Interactions {
		assert.Equal(t, models.StatusArchived, row.Status)
	}

	// The other tenant's row is untouched
	var foreign models.Interaction
	require.NoError(t, db.First(&foreign, "id = ?", theirs[0].ID).Error)
	assert.Equal(t, models.StatusPending, foreign.Status)
}

func TestCacheBulkDeleteRemovesEverywhere(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db)
	connectTestPlatform(t, db, user.ID, models.PlatformGoogle)
	items := seedInteractions(t, db, user.ID, models.PlatformGoogle, 4)

	c := newLoadedCache(t, db, user.ID, 0)

	err := c.BulkDelete(context.Background(), []string{items[1].ID, items[3].ID})
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Len(t, snap.Interactions, 2)
	assert.Equal(t, int64(2), snap.Counts.Total)

	var remaining int64
	require.NoError(t, db.Model(&models.Interaction{}).Where("user_id = ?", user.ID).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}
