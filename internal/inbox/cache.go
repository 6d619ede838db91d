package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultCacheLimit is the working-set ceiling per session
	DefaultCacheLimit = 1000

	// loadDebounce coalesces rapid-fire Load calls: a call arriving inside
	// the window is dropped, not queued
	loadDebounce = 500 * time.Millisecond
)

// Counts are the aggregate inbox counters, always computed by count-only
// store queries over the connected-platform scope - never derived from the
// trimmed in-memory list
type Counts struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Urgent  int64 `json:"urgent"`
}

// Snapshot is the cache state handed to the UI boundary
type Snapshot struct {
	Interactions []models.Interaction `json:"interactions"`
	Counts       Counts               `json:"counts"`
	Loading      bool                 `json:"loading"`
	LoadingMore  bool                 `json:"loading_more"`
	HasMore      bool                 `json:"has_more"`
	Error        string               `json:"error,omitempty"`
}

// UpdatePatch is a partial mutation applied to one or more interactions.
// Status is open-write: any value may be set regardless of the current one.
type UpdatePatch struct {
	Status       *models.InteractionStatus `json:"status,omitempty"`
	Sentiment    *models.Sentiment         `json:"sentiment,omitempty"`
	UrgencyScore *int                      `json:"urgency_score,omitempty"`
	AssignedTo   *string                   `json:"assigned_to,omitempty"`
	Response     *string                   `json:"response,omitempty"`
}

// Changes renders the patch as store column updates
func (p UpdatePatch) Changes() map[string]interface{} {
	updates := map[string]interface{}{}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	if p.Sentiment != nil {
		updates["sentiment"] = *p.Sentiment
	}
	if p.UrgencyScore != nil {
		updates["urgency_score"] = *p.UrgencyScore
	}
	if p.AssignedTo != nil {
		updates["assigned_to"] = *p.AssignedTo
	}
	if p.Response != nil {
		updates["response"] = *p.Response
	}
	return updates
}

// applyTo mirrors the store mutation onto a cached row
func (p UpdatePatch) applyTo(i *models.Interaction) {
	if p.Status != nil {
		i.Status = *p.Status
	}
	if p.Sentiment != nil {
		i.Sentiment = p.Sentiment
	}
	if p.UrgencyScore != nil {
		i.UrgencyScore = *p.UrgencyScore
	}
	if p.AssignedTo != nil {
		i.AssignedTo = p.AssignedTo
	}
	if p.Response != nil {
		i.Response = p.Response
	}
}

// Cache is the session-resident ordered working set of interactions, newest
// first. It merges paginated fetches with batched live changes and holds the
// one correctness-critical invariant of the pipeline: the list never contains
// an interaction whose platform is not currently connected.
type Cache struct {
	db        *gorm.DB
	publisher *changefeed.Publisher
	userID    string
	limit     int

	mu          sync.Mutex
	filter      Filter
	connected   map[models.Platform]bool
	items       []models.Interaction
	counts      Counts
	loading     bool
	loadingMore bool
	hasMore     bool
	errMsg      string
	lastLoadAt  time.Time
}

// NewCache creates a cache for one user session. publisher may be nil when
// the session should not echo its own mutations onto the changefeed.
func NewCache(db *gorm.DB, publisher *changefeed.Publisher, userID string, limit int) *Cache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	return &Cache{
		db:        db,
		publisher: publisher,
		userID:    userID,
		limit:     limit,
		connected: map[models.Platform]bool{},
	}
}

// Load clears the working set and fetches page 0 under filter, intersected
// with the currently-connected platforms, plus fresh aggregate counts.
// Calls arriving inside the debounce window are dropped. On fetch failure the
// stale list stays visible and only the error string changes; retry is manual.
func (c *Cache) Load(ctx context.Context, filter Filter) error {
	c.mu.Lock()
	now := time.Now()
	if now.Sub(c.lastLoadAt) < loadDebounce {
		c.mu.Unlock()
		return nil
	}
	c.lastLoadAt = now
	c.filter = filter
	c.loading = true
	c.mu.Unlock()

	connected, err := c.fetchConnected(ctx)
	if err != nil {
		c.failLoad("failed to load connected platforms", err)
		return err
	}

	page, err := c.fetchPage(ctx, filter, connected, 0)
	if err != nil {
		c.failLoad("failed to load interactions", err)
		return err
	}

	counts, err := c.fetchCounts(ctx, connected)
	if err != nil {
		c.failLoad("failed to load counts", err)
		return err
	}

	c.mu.Lock()
	c.setConnectedLocked(connected)
	c.items = page
	c.hasMore = len(page) == PageSize
	c.counts = counts
	c.loading = false
	c.errMsg = ""
	c.mu.Unlock()
	return nil
}

// LoadMore appends the next page. It is a no-op while a fetch is already in
// flight or once a short page has flipped hasMore off.
func (c *Cache) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.loading || c.loadingMore || !c.hasMore {
		c.mu.Unlock()
		return nil
	}
	c.loadingMore = true
	filter := c.filter
	connected := c.connectedListLocked()
	offset := len(c.items)
	c.mu.Unlock()

	page, err := c.fetchPageWith(ctx, filter, connected, offset)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false
	if err != nil {
		c.errMsg = "failed to load more interactions"
		return err
	}
	c.items = append(c.items, page...)
	c.hasMore = len(page) == PageSize
	c.errMsg = ""
	return nil
}

// ApplyBatch merges one coalesced batch of changefeed envelopes, strictly in
// order, and returns the envelopes that actually changed the working set.
// Inserts for disconnected platforms are silently dropped so a disconnect can
// never resurrect rows, and a dropped envelope never reaches the client
// either. After the batch the oldest-loaded end is trimmed to the ceiling and
// counts are refreshed from the store.
func (c *Cache) ApplyBatch(ctx context.Context, changes []changefeed.Change) []changefeed.Change {
	if len(changes) == 0 {
		return nil
	}

	applied := make([]changefeed.Change, 0, len(changes))

	c.mu.Lock()
	for _, change := range changes {
		switch change.Op {
		case changefeed.OpInsert:
			if !c.connected[change.Interaction.Platform] {
				continue
			}
			if idx := c.indexOfLocked(change.Interaction.ID); idx >= 0 {
				c.items[idx] = change.Interaction
				applied = append(applied, change)
				continue
			}
			// Newest arrivals sit at the head; the tail is the oldest-loaded end
			c.items = append([]models.Interaction{change.Interaction}, c.items...)
			applied = append(applied, change)

		case changefeed.OpUpdate:
			if idx := c.indexOfLocked(change.Interaction.ID); idx >= 0 {
				c.items[idx] = change.Interaction
				applied = append(applied, change)
			}

		case changefeed.OpDelete:
			if idx := c.indexOfLocked(change.Interaction.ID); idx >= 0 {
				c.items = append(c.items[:idx], c.items[idx+1:]...)
				applied = append(applied, change)
			}
		}
	}
	if len(c.items) > c.limit {
		c.items = c.items[:c.limit]
	}
	c.mu.Unlock()

	c.RefreshCounts(ctx)
	return applied
}

// UpdateOne writes a patch to the store, optimistically reconciles the cached
// row, and refreshes counts. Local state is not rolled back if a later step
// fails; the last server write wins.
func (c *Cache) UpdateOne(ctx context.Context, id string, patch UpdatePatch) error {
	updates := patch.Changes()
	if len(updates) == 0 {
		return nil
	}

	err := c.db.WithContext(ctx).Model(&models.Interaction{}).
		Where("id = ? AND user_id = ?", id, c.userID).
		Updates(updates).Error
	if err != nil {
		return err
	}

	c.mu.Lock()
	var updated *models.Interaction
	if idx := c.indexOfLocked(id); idx >= 0 {
		patch.applyTo(&c.items[idx])
		row := c.items[idx]
		updated = &row
	}
	c.mu.Unlock()

	if updated != nil {
		c.publishChange(ctx, changefeed.OpUpdate, *updated)
	}
	c.RefreshCounts(ctx)
	return nil
}

// BulkUpdate applies one patch to many interactions in a single store write
func (c *Cache) BulkUpdate(ctx context.Context, ids []string, patch UpdatePatch) error {
	updates := patch.Changes()
	if len(ids) == 0 || len(updates) == 0 {
		return nil
	}

	err := c.db.WithContext(ctx).Model(&models.Interaction{}).
		Where("id IN ? AND user_id = ?", ids, c.userID).
		Updates(updates).Error
	if err != nil {
		return err
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	c.mu.Lock()
	var touched []models.Interaction
	for i := range c.items {
		if idSet[c.items[i].ID] {
			patch.applyTo(&c.items[i])
			touched = append(touched, c.items[i])
		}
	}
	c.mu.Unlock()

	for _, row := range touched {
		c.publishChange(ctx, changefeed.OpUpdate, row)
	}
	c.RefreshCounts(ctx)
	return nil
}

// Delete removes one interaction from the store and the working set
func (c *Cache) Delete(ctx context.Context, id string) error {
	return c.BulkDelete(ctx, []string{id})
}

// BulkDelete removes many interactions from the store and the working set
func (c *Cache) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := c.db.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, c.userID).
		Delete(&models.Interaction{}).Error
	if err != nil {
		return err
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	c.mu.Lock()
	var removed []models.Interaction
	kept := c.items[:0]
	for _, item := range c.items {
		if idSet[item.ID] {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	c.mu.Unlock()

	for _, row := range removed {
		c.publishChange(ctx, changefeed.OpDelete, row)
	}
	c.RefreshCounts(ctx)
	return nil
}

// SetConnectedPlatforms replaces the connected set and immediately prunes
// rows from now-disconnected platforms. The invariant must hold right after
// a connect/disconnect event, not just after the next reload.
func (c *Cache) SetConnectedPlatforms(platforms []models.Platform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setConnectedLocked(platforms)
}

// RefreshPlatforms re-reads the connected set from the store - the source of
// truth for every filtering decision - then prunes and refreshes counts.
func (c *Cache) RefreshPlatforms(ctx context.Context) error {
	connected, err := c.fetchConnected(ctx)
	if err != nil {
		return err
	}
	c.SetConnectedPlatforms(connected)
	c.RefreshCounts(ctx)
	return nil
}

// RefreshCounts re-runs the count-only queries. A failure keeps the previous
// counters and logs; counts are advisory, the list is not.
func (c *Cache) RefreshCounts(ctx context.Context) {
	c.mu.Lock()
	connected := c.connectedListLocked()
	c.mu.Unlock()

	counts, err := c.fetchCounts(ctx, connected)
	if err != nil {
		logger.Log.Warn("Counts refresh failed",
			logger.WithUserID(c.userID),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	c.counts = counts
	c.mu.Unlock()
}

// Snapshot returns a copy of the current cache state
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]models.Interaction, len(c.items))
	copy(items, c.items)

	return Snapshot{
		Interactions: items,
		Counts:       c.counts,
		Loading:      c.loading,
		LoadingMore:  c.loadingMore,
		HasMore:      c.hasMore,
		Error:        c.errMsg,
	}
}

// Len returns the current working-set size
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ConnectedPlatforms returns the cached connected set, sorted
func (c *Cache) ConnectedPlatforms() []models.Platform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedListLocked()
}

// failLoad records a fetch failure without blanking stale data
func (c *Cache) failLoad(msg string, err error) {
	logger.Log.Error(msg, logger.WithUserID(c.userID), zap.Error(err))
	c.mu.Lock()
	c.loading = false
	c.errMsg = msg
	c.mu.Unlock()
}

// setConnectedLocked replaces the set and prunes rows that no longer belong.
// Caller must hold mu.
func (c *Cache) setConnectedLocked(platforms []models.Platform) {
	c.connected = make(map[models.Platform]bool, len(platforms))
	for _, p := range platforms {
		c.connected[p] = true
	}

	kept := c.items[:0]
	for _, item := range c.items {
		if c.connected[item.Platform] {
			kept = append(kept, item)
		}
	}
	c.items = kept
}

// connectedListLocked returns the set as a sorted slice so queries built
// from it are deterministic. Caller must hold mu.
func (c *Cache) connectedListLocked() []models.Platform {
	platforms := make([]models.Platform, 0, len(c.connected))
	for p := range c.connected {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// indexOfLocked finds a row by id. Caller must hold mu.
func (c *Cache) indexOfLocked(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

// fetchConnected reads the active platform set from the store
func (c *Cache) fetchConnected(ctx context.Context) ([]models.Platform, error) {
	var platforms []models.Platform
	err := c.db.WithContext(ctx).Model(&models.ConnectedPlatform{}).
		Where("user_id = ? AND is_active = ?", c.userID, true).
		Order("platform").
		Pluck("platform", &platforms).Error
	return platforms, err
}

// fetchPage reads one page under the cache's current filter
func (c *Cache) fetchPage(ctx context.Context, filter Filter, connected []models.Platform, offset int) ([]models.Interaction, error) {
	return c.fetchPageWith(ctx, filter, connected, offset)
}

func (c *Cache) fetchPageWith(ctx context.Context, filter Filter, connected []models.Platform, offset int) ([]models.Interaction, error) {
	var page []models.Interaction
	err := filter.Apply(c.db.WithContext(ctx), c.userID, connected).
		Order("created_at DESC").
		Offset(offset).
		Limit(PageSize).
		Find(&page).Error
	return page, err
}

// fetchCounts runs the three count-only queries over the connected scope
func (c *Cache) fetchCounts(ctx context.Context, connected []models.Platform) (Counts, error) {
	var counts Counts
	base := Filter{}.Apply(c.db.WithContext(ctx), c.userID, connected)

	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return counts, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", models.StatusPending).
		Count(&counts.Pending).Error; err != nil {
		return counts, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("urgency_score >= ?", models.UrgentThreshold).
		Count(&counts.Urgent).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

// publishChange echoes a local mutation onto the changefeed, best effort
func (c *Cache) publishChange(ctx context.Context, op changefeed.Op, row models.Interaction) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishChange(ctx, c.userID, op, row); err != nil {
		logger.Log.Warn("Failed to publish change",
			logger.WithUserID(c.userID),
			logger.WithInteractionID(row.ID),
			zap.Error(err))
	}
}
