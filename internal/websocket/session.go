package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/replyhub/backend/internal/cache"
	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/inbox"
	"github.com/replyhub/backend/internal/logger"
	"github.com/replyhub/backend/internal/metrics"
	"github.com/replyhub/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sessionOpTimeout bounds store work done on behalf of one session event
const sessionOpTimeout = 10 * time.Second

// errNoSession means a message arrived for a connection the manager does
// not know, which should only happen in a teardown race
var errNoSession = errors.New("no session for connection")

// SessionConfig tunes the per-connection working set
type SessionConfig struct {
	// Throttle is the coalescing window for realtime change batches
	Throttle time.Duration
	// CacheLimit is the working-set ceiling per session
	CacheLimit int
}

// Session is the server-side state behind one dashboard connection: a
// filtered working set of interactions, a batcher coalescing its changefeed,
// and the subscription feeding it. Each connection gets its own session;
// two tabs of the same user never share one.
type Session struct {
	client     *Client
	cache      *inbox.Cache
	batcher    *inbox.Batcher
	subscriber *changefeed.Subscriber
}

// OnChange feeds one changefeed envelope into the session's batcher
func (s *Session) OnChange(change changefeed.Change) {
	s.batcher.Enqueue(change)
}

// OnPlatformsChanged re-reads the connected-platform set from the store and
// pushes the pruned working set. The ping carries no state, so the store
// stays the source of truth.
func (s *Session) OnPlatformsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := s.cache.RefreshPlatforms(ctx); err != nil {
		logger.Log.Error("Failed to refresh platforms for session",
			logger.WithUserID(s.client.UserID),
			zap.Error(err))
		return
	}

	s.client.Send(NewMessage(MessageTypePlatformStatus, PlatformStatusPayload{
		Platforms: s.cache.ConnectedPlatforms(),
	}))
	s.pushSnapshot()
}

// handleBatch applies one coalesced batch to the working set and pushes the
// changes plus refreshed counters to the client. Only envelopes the working
// set accepted go out; an insert for a disconnected platform must not surface
// on the dashboard through the push path either.
func (s *Session) handleBatch(changes []changefeed.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	ctx, span := telemetry.GetEvents().TraceBatchApply(ctx, s.client.UserID, len(changes))
	defer span.End()

	applied := s.cache.ApplyBatch(ctx, changes)

	m := metrics.Get()
	m.BatchesDelivered.WithLabelValues().Inc()
	m.BatchSize.WithLabelValues().Observe(float64(len(changes)))

	if len(applied) == 0 {
		// Everything was dropped or targeted rows outside the working set;
		// counters may still have moved
		s.pushCounts()
		return
	}

	s.client.Send(NewMessage(MessageTypeInteractionBatch, BatchPayload{
		Changes: applied,
		Counts:  s.cache.Snapshot().Counts,
	}))
}

// pushSnapshot sends the full working-set state. Send failures mean the
// connection is going away; the read pump owns teardown.
func (s *Session) pushSnapshot() {
	s.client.Send(NewMessage(MessageTypeSnapshot, s.cache.Snapshot()))
}

// pushCounts sends just the refreshed counters
func (s *Session) pushCounts() {
	s.client.Send(NewMessage(MessageTypeCountsUpdate, s.cache.Snapshot().Counts))
}

// close tears down the subscription and discards buffered changes
func (s *Session) close() {
	if s.subscriber != nil {
		s.subscriber.Stop()
	}
	s.batcher.Close()
}

// SessionManager owns the sessions behind all live connections and wires
// their message handlers into the hub.
type SessionManager struct {
	db     *gorm.DB
	redis  *cache.RedisClient
	pub    *changefeed.Publisher
	config SessionConfig

	mu       sync.RWMutex
	sessions map[*Client]*Session
}

// NewSessionManager creates a session manager. redis may be nil, in which
// case sessions run without a live changefeed (request/response only).
func NewSessionManager(db *gorm.DB, redis *cache.RedisClient, pub *changefeed.Publisher, config SessionConfig) *SessionManager {
	if config.Throttle <= 0 {
		config.Throttle = inbox.DefaultThrottle
	}
	if config.CacheLimit <= 0 {
		config.CacheLimit = inbox.DefaultCacheLimit
	}
	return &SessionManager{
		db:       db,
		redis:    redis,
		pub:      pub,
		config:   config,
		sessions: make(map[*Client]*Session),
	}
}

// RegisterHandlers wires the inbox message handlers into the hub
func (sm *SessionManager) RegisterHandlers(hub *Hub) {
	hub.RegisterHandler(MessageTypeLoad, sm.handleLoad)
	hub.RegisterHandler(MessageTypeLoadMore, sm.handleLoadMore)
	hub.RegisterHandler(MessageTypeUpdate, sm.handleUpdate)
	hub.RegisterHandler(MessageTypeBulkUpdate, sm.handleBulkUpdate)
	hub.RegisterHandler(MessageTypeDelete, sm.handleDelete)
	hub.RegisterHandler(MessageTypeBulkDelete, sm.handleBulkDelete)
	hub.RegisterHandler(MessageTypeFlush, sm.handleFlush)
}

// OnClientConnect builds the session behind a new connection: working set,
// batcher, changefeed subscription, then an initial unfiltered load.
func (sm *SessionManager) OnClientConnect(client *Client) {
	session := &Session{
		client: client,
		cache:  inbox.NewCache(sm.db, sm.pub, client.UserID, sm.config.CacheLimit),
	}
	session.batcher = inbox.NewBatcher(inbox.BatcherConfig{
		Throttle: sm.config.Throttle,
		Enabled:  true,
	}, session.handleBatch)

	if sm.redis != nil {
		session.subscriber = changefeed.NewSubscriber(sm.redis, client.UserID)
		session.subscriber.Start(context.Background(), session)
	}

	sm.mu.Lock()
	sm.sessions[client] = session
	sm.mu.Unlock()

	metrics.Get().ActiveSessions.WithLabelValues().Inc()

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()
	if err := session.cache.Load(ctx, inbox.Filter{}); err != nil {
		logger.Log.Error("Initial inbox load failed",
			logger.WithUserID(client.UserID),
			zap.Error(err))
	}
	session.pushSnapshot()
}

// OnClientDisconnect tears down the connection's session
func (sm *SessionManager) OnClientDisconnect(client *Client) {
	sm.mu.Lock()
	session, ok := sm.sessions[client]
	delete(sm.sessions, client)
	sm.mu.Unlock()

	if !ok {
		return
	}
	session.close()
	metrics.Get().ActiveSessions.WithLabelValues().Dec()
}

// Count returns the number of live sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// session looks up the session behind a client connection
func (sm *SessionManager) session(client *Client) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[client]
	return s, ok
}

func (sm *SessionManager) handleLoad(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	var payload LoadPayload
	if err := message.ParsePayload(&payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	// Load failures keep the stale working set visible; the snapshot
	// carries the error string either way
	if err := session.cache.Load(ctx, payload.Filter); err != nil {
		logger.Log.Warn("Inbox load failed",
			logger.WithUserID(client.UserID),
			zap.Error(err))
	}
	session.pushSnapshot()
	return nil
}

func (sm *SessionManager) handleLoadMore(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := session.cache.LoadMore(ctx); err != nil {
		logger.Log.Warn("Inbox load-more failed",
			logger.WithUserID(client.UserID),
			zap.Error(err))
	}
	session.pushSnapshot()
	return nil
}

func (sm *SessionManager) handleUpdate(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	var payload UpdatePayload
	if err := message.ParsePayload(&payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := session.cache.UpdateOne(ctx, payload.ID, payload.Patch); err != nil {
		return err
	}
	session.pushCounts()
	return nil
}

func (sm *SessionManager) handleBulkUpdate(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	var payload BulkUpdatePayload
	if err := message.ParsePayload(&payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := session.cache.BulkUpdate(ctx, payload.IDs, payload.Patch); err != nil {
		return err
	}
	session.pushCounts()
	return nil
}

func (sm *SessionManager) handleDelete(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	var payload DeletePayload
	if err := message.ParsePayload(&payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := session.cache.Delete(ctx, payload.ID); err != nil {
		return err
	}
	session.pushSnapshot()
	return nil
}

func (sm *SessionManager) handleBulkDelete(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}

	var payload BulkDeletePayload
	if err := message.ParsePayload(&payload); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if err := session.cache.BulkDelete(ctx, payload.IDs); err != nil {
		return err
	}
	session.pushSnapshot()
	return nil
}

// handleFlush delivers any buffered changes immediately, skipping the
// throttle window. Used by the UI when the inbox view regains focus.
func (sm *SessionManager) handleFlush(client *Client, message *Message) error {
	session, ok := sm.session(client)
	if !ok {
		return errNoSession
	}
	session.batcher.Flush()
	return nil
}
