package changefeed

import (
	"context"
	"encoding/json"

	"github.com/replyhub/backend/internal/cache"
	"github.com/replyhub/backend/internal/logger"
	"go.uber.org/zap"
)

// SubscriptionHandler receives decoded stream events for one user.
// OnChange is invoked per envelope in arrival order; OnPlatformsChanged on
// every connect/disconnect ping.
type SubscriptionHandler interface {
	OnChange(change Change)
	OnPlatformsChanged()
}

// Subscriber consumes a user's changefeed channels and forwards decoded
// events to a handler. If the underlying subscription drops there is no
// resubscribe here - the store client owns reconnection.
type Subscriber struct {
	redis  *cache.RedisClient
	userID string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber creates a subscriber scoped to one user's channels
func NewSubscriber(redis *cache.RedisClient, userID string) *Subscriber {
	return &Subscriber{
		redis:  redis,
		userID: userID,
		done:   make(chan struct{}),
	}
}

// Start opens the subscription and pumps events to the handler until Stop
// is called. A malformed envelope is logged and skipped - a single bad
// message never kills the pump.
func (s *Subscriber) Start(ctx context.Context, handler SubscriptionHandler) {
	ctx, s.cancel = context.WithCancel(ctx)

	interactionCh := interactionChannel(s.userID)
	platformCh := platformChannel(s.userID)
	pubsub := s.redis.Subscribe(ctx, interactionCh, platformCh)

	go func() {
		defer close(s.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return

			case msg, ok := <-ch:
				if !ok {
					logger.Log.Info("Changefeed subscription closed",
						logger.WithUserID(s.userID))
					return
				}

				switch msg.Channel {
				case platformCh:
					handler.OnPlatformsChanged()

				case interactionCh:
					var change Change
					if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
						logger.Log.Warn("Dropping malformed change envelope",
							logger.WithUserID(s.userID),
							zap.Error(err))
						continue
					}
					handler.OnChange(change)
				}
			}
		}
	}()
}

// Stop tears down the subscription and waits for the pump to exit
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
