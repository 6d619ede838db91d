// Package changefeed is the store's change-notification stream. Every
// interaction mutation is published as a full-row envelope on a per-user
// channel; dashboard sessions subscribe and feed the envelopes into their
// inbox batcher.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/replyhub/backend/internal/cache"
	"github.com/replyhub/backend/internal/metrics"
	"github.com/replyhub/backend/internal/models"
)

// Op is the kind of row change carried by an envelope
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one coalesced notification of a row insert/update/delete.
// It carries the full row snapshot; consumers apply it once and discard it.
type Change struct {
	Op          Op                 `json:"op"`
	Interaction models.Interaction `json:"interaction"`
}

// interactionChannel scopes the stream to one tenant
func interactionChannel(userID string) string {
	return fmt.Sprintf("changefeed:interactions:%s", userID)
}

// platformChannel carries connect/disconnect pings for one tenant
func platformChannel(userID string) string {
	return fmt.Sprintf("changefeed:platforms:%s", userID)
}

// Publisher emits change envelopes after store mutations
type Publisher struct {
	redis *cache.RedisClient
}

// NewPublisher creates a publisher over the shared Redis client
func NewPublisher(redis *cache.RedisClient) *Publisher {
	return &Publisher{redis: redis}
}

// PublishChange emits one row-change envelope on the user's interaction channel
func (p *Publisher) PublishChange(ctx context.Context, userID string, op Op, interaction models.Interaction) error {
	data, err := json.Marshal(Change{Op: op, Interaction: interaction})
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if err := p.redis.Publish(ctx, interactionChannel(userID), data); err != nil {
		return err
	}
	metrics.Get().ChangesPublishedTotal.WithLabelValues(string(op)).Inc()
	return nil
}

// PublishChanges emits a batch of envelopes in order
func (p *Publisher) PublishChanges(ctx context.Context, userID string, op Op, interactions []models.Interaction) error {
	for _, interaction := range interactions {
		if err := p.PublishChange(ctx, userID, op, interaction); err != nil {
			return err
		}
	}
	return nil
}

// PublishPlatformsChanged pings subscribers that the connected-platforms set
// changed. The payload carries no state - the set must be re-read from the
// store, which stays the source of truth.
func (p *Publisher) PublishPlatformsChanged(ctx context.Context, userID string) error {
	return p.redis.Publish(ctx, platformChannel(userID), "changed")
}
