// Package connectors pulls interactions out of vendor APIs and pushes
// replies back into them. Each connector normalizes one vendor's events
// into interactions; the shared ingestor deduplicates them against the
// store so re-syncing overlapping windows is a no-op.
package connectors

import (
	"context"

	"github.com/replyhub/backend/internal/models"
)

// ItemError records a single vendor item that failed to ingest. One bad
// item never aborts the rest of the sync.
type ItemError struct {
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
}

// SyncResult summarizes one sync pass over one connection
type SyncResult struct {
	Platform models.Platform `json:"platform"`
	New      int             `json:"new"`
	Skipped  int             `json:"skipped"`
	Errors   []ItemError     `json:"errors,omitempty"`
}

// Connector is one vendor integration
type Connector interface {
	// Platform names the vendor this connector talks to
	Platform() models.Platform

	// Sync fetches recent vendor events for the connection, ingests the
	// ones not seen before, and reports new/skipped/error counts
	Sync(ctx context.Context, conn *models.ConnectedPlatform) (*SyncResult, error)

	// Reply posts a response to the vendor and returns the error if the
	// vendor rejects it. The interaction's workflow state is the caller's
	// concern.
	Reply(ctx context.Context, conn *models.ConnectedPlatform, interaction *models.Interaction, message string) error
}

// Registry maps platforms to their connectors
type Registry struct {
	connectors map[models.Platform]Connector
}

// NewRegistry builds a registry from the given connectors
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[models.Platform]Connector, len(connectors))}
	for _, c := range connectors {
		r.connectors[c.Platform()] = c
	}
	return r
}

// Get returns the connector for a platform
func (r *Registry) Get(platform models.Platform) (Connector, bool) {
	c, ok := r.connectors[platform]
	return c, ok
}

// Platforms lists the registered platforms
func (r *Registry) Platforms() []models.Platform {
	platforms := make([]models.Platform, 0, len(r.connectors))
	for p := range r.connectors {
		platforms = append(platforms, p)
	}
	return platforms
}
