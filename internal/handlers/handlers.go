// Package handlers contains the REST boundary of the API. The realtime
// WebSocket boundary lives in internal/websocket; both surfaces share the
// same store and changefeed.
package handlers

import (
	"github.com/replyhub/backend/internal/auth"
	"github.com/replyhub/backend/internal/changefeed"
	"github.com/replyhub/backend/internal/connectors"
	"github.com/replyhub/backend/internal/websocket"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth      *auth.Service
	registry  *connectors.Registry
	sync      *connectors.SyncService
	publisher *changefeed.Publisher
	hub       *websocket.Hub
}

// NewHandlers creates a new handlers instance. publisher and hub may be nil
// in tests; mutations then skip the changefeed and realtime pushes.
func NewHandlers(authService *auth.Service, registry *connectors.Registry) *Handlers {
	return &Handlers{
		auth:     authService,
		registry: registry,
	}
}

// SetSyncService wires the background sync service for manual triggers
func (h *Handlers) SetSyncService(sync *connectors.SyncService) {
	h.sync = sync
}

// SetPublisher wires the changefeed publisher
func (h *Handlers) SetPublisher(publisher *changefeed.Publisher) {
	h.publisher = publisher
}

// SetHub wires the WebSocket hub for realtime pushes
func (h *Handlers) SetHub(hub *websocket.Hub) {
	h.hub = hub
}
