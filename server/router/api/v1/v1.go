// Package v1 exposes the HTTP API.
package v1

import (
	"github.com/labstack/echo/v5"

	"github.com/parleyhq/parley/plugin/lorestore"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/server/engine"
	"github.com/parleyhq/parley/server/profile"
	"github.com/parleyhq/parley/store"
)

// APIV1Service wires the HTTP routes to the store and the generation engine.
type APIV1Service struct {
	Store     *store.Store
	Engine    *engine.Engine
	Broker    *broker.Broker
	Profile   *profile.Profile
	LoreIndex *lorestore.Store
}

// NewAPIV1Service assembles the service.
func NewAPIV1Service(st *store.Store, eng *engine.Engine, b *broker.Broker, prof *profile.Profile, lore *lorestore.Store) *APIV1Service {
	return &APIV1Service{
		Store:     st,
		Engine:    eng,
		Broker:    b,
		Profile:   prof,
		LoreIndex: lore,
	}
}

// Register mounts every route under /api/v1.
func (s *APIV1Service) Register(e *echo.Echo) {
	s.registerRecordRoutes(e)
	s.registerChatRoutes(e)
	s.registerMessageRoutes(e)
	s.registerGenerationRoutes(e)
}
