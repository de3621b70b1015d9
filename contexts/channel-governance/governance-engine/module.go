package governanceengine

import (
	"log/slog"

	httpadapter "votebot/contexts/channel-governance/governance-engine/adapters/http"
	"votebot/contexts/channel-governance/governance-engine/adapters/memory"
	postgresadapter "votebot/contexts/channel-governance/governance-engine/adapters/postgres"
	"votebot/contexts/channel-governance/governance-engine/application/channels"
	"votebot/contexts/channel-governance/governance-engine/application/queries"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

type Module struct {
	Channels *channels.Registry
	Handler  httpadapter.Handler
	Stores   *memory.Factory
}

type Dependencies struct {
	Stores      ports.StoreFactory
	Transport   ports.Transport
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Channels    []channels.Settings
	PollURLBase string
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	clock := deps.Clock
	if clock == nil {
		clock = postgresadapter.SystemClock{}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = postgresadapter.UUIDGenerator{}
	}
	registry := channels.NewRegistry(channels.Dependencies{
		Stores:      deps.Stores,
		Transport:   deps.Transport,
		Clock:       clock,
		IDGen:       idGen,
		PollURLBase: deps.PollURLBase,
		Logger:      deps.Logger,
	}, deps.Channels)
	return Module{
		Channels: registry,
		Handler: httpadapter.Handler{
			Polls:  queries.PollQueries{Channels: registry},
			Logger: deps.Logger,
		},
	}
}

// NewInMemoryModule keeps every channel in process memory; used by tests
// and the memory store driver.
func NewInMemoryModule(transport ports.Transport, settings []channels.Settings, logger *slog.Logger) Module {
	stores := memory.NewFactory()
	module := NewModule(Dependencies{
		Stores:    stores,
		Transport: transport,
		Channels:  settings,
		Logger:    logger,
	})
	module.Stores = stores
	return module
}
