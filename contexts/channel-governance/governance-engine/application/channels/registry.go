// Package channels keeps one governance engine per chat channel.
package channels

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	application "votebot/contexts/channel-governance/governance-engine/application"
	"votebot/contexts/channel-governance/governance-engine/application/commands"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

// Settings configures a single channel.
type Settings struct {
	Name                string
	Prefix              string
	ConfirmationTimeout time.Duration
}

type Dependencies struct {
	Stores      ports.StoreFactory
	Transport   ports.Transport
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	PollURLBase string
	Logger      *slog.Logger
}

// Registry lazily opens one Engine per channel. Channel names are matched
// case-insensitively. Channels without explicit Settings use the defaults.
type Registry struct {
	deps     Dependencies
	settings map[string]Settings
	logger   *slog.Logger

	opening singleflight.Group

	mu      sync.Mutex
	closed  bool
	engines map[string]*commands.Engine
}

func NewRegistry(deps Dependencies, settings []Settings) *Registry {
	byName := make(map[string]Settings, len(settings))
	for _, item := range settings {
		byName[channelKey(item.Name)] = item
	}
	return &Registry{
		deps:     deps,
		settings: byName,
		logger:   application.ResolveLogger(deps.Logger),
		engines:  make(map[string]*commands.Engine),
	}
}

// OpenConfigured opens every channel that has explicit settings.
func (r *Registry) OpenConfigured(ctx context.Context) error {
	for _, name := range r.ConfiguredChannels() {
		if _, err := r.Engine(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) ConfiguredChannels() []string {
	names := make([]string, 0, len(r.settings))
	for _, item := range r.settings {
		names = append(names, item.Name)
	}
	sort.Strings(names)
	return names
}

// Engine returns the engine of channel, opening its store on first use.
// Stores open outside the registry lock; concurrent first uses of one
// channel share a single open.
func (r *Registry) Engine(ctx context.Context, channel string) (*commands.Engine, error) {
	key := channelKey(channel)
	if key == "" {
		return nil, domainerrors.ErrInvalidArgument
	}
	if engine, err := r.cached(key); engine != nil || err != nil {
		return engine, err
	}

	value, err, _ := r.opening.Do(key, func() (any, error) {
		if engine, err := r.cached(key); engine != nil || err != nil {
			return engine, err
		}
		engine, err := r.open(ctx, key, channel)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = engine.Close()
			return nil, domainerrors.ErrChannelClosed
		}
		r.engines[key] = engine
		return engine, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*commands.Engine), nil
}

func (r *Registry) cached(key string) (*commands.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domainerrors.ErrChannelClosed
	}
	return r.engines[key], nil
}

func (r *Registry) open(ctx context.Context, key string, channel string) (*commands.Engine, error) {
	settings, ok := r.settings[key]
	if !ok {
		settings = Settings{Name: strings.TrimSpace(channel)}
	}
	store, err := r.deps.Stores.OpenChannel(ctx, settings.Name)
	if err != nil {
		r.logger.Error("channel store open failed",
			"event", "governance_channel_open_failed",
			"module", application.Module,
			"layer", "application",
			"channel", settings.Name,
			"error", err.Error(),
		)
		return nil, err
	}
	engine := commands.NewEngine(commands.Config{
		Channel:             settings.Name,
		Prefix:              settings.Prefix,
		ConfirmationTimeout: settings.ConfirmationTimeout,
		PollURLBase:         r.deps.PollURLBase,
	}, commands.Dependencies{
		Store:     store,
		Transport: r.deps.Transport,
		Clock:     r.deps.Clock,
		IDGen:     r.deps.IDGen,
		Logger:    r.logger,
	})
	if err := engine.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return engine, nil
}

// Lookup returns an already opened engine without opening a new one.
func (r *Registry) Lookup(channel string) (*commands.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	engine, ok := r.engines[channelKey(channel)]
	return engine, ok
}

// Engines lists the open engines ordered by channel name.
func (r *Registry) Engines() []*commands.Engine {
	r.mu.Lock()
	items := make([]*commands.Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		items = append(items, engine)
	}
	r.mu.Unlock()
	sort.Slice(items, func(i, j int) bool {
		return items[i].Channel() < items[j].Channel()
	})
	return items
}

// Dispatch routes one inbound line to the engine of channel.
func (r *Registry) Dispatch(ctx context.Context, channel string, msg commands.Message) error {
	engine, err := r.Engine(ctx, channel)
	if err != nil {
		return err
	}
	return engine.Dispatch(ctx, msg)
}

// Close drains and closes every engine. Further lookups fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	engines := make([]*commands.Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	r.mu.Unlock()

	var errs []error
	for _, engine := range engines {
		if err := engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func channelKey(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}
