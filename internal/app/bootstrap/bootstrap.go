package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	governanceengine "votebot/contexts/channel-governance/governance-engine"
	consoleadapter "votebot/contexts/channel-governance/governance-engine/adapters/console"
	"votebot/contexts/channel-governance/governance-engine/adapters/memory"
	postgresadapter "votebot/contexts/channel-governance/governance-engine/adapters/postgres"
	sqliteadapter "votebot/contexts/channel-governance/governance-engine/adapters/sqlite"
	"votebot/contexts/channel-governance/governance-engine/application/channels"
	"votebot/contexts/channel-governance/governance-engine/ports"
	"votebot/internal/platform/config"
	"votebot/internal/platform/db"
	"votebot/internal/platform/httpserver"
	"votebot/internal/platform/logging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	ProcessConsole = "console"
	ProcessAPI     = "api"
	ProcessMigrate = "migrate"
)

// Options carries the process streams; nil fields fall back to os streams.
type Options struct {
	Process string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

type App struct {
	cfg       config.Config
	process   string
	module    governanceengine.Module
	transport *consoleadapter.Transport
	server    *httpserver.Server
	postgres  *db.Postgres
	stdin     io.Reader
	logger    *slog.Logger
}

// Build loads configuration from the environment and wires the app.
func Build(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWithConfig(ctx, cfg, opts)
}

func BuildWithConfig(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	opts = withDefaultStreams(opts)
	logger, err := logging.New(opts.Stderr, cfg.LogLevel, cfg.LogFormat, cfg.ServiceName, opts.Process)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		process: opts.Process,
		stdin:   opts.Stdin,
		logger:  logger,
	}

	stores, err := app.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	app.transport = consoleadapter.NewTransport(opts.Stdout, cfg.Transport.Accounts, cfg.Transport.Admins, logger)
	app.module = governanceengine.NewModule(governanceengine.Dependencies{
		Stores:      stores,
		Transport:   app.transport,
		Channels:    channelSettings(cfg.Channels),
		PollURLBase: cfg.PublicBaseURL,
		Logger:      logger,
	})
	app.server = httpserver.New(app.module, logger, normalizeAddr(cfg.HTTPPort))
	return app, nil
}

func (a *App) buildStores(ctx context.Context) (ports.StoreFactory, error) {
	switch a.cfg.StoreDriver {
	case config.StoreDriverSQLite:
		return sqliteadapter.Factory{
			Dir:    filepath.Join(a.cfg.DataDir, "vote"),
			Logger: a.logger,
		}, nil
	case config.StoreDriverPostgres:
		pg, err := db.Connect(ctx, a.cfg.PostgresDSN, a.logger)
		if err != nil {
			return nil, err
		}
		a.postgres = pg
		return postgresadapter.Factory{
			DB:     pg.DB,
			Logger: a.logger,
		}, nil
	case config.StoreDriverMemory:
		return memory.NewFactory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}
}

// RunConsole serves stdin commands until input ends or ctx is cancelled,
// running the read API alongside when it is enabled.
func (a *App) RunConsole(ctx context.Context) error {
	if err := a.module.Channels.OpenConfigured(ctx); err != nil {
		return err
	}
	a.logger.Info("console app started",
		"event", "bootstrap_console_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"channels", len(a.module.Channels.ConfiguredChannels()),
		"http_api", a.cfg.EnableHTTPAPI,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		// End of input stops the whole process, API included.
		defer cancel()
		err := a.transport.Serve(groupCtx, a.stdin, a.module.Channels)
		if groupCtx.Err() != nil {
			// Interrupted: cancel waiting confirmations instead of letting
			// them run out their timeout.
			if closeErr := a.module.Channels.Close(); closeErr != nil {
				a.logger.Warn("channel shutdown failed",
					"event", "bootstrap_channels_close_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", closeErr.Error(),
				)
			}
			return err
		}
		for _, engine := range a.module.Channels.Engines() {
			engine.Wait()
		}
		return err
	})
	if a.cfg.EnableHTTPAPI {
		group.Go(func() error {
			return a.server.Start(groupCtx)
		})
	}
	return group.Wait()
}

// RunAPI serves the read API only, over the configured channels.
func (a *App) RunAPI(ctx context.Context) error {
	if err := a.module.Channels.OpenConfigured(ctx); err != nil {
		return err
	}
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"channels", len(a.module.Channels.ConfiguredChannels()),
	)
	return a.server.Start(ctx)
}

// Migrate opens every configured channel store, which creates its schema.
func (a *App) Migrate(ctx context.Context) error {
	names := a.module.Channels.ConfiguredChannels()
	if len(names) == 0 {
		return errors.New("no channels configured")
	}
	for _, name := range names {
		if _, err := a.module.Channels.Engine(ctx, name); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		a.logger.Info("channel store ready",
			"event", "bootstrap_channel_migrated",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"channel", name,
			"store_driver", a.cfg.StoreDriver,
		)
	}
	return nil
}

func (a *App) Module() governanceengine.Module {
	return a.module
}

func (a *App) Close() error {
	var errs []error
	if a.module.Channels != nil {
		errs = append(errs, a.module.Channels.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

func channelSettings(items []config.Channel) []channels.Settings {
	settings := make([]channels.Settings, 0, len(items))
	for _, item := range items {
		settings = append(settings, channels.Settings{
			Name:                item.Name,
			Prefix:              item.Prefix,
			ConfirmationTimeout: item.ConfirmationTimeout,
		})
	}
	return settings
}

func withDefaultStreams(opts Options) Options {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Process == "" {
		opts.Process = ProcessConsole
	}
	return opts
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
