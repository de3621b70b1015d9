package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"votebot/internal/app/bootstrap"
)

// votebot process entrypoint.
// Data flow:
// 1) Load config (.env, environment, channels file).
// 2) Build app wiring (stores + transport + governance module).
// 3) Run the selected process until input ends or a signal arrives.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Fatalf("votebot stopped with error: %v", err)
	}
}

type rootOptions struct {
	channelsFile string
	storeDriver  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "votebot",
		Short:         "Channel-scoped governance: privileges, polls and votes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.applyOverrides(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.channelsFile, "channels", "", "channels file (overrides CHANNELS_FILE)")
	root.PersistentFlags().StringVar(&opts.storeDriver, "store", "", "store driver: sqlite, postgres or memory (overrides STORE_DRIVER)")

	root.AddCommand(
		newProcessCommand("console", "Serve commands read from stdin, one '<channel> <nick> <text>' per line", bootstrap.ProcessConsole,
			func(ctx context.Context, app *bootstrap.App) error { return app.RunConsole(ctx) }),
		newProcessCommand("serve", "Serve the read-only HTTP API", bootstrap.ProcessAPI,
			func(ctx context.Context, app *bootstrap.App) error { return app.RunAPI(ctx) }),
		newProcessCommand("migrate", "Initialise the store of every configured channel and exit", bootstrap.ProcessMigrate,
			func(ctx context.Context, app *bootstrap.App) error { return app.Migrate(ctx) }),
	)
	return root
}

func newProcessCommand(
	use string,
	short string,
	process string,
	run func(ctx context.Context, app *bootstrap.App) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.Build(cmd.Context(), bootstrap.Options{
				Process: process,
				Stdin:   cmd.InOrStdin(),
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Printf("votebot %s shutdown close failed: %v", use, err)
				}
			}()
			return run(cmd.Context(), app)
		},
	}
}

// applyOverrides pushes explicit flags into the environment read by
// config.Load.
func (o *rootOptions) applyOverrides(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("channels") {
		if err := os.Setenv("CHANNELS_FILE", o.channelsFile); err != nil {
			return err
		}
	}
	if flags.Changed("store") {
		if err := os.Setenv("STORE_DRIVER", o.storeDriver); err != nil {
			return err
		}
	}
	return nil
}
