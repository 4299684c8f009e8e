package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tnicklin/metronome/config"
	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/store"
	"go.uber.org/multierr"
)

var defaultConfigFiles = []string{"config/config.yaml", "config/local.yaml"}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var files []string

	root := &cobra.Command{
		Use:           "metronome",
		Short:         "Run, pause and persist drift-free tick clocks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVarP(&files, "config", "c", defaultConfigFiles,
		"YAML config files, merged in order; missing files are skipped")

	root.AddCommand(
		newRunCmd(&files),
		newResumeCmd(&files),
		newShowCmd(&files),
		newListCmd(&files),
		newDeleteCmd(&files),
	)
	return root
}

func build(files []string) (runParams, error) {
	cfg, err := config.LoadWithDefaults(files...)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return runParams{}, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return runParams{}, fmt.Errorf("initialize logger: %w", err)
	}

	st, err := store.New(cfg.Store, appLogger.Named("store"))
	if err != nil {
		return runParams{}, fmt.Errorf("create store: %w", err)
	}

	return runParams{
		Config: cfg,
		Logger: appLogger,
		Store:  st,
	}, nil
}

type runParams struct {
	Config *config.AppConfig
	Logger *logger.DefaultLogger
	Store  store.Store
}

// withStore builds the application, opens the store and runs fn with a
// context that is canceled on SIGINT or SIGTERM. The store is shut down
// after fn returns.
func withStore(cmd *cobra.Command, files []string, fn func(ctx context.Context, p runParams) error) (err error) {
	p, err := build(files)
	if err != nil {
		return err
	}
	defer func() { _ = p.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Store.Open(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if serr := p.Store.Shutdown(shutdownCtx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown store: %w", serr))
		}
	}()

	return fn(ctx, p)
}
