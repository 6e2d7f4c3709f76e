package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andrejsstepanovs/architect/client"
	"github.com/andrejsstepanovs/architect/config"
	"github.com/andrejsstepanovs/architect/controller"
	"github.com/andrejsstepanovs/architect/db"
	"github.com/andrejsstepanovs/architect/metrics"
	"github.com/andrejsstepanovs/architect/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// App carries the dependencies shared by every command.
type App struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	ctrl    *controller.Controller

	yes bool
	in  *bufio.Reader
	out io.Writer
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "architect",
		Short: "Design a modular Go + React application by describing features in plain text",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd.Context())
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			app.close()
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&app.yes, "yes", "y", false, "Confirm destructive actions without asking")
	cmd.AddCommand(
		newAddCmd(app),
		newShowCmd(app),
		newRenameCmd(app),
		newStyleCmd(app),
		newStatusCmd(app),
		newExportCmd(app),
		newSaveCmd(app),
		newLoadCmd(app),
		newDeleteCmd(app),
		newWorkspaceCmd(app),
		newNewCmd(app),
		newResetCmd(app),
		newServeCmd(app),
	)
	return cmd
}

func (a *App) setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cfg)
	a.metrics = metrics.New()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	st := store.New(backend, a.logger).WithRecorder(a.metrics)

	gen, err := client.New(client.Options{
		Provider: cfg.Provider,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Timeout:  cfg.GenerationTimeout,
		Logger:   a.logger,
	})
	if err != nil {
		st.Close()
		return err
	}

	a.ctrl, err = controller.New(ctx, st, gen,
		controller.WithLogger(a.logger),
		controller.WithMetrics(a.metrics),
		controller.WithTimeout(cfg.GenerationTimeout),
	)
	if err != nil {
		st.Close()
		return err
	}
	return nil
}

func (a *App) close() {
	if a.ctrl == nil {
		return
	}
	if err := a.ctrl.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close store")
	}
	a.ctrl = nil
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Store {
	case "redis":
		return db.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	default:
		return db.OpenSQLite(cfg.DBPath)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// confirm asks on the terminal unless --yes was given. Anything but y/yes
// declines.
func (a *App) confirm(question string) bool {
	if a.yes {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N]: ", question)
	line, _ := a.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func isRejection(err error) bool {
	return errors.Is(err, controller.ErrEmptyRequest) ||
		errors.Is(err, controller.ErrNotConfirmed) ||
		errors.Is(err, controller.ErrNoFiles) ||
		errors.Is(err, controller.ErrGenerationInFlight) ||
		errors.Is(err, controller.ErrProjectNotFound)
}

// done reports whether the handler has to stop. Rejections are printed as a
// short notice; failures exit with status 1.
func (a *App) done(err error) bool {
	if err == nil {
		return false
	}
	if isRejection(err) {
		fmt.Fprintf(a.out, "Nothing done: %v\n", err)
		return true
	}
	a.close()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
	return true
}

// Execute initializes and runs the root command. It is the single entry point
// for the command-line interface.
func Execute() {
	app := &App{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	rootCmd := newRootCmd(app)
	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, so we just need to exit.
		os.Exit(1)
	}
}
