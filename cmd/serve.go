package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrejsstepanovs/architect/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project API over HTTP",
		Args:  cobra.NoArgs,
		Run:   app.handleServe,
	}
	cmd.Flags().String("addr", "", "Listen address (defaults to ARCHITECT_HTTP_ADDR)")
	return cmd
}

func (a *App) handleServe(cmd *cobra.Command, _ []string) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	if !a.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := server.NewRouter(a.ctrl, server.Options{
		Logger:  a.logger,
		Metrics: a.metrics,
		Origins: a.cfg.Origins(),
	})
	if err := server.Serve(ctx, addr, router, a.logger); err != nil {
		a.done(fmt.Errorf("http server: %w", err))
	}
}
