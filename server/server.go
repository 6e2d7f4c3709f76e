// Package server exposes the project controller over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/andrejsstepanovs/architect/client"
	"github.com/andrejsstepanovs/architect/controller"
	"github.com/andrejsstepanovs/architect/metrics"
	"github.com/andrejsstepanovs/architect/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// Origins allowed by CORS. Empty allows every origin.
	Origins []string
}

type Handler struct {
	ctrl   *controller.Controller
	logger zerolog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(ctrl *controller.Controller, opts Options) *gin.Engine {
	logger := opts.Logger.With().Str("component", "server").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(cors.New(corsConfig(opts.Origins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "status": "healthy"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	h := &Handler{ctrl: ctrl, logger: logger}
	h.Register(r.Group("/api/v1"))
	return r
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.status)

	project := rg.Group("/project")
	project.GET("", h.project)
	project.PATCH("", h.edit)
	project.POST("/modules", h.addModule)
	project.POST("/save", h.save)
	project.POST("/reset", h.reset)
	project.POST("/new", h.newProject)
	project.GET("/export", h.export)

	workspace := rg.Group("/workspace")
	workspace.GET("", h.workspace)
	workspace.POST("/:id/load", h.load)
	workspace.DELETE("/:id", h.delete)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": h.ctrl.Status()})
}

func (h *Handler) project(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": h.ctrl.Project(), "status": h.ctrl.Status()})
}

type editReq struct {
	Name  *string `json:"name"`
	Style *string `json:"style"`
}

func (h *Handler) edit(c *gin.Context) {
	var req editReq
	if err := c.ShouldBindJSON(&req); err != nil || (req.Name == nil && req.Style == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	p, err := h.ctrl.Edit(c.Request.Context(), req.Name, req.Style)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

type addModuleReq struct {
	Request string `json:"request"`
}

func (h *Handler) addModule(c *gin.Context) {
	var req addModuleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	p, err := h.ctrl.AddModule(c.Request.Context(), req.Request)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p, "status": h.ctrl.Status()})
}

func (h *Handler) save(c *gin.Context) {
	p, err := h.ctrl.Save(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

type confirmReq struct {
	Confirm bool `json:"confirm"`
}

func bindConfirm(c *gin.Context) controller.Confirm {
	var req confirmReq
	// An empty or malformed body declines.
	_ = c.ShouldBindJSON(&req)
	return func(string) bool { return req.Confirm }
}

func (h *Handler) reset(c *gin.Context) {
	p, err := h.ctrl.Reset(c.Request.Context(), bindConfirm(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) newProject(c *gin.Context) {
	p, err := h.ctrl.NewProject(c.Request.Context(), bindConfirm(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) export(c *gin.Context) {
	var buf bytes.Buffer
	name, err := h.ctrl.Export(c.Request.Context(), &buf)
	if errors.Is(err, controller.ErrNoFiles) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (h *Handler) workspace(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": h.ctrl.Workspace()})
}

func (h *Handler) load(c *gin.Context) {
	p, err := h.ctrl.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) delete(c *gin.Context) {
	confirmed := c.Query("confirm") == "true"
	err := h.ctrl.Delete(c.Request.Context(), c.Param("id"), func(string) bool { return confirmed })
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(code, gin.H{"ok": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrEmptyRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, controller.ErrGenerationInFlight), errors.Is(err, controller.ErrStaleGeneration):
		return http.StatusConflict
	case errors.Is(err, controller.ErrNotConfirmed):
		return http.StatusPreconditionRequired
	case errors.Is(err, controller.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidProject):
		return http.StatusBadRequest
	case errors.Is(err, client.ErrGenerationFailed), errors.Is(err, client.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully. No write timeout is set since generation calls are long.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
