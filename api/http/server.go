// Package http adapts api.Server's RPC methods onto an Echo HTTP server:
// JSON request/response bodies, JWT bearer auth on the submission and
// fetch routes, and apierr.Kind -> HTTP status mapping at the boundary.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ofircohen205/aura-sub001/api"
	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/config"
	"github.com/ofircohen205/aura-sub001/gatekeeper"
	"github.com/ofircohen205/aura-sub001/logging"
	"github.com/ofircohen205/aura-sub001/session"
	"github.com/ofircohen205/aura-sub001/telemetry"
)

// Adapter owns the Echo instance and binds routes to an api.Server.
type Adapter struct {
	echo   *echo.Echo
	server *api.Server
	cfg    config.ServerConfig
	log    *logging.ContextLogger
}

// NewAdapter builds an Adapter with the Logger/Recover/CORS middleware
// stack plus JWT auth scoped to the routes that require a session.
func NewAdapter(server *api.Server, issuer *session.TokenIssuer, cfg config.ServerConfig, log *logging.ContextLogger) *Adapter {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger(log))

	a := &Adapter{echo: e, server: server, cfg: cfg, log: log}

	e.GET("/healthz", a.handleHealth)
	e.POST("/sessions/refresh", a.handleRefreshSession)

	protected := e.Group("")
	protected.Use(echojwt.WithConfig(echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return &session.Claims{} },
		SigningKey:    issuer.SigningKey(),
	}))
	protected.POST("/interventions/edits", a.handleSubmitEdits)
	protected.POST("/interventions/audit", a.handleSubmitAudit)
	protected.GET("/interventions/:fingerprint", a.handleFetchLesson)
	protected.GET("/interventions/:fingerprint/stream", a.handleStreamLesson)

	return a
}

// Start blocks serving on cfg.Host:cfg.Port until ctx is cancelled, then
// shuts down within cfg.ShutdownTimeout.
func (a *Adapter) Start(ctx context.Context) error {
	addr := a.cfg.Host + ":" + strconv.Itoa(a.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.echo.Shutdown(shutdownCtx)
}

func requestLogger(log *logging.ContextLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.WithFields(map[string]interface{}{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			}).Info("request handled")
			return err
		}
	}
}

func (a *Adapter) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type submitEditsRequest struct {
	TenantID       string                   `json:"tenant_id"`
	IdempotencyKey string                   `json:"idempotency_key"`
	Window         telemetry.WindowUpdate   `json:"window"`
}

func (a *Adapter) handleSubmitEdits(c echo.Context) error {
	var req submitEditsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierr.Validation("malformed request body"))
	}

	resp, err := a.server.SubmitEdits(c.Request().Context(), req.TenantID, req.Window, req.IdempotencyKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusForAdmission(resp.Admission), resp)
}

func statusForAdmission(admission gatekeeper.Admission) int {
	switch admission {
	case gatekeeper.AdmissionDenied:
		return http.StatusTooManyRequests
	case gatekeeper.AdmissionCoalesced:
		return http.StatusOK
	default:
		return http.StatusAccepted
	}
}

type submitAuditRequest struct {
	TenantID       string `json:"tenant_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Diff           string `json:"diff"`
}

func (a *Adapter) handleSubmitAudit(c echo.Context) error {
	var req submitAuditRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierr.Validation("malformed request body"))
	}

	resp, err := a.server.SubmitAudit(c.Request().Context(), req.TenantID, []byte(req.Diff), req.IdempotencyKey)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(statusForAdmission(resp.Admission), resp)
}

func (a *Adapter) handleFetchLesson(c echo.Context) error {
	fingerprint := c.Param("fingerprint")
	resp, err := a.server.FetchLesson(c.Request().Context(), fingerprint)
	if err != nil {
		return writeError(c, err)
	}
	if !resp.Ready {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "pending"})
	}
	return c.JSON(http.StatusOK, resp.Result)
}

type refreshSessionRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *Adapter) handleRefreshSession(c echo.Context) error {
	var req refreshSessionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierr.Validation("malformed request body"))
	}

	pair, err := a.server.RefreshSession(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

func writeError(c echo.Context, err error) error {
	kind := apierr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apierr.KindValidation:
		status = http.StatusBadRequest
	case apierr.KindAuthz:
		status = http.StatusUnauthorized
	case apierr.KindQuota:
		status = http.StatusTooManyRequests
	case apierr.KindTransient:
		status = http.StatusServiceUnavailable
	case apierr.KindDegraded:
		status = http.StatusOK
	case apierr.KindCancelled:
		status = http.StatusConflict
	case apierr.KindInternal:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, map[string]string{"error": err.Error(), "kind": string(kind)})
}
