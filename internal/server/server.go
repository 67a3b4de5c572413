package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/metrics"
)

// ControlPrefix is the path prefix of the control endpoints. Requests under
// it are never intercepted or proxied.
const ControlPrefix = "/__assetsync"

// maxMessageBytes bounds the body of a control message.
const maxMessageBytes = 4 << 10

// shutdownTimeout bounds graceful shutdown in Run.
const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr    string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Server fronts the origin with the registration's controller.
type Server struct {
	echo *echo.Echo
	reg  *Registration
	addr string
	log  *slog.Logger
}

// New creates a Server for reg. Requests the controller declines are
// proxied to reg's origin.
func New(reg *Registration, opts Options) (*Server, error) {
	target, err := url.Parse(reg.cfg.Origin.String())
	if err != nil {
		return nil, fmt.Errorf("server: parse origin: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo: e,
		reg:  reg,
		addr: opts.Addr,
		log:  logger.With("component", "server"),
	}

	e.Use(middleware.Recover())
	e.Use(s.intercept)
	e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Skipper:  isControl,
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: target}}),
		ErrorHandler: func(c echo.Context, err error) error {
			s.log.Warn("proxy failed", "path", c.Request().URL.Path, "error", err)
			return echo.NewHTTPError(http.StatusBadGateway, "origin unreachable")
		},
	}))

	g := e.Group(ControlPrefix)
	g.POST("/message", s.handleMessage)
	g.GET("/status", s.handleStatus)
	if opts.Metrics != nil {
		g.GET("/metrics", echo.WrapHandler(opts.Metrics.Handler()))
	}

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()
	s.log.Info("listening", "addr", s.addr, "origin", s.reg.cfg.Origin)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func isControl(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, ControlPrefix+"/")
}

// intercept routes requests through the controller. Declined requests
// continue down the chain to the origin proxy.
func (s *Server) intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if isControl(c) {
			return next(c)
		}
		w := s.reg.Controller()
		if w == nil {
			return next(c)
		}

		req := c.Request()
		resp, handled, err := w.Fetch(req.Context(), req)
		if !handled {
			return next(c)
		}
		if err != nil {
			s.log.Warn("intercepted request failed", "path", req.URL.Path, "error", err)
			return echo.NewHTTPError(http.StatusBadGateway, "asset unavailable")
		}
		return writeResponse(c, resp)
	}
}

func writeResponse(c echo.Context, resp *cache.Response) error {
	h := c.Response().Header()
	for k, vs := range resp.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	c.Response().WriteHeader(resp.Status)
	_, err := c.Response().Write(resp.Body)
	return err
}

type messageResponse struct {
	Message string `json:"message"`
	Worker  string `json:"worker"`
}

func (s *Server) handleMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMessageBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read message")
	}
	msg := strings.TrimSpace(string(body))

	id, err := s.reg.Message(c.Request().Context(), msg)
	switch {
	case errors.Is(err, ErrNoWorker):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		s.log.Error("message failed", "message", msg, "worker", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, messageResponse{Message: msg, Worker: id})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.reg.Status())
}
