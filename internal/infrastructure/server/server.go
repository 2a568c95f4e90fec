package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	httpapi "github.com/GriffinCanCode/webtty/backend/internal/api/http"
	"github.com/GriffinCanCode/webtty/backend/internal/api/middleware"
	"github.com/GriffinCanCode/webtty/backend/internal/api/ws"
	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/domain/session"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/theme"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	service  *session.Service
	registry *session.Registry
	themes   *theme.Provider
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// Option customizes server construction.
type Option func(*options)

type options struct {
	spawner terminal.Spawner
	metrics *monitoring.Metrics
}

// WithSpawner replaces the pty spawner.
func WithSpawner(s terminal.Spawner) Option {
	return func(o *options) { o.spawner = s }
}

// WithMetrics reuses an existing metrics registry.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	base := config.NormalizeBase(cfg.Server.Base)
	logger.Info("Initializing terminal gateway",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("base", base),
		zap.String("command", cfg.Command),
		zap.Bool("force_ssh", cfg.ForceSSH),
	)

	metrics := o.metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	themes := theme.NewProvider(cfg.ThemesDir, logger)
	if err := themes.Load(); err != nil {
		return nil, fmt.Errorf("failed to load themes: %w", err)
	}

	spawner := o.spawner
	if spawner == nil {
		spawner = terminal.NewPTYSpawner(terminal.Options{
			InputQueue: cfg.Session.InputQueue,
			KillGrace:  cfg.Session.KillGrace.Std(),
		})
	}

	resolver := command.NewResolver(cfg.SSH.Policy(), cfg.Command, cfg.ForceSSH)
	registry := session.NewRegistry(metrics)

	sessionCfg := session.DefaultConfig()
	sessionCfg.Bridge.ReadBufferSize = cfg.Session.ReadBufferSize
	sessionCfg.PromptTimeout = cfg.Session.PromptTimeout.Std()
	service := session.NewService(resolver, spawner, registry, logger, metrics, sessionCfg)

	page, err := httpapi.NewPage(httpapi.PageConfig{
		Title:       cfg.Server.Title,
		Base:        base,
		AllowIframe: cfg.Server.AllowIframe,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.Server.AllowedOrigins)))

	handlers := httpapi.NewHandlers(registry, themes, metrics)
	wsHandler := ws.NewHandler(service, logger, ws.Options{
		SendQueue:      cfg.Session.SendQueue,
		WriteTimeout:   cfg.Session.WriteTimeout.Std(),
		PingInterval:   cfg.Session.PingInterval.Std(),
		MaxMessageSize: cfg.Session.MaxMessageSize,
	}, cfg.Server.AllowedOrigins)

	socket := []gin.HandlerFunc{wsHandler.HandleConnection}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		socket = append([]gin.HandlerFunc{middleware.RateLimit(limit)}, socket...)
	}
	if global := cfg.RateLimit.GlobalRequestsPerSecond; global > 0 {
		logger.Info("Global socket rate limit enabled",
			zap.Float64("rps", global),
			zap.Int("burst", cfg.RateLimit.GlobalBurst),
		)
		socket = append([]gin.HandlerFunc{middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: global,
			Burst:             cfg.RateLimit.GlobalBurst,
		})}, socket...)
	}

	// Register routes
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if base != "" {
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, base+"/")
		})
	}

	// Terminal page and client
	router.GET(base+"/", httpapi.Compressed(page))
	router.GET(base+"/ssh/:user", httpapi.Compressed(page))
	router.GET(base+"/client/*filepath", httpapi.Compressed(httpapi.Assets(base+"/client", cfg.Server.AssetsDir)))
	router.GET(base+"/themes", handlers.Themes)

	// Sessions
	router.GET(base+"/sessions", handlers.ListSessions)
	router.GET(base+"/sessions/:id", handlers.GetSession)

	// WebSocket
	router.GET(base+"/socket", socket...)
	router.GET(base+"/ssh/:user/socket", socket...)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		http:     &http.Server{Handler: router},
		service:  service,
		registry: registry,
		themes:   themes,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the live connection registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. At most Server.MaxConnections connections are open at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if limit := s.config.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	s.warnPrivateKey()

	errChan := make(chan error, 1)
	go func() {
		var err error
		if ssl := s.config.SSL; ssl.Enabled() {
			s.logger.Info("Starting HTTPS server", zap.String("addr", ln.Addr().String()))
			err = s.http.ServeTLS(ln, ssl.Cert, ssl.Key)
		} else {
			s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
			err = s.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := s.Close(shutdownCtx); err != nil {
		return err
	}
	return <-errChan
}

// Close stops accepting connections and tears down every live session.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...",
		zap.Int64("active_connections", s.registry.Count()))

	var errs []error
	// Hijacked sockets are not tracked by http.Server.
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := s.registry.CloseAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close sessions: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) warnPrivateKey() {
	if s.config.SSH.Key == "" {
		return
	}
	s.logger.Warn("!!!!!! WARNING: a private key is configured; every client connecting to this server will authenticate to the ssh host with it. Only use this on trusted networks.",
		zap.String("key", s.config.SSH.Key),
		zap.String("ssh_host", s.config.SSH.Host),
	)
}
