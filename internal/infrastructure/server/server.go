package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apihttp "github.com/GriffinCanCode/AgentOS/appmgr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/bundle"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/cache"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/osproc"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/sysparam"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/tracing"
)

// ServiceName is the gRPC health service name
const ServiceName = "appmgr"

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP and gRPC servers and their dependencies
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	params  *sysparam.Store
	bundles *bundle.Registry
	cache   *cache.Manager
	apps    *app.Manager
	router  *gin.Engine
	health  *health.Server
	grpc    *grpc.Server
	guard   *resilience.SpawnGuard

	spawner app.Spawner
	killer  app.Killer
}

// Option customizes server construction
type Option func(*Server)

// WithLogger replaces the logger built from the config
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBackend replaces the host process backend
func WithBackend(spawner app.Spawner, killer app.Killer) Option {
	return func(s *Server) {
		s.spawner = spawner
		s.killer = killer
	}
}

// New creates a server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = logger
	}

	s.logger.Info("Initializing appmgr",
		zap.String("port", cfg.Server.Port),
		zap.String("params", cfg.Params.File),
		zap.String("bundles", cfg.Bundles.Dir),
	)

	s.metrics = monitoring.NewMetrics()

	params, err := sysparam.Open(cfg.Params.File)
	if err != nil {
		return nil, err
	}
	s.params = params.WithLogger(s.logger.Named("sysparam").Logger)

	s.bundles = bundle.NewRegistry()
	n, err := s.bundles.LoadDir(cfg.Bundles.Dir)
	if err != nil {
		s.logger.Warn("Some bundle manifests failed to load", zap.Error(err))
	}
	s.logger.Info("Bundles loaded", zap.Int("count", n))

	if s.spawner == nil {
		s.spawner = osproc.NewSpawner(s.logger.Named("osproc").Logger)
	}
	if s.killer == nil {
		s.killer = osproc.NewKiller()
	}

	s.guard = resilience.NewSpawnGuard(s.spawner, resilience.Settings{
		Failures: cfg.Spawn.BreakerFailures,
		Timeout:  cfg.Spawn.BreakerCooldown,
	}).
		WithLogger(s.logger.Named("spawn").Logger).
		WithMetrics(s.metrics)

	s.apps = app.NewManager(s.guard, s.killer, s.bundles).
		WithLogger(s.logger.Named("app").Logger).
		WithMetrics(s.metrics).
		WithRestartPolicy(app.RestartPolicy{
			MaxRestarts:     cfg.Restart.MaxRestarts,
			InitialInterval: cfg.Restart.InitialInterval,
			MaxInterval:     cfg.Restart.MaxInterval,
			StableAfter:     cfg.Restart.StableAfter,
		})
	s.cache = cache.NewManager(s.apps, s.params).
		WithLogger(s.logger.Named("cache").Logger).
		WithMetrics(s.metrics)
	s.apps.WithCache(s.cache)
	s.logger.Info("Process cache initialized",
		zap.Bool("enabled", s.cache.QueryEnabled()),
		zap.Int("capacity", s.cache.Capacity()),
	)

	if cfg.Params.Watch {
		if err := s.params.Watch(s.cache.RefreshCapacity); err != nil {
			s.logger.Warn("Parameter file not watched", zap.Error(err))
		}
	}

	s.router = s.newRouter()

	s.health = health.NewServer()
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(s.logger.Named("grpc").Logger)))
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) newRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.logger.Named("http").Logger))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		limit.Burst = s.config.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))
	}

	apihttp.NewHandlers(s.apps, s.cache, s.bundles, s.metrics).Register(router)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/stream", ws.NewHandler(s.apps.Hub(), s.logger.Named("ws").Logger, s.metrics).HandleConnection)

	return router
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Apps returns the application manager
func (s *Server) Apps() *app.Manager {
	return s.apps
}

// Cache returns the process cache
func (s *Server) Cache() *cache.Manager {
	return s.cache
}

// SpawnGuard returns the per-bundle spawn breakers
func (s *Server) SpawnGuard() *resilience.SpawnGuard {
	return s.guard
}

// Params returns the system parameter store
func (s *Server) Params() *sysparam.Store {
	return s.params
}

// HealthStatus reports the gRPC serving status of the service
func (s *Server) HealthStatus(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// Run serves HTTP and gRPC until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.config.GRPC.Enabled {
		addr := net.JoinHostPort(s.config.Server.Host, s.config.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		s.logger.Info("Starting gRPC health server", zap.String("addr", addr))
		go func() {
			if err := s.grpc.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	return runErr
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.apps.Close()
	if err := s.params.Close(); err != nil {
		s.logger.Warn("Failed to stop parameter watcher", zap.Error(err))
	}

	_ = s.logger.Sync()
	return nil
}
