package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/graychat-core/internal/audit"
	"github.com/nerrad567/graychat-core/internal/auth"
	"github.com/nerrad567/graychat-core/internal/infrastructure/config"
	"github.com/nerrad567/graychat-core/internal/infrastructure/database"
	"github.com/nerrad567/graychat-core/internal/infrastructure/logging"
	"github.com/nerrad567/graychat-core/internal/room"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Only Config, Logger and DB are required. Repositories left nil are built
// on DB; a nil Codec is built from the configured secret and session TTL.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	DB       *database.DB
	Users    auth.UserRepository
	Sessions auth.SessionRepository
	Rooms    room.Repository
	Messages room.MessageRepository
	Audit    audit.Repository
	Codec    *auth.Codec
	Registry *prometheus.Registry // If nil, a private registry with Go and process collectors is created
	Version  string
}

// Server is the HTTP API server for Graychat Core.
//
// It owns the router, the WebSocket hub and the background loops (hub,
// audit writer, session cleanup). It is created with New and started with
// Start or Run.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	db       *database.DB
	users    auth.UserRepository
	sessions auth.SessionRepository
	rooms    room.Repository
	messages room.MessageRepository
	auditLog audit.Repository
	recorder *audit.Recorder
	codec    *auth.Codec
	resolver *auth.Resolver
	hub      *Hub
	metrics  *metrics
	registry *prometheus.Registry
	validate *validator.Validate
	cors     corsPolicy
	version  string
	handler  http.Handler

	server    *http.Server
	listener  net.Listener
	group     *errgroup.Group
	ctx       context.Context    // cancelled on Close or when a background loop fails
	cancel    context.CancelFunc // cancels background goroutines on Close()
	closeOnce sync.Once
	closeErr  error
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}

	codec := deps.Codec
	if codec == nil {
		var err error
		codec, err = auth.NewCodec(deps.Config.Security.JWT.Secret, deps.Config.SessionTTL())
		if err != nil {
			return nil, fmt.Errorf("creating credential codec: %w", err)
		}
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger.With("component", "api"),
		db:       deps.DB,
		users:    deps.Users,
		sessions: deps.Sessions,
		rooms:    deps.Rooms,
		messages: deps.Messages,
		auditLog: deps.Audit,
		codec:    codec,
		registry: deps.Registry,
		validate: newValidator(),
		cors:     newCORSPolicy(deps.Config.API.CORS),
		version:  deps.Version,
	}
	if s.users == nil {
		s.users = auth.NewUserRepository(deps.DB.DB)
	}
	if s.sessions == nil {
		s.sessions = auth.NewSessionRepository(deps.DB.DB)
	}
	if s.rooms == nil {
		s.rooms = room.NewSQLiteRepository(deps.DB.DB)
	}
	if s.messages == nil {
		s.messages = room.NewSQLiteMessageRepository(deps.DB.DB)
	}
	if s.auditLog == nil {
		s.auditLog = audit.NewSQLiteRepository(deps.DB.DB)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s.resolver = auth.NewResolver(s.codec, s.users, s.sessions, s.cfg.Security.Sessions.Strict)
	s.recorder = audit.NewRecorder(s.auditLog, deps.Logger, audit.DefaultQueueSize)
	s.metrics = newMetrics(s.registry)
	s.hub = NewHub(s.cfg.WebSocket, s.logger, s.metrics)
	s.handler = s.buildRouter()

	return s, nil
}

// Handler returns the router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start launches the background loops and begins listening for HTTP
// connections. The listener is bound before Start returns, so a port
// conflict is reported here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	if s.group != nil {
		return errors.New("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.API.Host, fmt.Sprint(s.cfg.API.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.startBackground(ctx)

	tls := s.cfg.API.TLS
	s.group.Go(func() error {
		var err error
		if tls.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", tls.CertFile)
			err = s.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})

	return nil
}

// startBackground runs the hub, the audit writer and session cleanup until
// ctx is cancelled or Close is called.
func (s *Server) startBackground(ctx context.Context) {
	srvCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(srvCtx)
	s.group, s.ctx, s.cancel = g, gctx, cancel

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.recorder.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.cleanSessionsLoop(gctx)
		return nil
	})
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.ctx.Done()
	return s.Close()
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, closes every
// WebSocket connection and waits for the background loops to exit. Calling
// Close more than once returns the first result.
func (s *Server) Close() error {
	if s.group == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		s.cancel()

		var errs []error
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
			defer cancel()

			s.logger.Info("API server shutting down")
			if err := s.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
			}
		}
		if err := s.group.Wait(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// HealthCheck verifies the server is started and its database answers.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.group == nil {
		return errors.New("api server not started")
	}
	return s.db.HealthCheck(ctx)
}

// cleanSessionsLoop purges expired session records on every cleanup interval.
func (s *Server) cleanSessionsLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Security.Sessions.CleanupInterval) * time.Minute
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("session cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
