// Package server hosts the gateway's HTTP, WebSocket and gRPC health
// surfaces around one in-memory connection state.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/louisbranch/broadcast.space/internal/platform/grpc"
	"github.com/louisbranch/broadcast.space/internal/platform/logging"
	"github.com/louisbranch/broadcast.space/internal/platform/timeouts"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/auth"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage"
	"github.com/louisbranch/broadcast.space/internal/services/gateway/storage/sqlite"
)

// HealthService is the gRPC health service name reported by the gateway.
const HealthService = "broadcast.gateway"

// BootstrapConfig names the tenant/project created on startup when enabled.
type BootstrapConfig struct {
	Enabled     bool
	TenantName  string
	ProjectName string
	APIKey      string
}

// Config defines the inputs for the gateway process.
type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	DBPath            string
	TokenSecret       string
	TokenTTL          time.Duration
	RequireAuth       bool
	KeepaliveInterval time.Duration
	MaxConnections    int
	HistoryCapacity   int
	PersistQueueSize  int
	KeyCacheTTL       time.Duration
	Bootstrap         BootstrapConfig
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Logger            *zap.Logger
}

// Server hosts the gateway process.
type Server struct {
	httpAddr        string
	grpcAddr        string
	maxConnections  int
	shutdownTimeout time.Duration
	log             *zap.Logger
	gateway         *gateway
	httpServer      *http.Server
	health          *platformgrpc.HealthServer
	store           *sqlite.Store
}

// NewServer builds a configured gateway server.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	log := logging.OrNop(config.Logger).Named("gateway")

	var (
		store    *sqlite.Store
		projects storage.ProjectStore
		roomsDB  storage.RoomStore
		messages storage.MessageStore
	)
	if path := strings.TrimSpace(config.DBPath); path != "" {
		opened, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open gateway store: %w", err)
		}
		store = opened
		projects, roomsDB, messages = opened, opened, opened
		applied, err := opened.Migrations(ctx)
		if err != nil {
			_ = opened.Close()
			return nil, fmt.Errorf("list migrations: %w", err)
		}
		log.Info("gateway store ready", zap.String("path", path), zap.Strings("migrations", applied))
		if err := bootstrap(ctx, opened, config.Bootstrap, log); err != nil {
			_ = opened.Close()
			return nil, err
		}
	}

	var tokens *auth.Tokens
	if strings.TrimSpace(config.TokenSecret) != "" {
		issued, err := auth.NewTokens(config.TokenSecret, config.TokenTTL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("configure tokens: %w", err)
		}
		tokens = issued
	}
	var keys auth.KeyAuthenticator
	if projects != nil {
		keyTTL := config.KeyCacheTTL
		if keyTTL == 0 {
			keyTTL = auth.DefaultKeyCacheTTL
		}
		keys = auth.NewKeys(projects, keyTTL)
	}
	if config.RequireAuth && tokens == nil && keys == nil {
		_ = store.Close()
		return nil, errors.New("auth is required but neither a token secret nor a database is configured")
	}

	var verifier auth.TokenVerifier
	if tokens != nil {
		verifier = tokens
	}
	g := newGateway(gatewayDeps{
		Logger:            log,
		Gate:              auth.NewGate(verifier, keys, config.RequireAuth),
		Tokens:            tokens,
		Keys:              keys,
		RoomStore:         roomsDB,
		MessageStore:      messages,
		HistoryCapacity:   config.HistoryCapacity,
		PersistQueueSize:  config.PersistQueueSize,
		KeepaliveInterval: config.KeepaliveInterval,
	})

	var health *platformgrpc.HealthServer
	grpcAddr := strings.TrimSpace(config.GRPCAddr)
	if grpcAddr != "" {
		health = platformgrpc.NewHealthServer(HealthService)
	}

	return &Server{
		httpAddr:        httpAddr,
		grpcAddr:        grpcAddr,
		maxConnections:  config.MaxConnections,
		shutdownTimeout: config.ShutdownTimeout,
		log:             log,
		gateway:         g,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           g.handler(),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		health: health,
		store:  store,
	}, nil
}

func bootstrap(ctx context.Context, store storage.ProjectStore, cfg BootstrapConfig, log *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	project, err := store.EnsureTenantProject(ctx, storage.TenantProject{
		TenantName:     cfg.TenantName,
		ProjectName:    cfg.ProjectName,
		APIKey:         cfg.APIKey,
		AllowedOrigins: []string{"*"},
	})
	if err != nil {
		return fmt.Errorf("bootstrap default project: %w", err)
	}
	log.Info("default project ready",
		zap.String("tenant", project.TenantName),
		zap.String("tenant_id", project.TenantID),
		zap.String("project", project.Name),
	)
	return nil
}

// Run creates and serves a gateway server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(ctx, config)
	if err != nil {
		return fmt.Errorf("init gateway server: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			server.log.Warn("close gateway", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve gateway: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, the keepalive supervisor and the
// optional gRPC health server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("gateway server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	httpListener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	if s.maxConnections > 0 {
		httpListener = netutil.LimitListener(httpListener, s.maxConnections)
	}
	var grpcListener net.Listener
	if s.health != nil {
		grpcListener, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	keepaliveDone := s.gateway.keepalive.start(groupCtx)

	s.log.Info("gateway listening", zap.String("http", httpListener.Addr().String()), zap.String("grpc", s.grpcAddr))
	group.Go(func() error {
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if grpcListener != nil {
		s.health.SetServing(true)
		group.Go(func() error {
			return s.health.Serve(grpcListener)
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		s.health.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		// Hijacked WebSocket connections are not tracked by Shutdown.
		s.gateway.closeAll()
		<-keepaliveDone
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Addr reports the configured HTTP address.
func (s *Server) Addr() string {
	return s.httpAddr
}

// Close drains pending writes and releases storage.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.gateway.closeAll()
	if !s.gateway.drain(s.shutdownTimeout) {
		s.log.Warn("connections still closing at shutdown")
	}
	s.gateway.persister.close()
	var err error
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	return err
}
