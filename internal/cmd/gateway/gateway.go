// Package gateway parses gateway command flags and composes the server.
package gateway

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/broadcast.space/internal/platform/cmd"
	server "github.com/louisbranch/broadcast.space/internal/services/gateway/app"
)

// Config holds gateway command configuration.
type Config struct {
	HTTPAddr          string        `env:"BROADCAST_SPACE_GATEWAY_HTTP_ADDR"          envDefault:":8080"`
	GRPCAddr          string        `env:"BROADCAST_SPACE_GATEWAY_GRPC_ADDR"`
	DBPath            string        `env:"BROADCAST_SPACE_GATEWAY_DB_PATH"            envDefault:"data/gateway.db"`
	TokenSecret       string        `env:"BROADCAST_SPACE_GATEWAY_JWT_SECRET"`
	TokenTTL          time.Duration `env:"BROADCAST_SPACE_GATEWAY_TOKEN_TTL"          envDefault:"30m"`
	RequireAuth       bool          `env:"BROADCAST_SPACE_GATEWAY_REQUIRE_AUTH"       envDefault:"true"`
	KeepaliveInterval time.Duration `env:"BROADCAST_SPACE_GATEWAY_KEEPALIVE_INTERVAL" envDefault:"30s"`
	MaxConnections    int           `env:"BROADCAST_SPACE_GATEWAY_MAX_CONNECTIONS"    envDefault:"0"`
	HistoryCapacity   int           `env:"BROADCAST_SPACE_GATEWAY_HISTORY_CAPACITY"   envDefault:"100"`
	KeyCacheTTL       time.Duration `env:"BROADCAST_SPACE_GATEWAY_KEY_CACHE_TTL"      envDefault:"30s"`

	BootstrapDefault bool   `env:"BROADCAST_SPACE_GATEWAY_BOOTSTRAP"         envDefault:"true"`
	BootstrapTenant  string `env:"BROADCAST_SPACE_GATEWAY_BOOTSTRAP_TENANT"  envDefault:"default-tenant"`
	BootstrapProject string `env:"BROADCAST_SPACE_GATEWAY_BOOTSTRAP_PROJECT" envDefault:"default-project"`
	BootstrapAPIKey  string `env:"BROADCAST_SPACE_GATEWAY_BOOTSTRAP_API_KEY" envDefault:"dev-api-key"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "gateway HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path (empty runs in memory only)")
	fs.StringVar(&cfg.TokenSecret, "jwt-secret", cfg.TokenSecret, "HS256 secret for connection tokens")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "default connection token lifetime")
	fs.BoolVar(&cfg.RequireAuth, "require-auth", cfg.RequireAuth, "reject upgrades without credentials")
	fs.DurationVar(&cfg.KeepaliveInterval, "keepalive-interval", cfg.KeepaliveInterval, "ping sweep interval")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "concurrent connection cap (0 is unlimited)")
	fs.IntVar(&cfg.HistoryCapacity, "history-capacity", cfg.HistoryCapacity, "messages kept per history partition")
	fs.BoolVar(&cfg.BootstrapDefault, "bootstrap", cfg.BootstrapDefault, "create the default tenant and project on startup")
	fs.StringVar(&cfg.BootstrapAPIKey, "bootstrap-api-key", cfg.BootstrapAPIKey, "API key for the default project")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// serverConfig maps command configuration onto the server's.
func (cfg Config) serverConfig(logger *zap.Logger) server.Config {
	return server.Config{
		HTTPAddr:          cfg.HTTPAddr,
		GRPCAddr:          cfg.GRPCAddr,
		DBPath:            cfg.DBPath,
		TokenSecret:       cfg.TokenSecret,
		TokenTTL:          cfg.TokenTTL,
		RequireAuth:       cfg.RequireAuth,
		KeepaliveInterval: cfg.KeepaliveInterval,
		MaxConnections:    cfg.MaxConnections,
		HistoryCapacity:   cfg.HistoryCapacity,
		KeyCacheTTL:       cfg.KeyCacheTTL,
		Bootstrap: server.BootstrapConfig{
			Enabled:     cfg.BootstrapDefault,
			TenantName:  cfg.BootstrapTenant,
			ProjectName: cfg.BootstrapProject,
			APIKey:      cfg.BootstrapAPIKey,
		},
		Logger: logger,
	}
}

// Run builds the gateway and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGateway, func(ctx context.Context, logger *zap.Logger) error {
		if err := server.Run(ctx, cfg.serverConfig(logger)); err != nil {
			return fmt.Errorf("serve gateway: %w", err)
		}
		return nil
	})
}
