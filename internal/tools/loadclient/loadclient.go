// Package loadclient opens many gateway connections and drives traffic
// through them for manual load and soak testing.
package loadclient

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	entrypoint "github.com/louisbranch/broadcast.space/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/broadcast.space/internal/platform/grpc"
	"github.com/louisbranch/broadcast.space/internal/platform/logging"
)

// Config holds load client configuration.
type Config struct {
	URL          string        `env:"BROADCAST_SPACE_LOADCLIENT_URL"      envDefault:"ws://localhost:8080/ws"`
	APIKey       string        `env:"BROADCAST_SPACE_LOADCLIENT_API_KEY"  envDefault:"dev-api-key"`
	Token        string        `env:"BROADCAST_SPACE_LOADCLIENT_TOKEN"`
	Clients      int           `env:"BROADCAST_SPACE_LOADCLIENT_CLIENTS"  envDefault:"10"`
	UsernameBase string        `env:"BROADCAST_SPACE_LOADCLIENT_USERNAME" envDefault:"load"`
	Room         string        `env:"BROADCAST_SPACE_LOADCLIENT_ROOM"`
	Text         string        `env:"BROADCAST_SPACE_LOADCLIENT_TEXT"     envDefault:"ping"`
	Interval     time.Duration `env:"BROADCAST_SPACE_LOADCLIENT_INTERVAL" envDefault:"1s"`
	Duration     time.Duration `env:"BROADCAST_SPACE_LOADCLIENT_DURATION" envDefault:"30s"`

	// HealthAddr, when set, delays the run until the gateway's gRPC health
	// service reports SERVING.
	HealthAddr    string `env:"BROADCAST_SPACE_LOADCLIENT_HEALTH_ADDR"`
	HealthService string `env:"BROADCAST_SPACE_LOADCLIENT_HEALTH_SERVICE" envDefault:"broadcast.gateway"`
}

// Stats summarizes one run.
type Stats struct {
	Connected int64
	Sent      int64
	Received  int64
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.URL, "url", cfg.URL, "gateway WebSocket URL")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "project API key sent as apiKey")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "connection token sent as token (takes precedence)")
	fs.IntVar(&cfg.Clients, "clients", cfg.Clients, "number of concurrent connections")
	fs.StringVar(&cfg.UsernameBase, "username", cfg.UsernameBase, "username prefix; clients are named <prefix>-<n>")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "room to join (empty sends tenant-wide chat)")
	fs.StringVar(&cfg.Text, "text", cfg.Text, "message text (empty sends nothing)")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "delay between messages per client")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "total run time (0 runs until interrupted)")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gateway gRPC health address to wait on before dialing")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("url is required")
	}
	if cfg.Clients <= 0 {
		return errors.New("clients must be positive")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	return nil
}

// dialURL appends the configured credential to the gateway URL.
func (cfg Config) dialURL() (string, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	query := parsed.Query()
	if cfg.Token != "" {
		query.Set("token", cfg.Token)
	} else if cfg.APIKey != "" {
		query.Set("apiKey", cfg.APIKey)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type frame struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Text     string `json:"text,omitempty"`
}

type runner struct {
	cfg    Config
	target string
	dialer *websocket.Dialer
	log    *zap.Logger

	connected atomic.Int64
	sent      atomic.Int64
	received  atomic.Int64
}

// Run connects cfg.Clients clients and drives them until ctx ends or
// cfg.Duration elapses. Any dial or write failure stops the whole run.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (Stats, error) {
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}
	target, err := cfg.dialURL()
	if err != nil {
		return Stats{}, err
	}
	logger = logging.OrNop(logger)
	if err := waitForGateway(ctx, cfg, logger); err != nil {
		return Stats{}, err
	}
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	r := &runner{
		cfg:    cfg,
		target: target,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    logger,
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Clients; i++ {
		username := fmt.Sprintf("%s-%d", cfg.UsernameBase, i)
		group.Go(func() error {
			return r.client(groupCtx, username)
		})
	}
	err = group.Wait()
	stats := Stats{Connected: r.connected.Load(), Sent: r.sent.Load(), Received: r.received.Load()}
	logger.Info("load run finished",
		zap.Int64("connected", stats.Connected),
		zap.Int64("sent", stats.Sent),
		zap.Int64("received", stats.Received),
	)
	return stats, err
}

func waitForGateway(ctx context.Context, cfg Config, logger *zap.Logger) error {
	addr := strings.TrimSpace(cfg.HealthAddr)
	if addr == "" {
		return nil
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial gateway health: %w", err)
	}
	defer conn.Close()
	return platformgrpc.WaitForHealth(ctx, conn, cfg.HealthService, logger.Sugar().Infof)
}

func (r *runner) client(ctx context.Context, username string) error {
	ws, resp, err := r.dialer.DialContext(ctx, r.target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", username, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", username, err)
	}
	r.connected.Add(1)
	log := r.log.With(zap.String("username", username))

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		r.readLoop(ws, log)
	}()
	defer func() {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = ws.Close()
		<-readDone
	}()

	if err := r.write(ws, frame{Type: "set_username", Username: username}); err != nil {
		return err
	}
	if r.cfg.Room != "" {
		if err := r.write(ws, frame{Type: "join", Room: r.cfg.Room}); err != nil {
			return err
		}
	}
	if r.cfg.Text == "" {
		<-ctx.Done()
		return nil
	}

	message := frame{Type: "chat", Text: r.cfg.Text}
	if r.cfg.Room != "" {
		message.Type = "room_message"
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-readDone:
			return fmt.Errorf("%s: connection closed by gateway", username)
		case <-ticker.C:
			if err := r.write(ws, message); err != nil {
				return err
			}
		}
	}
}

func (r *runner) write(ws *websocket.Conn, f frame) error {
	_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := ws.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w", f.Type, err)
	}
	r.sent.Add(1)
	return nil
}

func (r *runner) readLoop(ws *websocket.Conn, log *zap.Logger) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read ended", zap.Error(err))
			}
			return
		}
		r.received.Add(1)
		log.Debug("frame received", zap.ByteString("frame", data))
	}
}
