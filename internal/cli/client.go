package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizlive/internal/bus"
	"quizlive/internal/config"
	"quizlive/internal/console"
	"quizlive/internal/display"
	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/lifecycle"
	transport "quizlive/internal/transport/http"
)

type clientFlags struct {
	url       string
	pin       string
	name      string
	quiz      string
	transport string
}

// NewPlayCmd joins a game on a server as a player.
func NewPlayCmd(configPath *string) *cobra.Command {
	return newClientCmd(configPath, "play", "Join a game as a player", domain.RolePlayer)
}

// NewHostCmd joins a game on a server as its host.
func NewHostCmd(configPath *string) *cobra.Command {
	return newClientCmd(configPath, "host", "Host a game on a server", domain.RoleHost)
}

func newClientCmd(configPath *string, use, short string, role domain.Role) *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if f.url == "" {
				f.url = cfg.Server.URL
			}
			if f.url == "" {
				f.url = "ws://localhost:8080/ws"
			}
			if f.name == "" && role == domain.RoleHost {
				f.name = "host"
			}
			if f.pin == "" || f.name == "" {
				return fmt.Errorf("--pin and --name are required")
			}
			return runClient(cmd.Context(), cfg, f, role, log)
		},
	}
	cmd.Flags().StringVar(&f.url, "url", "", "websocket endpoint of the game server")
	cmd.Flags().StringVar(&f.pin, "pin", "", "game PIN")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.quiz, "quiz", transport.DefaultQuizID, "quiz to open if the game does not exist yet")
	cmd.Flags().StringVar(&f.transport, "transport", "ws", "ws to dial the server, redis to join a shared practice game over pub/sub")
	return cmd
}

func runClient(ctx context.Context, cfg config.Config, f clientFlags, role domain.Role, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if f.transport == "redis" {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis transport needs redis.addr in the config")
		}
		client := newRedisClient(cfg)
		defer client.Close()
		b, err := bus.NewRedis(ctx, client, f.pin, f.name, log)
		if err != nil {
			return err
		}
		defer b.Close()
		return play(ctx, b, cfg, f.pin, f.name, role, nil, nil, log)
	}

	endpoint, err := url.Parse(f.url)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	origin, err := httpOrigin(endpoint)
	if err != nil {
		return err
	}
	q := endpoint.Query()
	q.Set("pin", f.pin)
	q.Set("name", f.name)
	q.Set("role", string(role))
	q.Set("quiz", f.quiz)
	endpoint.RawQuery = q.Encode()

	var controller atomic.Pointer[lifecycle.Controller]
	remote, err := bus.DialRemote(ctx, endpoint.String(), bus.RemoteOptions{
		Retries: cfg.Transport.Retries,
		Backoff: cfg.Backoff(),
		OnStatus: func(s bus.Status, err error) {
			if c := controller.Load(); c != nil {
				c.TransportStatus(s, err)
			}
		},
		Log: log,
	})
	if err != nil {
		return err
	}
	defer remote.Close()

	prober := display.HTTPProber{BaseURL: origin}
	return play(ctx, remote, cfg, f.pin, f.name, role, prober, &controller, log)
}

// httpOrigin maps a websocket endpoint to the HTTP origin serving uploads.
func httpOrigin(endpoint *url.URL) (string, error) {
	scheme := endpoint.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", endpoint.Scheme)
	}
	if endpoint.Host == "" {
		return "", fmt.Errorf("server url: missing host")
	}
	return scheme + "://" + endpoint.Host, nil
}

// play runs a controller on b with a console on stdin until the user
// quits. prober checks uploaded images before they are shown; hold, when
// set, receives the controller once it exists.
func play(ctx context.Context, b bus.Bus, cfg config.Config, pin, name string, role domain.Role, prober display.Prober, hold *atomic.Pointer[lifecycle.Controller], log *zap.Logger) error {
	var session atomic.Pointer[console.Session]
	c := lifecycle.New(b, dom.New(), lifecycle.Config{
		Role:             role,
		PlayerName:       name,
		GamePin:          pin,
		RepeatGuard:      cfg.RepeatGuard(),
		Tick:             cfg.Tick(),
		WarningThreshold: cfg.WarningThreshold(),
		ExtendSeconds:    cfg.Client.ExtendSeconds,
		StatsTopK:        cfg.Client.StatsTopK,
		Consensus:        cfg.Consensus,
		BasePath:         cfg.Client.BasePath,
		Prober:           prober,
		OnPhase: func(p lifecycle.Phase) {
			if s := session.Load(); s != nil {
				s.OnPhase(p)
			}
		},
		Log: log,
	})
	session.Store(console.New(c, role, os.Stdout, log))
	if hold != nil {
		hold.Store(c)
	}

	g, ctx := errgroup.WithContext(ctx)
	c.Run(ctx)
	if err := c.Join(); err != nil {
		_ = c.Close()
		return err
	}
	fmt.Fprintf(os.Stdout, "joined game %s as %s (%s); type help for commands\n", pin, name, role)
	g.Go(func() error {
		defer c.Close()
		err := session.Load().Run(ctx, os.Stdin)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
