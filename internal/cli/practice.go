package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizlive/internal/bus"
	"quizlive/internal/config"
	"quizlive/internal/domain"
	"quizlive/internal/infra/memory"
	"quizlive/internal/practice"
	transport "quizlive/internal/transport/http"
)

// NewPracticeCmd plays a quiz alone against an in-process game server.
func NewPracticeCmd(configPath *string) *cobra.Command {
	var quizRef, name string
	var share bool
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Play a quiz locally without a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			quiz, err := resolveQuiz(cmd.Context(), cfg, quizRef)
			if err != nil {
				return err
			}
			return runPractice(cmd.Context(), cfg, quiz, name, share, log)
		},
	}
	cmd.Flags().StringVar(&quizRef, "quiz", transport.DefaultQuizID, "quiz file path or quiz ID")
	cmd.Flags().StringVar(&name, "name", "you", "display name")
	cmd.Flags().BoolVar(&share, "share", false, "run the game over redis pub/sub so others can join with play --transport redis")
	return cmd
}

// resolveQuiz accepts a path to a quiz file, or an ID looked up in the
// configured quiz directory and then the built-in quizzes.
func resolveQuiz(ctx context.Context, cfg config.Config, ref string) (domain.Quiz, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ext := filepath.Ext(ref); ext != "" {
		data, err := os.ReadFile(ref)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz, err := memory.DecodeQuiz(data, ext)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("decode %s: %w", ref, err)
		}
		return quiz, nil
	}
	loaders := memory.ChainLoader{}
	if cfg.Quiz.Dir != "" {
		loaders = append(loaders, memory.NewFileQuizLoader(cfg.Quiz.Dir))
	}
	loaders = append(loaders, memory.NewStaticQuizLoader(sampleQuizzes()))
	return loaders.LoadQuiz(ctx, ref)
}

func runPractice(ctx context.Context, cfg config.Config, quiz domain.Quiz, name string, share bool, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	pin := fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	var server, player bus.Directed
	if share {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("--share needs redis.addr in the config")
		}
		client := newRedisClient(cfg)
		defer client.Close()
		srv, err := bus.NewRedis(ctx, client, pin, "server", log)
		if err != nil {
			return err
		}
		defer srv.Close()
		me, err := bus.NewRedis(ctx, client, pin, name, log)
		if err != nil {
			return err
		}
		defer me.Close()
		server, player = srv, me
		fmt.Fprintf(os.Stdout, "sharing game %s over redis\n", pin)
	} else {
		hub := bus.NewHub(log)
		server, player = hub.Endpoint("server"), hub.Endpoint(name)
	}

	engine, err := practice.NewEngine(server, quiz, practice.Options{
		PIN:           pin,
		ExtendSeconds: cfg.Client.ExtendSeconds,
		AutoAdvance:   true,
		RevealDelay:   cfg.RevealDelay(),
		Consensus:     cfg.Consensus,
		Log:           log,
	})
	if err != nil {
		return err
	}
	engine.Start()
	defer engine.Close()

	err = play(ctx, player, cfg, pin, name, domain.RolePlayer, nil, nil, log)
	standings := engine.Standings()
	for i, e := range standings.Entries {
		fmt.Fprintf(os.Stdout, "%d. %s %d\n", i+1, e.Name, e.Score)
	}
	return err
}
