package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jose-valero/wager-queue-bot/internal/app"
	"github.com/jose-valero/wager-queue-bot/internal/storage"
	"github.com/jose-valero/wager-queue-bot/pkg/config"
	"github.com/jose-valero/wager-queue-bot/pkg/logger"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and serve the queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return runBot(cmd.Context(), opts, cfg)
		},
	}
}

func buildLogger(opts *rootOptions, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logger.New(level, cfg.Env)
}

// openGateway builds the local backend plus the configured mirror. The
// returned closer releases the mirror connection.
func openGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage.Gateway, func() error, error) {
	local, err := storage.NewFileBackend(cfg.DataDir, cfg.SnapshotName, log)
	if err != nil {
		return nil, nil, err
	}
	mirror, closeMirror, err := storage.OpenMirror(ctx, storage.MirrorOptions{
		Kind:        cfg.StorageMirror,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s mirror: %w", cfg.StorageMirror, err)
	}
	return storage.NewGateway(local, mirror, log), closeMirror, nil
}

func runBot(parent context.Context, opts *rootOptions, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log, err := buildLogger(opts, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// block till SIGINT/SIGTERM; cancelling ctx stops sweepers and renders
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, closeMirror, err := openGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeMirror() }()

	// the prefix "Bot " is required for bot tokens
	sess, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	// buttons, modals and slash commands arrive as interactions; threads
	// and members come through Guilds
	sess.Identify.Intents = discordgo.IntentsGuilds

	b := app.NewBot(sess, cfg, gw, log)
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	if err := sess.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer sess.Close()

	log.Info("🤖 bot ready", zap.String("config", cfg.Redacted()))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
