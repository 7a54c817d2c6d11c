package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Token   string `env:"DISCORD_BOT_TOKEN"`
	AppID   string `env:"DISCORD_APP_ID"`
	GuildID string `env:"DISCORD_GUILD_ID"` // vacío = comandos globales

	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Persistencia
	DataDir       string `env:"DATA_DIR" envDefault:"data"`
	SnapshotName  string `env:"SNAPSHOT_NAME" envDefault:"bets"`
	StorageMirror string `env:"STORAGE_MIRROR"` // "", redis, postgres, sqlite
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/mirror.db"`

	// Reglas
	QueueHardCap     int `env:"QUEUE_HARD_CAP" envDefault:"10"`
	MediatorCapacity int `env:"MEDIATOR_POOL_CAPACITY" envDefault:"10"`
	HistoryCap       int `env:"BET_HISTORY_CAP" envDefault:"100"`

	// Barridos
	QueueIdleTimeout      time.Duration `env:"QUEUE_IDLE_TIMEOUT" envDefault:"5m"`
	QueueSweepInterval    time.Duration `env:"QUEUE_SWEEP_INTERVAL" envDefault:"60s"`
	MediatorIdleTimeout   time.Duration `env:"MEDIATOR_IDLE_TIMEOUT" envDefault:"2h"`
	MediatorSweepInterval time.Duration `env:"MEDIATOR_SWEEP_INTERVAL" envDefault:"5m"`
	CleanupInterval       time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`

	// Permisos
	AdminRoleIDs     []string `env:"ADMIN_ROLE_IDS" envSeparator:","`
	EntitledGuildIDs []string `env:"ENTITLED_GUILD_IDS" envSeparator:","`
}

// Load reads .env when present, then the process environment, and validates
// everything the bot needs.
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load without validation; offline commands check only what they use.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AdminRoleIDs = compact(cfg.AdminRoleIDs)
	cfg.EntitledGuildIDs = compact(cfg.EntitledGuildIDs)
	cfg.StorageMirror = strings.ToLower(strings.TrimSpace(cfg.StorageMirror))
	return cfg, nil
}

// Validate checks what the bot cannot start without. The snapshot command
// only needs the storage settings, so the Discord ones are checked apart.
func (c *Config) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if c.Token == "" {
		return errors.New("missing DISCORD_BOT_TOKEN")
	}
	if c.AppID == "" {
		return errors.New("missing DISCORD_APP_ID")
	}
	return nil
}

func (c *Config) ValidateStorage() error {
	if c.DataDir == "" {
		return errors.New("missing DATA_DIR")
	}
	switch c.StorageMirror {
	case "", "none":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("STORAGE_MIRROR=redis needs REDIS_URL")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("STORAGE_MIRROR=postgres needs DATABASE_URL")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("STORAGE_MIRROR=sqlite needs SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORAGE_MIRROR %q", c.StorageMirror)
	}
	for name, d := range map[string]time.Duration{
		"QUEUE_IDLE_TIMEOUT":      c.QueueIdleTimeout,
		"QUEUE_SWEEP_INTERVAL":    c.QueueSweepInterval,
		"MEDIATOR_IDLE_TIMEOUT":   c.MediatorIdleTimeout,
		"MEDIATOR_SWEEP_INTERVAL": c.MediatorSweepInterval,
		"CLEANUP_INTERVAL":        c.CleanupInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Entitled reports whether the guild may use the bot. An empty allow-list
// entitles every guild.
func (c *Config) Entitled(guildID string) bool {
	if len(c.EntitledGuildIDs) == 0 {
		return true
	}
	for _, id := range c.EntitledGuildIDs {
		if id == guildID {
			return true
		}
	}
	return false
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func redactURL(u string) string {
	if u == "" {
		return "[empty]"
	}
	return "[set]"
}

func (c *Config) Redacted() string {
	tok := "[set]"
	if c.Token == "" {
		tok = "[empty]"
	}
	mirror := c.StorageMirror
	if mirror == "" {
		mirror = "none"
	}
	return fmt.Sprintf(
		"appID=%s guildID=%s env=%s dataDir=%s mirror=%s databaseURL=%s redisURL=%s queueIdle=%s mediatorIdle=%s adminRoles=%d entitledGuilds=%d token=%s",
		c.AppID, c.GuildID, c.Env, c.DataDir, mirror, redactURL(c.DatabaseURL), redactURL(c.RedisURL),
		c.QueueIdleTimeout, c.MediatorIdleTimeout, len(c.AdminRoleIDs), len(c.EntitledGuildIDs), tok,
	)
}
