package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken   string       `yaml:"discord_token"`
	DatabaseDriver string       `yaml:"database_driver"`
	DatabaseDSN    string       `yaml:"database_dsn"`
	LogLevel       string       `yaml:"log_level"`
	DefaultPrefix  string       `yaml:"default_prefix"`
	Owner          OwnerConfig  `yaml:"owner"`
	Prompts        PromptConfig `yaml:"prompts"`
	Worker         WorkerConfig `yaml:"worker"`
	Health         HealthConfig `yaml:"health"`
}

// OwnerConfig points at the bot operator's home guild and channels. Every
// field is optional; a missing value disables the corresponding notification
// rather than failing startup.
type OwnerConfig struct {
	IDs              []string `yaml:"ids"`
	GuildID          string   `yaml:"guild_id"`
	InfoChannel      string   `yaml:"info_channel"`
	ImagesChannel    string   `yaml:"images_channel"`
	DMRelayChannel   string   `yaml:"dm_relay_channel"`
	JoinLeaveChannel string   `yaml:"join_leave_channel"`
}

type PromptConfig struct {
	YesNoSeconds    int `yaml:"yes_no_seconds"`
	ChooseSeconds   int `yaml:"choose_seconds"`
	ResponseSeconds int `yaml:"response_seconds"`
	HelpSeconds     int `yaml:"help_seconds"`
}

type WorkerConfig struct {
	RefreshMinutes int `yaml:"refresh_minutes"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func DefaultConfig() Config {
	return Config{
		DatabaseDriver: "sqlite",
		DatabaseDSN:    "/data/concord.db",
		LogLevel:       "info",
		DefaultPrefix:  "!",
		Prompts: PromptConfig{
			YesNoSeconds:    200,
			ChooseSeconds:   120,
			ResponseSeconds: 120,
			HelpSeconds:     120,
		},
		Worker: WorkerConfig{RefreshMinutes: 30},
		Health: HealthConfig{Enabled: false, Addr: ":8080"},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDriver != "pgx" {
		return Config{}, errors.New("database_driver must be sqlite or pgx")
	}
	if cfg.DefaultPrefix == "" {
		cfg.DefaultPrefix = "!"
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabaseDriver = envString("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseDSN = envString("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DefaultPrefix = envString("DEFAULT_PREFIX", cfg.DefaultPrefix)
	cfg.Owner.IDs = envList("OWNER_IDS", cfg.Owner.IDs)
	cfg.Owner.GuildID = envString("OWNER_GUILD_ID", cfg.Owner.GuildID)
	cfg.Owner.InfoChannel = envString("OWNER_INFO_CHANNEL", cfg.Owner.InfoChannel)
	cfg.Owner.ImagesChannel = envString("OWNER_IMAGES_CHANNEL", cfg.Owner.ImagesChannel)
	cfg.Owner.DMRelayChannel = envString("OWNER_DM_RELAY_CHANNEL", cfg.Owner.DMRelayChannel)
	cfg.Owner.JoinLeaveChannel = envString("OWNER_JOIN_LEAVE_CHANNEL", cfg.Owner.JoinLeaveChannel)
	cfg.Worker.RefreshMinutes = envInt("WORKER_REFRESH_MINUTES", cfg.Worker.RefreshMinutes)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return fallback
}
