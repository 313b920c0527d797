package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
)

// Config is read once at startup and never changes afterwards.
type Config struct {
	Addr           string        `env:"BANPICK_ADDR"            envDefault:":5000"`
	Env            string        `env:"BANPICK_ENV"             envDefault:"development"`
	LogLevel       string        `env:"BANPICK_LOG_LEVEL"       envDefault:"info"`
	AllowedOrigins []string      `env:"BANPICK_ALLOWED_ORIGINS" envDefault:"localhost:3000" envSeparator:","`
	RoomIDLength   int           `env:"BANPICK_ROOM_ID_LENGTH"  envDefault:"6"`
	MaxPlayers     int           `env:"BANPICK_MAX_PLAYERS"     envDefault:"2"`
	NameMaxLength  int           `env:"BANPICK_NAME_MAX_LENGTH" envDefault:"20"`
	IdleTimeout    time.Duration `env:"BANPICK_IDLE_TIMEOUT"    envDefault:"30m"`
	ReapInterval   time.Duration `env:"BANPICK_REAP_INTERVAL"   envDefault:"5m"`
	SchedulePath   string        `env:"BANPICK_SCHEDULE_FILE"`
	DatabaseURL    string        `env:"BANPICK_DATABASE_URL"`
	RedisAddr      string        `env:"BANPICK_REDIS_ADDR"`
	RedisDB        int           `env:"BANPICK_REDIS_DB"        envDefault:"0"`
	FeedKey        string        `env:"BANPICK_FEED_KEY"        envDefault:"banpick_actions"`

	// Filled from SchedulePath, or the default schedule.
	Schedule engine.Schedule
}

// Load reads an optional .env file, then the environment, then the draft
// schedule.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Schedule = engine.DefaultSchedule()
	if cfg.SchedulePath != "" {
		sched, err := LoadSchedule(cfg.SchedulePath)
		if err != nil {
			return Config{}, err
		}
		cfg.Schedule = sched
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.RoomIDLength <= 0 {
		return fmt.Errorf("BANPICK_ROOM_ID_LENGTH must be positive, got %d", c.RoomIDLength)
	}
	if c.MaxPlayers != lobby.MaxPlayers {
		return fmt.Errorf("BANPICK_MAX_PLAYERS must be %d, got %d", lobby.MaxPlayers, c.MaxPlayers)
	}
	if c.NameMaxLength <= 0 {
		return fmt.Errorf("BANPICK_NAME_MAX_LENGTH must be positive, got %d", c.NameMaxLength)
	}
	if c.IdleTimeout <= 0 || c.ReapInterval <= 0 {
		return errors.New("BANPICK_IDLE_TIMEOUT and BANPICK_REAP_INTERVAL must be positive")
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return nil
}

func (c Config) Development() bool {
	return c.Env == "development" || c.Env == "dev"
}

// LoadSchedule reads a JSON schedule:
//
//	{"banRounds": {"1": {"firstSide": "Blue", "countPerSide": 3}},
//	 "pickRounds": {"1": [{"side": "Blue", "count": 1}]},
//	 "items": ["..."]}
func LoadSchedule(path string) (engine.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Schedule{}, fmt.Errorf("read schedule: %w", err)
	}
	var sched engine.Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return engine.Schedule{}, fmt.Errorf("decode schedule %s: %w", path, err)
	}
	if err := sched.Validate(); err != nil {
		return engine.Schedule{}, fmt.Errorf("schedule %s: %w", path, err)
	}
	return sched, nil
}
