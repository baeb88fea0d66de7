package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/peterkuimelis/setx/internal/cards"
)

// Config holds every tunable of a table. Durations are written as Go
// duration strings in YAML ("60s", "250ms").
type Config struct {
	Players      int      `yaml:"players"`
	HumanPlayers int      `yaml:"human_players"`
	PlayerNames  []string `yaml:"player_names"`

	Rows    int `yaml:"rows"`
	Columns int `yaml:"columns"`

	FeatureSize  int `yaml:"feature_size"`
	FeatureCount int `yaml:"feature_count"`

	TableDelay         time.Duration `yaml:"table_delay"`
	TurnTimeout        time.Duration `yaml:"turn_timeout"`
	TurnTimeoutWarning time.Duration `yaml:"turn_timeout_warning"`
	PointFreeze        time.Duration `yaml:"point_freeze"`
	PenaltyFreeze      time.Duration `yaml:"penalty_freeze"`
	AIPace             time.Duration `yaml:"ai_pace"`
	PollInterval       time.Duration `yaml:"poll_interval"`

	Hints     bool   `yaml:"hints"`
	Seed      int64  `yaml:"seed"`
	NoShuffle bool   `yaml:"no_shuffle"`
	LogLevel  string `yaml:"log_level"`
}

// Default returns the classic two-player, 12-slot, 81-card table.
func Default() Config {
	return Config{
		Players:            2,
		HumanPlayers:       0,
		Rows:               3,
		Columns:            4,
		FeatureSize:        cards.DefaultFeatureSize,
		FeatureCount:       cards.DefaultFeatureCount,
		TableDelay:         100 * time.Millisecond,
		TurnTimeout:        60 * time.Second,
		TurnTimeoutWarning: 5 * time.Second,
		PointFreeze:        time.Second,
		PenaltyFreeze:      3 * time.Second,
		AIPace:             250 * time.Millisecond,
		PollInterval:       100 * time.Millisecond,
		LogLevel:           "info",
	}
}

// TableSize returns the number of slots on the grid.
func (c Config) TableSize() int {
	return c.Rows * c.Columns
}

// Rules returns the card feature space.
func (c Config) Rules() cards.Rules {
	return cards.Rules{FeatureSize: c.FeatureSize, FeatureCount: c.FeatureCount}
}

// DeckSize returns the number of distinct cards.
func (c Config) DeckSize() int {
	return c.Rules().DeckSize()
}

// Human reports whether the given player is driven by external input.
// Humans take the lowest player ids.
func (c Config) Human(player int) bool {
	return player < c.HumanPlayers
}

// PlayerName returns the configured display name, or "Player N".
func (c Config) PlayerName(player int) string {
	if player < len(c.PlayerNames) && c.PlayerNames[player] != "" {
		return c.PlayerNames[player]
	}
	return fmt.Sprintf("Player %d", player+1)
}

// MaxDeckSize bounds feature_size^feature_count; every card is allocated up
// front.
const MaxDeckSize = 1 << 16

// deckFits computes size^count without overflowing past MaxDeckSize.
func deckFits(size, count int) bool {
	n := 1
	for i := 0; i < count; i++ {
		if n > MaxDeckSize/size {
			return false
		}
		n *= size
	}
	return true
}

// Validate reports the first inconsistency in the config.
func (c Config) Validate() error {
	switch {
	case c.Players <= 0:
		return errors.New("players must be positive")
	case c.HumanPlayers < 0 || c.HumanPlayers > c.Players:
		return fmt.Errorf("human_players must be between 0 and %d", c.Players)
	case c.Rows <= 0 || c.Columns <= 0:
		return errors.New("rows and columns must be positive")
	case c.TableSize() < cards.SetSize:
		return fmt.Errorf("table needs at least %d slots", cards.SetSize)
	case c.FeatureSize < 2 || c.FeatureCount <= 0:
		return errors.New("feature_size must be >= 2 and feature_count positive")
	case !deckFits(c.FeatureSize, c.FeatureCount):
		return fmt.Errorf("feature_size^feature_count exceeds %d cards", MaxDeckSize)
	case c.TurnTimeout <= 0:
		return errors.New("turn_timeout must be positive")
	case c.TurnTimeoutWarning > c.TurnTimeout:
		return errors.New("turn_timeout_warning exceeds turn_timeout")
	case c.PollInterval <= 0:
		return errors.New("poll_interval must be positive")
	case c.AIPace <= 0:
		return errors.New("ai_pace must be positive")
	case c.TableDelay < 0 || c.PointFreeze < 0 || c.PenaltyFreeze < 0:
		return errors.New("delays and freezes must not be negative")
	}
	return nil
}

// Load reads a YAML file on top of Default, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config YAML: %w", err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are not an error.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from SETX_* environment variables.
func ApplyEnv(cfg *Config) error {
	ints := map[string]*int{
		"SETX_PLAYERS":       &cfg.Players,
		"SETX_HUMAN_PLAYERS": &cfg.HumanPlayers,
		"SETX_ROWS":          &cfg.Rows,
		"SETX_COLUMNS":       &cfg.Columns,
		"SETX_FEATURE_SIZE":  &cfg.FeatureSize,
		"SETX_FEATURE_COUNT": &cfg.FeatureCount,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"SETX_TABLE_DELAY":          &cfg.TableDelay,
		"SETX_TURN_TIMEOUT":         &cfg.TurnTimeout,
		"SETX_TURN_TIMEOUT_WARNING": &cfg.TurnTimeoutWarning,
		"SETX_POINT_FREEZE":         &cfg.PointFreeze,
		"SETX_PENALTY_FREEZE":       &cfg.PenaltyFreeze,
		"SETX_AI_PACE":              &cfg.AIPace,
		"SETX_POLL_INTERVAL":        &cfg.PollInterval,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"SETX_HINTS":      &cfg.Hints,
		"SETX_NO_SHUFFLE": &cfg.NoShuffle,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("SETX_SEED"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SETX_SEED: %w", err)
		}
		cfg.Seed = n
	}
	if v, ok := os.LookupEnv("SETX_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}
