package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wizzardx/davinci/internal/logging"
	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/internal/verifier"
)

// ScheduleEntry declares a cron job that serve registers at startup.
type ScheduleEntry struct {
	Name     string   `json:"name"`
	Cron     string   `json:"cron"`
	Root     string   `json:"root"`
	Patterns []string `json:"patterns,omitempty"`
}

// Config holds all davinci configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath             string          `json:"db_path"` // empty disables run history
	LogLevel           string          `json:"log_level"`
	DepthBound         int             `json:"depth_bound"`
	StepBudget         int             `json:"step_budget"`
	PredicateTimeout   string          `json:"predicate_timeout"` // Go duration
	Workers            int             `json:"workers"`
	SecurityVocabulary []string        `json:"security_vocabulary,omitempty"`
	Schedule           []ScheduleEntry `json:"schedule,omitempty"`
	WatchPatterns      []string        `json:"watch_patterns,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:           filepath.Join(davinciDir(), "davinci.db"),
		LogLevel:         "info",
		DepthBound:       verifier.DefaultDepthBound,
		StepBudget:       verifier.DefaultStepBudget,
		PredicateTimeout: verifier.DefaultTimeout.String(),
	}
}

func davinciDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".davinci"
	}
	return filepath.Join(home, ".davinci")
}

func settingsPath() string {
	return filepath.Join(davinciDir(), "settings.json")
}

// loadConfig applies settings.json and env vars over the defaults. Flags are
// layered on top by bindFlags.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	if v, ok := os.LookupEnv("DAVINCI_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v := os.Getenv("DAVINCI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DAVINCI_DEPTH_BOUND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DepthBound = n
		}
	}
	if v := os.Getenv("DAVINCI_STEP_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StepBudget = n
		}
	}
	if v := os.Getenv("DAVINCI_PREDICATE_TIMEOUT"); v != "" {
		cfg.PredicateTimeout = v
	}
	if v := os.Getenv("DAVINCI_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("DAVINCI_SECURITY_VOCABULARY"); v != "" {
		cfg.SecurityVocabulary = splitList(v)
	}
	if v := os.Getenv("DAVINCI_WATCH_PATTERNS"); v != "" {
		cfg.WatchPatterns = splitList(v)
	}
	return cfg, nil
}

// bindFlags registers the shared configuration flags on fs, defaulting each
// to the already layered value.
func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "run history database (empty disables history)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.IntVar(&cfg.DepthBound, "depth-bound", cfg.DepthBound, "max transitions per custom-predicate path")
	fs.IntVar(&cfg.StepBudget, "step-budget", cfg.StepBudget, "max path expansions per custom-predicate check")
	fs.StringVar(&cfg.PredicateTimeout, "predicate-timeout", cfg.PredicateTimeout, "wall-clock limit per custom-predicate check")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent property checks (0: one per CPU)")
	fs.Func("security-vocabulary", "comma-separated security-relevant tokens", func(s string) error {
		cfg.SecurityVocabulary = splitList(s)
		return nil
	})
	fs.Func("patterns", "comma-separated document globs", func(s string) error {
		cfg.WatchPatterns = splitList(s)
		return nil
	})
}

func (c Config) verifierConfig() (verifier.Config, error) {
	timeout, err := time.ParseDuration(c.PredicateTimeout)
	if err != nil {
		return verifier.Config{}, fmt.Errorf("predicate_timeout: %w", err)
	}
	return verifier.Config{
		DepthBound:         c.DepthBound,
		StepBudget:         c.StepBudget,
		Timeout:            timeout,
		Workers:            c.Workers,
		SecurityVocabulary: c.SecurityVocabulary,
	}, nil
}

func (c Config) pipelineOptions() (pipeline.Options, error) {
	vc, err := c.verifierConfig()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{Verifier: vc}, nil
}

func newLogger(cfg Config) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel)})
	return slog.New(logging.NewCorrelationHandler(handler))
}

// openStore opens and migrates the history database. It returns nil when
// history is disabled.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
