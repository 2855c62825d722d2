package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"feedfunnel/internal"
)

type TieBreak string

const (
	ExcludeWins TieBreak = "exclude_wins"
	IncludeWins TieBreak = "include_wins"
)

// Funnel holds the decision thresholds. It is read once per run and never
// mutated afterwards.
type Funnel struct {
	MinMarginPercent float64
	OperationalCost  float64
	HeuristicMarkup  float64
	DedupEnabled     bool
	TieBreak         TieBreak
}

func DefaultFunnel() Funnel {
	return Funnel{
		MinMarginPercent: 15.0,
		OperationalCost:  5.0,
		HeuristicMarkup:  1.25,
		DedupEnabled:     true,
		TieBreak:         ExcludeWins,
	}
}

func (f Funnel) Validate() error {
	var errs []error
	for key, v := range map[string]float64{
		"MIN_MARGIN_PERCENT": f.MinMarginPercent,
		"OPERATIONAL_COST":   f.OperationalCost,
		"HEURISTIC_MARKUP":   f.HeuristicMarkup,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, &internal.ConfigurationError{Key: key, Msg: fmt.Sprintf("must be a finite number, got %v", v)})
		}
	}
	if f.MinMarginPercent < 0 || f.MinMarginPercent >= 100 {
		errs = append(errs, &internal.ConfigurationError{Key: "MIN_MARGIN_PERCENT", Msg: fmt.Sprintf("must be in [0,100), got %v", f.MinMarginPercent)})
	}
	if f.OperationalCost < 0 {
		errs = append(errs, &internal.ConfigurationError{Key: "OPERATIONAL_COST", Msg: fmt.Sprintf("must be >= 0, got %v", f.OperationalCost)})
	}
	if f.HeuristicMarkup <= 0 {
		errs = append(errs, &internal.ConfigurationError{Key: "HEURISTIC_MARKUP", Msg: fmt.Sprintf("must be > 0, got %v", f.HeuristicMarkup)})
	}
	if f.TieBreak != ExcludeWins && f.TieBreak != IncludeWins {
		errs = append(errs, &internal.ConfigurationError{Key: "CATEGORY_TIE_BREAK", Msg: fmt.Sprintf("unknown policy %q", f.TieBreak)})
	}
	return errors.Join(errs...)
}

type Config struct {
	DBDriver     string
	DBDSN        string
	OutputDir    string
	FeedDir      string
	FeedEncoding string
	RulesFile    string

	Funnel          Funnel
	PipelineWorkers int

	ResolverAPIBaseURL   string
	ResolverAPIToken     string
	ResolverRateLimitRPS int
	ResolverTimeoutMs    int
	ResolverRetries      int
	ResolverBackoffMs    int

	ListenerIntervalSec int
	ListenerAutoExport  bool
	MetricsAddr         string

	LogLevel string
}

// Load reads .env (if present) and the process environment. Malformed
// threshold values are reported as configuration errors instead of being
// replaced by defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	p := &parser{}
	defaults := DefaultFunnel()

	cfg := Config{
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:        getEnv("DB_DSN", getEnv("DB_PATH", filepath.Join(cwd, "data", "feedfunnel.db"))),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		FeedDir:      getEnv("FEED_DIR", filepath.Join(cwd, "data", "feeds")),
		FeedEncoding: getEnv("FEED_ENCODING", "utf-8"),
		RulesFile:    getEnv("RULES_FILE", ""),

		Funnel: Funnel{
			MinMarginPercent: p.float("MIN_MARGIN_PERCENT", defaults.MinMarginPercent),
			OperationalCost:  p.float("OPERATIONAL_COST", defaults.OperationalCost),
			HeuristicMarkup:  p.float("HEURISTIC_MARKUP", defaults.HeuristicMarkup),
			DedupEnabled:     p.bool("DEDUP_ENABLED", defaults.DedupEnabled),
			TieBreak:         TieBreak(strings.ToLower(getEnv("CATEGORY_TIE_BREAK", string(defaults.TieBreak)))),
		},
		PipelineWorkers: p.int("PIPELINE_WORKERS", 1),

		ResolverAPIBaseURL:   getEnv("RESOLVER_API_BASE_URL", ""),
		ResolverAPIToken:     getEnv("RESOLVER_API_TOKEN", ""),
		ResolverRateLimitRPS: p.int("RESOLVER_RATE_LIMIT_RPS", 5),
		ResolverTimeoutMs:    p.int("RESOLVER_TIMEOUT_MS", 10000),
		ResolverRetries:      p.int("RESOLVER_RETRIES", 2),
		ResolverBackoffMs:    p.int("RESOLVER_BACKOFF_MS", 1000),

		ListenerIntervalSec: p.int("LISTENER_INTERVAL_SEC", 300),
		ListenerAutoExport:  p.bool("LISTENER_AUTO_EXPORT", true),
		MetricsAddr:         getEnv("METRICS_ADDR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks everything a feed run depends on before any record is read.
func (c Config) Validate() error {
	errs := []error{c.Funnel.Validate()}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, &internal.ConfigurationError{Key: "DB_DRIVER", Msg: fmt.Sprintf("unsupported driver %q", c.DBDriver)})
	}
	if c.PipelineWorkers < 1 {
		errs = append(errs, &internal.ConfigurationError{Key: "PIPELINE_WORKERS", Msg: "must be >= 1"})
	}
	if c.ResolverRetries < 0 {
		errs = append(errs, &internal.ConfigurationError{Key: "RESOLVER_RETRIES", Msg: "must be >= 0"})
	}
	return errors.Join(errs...)
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return &internal.ConfigurationError{Key: name, Msg: "missing required env var"}
	}
	return nil
}

type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, &internal.ConfigurationError{Key: key, Msg: fmt.Sprintf("not an integer: %q", value)})
		return fallback
	}
	return parsed
}

func (p *parser) float(key string, fallback float64) float64 {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		p.errs = append(p.errs, &internal.ConfigurationError{Key: key, Msg: fmt.Sprintf("not a finite number: %q", value)})
		return fallback
	}
	return parsed
}

func (p *parser) bool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	p.errs = append(p.errs, &internal.ConfigurationError{Key: key, Msg: fmt.Sprintf("not a boolean: %q", value)})
	return fallback
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
