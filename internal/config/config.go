// Package config loads crawler settings from an optional .env file and the
// environment. CLI flags in main override what is loaded here.
package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"CrawlerNaverMap/internal/extract"
)

// ErrEmptyQuery is returned when there is nothing to search for.
var ErrEmptyQuery = errors.New("no query: set --query or LOCATIONS and KEYWORDS")

const (
	DefaultSearchURL = "https://map.naver.com/p/search/"
	// loopback only: the operator UI can start crawls and serve exports
	DefaultListenAddr = "127.0.0.1:8080"
)

type Config struct {
	SearchURL  string
	Headless   bool
	ChromePath string
	OutDir     string
	DBPath     string
	XLSX       bool

	// waits around navigation and before the fallback tiers
	SettleDelay       time.Duration
	MainPageDelay     time.Duration
	TextScanDelay     time.Duration
	ResultWait        time.Duration
	NavTimeout        time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
	RequestsPerMinute int

	Query     string
	Locations []string
	Keywords  []string
	Proximity extract.ProximityMode

	LogLevel   string
	LogFormat  string
	ListenAddr string
}

// Load reads files (default ".env") if present, then the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	headless, err := parseBool("HEADLESS", true)
	if err != nil {
		return Config{}, err
	}
	xlsx, err := parseBool("XLSX", false)
	if err != nil {
		return Config{}, err
	}
	mode, err := extract.ParseProximityMode(os.Getenv("PROXIMITY_MODE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		SearchURL:  valueOrDefault(os.Getenv("NAVER_SEARCH_URL"), DefaultSearchURL),
		Headless:   headless,
		ChromePath: strings.TrimSpace(os.Getenv("CHROME_PATH")),
		OutDir:     valueOrDefault(os.Getenv("OUT_DIR"), "data"),
		DBPath:     valueOrDefault(os.Getenv("DB_PATH"), "database.db"),
		XLSX:       xlsx,
		Query:      strings.TrimSpace(os.Getenv("QUERY")),
		Locations:  splitList(os.Getenv("LOCATIONS")),
		Keywords:   splitList(os.Getenv("KEYWORDS")),
		Proximity:  mode,
		LogLevel:   valueOrDefault(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:  valueOrDefault(os.Getenv("LOG_FORMAT"), "console"),
		ListenAddr: valueOrDefault(os.Getenv("LISTEN_ADDR"), DefaultListenAddr),
	}

	durations := []struct {
		key       string
		defaultMs int
		dst       *time.Duration
	}{
		{"SETTLE_DELAY_MS", 15000, &cfg.SettleDelay},
		{"MAIN_PAGE_DELAY_MS", 3000, &cfg.MainPageDelay},
		{"TEXT_SCAN_DELAY_MS", 2000, &cfg.TextScanDelay},
		{"RESULT_WAIT_TIMEOUT_MS", 10000, &cfg.ResultWait},
		{"NAV_TIMEOUT_MS", 30000, &cfg.NavTimeout},
		{"DELAY_MIN_MS", 2000, &cfg.DelayMin},
		{"DELAY_MAX_MS", 3000, &cfg.DelayMax},
	}
	for _, d := range durations {
		v, err := parseDurationEnv(d.key, d.defaultMs)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}
	if cfg.RequestsPerMinute, err = parseIntEnv("REQUESTS_PER_MINUTE", 30); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a config that is about to drive a crawl.
func (c *Config) Validate() error {
	if c.DelayMax < c.DelayMin {
		c.DelayMin, c.DelayMax = c.DelayMax, c.DelayMin
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.Query != "" {
		return nil
	}
	if len(c.Locations) == 0 || len(c.Keywords) == 0 {
		return ErrEmptyQuery
	}
	return nil
}

// Queries expands the run into search strings: the single query, or every
// "location keyword" pair in order.
func (c Config) Queries() []string {
	if c.Query != "" {
		return []string{c.Query}
	}
	out := make([]string, 0, len(c.Locations)*len(c.Keywords))
	for _, loc := range c.Locations {
		for _, kw := range c.Keywords {
			if q, ok := SearchQuery(loc, kw); ok {
				out = append(out, q)
			}
		}
	}
	return out
}

// SearchQuery joins a location and keyword; both must be non-blank.
func SearchQuery(location, keyword string) (string, bool) {
	location, keyword = strings.TrimSpace(location), strings.TrimSpace(keyword)
	if location == "" || keyword == "" {
		return "", false
	}
	return location + " " + keyword, true
}

// RandomDelay picks a pause in [DelayMin, DelayMax].
func (c Config) RandomDelay() time.Duration {
	if c.DelayMax <= c.DelayMin {
		return c.DelayMin
	}
	return c.DelayMin + time.Duration(rand.Int63n(int64(c.DelayMax-c.DelayMin)+1))
}

func parseBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return b, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func parseDurationEnv(key string, defaultMs int) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return time.Duration(defaultMs) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("invalid %s value: %d is negative", key, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s value: %d must be positive", key, n)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
