package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"CrawlerNaverMap/internal/extract"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HEADLESS", "XLSX", "PROXIMITY_MODE", "QUERY", "LOCATIONS", "KEYWORDS",
		"SETTLE_DELAY_MS", "DELAY_MIN_MS", "DELAY_MAX_MS", "REQUESTS_PER_MINUTE", "OUT_DIR", "LOG_LEVEL",
		"NAVER_SEARCH_URL", "LISTEN_ADDR", "NAV_TIMEOUT_MS"} {
		t.Setenv(k, "") // restores the old value after the test
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Headless || cfg.SearchURL != DefaultSearchURL || cfg.OutDir != "data" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.SettleDelay != 15*time.Second || cfg.RequestsPerMinute != 30 {
		t.Fatalf("timings = %v %d", cfg.SettleDelay, cfg.RequestsPerMinute)
	}
	if cfg.Proximity != extract.ProximityInnermost {
		t.Fatalf("proximity = %v", cfg.Proximity)
	}
	if cfg.ListenAddr != "127.0.0.1:8080" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestLoadDotEnvDoesNotOverrideEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	body := "LOCATIONS=용인시 처인구, 용인시 기흥구\nKEYWORDS=음식점,카페\nOUT_DIR=from-file\nPROXIMITY_MODE=document\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OUT_DIR", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutDir != "from-env" {
		t.Fatalf("OutDir = %q", cfg.OutDir)
	}
	if cfg.Proximity != extract.ProximityDocument {
		t.Fatalf("proximity = %v", cfg.Proximity)
	}
	want := []string{"용인시 처인구 음식점", "용인시 처인구 카페", "용인시 기흥구 음식점", "용인시 기흥구 카페"}
	if got := cfg.Queries(); !reflect.DeepEqual(got, want) {
		t.Fatalf("queries = %q", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("HEADLESS", "maybe")
	if _, err := Load(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Fatal("expected HEADLESS error")
	}
	t.Setenv("HEADLESS", "")
	t.Setenv("PROXIMITY_MODE", "closest")
	if _, err := Load(filepath.Join(t.TempDir(), "none")); err == nil {
		t.Fatal("expected PROXIMITY_MODE error")
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	cases := []struct{ key, value string }{
		{"SETTLE_DELAY_MS", "15s"},
		{"NAV_TIMEOUT_MS", "-1"},
		{"REQUESTS_PER_MINUTE", "lots"},
		{"REQUESTS_PER_MINUTE", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load(filepath.Join(t.TempDir(), "none"))
			if err == nil || !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	c := Config{DelayMin: 3 * time.Second, DelayMax: time.Second}
	if err := c.Validate(); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v", err)
	}
	if c.DelayMin != time.Second || c.DelayMax != 3*time.Second || c.RequestsPerMinute != 30 {
		t.Fatalf("not normalized: %+v", c)
	}
	c.Query = "강남 카페"
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := c.Queries(); len(got) != 1 || got[0] != "강남 카페" {
		t.Fatalf("queries = %q", got)
	}
}

func TestSearchQuery(t *testing.T) {
	if _, ok := SearchQuery("  ", "카페"); ok {
		t.Error("blank location accepted")
	}
	if _, ok := SearchQuery("용인", ""); ok {
		t.Error("blank keyword accepted")
	}
	if q, ok := SearchQuery(" 용인 ", " 카페 "); !ok || q != "용인 카페" {
		t.Errorf("got %q %v", q, ok)
	}
}

func TestRandomDelayBounds(t *testing.T) {
	c := Config{DelayMin: 10 * time.Millisecond, DelayMax: 20 * time.Millisecond}
	for i := 0; i < 50; i++ {
		if d := c.RandomDelay(); d < c.DelayMin || d > c.DelayMax {
			t.Fatalf("delay %v out of range", d)
		}
	}
}
