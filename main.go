package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CrawlerNaverMap/internal/browser"
	"CrawlerNaverMap/internal/config"
	"CrawlerNaverMap/internal/crawl"
	"CrawlerNaverMap/internal/export"
	"CrawlerNaverMap/internal/extract"
	"CrawlerNaverMap/internal/logging"
	"CrawlerNaverMap/internal/render/htmldoc"
	"CrawlerNaverMap/internal/selector"
	"CrawlerNaverMap/internal/store"
)

type options struct {
	envFile   string
	query     string
	locations string
	keywords  string
	headless  bool
	outDir    string
	dbPath    string
	noDB      bool
	xlsx      bool
	dumpHTML  bool
	replay    string
	proximity string
	logLevel  string
	logFormat string
	serve     bool
	addr      string
	open      bool

	// flags given on the command line; only these override the config
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("crawler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.envFile, "env", ".env", "선택 .env 파일")
	fs.StringVar(&o.query, "query", "", "단일 검색어 (예: \"용인 음식점\")")
	fs.StringVar(&o.locations, "locations", "", "쉼표로 구분한 지역 (--keywords와 일괄 실행)")
	fs.StringVar(&o.keywords, "keywords", "", "쉼표로 구분한 키워드")
	fs.BoolVar(&o.headless, "headless", true, "Chromium을 headless 모드로 실행")
	fs.StringVar(&o.outDir, "out-dir", "data", "CSV/XLSX 저장 폴더")
	fs.StringVar(&o.dbPath, "db", "database.db", "SQLite 파일")
	fs.BoolVar(&o.noDB, "no-db", false, "SQLite에 저장하지 않음")
	fs.BoolVar(&o.xlsx, "xlsx", false, "XLSX도 저장")
	fs.BoolVar(&o.dumpHTML, "dump-html", false, "디버깅용 페이지 스냅샷(JSON) 저장")
	fs.StringVar(&o.replay, "replay", "", "브라우저 없이 저장된 스냅샷으로 추출 실행")
	fs.StringVar(&o.proximity, "proximity", "", "전화번호 근접 탐색 모드: innermost|document")
	fs.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error")
	fs.StringVar(&o.logFormat, "log-format", "", "console|plain|json")
	fs.BoolVar(&o.serve, "serve", false, "웹 UI 실행")
	fs.StringVar(&o.addr, "addr", "", "웹 UI 주소 (예: 127.0.0.1:8080)")
	fs.BoolVar(&o.open, "open", false, "브라우저에서 웹 UI 열기")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	o.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overlays explicitly given flags on cfg.
func (o options) apply(cfg *config.Config) error {
	if o.set["query"] {
		cfg.Query = strings.TrimSpace(o.query)
	}
	if o.set["locations"] {
		cfg.Locations = splitCSV(o.locations)
	}
	if o.set["keywords"] {
		cfg.Keywords = splitCSV(o.keywords)
	}
	if o.set["headless"] {
		cfg.Headless = o.headless
	}
	if o.set["out-dir"] {
		cfg.OutDir = o.outDir
	}
	if o.set["db"] {
		cfg.DBPath = o.dbPath
	}
	if o.set["xlsx"] {
		cfg.XLSX = o.xlsx
	}
	if o.set["proximity"] {
		m, err := extract.ParseProximityMode(o.proximity)
		if err != nil {
			return err
		}
		cfg.Proximity = m
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["log-format"] {
		cfg.LogFormat = o.logFormat
	}
	if o.set["addr"] {
		cfg.ListenAddr = o.addr
	}

	cfg.Query = sanitizeQuotes(cfg.Query)
	for i := range cfg.Locations {
		cfg.Locations[i] = sanitizeQuotes(cfg.Locations[i])
	}
	for i := range cfg.Keywords {
		cfg.Keywords[i] = sanitizeQuotes(cfg.Keywords[i])
	}
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := opts.apply(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if opts.serve {
		err = serve(ctx, cfg, logger, opts.open)
	} else {
		err = run(ctx, cfg, opts, logger)
	}
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("❌ 실패")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger zerolog.Logger) error {
	var replay *htmldoc.Page
	if opts.replay != "" {
		pg, snap, err := htmldoc.LoadFile(opts.replay)
		if err != nil {
			return fmt.Errorf("replay %s: %w", opts.replay, err)
		}
		replay = pg
		if cfg.Query == "" {
			cfg.Query = valueOr(snap.Query, "replay")
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	session := uuid.NewString()
	logger = logger.With().Str("session", session).Logger()

	runner := &crawl.Runner{
		Registry:  selector.Default(),
		Proximity: cfg.Proximity,
		TierDelays: map[string]time.Duration{
			extract.TierSemiStructural: cfg.MainPageDelay,
			extract.TierTextScan:       cfg.TextScanDelay,
		},
		Limiter: crawl.NewLimiter(cfg.RequestsPerMinute),
		Delay:   cfg.RandomDelay,
		Session: session,
		Log:     logger,
	}
	if opts.dumpHTML {
		runner.DumpDir = cfg.OutDir
	}

	if !opts.noDB {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.DBPath, err)
		}
		defer st.Close()
		runner.Sink = st
	}

	if replay != nil {
		logger.Info().Msgf("➡️  스냅샷 재실행: %s", opts.replay)
		runner.Source = crawl.ReplaySource{Page: replay}
		runner.TierDelays = nil
	} else {
		logger.Info().Msgf("➡️  Chrome 시작 (headless=%v)", cfg.Headless)
		b, err := browser.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()
		runner.Source = b
	}

	queries := cfg.Queries()
	results := runner.Run(ctx, queries)

	var rows []export.Row
	for _, r := range results {
		rows = append(rows, export.Rows(r.Query, r.CapturedAt, r.Outcome.Records)...)
	}
	logger.Info().Msgf("📦 총 %d곳 수집 (검색 %d건)", len(rows), len(results))

	now := time.Now()
	csvPath := filepath.Join(cfg.OutDir, export.FileName("naver", "csv", now))
	if err := export.WriteCSV(csvPath, rows); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	logger.Info().Msgf("💾 CSV 저장: %s", csvPath)
	if cfg.XLSX {
		xlsxPath := filepath.Join(cfg.OutDir, export.FileName("naver", "xlsx", now))
		if err := export.WriteXLSX(xlsxPath, rows); err != nil {
			logger.Warn().Err(err).Msg("XLSX 저장 실패")
		} else {
			logger.Info().Msgf("💾 XLSX 저장: %s", xlsxPath)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := crawl.Failed(results); n > 0 && n == len(queries) {
		return fmt.Errorf("all %d searches failed", n)
	}
	logger.Info().Msg("🏁 완료.")
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func sanitizeQuotes(s string) string {
	repl := map[rune]rune{
		'“': '"', '”': '"', '‟': '"', '〝': '"', '〞': '"',
		'‘': '\'', '’': '\'', '‛': '\'', '‚': '\'', '‹': '\'', '›': '\'',
	}
	var b strings.Builder
	for _, r := range s {
		if rr, ok := repl[r]; ok {
			b.WriteRune(rr)
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
