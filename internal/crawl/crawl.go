// Package crawl runs extraction sessions for a list of queries: it paces
// the searches, feeds each captured page to the engine and hands the
// records to a sink.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"CrawlerNaverMap/internal/extract"
	"CrawlerNaverMap/internal/place"
	"CrawlerNaverMap/internal/render/htmldoc"
	"CrawlerNaverMap/internal/selector"
)

// Source produces rendered pages for queries.
type Source interface {
	// Open searches query and captures the result page.
	Open(ctx context.Context, query string) (*htmldoc.Page, error)
	// Refresh captures the current page again after wait.
	Refresh(ctx context.Context, wait time.Duration) (*htmldoc.Page, error)
}

// Sink stores the records of one search.
type Sink interface {
	SaveSearch(ctx context.Context, query string, records []place.Record) (int64, error)
}

// Result is the outcome of one query.
type Result struct {
	Query      string
	CapturedAt time.Time
	Outcome    extract.Outcome
	SearchID   int64
	Snapshot   string
	Err        error
}

type Runner struct {
	Source    Source
	Sink      Sink
	Registry  selector.Registry
	Proximity extract.ProximityMode

	// TierDelays is the wait before a fallback tier, keyed by tier name.
	TierDelays map[string]time.Duration

	Limiter *rate.Limiter
	// Delay returns the pause between two queries.
	Delay func() time.Duration

	DumpDir string
	Session string
	Log     zerolog.Logger
	Now     func() time.Time
}

// NewLimiter allows perMinute searches per minute with no burst.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Run processes queries in order. A failing query is logged and recorded
// in its Result; the batch continues until ctx is done.
func (r *Runner) Run(ctx context.Context, queries []string) []Result {
	out := make([]Result, 0, len(queries))
	for i, q := range queries {
		if i > 0 && r.Delay != nil {
			if err := sleep(ctx, r.Delay()); err != nil {
				break
			}
		}
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				break
			}
		}
		res := r.one(ctx, i, q)
		out = append(out, res)
		if ctx.Err() != nil {
			break
		}
	}
	return out
}

func (r *Runner) one(ctx context.Context, idx int, query string) Result {
	log := r.Log.With().Str("query", query).Logger()
	res := Result{Query: query, CapturedAt: r.now()}

	log.Info().Msgf("🔎 검색 %d: %s", idx+1, query)
	pg, err := r.Source.Open(ctx, query)
	if err != nil {
		res.Err = fmt.Errorf("open %q: %w", query, err)
		log.Error().Err(err).Msg("검색 실패")
		return res
	}
	if r.DumpDir != "" {
		res.Snapshot = r.dump(log, idx, query, pg)
	}

	live := &livePage{cur: pg}
	engine := extract.New(r.Registry, r.Proximity,
		extract.WithLogger(log),
		extract.WithBeforeTier(func(ctx context.Context, tier string) {
			wait := r.TierDelays[tier]
			next, err := r.Source.Refresh(ctx, wait)
			if err != nil {
				log.Warn().Err(err).Str("tier", tier).Msg("재캡처 실패, 이전 캡처 사용")
				return
			}
			live.set(next)
		}),
	)
	res.Outcome = engine.Run(ctx, live)
	logTrace(log, res.Outcome)

	if len(res.Outcome.Records) == 0 {
		log.Info().Msg("⚠️ 결과 없음")
		return res
	}
	log.Info().Str("tier", res.Outcome.Winner).Msgf("✅ %d곳 추출", len(res.Outcome.Records))

	if r.Sink != nil {
		id, err := r.Sink.SaveSearch(ctx, query, res.Outcome.Records)
		if err != nil {
			res.Err = fmt.Errorf("save %q: %w", query, err)
			log.Error().Err(err).Msg("저장 실패")
			return res
		}
		res.SearchID = id
		log.Debug().Int64("search_id", id).Msg("저장 완료")
	}
	return res
}

func (r *Runner) dump(log zerolog.Logger, idx int, query string, pg *htmldoc.Page) string {
	at := r.now()
	name := fmt.Sprintf("snapshot_%s_%02d.json", at.Format("20060102_150405"), idx+1)
	path := filepath.Join(r.DumpDir, name)
	if err := htmldoc.WriteFile(path, pg.Snapshot(r.Session, query, at)); err != nil {
		log.Warn().Err(err).Msg("스냅샷 저장 실패")
		return ""
	}
	log.Info().Msgf("📝 스냅샷 저장: %s", path)
	return path
}

func logTrace(log zerolog.Logger, o extract.Outcome) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	if o.Frame != "" {
		log.Debug().Str("frame", o.Frame).Msg("결과 프레임")
	}
	for _, t := range o.Results {
		for _, line := range t.Trace {
			log.Debug().Str("tier", t.Tier).Msg(line)
		}
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Failed counts results with an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReplaySource serves one saved snapshot for every query.
type ReplaySource struct {
	Page *htmldoc.Page
}

var errNoPage = errors.New("replay: no page loaded")

func (s ReplaySource) Open(ctx context.Context, _ string) (*htmldoc.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Page == nil {
		return nil, errNoPage
	}
	return s.Page, nil
}

func (s ReplaySource) Refresh(ctx context.Context, _ time.Duration) (*htmldoc.Page, error) {
	return s.Open(ctx, "")
}
