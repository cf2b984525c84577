package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"CrawlerNaverMap/internal/place"
	"CrawlerNaverMap/internal/render"
	"CrawlerNaverMap/internal/selector"
)

// ErrNoResultFrame is traced when no frame carries the result markers.
var ErrNoResultFrame = errors.New("no result frame")

// DefaultFrameMarkers must all appear in a frame URL for it to hold results.
var DefaultFrameMarkers = []string{"search", "list"}

// Outcome is what one extraction session returns. Records is never nil.
type Outcome struct {
	Records []place.Record
	// Winner names the tier that produced Records, "" on a total miss.
	Winner string
	// Frame is the URL of the selected result frame, "" when none.
	Frame string
	// Results holds every tier that ran, in order.
	Results []Result
}

// Engine is the extraction session controller:
// FRAME_SELECT -> structural -> semi-structural -> text-scan, stopping at
// the first tier with records. It is not safe for concurrent sessions on
// the same page.
type Engine struct {
	tiers      []Tier
	markers    []string
	log        zerolog.Logger
	beforeTier func(ctx context.Context, tier string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for tier failures.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithTiers replaces the tier sequence.
func WithTiers(t ...Tier) Option { return func(e *Engine) { e.tiers = t } }

// WithFrameMarkers changes the tokens a result frame URL must contain.
func WithFrameMarkers(m ...string) Option { return func(e *Engine) { e.markers = m } }

// WithBeforeTier registers a hook called before every tier except the
// first, e.g. to let late content settle. It cannot alter the pipeline.
func WithBeforeTier(fn func(ctx context.Context, tier string)) Option {
	return func(e *Engine) { e.beforeTier = fn }
}

// New builds an engine with the default Naver cascades.
func New(reg selector.Registry, mode ProximityMode, opts ...Option) *Engine {
	e := &Engine{
		tiers: []Tier{
			Structural{Reg: reg, Proximity: mode},
			SemiStructural{Reg: reg},
			TextScan{},
		},
		markers: DefaultFrameMarkers,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes one session against page. It never fails: tier errors and
// panics degrade to an empty tier result.
func (e *Engine) Run(ctx context.Context, page render.Page) Outcome {
	in := Input{Page: page}
	out := Outcome{Records: []place.Record{}}

	frame, err := SelectFrame(ctx, page, e.markers...)
	if err != nil {
		e.log.Debug().Err(err).Msg("결과 프레임 선택 실패")
	} else {
		in.Frame = frame
		out.Frame = frame.URL()
	}

	for i, t := range e.tiers {
		if i > 0 && e.beforeTier != nil {
			e.beforeTier(ctx, t.Name())
		}
		res := e.guard(ctx, t, in)
		out.Results = append(out.Results, res)
		if !res.Empty() {
			out.Records = res.Records
			out.Winner = res.Tier
			break
		}
	}
	return out
}

func (e *Engine) guard(ctx context.Context, t Tier, in Input) (res Result) {
	name := t.Name()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tier %s panicked: %v", name, r)
			e.log.Warn().Err(err).Str("tier", name).Msg("단계 실패")
			res = Result{Tier: name, Trace: append(res.Trace, err.Error()), Err: err}
		}
	}()

	res, err := t.Extract(ctx, in)
	res.Tier = name
	if err != nil {
		e.log.Warn().Err(err).Str("tier", name).Msg("단계 실패")
		res.Records = nil
		res.Trace = append(res.Trace, "error: "+err.Error())
		res.Err = err
		return res
	}
	res.Records = place.Dedup(res.Records, 0)
	return res
}

// SelectFrame returns the first frame whose URL contains every marker.
func SelectFrame(ctx context.Context, page render.Page, markers ...string) (render.Document, error) {
	frames, err := page.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
next:
	for _, f := range frames {
		u := f.URL()
		for _, m := range markers {
			if !strings.Contains(u, m) {
				continue next
			}
		}
		return f, nil
	}
	return nil, ErrNoResultFrame
}
