package extract

import (
	"context"
	"unicode/utf8"

	"CrawlerNaverMap/internal/pattern"
	"CrawlerNaverMap/internal/place"
	"CrawlerNaverMap/internal/render"
	"CrawlerNaverMap/internal/selector"
)

// Per-tier caps.
const (
	MaxStructuralItems = 15
	MaxSemiItems       = 10
	MaxTextRecords     = 10
)

// Input is what a tier may read. Frame is nil when no result frame was found.
type Input struct {
	Page  render.Page
	Frame render.Document
}

// Tier is one extraction strategy.
type Tier interface {
	Name() string
	Extract(ctx context.Context, in Input) (Result, error)
}

// =============== Tier 1: structural, frame scoped ===============

// Structural reads list items from the result frame through the selector
// cascades, name first, and recovers missing phones by proximity.
type Structural struct {
	Reg       selector.Registry
	Proximity ProximityMode
}

func (s Structural) Name() string { return TierStructural }

func (s Structural) Extract(ctx context.Context, in Input) (Result, error) {
	tr := &trace{}
	if in.Frame == nil {
		tr.add("no result frame")
		return tr.result(TierStructural, nil), nil
	}

	items, err := s.items(ctx, in.Frame, tr)
	if err != nil {
		return tr.result(TierStructural, nil), err
	}
	if len(items) > MaxStructuralItems {
		tr.add("capping %d items at %d", len(items), MaxStructuralItems)
		items = items[:MaxStructuralItems]
	}

	norm := Normalizer{Reg: s.Reg}
	var out []place.Record
	for i, item := range items {
		tr.add("=== item %d ===", i+1)
		rec, ok, err := norm.Normalize(ctx, item, tr)
		if err != nil {
			if ctx.Err() != nil {
				return tr.result(TierStructural, nil), ctx.Err()
			}
			tr.add("item %d error: %v", i+1, err)
			continue
		}
		if !ok {
			continue
		}
		if rec.Phone == "" {
			phone, err := recoverPhone(ctx, in.Frame, rec.Name, s.Proximity, tr)
			if err != nil {
				return tr.result(TierStructural, nil), err
			}
			rec.Phone = phone
		}
		out = append(out, rec)
	}
	return tr.result(TierStructural, out), nil
}

func (s Structural) items(ctx context.Context, frame render.Document, tr *trace) ([]render.Element, error) {
	m, ok, err := selector.Resolve(ctx, frame, s.Reg.Container)
	if err != nil {
		return nil, err
	}
	if ok {
		tr.add("container: %s", m.Locator)
		items, err := m.Elements[0].QueryAll(ctx, s.Reg.Children)
		if err != nil {
			return nil, err
		}
		tr.add("%d items under container", len(items))
		return items, nil
	}
	m, ok, err = selector.Resolve(ctx, frame, s.Reg.Item)
	if err != nil {
		return nil, err
	}
	if !ok {
		tr.add("no container or item locator matched")
		return nil, nil
	}
	tr.add("items: %s (%d)", m.Locator, len(m.Elements))
	return m.Elements, nil
}

// =============== Tier 2: semi-structural, whole document ===============

// SemiStructural scans generic document-wide locators and keeps only
// elements whose text carries a phone. Address and category stay empty.
type SemiStructural struct {
	Reg selector.Registry
}

func (s SemiStructural) Name() string { return TierSemiStructural }

func (s SemiStructural) Extract(ctx context.Context, in Input) (Result, error) {
	tr := &trace{}
	m, ok, err := selector.Resolve(ctx, in.Page, s.Reg.Main)
	if err != nil {
		return tr.result(TierSemiStructural, nil), err
	}
	if !ok {
		tr.add("no main-page locator matched")
		return tr.result(TierSemiStructural, nil), nil
	}
	tr.add("main: %s (%d)", m.Locator, len(m.Elements))

	els := m.Elements
	if len(els) > MaxSemiItems {
		els = els[:MaxSemiItems]
	}
	var out []place.Record
	for _, el := range els {
		raw, err := el.Text(ctx)
		if err != nil {
			return tr.result(TierSemiStructural, nil), err
		}
		text := pattern.Clean(raw)
		ph, ok := pattern.Phone(text)
		if !ok {
			continue
		}
		name := pattern.FirstLine(text)
		if reason := place.Check(name); reason != "" {
			tr.add("rejected %q: %s", name, reason)
			continue
		}
		tr.add("%q %s (%s)", name, ph.Value, ph.Form)
		out = append(out, place.Record{Name: name, Phone: ph.Value})
	}
	return tr.result(TierSemiStructural, out), nil
}

// =============== Tier 3: raw text scan ===============

// TextScan pairs name-shaped spans with the phone that follows them in the
// page's body text.
type TextScan struct{}

func (TextScan) Name() string { return TierTextScan }

func (TextScan) Extract(ctx context.Context, in Input) (Result, error) {
	tr := &trace{}
	raw, err := in.Page.BodyText(ctx)
	if err != nil {
		return tr.result(TierTextScan, nil), err
	}
	text := pattern.Clean(raw)
	tr.add("body text: %d chars", utf8.RuneCountInString(text))

	var out []place.Record
	seen := map[string]bool{}
	for _, p := range pattern.NamePhonePairs(text) {
		if len(out) >= MaxTextRecords {
			break
		}
		n := utf8.RuneCountInString(p.Name)
		switch {
		case n <= 1 || n >= 30:
			continue
		case pattern.IsLabel(p.Name):
			tr.add("label %q skipped", p.Name)
			continue
		case pattern.IsNoise(p.Name):
			tr.add("rejected %q: %s", p.Name, place.ReasonAd)
			continue
		case seen[p.Name]:
			continue
		}
		seen[p.Name] = true
		tr.add("%q %s (%s)", p.Name, p.Phone, p.Form)
		out = append(out, place.Record{Name: p.Name, Phone: p.Phone})
	}
	return tr.result(TierTextScan, out), nil
}
