package extract

import (
	"context"

	"CrawlerNaverMap/internal/pattern"
	"CrawlerNaverMap/internal/place"
	"CrawlerNaverMap/internal/render"
	"CrawlerNaverMap/internal/selector"
)

// Normalizer turns one result item into at most one candidate record.
type Normalizer struct {
	Reg selector.Registry
}

// Normalize resolves the item's fields and applies the acceptance gate.
// ok is false when the candidate was rejected; the reason is traced.
func (n Normalizer) Normalize(ctx context.Context, item render.Element, tr *trace) (place.Record, bool, error) {
	raw, err := item.Text(ctx)
	if err != nil {
		return place.Record{}, false, err
	}
	text := pattern.Clean(raw)
	tr.add("text: %q", snippet(text, 120))

	var rec place.Record

	// name: locator first, then the first non-blank line
	hit, ok, err := selector.FirstText(ctx, item, n.Reg.Name)
	if err != nil {
		return place.Record{}, false, err
	}
	if ok {
		rec.Name = pattern.Clean(hit.Text)
		tr.add("name via %s: %q", hit.Locator, rec.Name)
	} else {
		rec.Name = pattern.FirstLine(text)
		tr.add("name via first line: %q", rec.Name)
	}

	// phone: text cascade, then locators validated by the loose pattern
	if m, ok := pattern.Phone(text); ok {
		rec.Phone = m.Value
		tr.add("phone via %s pattern: %q", m.Form, rec.Phone)
	} else {
		hit, ok, err := selector.FirstValid(ctx, item, n.Reg.Phone, func(s string) (string, bool) {
			return pattern.PhoneLoose(pattern.Clean(s))
		})
		if err != nil {
			return place.Record{}, false, err
		}
		if ok {
			rec.Phone = hit.Text
			tr.add("phone via %s: %q", hit.Locator, rec.Phone)
		} else {
			tr.add("phone not found in item")
		}
	}

	rec.Address = pattern.Address(text)
	if rec.Address != "" {
		tr.add("address: %q", rec.Address)
	}

	hit, ok, err = selector.FirstText(ctx, item, n.Reg.Category)
	if err != nil {
		return place.Record{}, false, err
	}
	if ok {
		rec.Category = pattern.Clean(hit.Text)
		tr.add("category via %s: %q", hit.Locator, rec.Category)
	}

	if reason := place.Check(rec.Name); reason != "" {
		tr.add("rejected %q: %s", rec.Name, reason)
		return place.Record{}, false, nil
	}
	return rec, true, nil
}
