// Package selector holds ordered CSS locator cascades. A cascade is a hint,
// never an authority: every caller keeps a non-structural fallback.
package selector

import (
	"context"
	"strings"

	"CrawlerNaverMap/internal/render"
)

// Cascade is an immutable ordered list of locators, newest/most specific first.
type Cascade struct {
	Name     string
	locators []string
}

// New copies locators so later edits by the caller cannot leak in.
func New(name string, locators ...string) Cascade {
	return Cascade{Name: name, locators: append([]string(nil), locators...)}
}

// Locators returns a copy of the cascade's locators.
func (c Cascade) Locators() []string {
	return append([]string(nil), c.locators...)
}

// Match is the outcome of a successful cascade lookup.
type Match struct {
	Locator  string
	Elements []render.Element
}

// Resolve tries each locator in order and returns the first one that
// matches at least one element under q. ok is false on a structural miss,
// which is not an error.
func Resolve(ctx context.Context, q render.Queryer, c Cascade) (m Match, ok bool, err error) {
	for _, loc := range c.locators {
		els, err := q.QueryAll(ctx, loc)
		if err != nil {
			return Match{}, false, err
		}
		if len(els) > 0 {
			return Match{Locator: loc, Elements: els}, true, nil
		}
	}
	return Match{}, false, nil
}

// Hit is a text picked by a locator.
type Hit struct {
	Locator string
	Text    string
}

// FirstText walks the cascade and returns the trimmed text of the first
// locator whose first element has non-blank text.
func FirstText(ctx context.Context, q render.Queryer, c Cascade) (Hit, bool, error) {
	return FirstValid(ctx, q, c, func(s string) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

// FirstValid is FirstText with a caller-supplied check. accept receives the
// raw text of each locator's first element and returns the value to keep.
func FirstValid(ctx context.Context, q render.Queryer, c Cascade, accept func(string) (string, bool)) (Hit, bool, error) {
	for _, loc := range c.locators {
		els, err := q.QueryAll(ctx, loc)
		if err != nil {
			return Hit{}, false, err
		}
		if len(els) == 0 {
			continue
		}
		txt, err := els[0].Text(ctx)
		if err != nil {
			return Hit{}, false, err
		}
		if v, ok := accept(txt); ok {
			return Hit{Locator: loc, Text: v}, true, nil
		}
	}
	return Hit{}, false, nil
}
