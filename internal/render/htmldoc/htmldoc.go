// Package htmldoc implements render.Page over parsed HTML snapshots using
// goquery. Snapshots come from a browser capture or from a saved dump.
package htmldoc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"CrawlerNaverMap/internal/render"
)

// ErrInvalidSelector wraps selector compilation failures.
var ErrInvalidSelector = errors.New("htmldoc: invalid selector")

// Doc is one parsed rendering context.
type Doc struct {
	url  string
	html string
	doc  *goquery.Document
}

// Parse builds a Doc from raw markup.
func Parse(url, html string) (*Doc, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return &Doc{url: url, html: html, doc: doc}, nil
}

func (d *Doc) URL() string { return d.url }

// HTML returns the markup the Doc was parsed from.
func (d *Doc) HTML() string { return d.html }

func (d *Doc) QueryAll(ctx context.Context, selector string) ([]render.Element, error) {
	return query(ctx, d.doc.Selection, selector)
}

func (d *Doc) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.doc.Find("body").Text(), nil
}

// Page is a top document with its frames.
type Page struct {
	*Doc
	frames []*Doc
}

var _ render.Page = (*Page)(nil)

// NewPage assembles a Page. Frames keep the given order.
func NewPage(top *Doc, frames ...*Doc) *Page {
	return &Page{Doc: top, frames: frames}
}

func (p *Page) Frames(ctx context.Context) ([]render.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]render.Document, 0, len(p.frames))
	for _, f := range p.frames {
		out = append(out, f)
	}
	return out, nil
}

// FrameDocs exposes the parsed frames for dumping.
func (p *Page) FrameDocs() []*Doc { return p.frames }

type element struct {
	sel *goquery.Selection
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]render.Element, error) {
	return query(ctx, e.sel, selector)
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.sel.Length() == 0 {
		return "", render.ErrDetached
	}
	return e.sel.Text(), nil
}

func (e *element) Parent(ctx context.Context) (render.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := e.sel.Parent()
	if p.Length() == 0 {
		return nil, nil
	}
	return &element{sel: p}, nil
}

func (e *element) Children(ctx context.Context) ([]render.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wrap(e.sel.Children()), nil
}

func query(ctx context.Context, scope *goquery.Selection, selector string) ([]render.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, selector, err)
	}
	return wrap(scope.FindMatcher(m)), nil
}

func wrap(s *goquery.Selection) []render.Element {
	out := make([]render.Element, 0, s.Length())
	s.Each(func(_ int, one *goquery.Selection) {
		out = append(out, &element{sel: one})
	})
	return out
}
