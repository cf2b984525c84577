package crawl

import (
	"context"
	"sync"

	"CrawlerNaverMap/internal/render"
)

// livePage forwards to the latest capture so fallback tiers read what the
// tab shows after their pre-tier wait. Handles from older captures stay
// valid.
type livePage struct {
	mu  sync.Mutex
	cur render.Page
}

func (p *livePage) set(pg render.Page) {
	p.mu.Lock()
	p.cur = pg
	p.mu.Unlock()
}

func (p *livePage) page() render.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

func (p *livePage) URL() string { return p.page().URL() }

func (p *livePage) QueryAll(ctx context.Context, selector string) ([]render.Element, error) {
	return p.page().QueryAll(ctx, selector)
}

func (p *livePage) BodyText(ctx context.Context) (string, error) {
	return p.page().BodyText(ctx)
}

func (p *livePage) Frames(ctx context.Context) ([]render.Document, error) {
	return p.page().Frames(ctx)
}
