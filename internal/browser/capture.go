package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"CrawlerNaverMap/internal/render/htmldoc"
)

const frameReadTimeout = 5 * time.Second

// Capture serializes the current tab: the top document plus every iframe
// whose document can be read. Unreadable frames are skipped.
func (b *Browser) Capture(ctx context.Context) (*htmldoc.Page, error) {
	tctx, cancel := b.scope(ctx)
	defer cancel()
	var (
		location string
		html     string
		iframes  []*cdp.Node
	)
	if err := chromedp.Run(tctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Nodes("iframe", &iframes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return nil, fmt.Errorf("capture top document: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("capture %s: %w", location, errNoHTML)
	}
	top, err := htmldoc.Parse(location, html)
	if err != nil {
		return nil, err
	}

	frames := make([]*htmldoc.Doc, 0, len(iframes))
	for i, n := range iframes {
		if err := tctx.Err(); err != nil {
			return nil, err
		}
		doc, err := b.captureFrame(tctx, n, location)
		if err != nil {
			b.log.Warn().Err(err).Int("frame", i).Msg("프레임 건너뜀")
			continue
		}
		frames = append(frames, doc)
	}
	b.log.Debug().Str("url", location).Int("frames", len(frames)).Msg("페이지 캡처")
	return htmldoc.NewPage(top, frames...), nil
}

func (b *Browser) captureFrame(tctx context.Context, n *cdp.Node, base string) (*htmldoc.Doc, error) {
	ctx, cancel := context.WithTimeout(tctx, frameReadTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery, chromedp.FromNode(n))); err != nil {
		return nil, fmt.Errorf("read frame %s: %w", frameURL(n, base), err)
	}
	return htmldoc.Parse(frameURL(n, base), html)
}

// frameURL prefers the loaded document URL, then the src attribute
// resolved against the parent page.
func frameURL(n *cdp.Node, base string) string {
	if n.ContentDocument != nil && n.ContentDocument.DocumentURL != "" {
		return n.ContentDocument.DocumentURL
	}
	return resolveSrc(base, n.AttributeValue("src"))
}

func resolveSrc(base, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	b, err := url.Parse(base)
	if err != nil {
		return src
	}
	return b.ResolveReference(ref).String()
}
