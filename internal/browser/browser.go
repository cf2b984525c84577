// Package browser drives a headless Chrome through chromedp: it opens the
// Naver Map search page for a query and captures the rendered page,
// frames included, as an htmldoc snapshot the extraction engine can read.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"CrawlerNaverMap/internal/config"
	"CrawlerNaverMap/internal/render/htmldoc"
)

// ResultsSelector is what the search page shows once results are rendering.
const ResultsSelector = `iframe, .place_item, .search_item`

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0 Safari/537.36"

// hides navigator.webdriver from the site scripts
const maskWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Browser owns one Chrome instance and one tab.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.Config
	log    zerolog.Logger
}

// New launches Chrome. Close must be called to release it.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	bctx, bcancel := chromedp.NewContext(allocCtx)
	b := &Browser{
		ctx: bctx,
		cancel: func() {
			bcancel()
			allocCancel()
		},
		cfg: cfg,
		log: log,
	}

	err := chromedp.Run(bctx,
		chromedp.EmulateViewport(1366, 768),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(maskWebdriver).Do(c)
			return err
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return b, nil
}

func allocatorOptions(cfg config.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.UserAgent(userAgent),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}
	return opts
}

// Close shuts the browser down.
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// scope derives a context that lives in the tab and ends when either the
// browser or the caller's ctx is done.
func (b *Browser) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(b.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// Search opens the result page for query and waits for it to settle. A
// missing result marker is logged, not returned: the engine decides what
// the page holds.
func (b *Browser) Search(ctx context.Context, query string) error {
	target, err := SearchURL(b.cfg.SearchURL, query)
	if err != nil {
		return err
	}
	tctx, cancel := b.scope(ctx)
	defer cancel()

	navCtx, cancelNav := context.WithTimeout(tctx, b.cfg.NavTimeout)
	defer cancelNav()
	b.log.Debug().Str("url", target).Msg("페이지 이동")
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		waitDOMComplete(),
	); err != nil {
		if tctx.Err() != nil {
			return tctx.Err()
		}
		return fmt.Errorf("navigate %s: %w", target, err)
	}

	if err := chromedp.Run(tctx, chromedp.Sleep(b.cfg.SettleDelay)); err != nil {
		return err
	}

	waitCtx, cancelWait := context.WithTimeout(tctx, b.cfg.ResultWait)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, waitForResults()); err != nil {
		if tctx.Err() != nil {
			return tctx.Err()
		}
		b.log.Warn().Err(err).Str("query", query).Msg("결과 표시 요소 없음, 그대로 추출")
	}
	return nil
}

// Open searches query and captures the result page.
func (b *Browser) Open(ctx context.Context, query string) (*htmldoc.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.Search(ctx, query); err != nil {
		return nil, err
	}
	return b.Capture(ctx)
}

// Refresh waits, then captures the tab again so late content is visible.
func (b *Browser) Refresh(ctx context.Context, wait time.Duration) (*htmldoc.Page, error) {
	if err := b.Pause(ctx, wait); err != nil {
		return nil, err
	}
	return b.Capture(ctx)
}

// Pause sleeps inside the tab; canceling ctx or closing the browser ends
// it early with the context error.
func (b *Browser) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	tctx, cancel := b.scope(ctx)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.Sleep(d)); err != nil {
		if tctx.Err() != nil {
			return tctx.Err()
		}
		return err
	}
	return nil
}

// SearchURL appends the path-escaped query to base.
func SearchURL(base, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", config.ErrEmptyQuery
	}
	if base == "" {
		base = config.DefaultSearchURL
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("search url %q: %w", base, err)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(query), nil
}

func waitDOMComplete() chromedp.Action {
	return chromedp.EvaluateAsDevTools(`new Promise(r=>{
        if (document.readyState==='complete') return r(true);
        window.addEventListener('load', ()=>r(true), {once:true});
    })`, nil)
}

func waitForResults() chromedp.Action {
	return chromedp.WaitReady(ResultsSelector, chromedp.ByQuery)
}

var errNoHTML = errors.New("empty document")
