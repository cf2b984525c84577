package htmldoc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fixture = `<html><body>
<ul class="list">
  <li id="a"><strong>Alpha</strong><a href="#">go</a></li>
  <li id="b">Beta<span class="tel">02-123-4567</span></li>
</ul>
</body></html>`

func mustParse(t *testing.T, url, html string) *Doc {
	t.Helper()
	d, err := Parse(url, html)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestQueryAllDocumentOrder(t *testing.T) {
	ctx := context.Background()
	d := mustParse(t, "https://example.test/", fixture)

	els, err := d.QueryAll(ctx, "li, a")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, el := range els {
		txt, _ := el.Text(ctx)
		got = append(got, strings.TrimSpace(txt))
	}
	want := []string{"Alphago", "go", "Beta02-123-4567"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestScopedQueryExcludesScope(t *testing.T) {
	ctx := context.Background()
	d := mustParse(t, "", fixture)
	lis, _ := d.QueryAll(ctx, "li")
	inner, err := lis[0].QueryAll(ctx, "li, strong")
	if err != nil {
		t.Fatal(err)
	}
	if len(inner) != 1 {
		t.Fatalf("got %d matches, want only the strong", len(inner))
	}
}

func TestParentAndChildren(t *testing.T) {
	ctx := context.Background()
	d := mustParse(t, "", fixture)
	tels, _ := d.QueryAll(ctx, ".tel")
	parent, err := tels[0].Parent(ctx)
	if err != nil || parent == nil {
		t.Fatalf("parent: %v %v", parent, err)
	}
	kids, _ := parent.Children(ctx)
	if len(kids) != 1 {
		t.Fatalf("got %d children", len(kids))
	}

	roots, _ := d.QueryAll(ctx, "html")
	p, err := roots[0].Parent(ctx)
	if err != nil || p != nil {
		t.Fatalf("html parent = %v, %v; want nil", p, err)
	}
}

func TestInvalidSelector(t *testing.T) {
	d := mustParse(t, "", fixture)
	_, err := d.QueryAll(context.Background(), "li[")
	if !errors.Is(err, ErrInvalidSelector) {
		t.Fatalf("err = %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := mustParse(t, "", fixture)
	if _, err := d.QueryAll(ctx, "li"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if _, err := d.BodyText(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestSnapshotFile(t *testing.T) {
	ctx := context.Background()
	top := mustParse(t, "https://map.naver.com/p/search/x", "<html><body>top</body></html>")
	frame := mustParse(t, "https://pcmap.place.naver.com/place/list?query=x", fixture)
	page := NewPage(top, frame)

	path := filepath.Join(t.TempDir(), "dump", "snap.json")
	if err := WriteFile(path, page.Snapshot("s-1", "x", time.Unix(0, 0).UTC())); err != nil {
		t.Fatal(err)
	}
	got, snap, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Session != "s-1" || snap.Query != "x" {
		t.Fatalf("meta = %+v", snap)
	}
	frames, _ := got.Frames(ctx)
	if len(frames) != 1 || frames[0].URL() != frame.URL() {
		t.Fatalf("frames = %v", frames)
	}
	body, _ := got.BodyText(ctx)
	if body != "top" {
		t.Fatalf("body = %q", body)
	}
}
