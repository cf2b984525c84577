package extract

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"CrawlerNaverMap/internal/place"
	"CrawlerNaverMap/internal/render"
	"CrawlerNaverMap/internal/render/htmldoc"
	"CrawlerNaverMap/internal/selector"
)

const (
	topURL   = "https://map.naver.com/p/search/%EC%9A%A9%EC%9D%B8"
	frameURL = "https://pcmap.place.naver.com/place/list?query=x&from=search"
)

func doc(t *testing.T, url, html string) *htmldoc.Doc {
	t.Helper()
	d, err := htmldoc.Parse(url, html)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// pageWithFrame builds a page whose top document is top and whose single
// result frame holds frame. An empty frame string means no frames.
func pageWithFrame(t *testing.T, top, frame string) *htmldoc.Page {
	t.Helper()
	if frame == "" {
		return htmldoc.NewPage(doc(t, topURL, top))
	}
	return htmldoc.NewPage(doc(t, topURL, top), doc(t, frameURL, frame))
}

func frameInput(t *testing.T, frame string) Input {
	p := pageWithFrame(t, "<html><body></body></html>", frame)
	frames, _ := p.Frames(context.Background())
	return Input{Page: p, Frame: frames[0]}
}

func names(recs []place.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

// countingPage counts calls that reach the top-level document.
type countingPage struct {
	render.Page
	queries, bodyReads int
}

func (c *countingPage) QueryAll(ctx context.Context, sel string) ([]render.Element, error) {
	c.queries++
	return c.Page.QueryAll(ctx, sel)
}

func (c *countingPage) BodyText(ctx context.Context) (string, error) {
	c.bodyReads++
	return c.Page.BodyText(ctx)
}

type fakeTier struct {
	name  string
	recs  []place.Record
	err   error
	panic bool
	calls int
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) Extract(context.Context, Input) (Result, error) {
	f.calls++
	if f.panic {
		panic("renderer went away")
	}
	return Result{Records: f.recs, Trace: []string{"fake"}}, f.err
}

const listingFrame = `<html><body>
<div class="place_section_content"><ul>
  <li>
    <span class="TYaxT">한우명가</span>
    <span class="KCMnt">한식</span>
    <div>경기도 용인시 처인구 금령로 12</div>
    <span>0507-1346-3668</span>
  </li>
  <li>
    <span class="TYaxT">광고 스폰서 식당</span>
    <span>031-123-4567</span>
  </li>
  <li>
    <span class="TYaxT">Bistro Han</span>
    <span class="KCMnt">양식</span>
  </li>
</ul></div>
<div class="detail">
  <span>Bistro Han 본점</span>
  <span>0507-1234-5678</span>
</div>
</body></html>`

func TestStructuralExtractsAndFilters(t *testing.T) {
	reg := selector.Default()
	res, err := Structural{Reg: reg}.Extract(context.Background(), frameInput(t, listingFrame))
	if err != nil {
		t.Fatal(err)
	}
	want := []place.Record{
		{Name: "한우명가", Phone: "0507-1346-3668", Address: "경기도 용인시 처인구 금령로", Category: "한식"},
		{Name: "Bistro Han", Phone: "0507-1234-5678", Category: "양식"},
	}
	if !reflect.DeepEqual(res.Records, want) {
		t.Fatalf("records = %+v\nwant %+v", res.Records, want)
	}
	if len(res.Trace) == 0 {
		t.Fatal("expected trace lines")
	}
}

func TestProximityRecoveryModes(t *testing.T) {
	const frame = `<html><body>
<ul role="list">
  <li><strong>Bistro Han</strong><em>양식</em></li>
</ul>
<section>
  <p>영업 정보</p>
  <div><span>Bistro Han 예약</span> <span>0507-1234-5678</span></div>
</section>
</body></html>`
	for _, mode := range []ProximityMode{ProximityInnermost, ProximityDocument} {
		t.Run(mode.String(), func(t *testing.T) {
			res, err := Structural{Reg: selector.Default(), Proximity: mode}.Extract(context.Background(), frameInput(t, frame))
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Records) != 1 || res.Records[0].Phone != "0507-1234-5678" {
				t.Fatalf("records = %+v", res.Records)
			}
		})
	}
}

func TestProximityDocumentModeTakesFirstPhoneOnPage(t *testing.T) {
	// In document mode <html> is the first element mentioning the name, so
	// the first phone anywhere on the page is attached.
	res, err := Structural{Reg: selector.Default(), Proximity: ProximityDocument}.Extract(context.Background(), frameInput(t, listingFrame))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Records[1]; got.Name != "Bistro Han" || got.Phone != "0507-1346-3668" {
		t.Fatalf("record = %+v", got)
	}
}

func TestStructuralNameFallsBackToFirstLine(t *testing.T) {
	const frame = `<html><body><ul role="list"><li>
Joe's Diner
070-1111-2222
</li></ul></body></html>`
	res, err := Structural{Reg: selector.Default()}.Extract(context.Background(), frameInput(t, frame))
	if err != nil {
		t.Fatal(err)
	}
	want := []place.Record{{Name: "Joe's Diner", Phone: "070-1111-2222"}}
	if !reflect.DeepEqual(res.Records, want) {
		t.Fatalf("records = %+v", res.Records)
	}
}

func TestStructuralCapsAtFifteen(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><ul role="list">`)
	for i := 1; i <= 30; i++ {
		fmt.Fprintf(&b, "<li><strong>Place %02d</strong> 010-1000-%04d</li>", i, i)
	}
	b.WriteString(`</ul></body></html>`)

	res, err := Structural{Reg: selector.Default()}.Extract(context.Background(), frameInput(t, b.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != MaxStructuralItems {
		t.Fatalf("got %d records", len(res.Records))
	}
	for i, r := range res.Records {
		if want := fmt.Sprintf("Place %02d", i+1); r.Name != want {
			t.Fatalf("record %d = %q, want %q", i, r.Name, want)
		}
	}
}

func TestStructuralNoMatchesIsEmpty(t *testing.T) {
	res, err := Structural{Reg: selector.Default()}.Extract(context.Background(), frameInput(t, `<html><body><div><p>검색 결과가 없습니다</p></div></body></html>`))
	if err != nil || len(res.Records) != 0 {
		t.Fatalf("records=%v err=%v", res.Records, err)
	}
}

func TestStructuralWithoutFrame(t *testing.T) {
	res, err := Structural{Reg: selector.Default()}.Extract(context.Background(), Input{Page: pageWithFrame(t, "<html></html>", "")})
	if err != nil || !res.Empty() {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestNormalizerPhoneLocatorIsValidated(t *testing.T) {
	d := doc(t, "", `<ul><li><strong>카페 소소</strong><span class="phone">전화 문의</span><span class="cate">카페</span></li></ul>`)
	items, _ := d.QueryAll(context.Background(), "li")
	rec, ok, err := Normalizer{Reg: selector.Default()}.Normalize(context.Background(), items[0], &trace{})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if rec.Phone != "" || rec.Category != "카페" || rec.Name != "카페 소소" {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestNormalizerRejects(t *testing.T) {
	cases := map[string]string{
		"ad":    `<li><strong>광고 치킨</strong>02-123-4567</li>`,
		"short": `<li><strong>A</strong>02-123-4567</li>`,
		"blank": `<li>   </li>`,
	}
	for name, html := range cases {
		t.Run(name, func(t *testing.T) {
			d := doc(t, "", "<ul>"+html+"</ul>")
			items, _ := d.QueryAll(context.Background(), "li")
			tr := &trace{}
			_, ok, err := Normalizer{Reg: selector.Default()}.Normalize(context.Background(), items[0], tr)
			if err != nil || ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if last := tr.lines[len(tr.lines)-1]; !strings.HasPrefix(last, "rejected") {
				t.Fatalf("last trace line %q", last)
			}
		})
	}
}

func TestSemiStructuralPhoneFirst(t *testing.T) {
	const top = `<html><body><ul>
<li>
스타벅스 용인점
031-123-4567
</li>
<li>리뷰 없음</li>
<li>
광고 배너
02-555-1234
</li>
</ul></body></html>`
	p := pageWithFrame(t, top, "")
	res, err := SemiStructural{Reg: selector.Default()}.Extract(context.Background(), Input{Page: p})
	if err != nil {
		t.Fatal(err)
	}
	want := []place.Record{{Name: "스타벅스 용인점", Phone: "031-123-4567"}}
	if !reflect.DeepEqual(res.Records, want) {
		t.Fatalf("records = %+v", res.Records)
	}
}

func TestSemiStructuralCapsAtTen(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "<div data-id=\"%d\">\nShop %02d\n010-2000-%04d\n</div>", i, i, i)
	}
	b.WriteString("</body></html>")
	res, err := SemiStructural{Reg: selector.Default()}.Extract(context.Background(), Input{Page: pageWithFrame(t, b.String(), "")})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != MaxSemiItems || res.Records[9].Name != "Shop 10" {
		t.Fatalf("records = %v", names(res.Records))
	}
}

func TestTextScanDedupKeepsFirstPhone(t *testing.T) {
	p := pageWithFrame(t, `<html><body><div>Cafe A 010-1234-5678 | Cafe A 010-9999-0000</div></body></html>`, "")
	res, err := TextScan{}.Extract(context.Background(), Input{Page: p})
	if err != nil {
		t.Fatal(err)
	}
	want := []place.Record{{Name: "Cafe A", Phone: "010-1234-5678"}}
	if !reflect.DeepEqual(res.Records, want) {
		t.Fatalf("records = %+v", res.Records)
	}
}

func TestTextScanSkipsLabelsAndCaps(t *testing.T) {
	var b strings.Builder
	// body text joins paragraphs without spaces; "·" keeps name spans apart
	b.WriteString("<html><body><p>대표 전화 0507-1111-2222 ·</p>")
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "<p>가게%02d 0507-3000-%04d ·</p>", i, i)
	}
	b.WriteString("</body></html>")
	res, err := TextScan{}.Extract(context.Background(), Input{Page: pageWithFrame(t, b.String(), "")})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != MaxTextRecords {
		t.Fatalf("got %d records: %v", len(res.Records), names(res.Records))
	}
	for _, r := range res.Records {
		if strings.Contains(r.Name, "전화") {
			t.Fatalf("label leaked: %+v", r)
		}
	}
	if res.Records[0].Name != "가게01" || res.Records[0].Phone != "0507-3000-0001" {
		t.Fatalf("first = %+v", res.Records[0])
	}
}

func TestEngineStopsAtFirstNonEmptyTier(t *testing.T) {
	top := `<html><body><ul><li>
Main Page Shop
031-999-8888
</li></ul><p>Text Shop 010-5555-6666</p></body></html>`
	inner := pageWithFrame(t, top, listingFrame)
	page := &countingPage{Page: inner}

	e := New(selector.Default(), ProximityInnermost)
	out := e.Run(context.Background(), page)

	if out.Winner != TierStructural || len(out.Results) != 1 {
		t.Fatalf("winner=%q results=%d", out.Winner, len(out.Results))
	}
	if page.queries != 0 || page.bodyReads != 0 {
		t.Fatalf("top document touched: %d queries, %d body reads", page.queries, page.bodyReads)
	}
	if out.Frame != frameURL {
		t.Fatalf("frame = %q", out.Frame)
	}
}

func TestEngineFallsThroughTiers(t *testing.T) {
	t1 := &fakeTier{name: "t1"}
	t2 := &fakeTier{name: "t2", recs: []place.Record{{Name: "둘째", Phone: "1"}, {Name: "둘째", Phone: "2"}}}
	t3 := &fakeTier{name: "t3", recs: []place.Record{{Name: "셋째"}}}
	var hooked []string
	e := New(selector.Default(), ProximityInnermost,
		WithTiers(t1, t2, t3),
		WithBeforeTier(func(_ context.Context, tier string) { hooked = append(hooked, tier) }),
	)
	out := e.Run(context.Background(), pageWithFrame(t, "<html></html>", ""))

	if t1.calls != 1 || t2.calls != 1 || t3.calls != 0 {
		t.Fatalf("calls = %d %d %d", t1.calls, t2.calls, t3.calls)
	}
	if out.Winner != "t2" || len(out.Records) != 1 || out.Records[0].Phone != "1" {
		t.Fatalf("outcome = %+v", out)
	}
	if !reflect.DeepEqual(hooked, []string{"t2"}) {
		t.Fatalf("hook calls = %v", hooked)
	}
}

func TestEngineSurvivesTierFailures(t *testing.T) {
	t1 := &fakeTier{name: "t1", panic: true}
	t2 := &fakeTier{name: "t2", recs: []place.Record{{Name: "partial"}}, err: errors.New("context lost")}
	t3 := &fakeTier{name: "t3"}
	e := New(selector.Default(), ProximityInnermost, WithTiers(t1, t2, t3))
	out := e.Run(context.Background(), pageWithFrame(t, "<html></html>", ""))

	if out.Records == nil || len(out.Records) != 0 || out.Winner != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Results) != 3 || out.Results[0].Err == nil || out.Results[1].Err == nil {
		t.Fatalf("results = %+v", out.Results)
	}
	if t3.calls != 1 {
		t.Fatalf("t3 calls = %d", t3.calls)
	}
}

func TestEngineIdempotent(t *testing.T) {
	page := pageWithFrame(t, "<html><body><p>Cafe A 010-1234-5678</p></body></html>", listingFrame)
	e := New(selector.Default(), ProximityInnermost)
	first := e.Run(context.Background(), page)
	second := e.Run(context.Background(), page)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("runs differ:\n%+v\n%+v", first, second)
	}
}

func TestEngineTextFallbackEndToEnd(t *testing.T) {
	page := pageWithFrame(t, "<html><body><p>Cafe A 010-1234-5678 | Cafe A 010-9999-0000</p></body></html>", "")
	out := New(selector.Default(), ProximityInnermost).Run(context.Background(), page)
	if out.Winner != TierTextScan || out.Frame != "" || len(out.Results) != 3 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSelectFrame(t *testing.T) {
	top := doc(t, topURL, "<html></html>")
	entry := doc(t, "https://pcmap.place.naver.com/place/123/home", "<html></html>")
	list := doc(t, frameURL, "<html></html>")
	other := doc(t, "https://pcmap.place.naver.com/search/list2", "<html></html>")

	got, err := SelectFrame(context.Background(), htmldoc.NewPage(top, entry, list, other), DefaultFrameMarkers...)
	if err != nil || got.URL() != frameURL {
		t.Fatalf("got %v err %v", got, err)
	}
	_, err = SelectFrame(context.Background(), htmldoc.NewPage(top, entry), DefaultFrameMarkers...)
	if !errors.Is(err, ErrNoResultFrame) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseProximityMode(t *testing.T) {
	if m, err := ParseProximityMode("Document"); err != nil || m != ProximityDocument {
		t.Fatalf("m=%v err=%v", m, err)
	}
	if m, err := ParseProximityMode(""); err != nil || m != ProximityInnermost {
		t.Fatalf("m=%v err=%v", m, err)
	}
	if _, err := ParseProximityMode("nearest"); err == nil {
		t.Fatal("expected error")
	}
}
