package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CrawlerNaverMap/internal/config"
	"CrawlerNaverMap/internal/store"
)

// =================== TYPES ===================

type runPayload struct {
	Query     string `json:"query"`
	Locations string `json:"locations"`
	Keywords  string `json:"keywords"`
	Headless  bool   `json:"headless"`
	DumpHTML  bool   `json:"dump_html"`
	XLSX      bool   `json:"xlsx"`
	Proximity string `json:"proximity"`
	OutDir    string `json:"out_dir"`
}

type row struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	PhoneNormalized string `json:"phone_normalized"`
	Address         string `json:"address"`
	Category        string `json:"category"`
	Query           string `json:"query"`
	CapturedAt      string `json:"captured_at"`
}

type runResponse struct {
	Ok        bool   `json:"ok"`
	Message   string `json:"message"`
	CSVPath   string `json:"csv_path"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at"`
	Results   []row  `json:"results,omitempty"`
}

type streamEvent struct {
	Type string `json:"type"` // "log" | "done"
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

// =================== HTML (template) ===================

var pageTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="ko"><head>
<meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1"/>
<title>Naver Map • Crawler UI</title>
<link rel="icon" href="data:,">
<script src="https://cdn.tailwindcss.com"></script>
<style>.table-wrap{max-height:420px;overflow:auto} th,td{white-space:nowrap}</style>
</head>
<body class="bg-gray-50 text-gray-900">
<div class="max-w-7xl mx-auto px-4 py-8">
  <h1 class="text-3xl font-bold text-center mb-8 text-green-600">Naver Map Crawler</h1>
  <div class="grid grid-cols-1 lg:grid-cols-3 gap-6">
    <div class="bg-white border rounded-xl p-5 space-y-3">
      <label class="block"><span class="text-sm">검색어</span>
        <input id="query" class="mt-1 w-full border rounded-md px-3 py-2" placeholder="용인시 처인구 음식점"></label>
      <label class="block"><span class="text-sm">지역 (일괄)</span>
        <input id="locations" class="mt-1 w-full border rounded-md px-3 py-2" placeholder="용인시 처인구, 용인시 기흥구"></label>
      <label class="block"><span class="text-sm">키워드 (일괄)</span>
        <input id="keywords" class="mt-1 w-full border rounded-md px-3 py-2" placeholder="음식점, 카페"></label>
      <label class="block"><span class="text-sm">저장 폴더</span>
        <input id="out-dir" value="{{.OutDir}}" class="mt-1 w-full border rounded-md px-3 py-2"></label>
      <label class="block"><span class="text-sm">전화번호 근접 모드</span>
        <select id="proximity" class="mt-1 w-full border rounded-md px-3 py-2">
          <option value="innermost">innermost</option><option value="document">document</option>
        </select></label>
      <div class="grid grid-cols-3 gap-3 text-sm">
        <label><input id="headless" type="checkbox" class="mr-2" checked>Headless</label>
        <label><input id="xlsx" type="checkbox" class="mr-2">XLSX</label>
        <label><input id="dump-html" type="checkbox" class="mr-2">Snapshot</label>
      </div>
      <button id="runBtn" class="w-full bg-green-600 text-white rounded-md py-2">▶️ 수집 시작</button>
      <hr>
      <h2 class="font-semibold">저장된 검색</h2>
      <ul id="searches" class="text-sm space-y-1"></ul>
    </div>
    <div class="lg:col-span-2 space-y-6">
      <div class="bg-white border rounded-xl p-5">
        <div class="flex justify-between mb-2"><h2 class="font-semibold">실행 및 로그</h2>
          <span id="status" class="text-xs px-2 py-1 rounded-full bg-gray-100">대기</span></div>
        <div id="logBox" class="h-64 overflow-auto bg-gray-900 text-green-200 text-xs font-mono p-3 rounded">로그 대기 중…</div>
        <a id="csvLink" class="hidden text-green-700 underline text-sm" href="#">⬇️ CSV 다운로드</a>
      </div>
      <div class="bg-white border rounded-xl p-5">
        <h2 class="font-semibold mb-2">결과 <span id="count" class="text-xs text-gray-500"></span></h2>
        <div class="table-wrap"><table class="min-w-full text-sm">
          <thead><tr><th class="px-3 py-2 text-left">이름</th><th class="px-3 py-2 text-left">전화번호</th>
          <th class="px-3 py-2 text-left">주소</th><th class="px-3 py-2 text-left">카테고리</th><th class="px-3 py-2 text-left">검색어</th></tr></thead>
          <tbody id="resultsBody"></tbody></table></div>
      </div>
    </div>
  </div>
</div>
<script>
(function () {
  const $ = id => document.getElementById(id);
  const esc = s => (s||'').replace(/[&<>"']/g,m=>({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[m]));
  function appendLog(line) {
    if ($('logBox').textContent.trim() === '로그 대기 중…') $('logBox').textContent = '';
    const p = document.createElement('div'); p.textContent = line; $('logBox').appendChild(p);
    $('logBox').scrollTop = $('logBox').scrollHeight;
  }
  function render(rows) {
    $('resultsBody').innerHTML = '';
    $('count').textContent = (rows||[]).length + '건';
    for (const r of rows||[]) {
      const tr = document.createElement('tr');
      tr.innerHTML = '<td class="px-3 py-2">'+esc(r.name)+'</td><td class="px-3 py-2">'+esc(r.phone)+'</td>'+
        '<td class="px-3 py-2">'+esc(r.address)+'</td><td class="px-3 py-2">'+esc(r.category)+'</td><td class="px-3 py-2">'+esc(r.query)+'</td>';
      $('resultsBody').appendChild(tr);
    }
  }
  async function loadSearches() {
    const resp = await fetch('/api/searches'); if (!resp.ok) return;
    const list = await resp.json(); $('searches').innerHTML = '';
    for (const s of list) {
      const li = document.createElement('li');
      li.innerHTML = '<a href="#" class="underline">'+esc(s.query)+'</a> <span class="text-gray-400">'+esc(s.created_at)+'</span>';
      li.querySelector('a').onclick = async e => {
        e.preventDefault();
        const r = await fetch('/api/places?search_id='+s.id); if (!r.ok) return;
        render((await r.json()).map(p => ({...p, query: s.query})));
      };
      $('searches').appendChild(li);
    }
  }
  $('runBtn').addEventListener('click', async () => {
    const payload = {
      query: $('query').value.trim(), locations: $('locations').value.trim(), keywords: $('keywords').value.trim(),
      headless: $('headless').checked, xlsx: $('xlsx').checked, dump_html: $('dump-html').checked,
      proximity: $('proximity').value, out_dir: $('out-dir').value.trim() || 'data'
    };
    $('logBox').textContent = '로그 대기 중…'; $('csvLink').classList.add('hidden'); render([]);
    $('status').textContent = '실행 중';
    const resp = await fetch('/api/run', {method:'POST', headers:{'Content-Type':'application/json'}, body: JSON.stringify(payload)});
    if (!resp.ok) { $('status').textContent = 'HTTP 오류'; appendLog('오류: '+resp.status); return; }
    const reader = resp.body.getReader(); const decoder = new TextDecoder();
    let buffer = '', finalData = null;
    while (true) {
      const {value, done} = await reader.read(); if (done) break;
      buffer += decoder.decode(value, {stream:true});
      const parts = buffer.split('\n'); buffer = parts.pop();
      for (const line of parts) {
        if (!line) continue;
        try { const ev = JSON.parse(line); if (ev.type === 'log') appendLog(ev.msg); else if (ev.type === 'done') finalData = ev.data; }
        catch { appendLog(line); }
      }
    }
    if (!finalData) { $('status').textContent = '실패'; return; }
    if (finalData.csv_path) { $('csvLink').href = '/api/download?path='+encodeURIComponent(finalData.csv_path); $('csvLink').classList.remove('hidden'); }
    render(finalData.results);
    $('status').textContent = finalData.ok ? '완료' : '완료 (경고 있음)';
    loadSearches();
  });
  loadSearches();
})();
</script>
</body></html>`))

// =================== SERVER ===================

type server struct {
	cfg   config.Config
	store *store.Store
	log   zerolog.Logger
	// bin is the crawler executable each run re-executes
	bin string
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger, open bool) error {
	s := &server{cfg: cfg, log: logger}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("데이터베이스 없음: /api/searches, /api/places 비활성화")
	} else {
		s.store = st
		defer st.Close()
	}
	s.bin = crawlerBin(logger)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	url := "http://localhost" + cfg.ListenAddr
	if !strings.HasPrefix(cfg.ListenAddr, ":") {
		url = "http://" + cfg.ListenAddr
	}
	logger.Info().Msgf("🌐 서버 실행 중: %s", url)
	if open {
		openBrowser(url)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// crawlerBin prefers CRAWLER_BIN, then the running executable.
func crawlerBin(logger zerolog.Logger) string {
	if bin := os.Getenv("CRAWLER_BIN"); bin != "" {
		if st, err := os.Stat(bin); err == nil && !st.IsDir() {
			return bin
		}
		logger.Warn().Str("bin", bin).Msg("CRAWLER_BIN 없음, 현재 실행 파일 사용")
	}
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/searches", s.handleSearches)
	mux.HandleFunc("GET /api/places", s.handlePlaces)
	return mux
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pageTmpl.Execute(w, struct{ OutDir string }{s.cfg.OutDir})
}

var downloadable = map[string]string{
	".csv":  "text/csv; charset=utf-8",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".json": "application/json",
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path 파라미터가 비어 있습니다", http.StatusBadRequest)
		return
	}
	ctype, ok := downloadable[strings.ToLower(filepath.Ext(path))]
	if !ok {
		http.Error(w, "허용되지 않는 파일 형식", http.StatusForbidden)
		return
	}
	rel, ok := insideDir(s.cfg.OutDir, path)
	if !ok {
		http.Error(w, "저장 폴더 밖의 파일", http.StatusForbidden)
		return
	}
	// os.Root also refuses symlinks that lead out of the directory
	root, err := os.OpenRoot(s.cfg.OutDir)
	if err != nil {
		http.Error(w, "저장 폴더를 열 수 없습니다", http.StatusNotFound)
		return
	}
	defer root.Close()
	if _, err := root.Stat(rel); err != nil {
		http.Error(w, "파일이 없습니다", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(rel))
	http.ServeFileFS(w, r, root.FS(), filepath.ToSlash(rel))
}

// insideDir reports path relative to dir, or false when it resolves
// outside dir.
func insideDir(dir, path string) (string, bool) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func (s *server) handleSearches(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "데이터베이스를 사용할 수 없습니다", http.StatusServiceUnavailable)
		return
	}
	list, err := s.store.Searches(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (s *server) handlePlaces(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "데이터베이스를 사용할 수 없습니다", http.StatusServiceUnavailable)
		return
	}
	var id int64
	if raw := r.URL.Query().Get("search_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "잘못된 search_id", http.StatusBadRequest)
			return
		}
		id = n
	}
	list, err := s.store.Places(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

// eventWriter serializes NDJSON events from the stdout and stderr readers.
type eventWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func (e *eventWriter) write(ev streamEvent) {
	b, _ := json.Marshal(ev)
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.w.Write(b)
	_, _ = e.w.Write([]byte("\n"))
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Cache-Control", "no-cache")
	ev := &eventWriter{w: w}

	var p runPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		ev.write(streamEvent{Type: "log", Msg: fmt.Sprintf("잘못된 요청: %v", err)})
		ev.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: "잘못된 요청"}})
		return
	}
	args, err := p.args(s.cfg.OutDir)
	if err != nil {
		msg := "검색어 또는 지역과 키워드를 입력하세요."
		if errors.Is(err, errOutDir) {
			msg = "저장 폴더는 " + s.cfg.OutDir + " 안이어야 합니다."
		}
		ev.write(streamEvent{Type: "log", Msg: msg})
		ev.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: err.Error()}})
		return
	}

	start := time.Now()
	ev.write(streamEvent{Type: "log", Msg: fmt.Sprintf("▶️ 실행: %s %s", s.bin, strings.Join(args, " "))})

	cmd := exec.CommandContext(ctx, s.bin, args...)
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		ev.write(streamEvent{Type: "log", Msg: fmt.Sprintf("실행 오류: %v", err)})
		ev.write(streamEvent{Type: "done", Data: runResponse{Ok: false, Message: err.Error(), StartedAt: start.Format(time.RFC3339)}})
		return
	}

	var wg sync.WaitGroup
	for _, pipe := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(rd io.Reader) {
			defer wg.Done()
			sc := bufio.NewScanner(rd)
			for sc.Scan() {
				ev.write(streamEvent{Type: "log", Msg: sc.Text()})
			}
		}(pipe)
	}
	wg.Wait()
	waitErr := cmd.Wait()

	outDir, _ := p.outDir(s.cfg.OutDir)
	csvPath := findLatestCSV(outDir, start)
	var preview []row
	if csvPath != "" {
		if rows, err := readCSVLimited(csvPath, 200); err == nil {
			preview = rows
		} else {
			ev.write(streamEvent{Type: "log", Msg: fmt.Sprintf("경고: CSV 미리보기 실패: %v", err)})
		}
	}

	msg := "ok"
	if waitErr != nil {
		msg = waitErr.Error()
	}
	ev.write(streamEvent{
		Type: "done",
		Data: runResponse{
			Ok:        waitErr == nil,
			Message:   msg,
			CSVPath:   csvPath,
			StartedAt: start.Format(time.RFC3339),
			EndedAt:   time.Now().Format(time.RFC3339),
			Results:   preview,
		},
	})
}

// errOutDir rejects a run whose out_dir escapes the server's OUT_DIR.
var errOutDir = errors.New("out_dir must stay inside the configured output directory")

// outDir resolves the payload's out_dir; it may only name base itself or
// a folder under it.
func (p runPayload) outDir(base string) (string, error) {
	dir := strings.TrimSpace(p.OutDir)
	if dir == "" || filepath.Clean(dir) == filepath.Clean(base) {
		return base, nil
	}
	if _, ok := insideDir(base, dir); !ok {
		return "", errOutDir
	}
	return dir, nil
}

// args turns the payload into crawler flags.
func (p runPayload) args(baseOutDir string) ([]string, error) {
	p.Query = strings.TrimSpace(p.Query)
	batch := strings.TrimSpace(p.Locations) != "" && strings.TrimSpace(p.Keywords) != ""
	if p.Query == "" && !batch {
		return nil, config.ErrEmptyQuery
	}
	outDir, err := p.outDir(baseOutDir)
	if err != nil {
		return nil, err
	}
	args := []string{"--out-dir", outDir, "--log-format", "plain"}
	if p.Query != "" {
		args = append(args, "--query", p.Query)
	} else {
		args = append(args, "--locations", p.Locations, "--keywords", p.Keywords)
	}
	if !p.Headless {
		args = append(args, "--headless=false")
	}
	if p.XLSX {
		args = append(args, "--xlsx")
	}
	if p.DumpHTML {
		args = append(args, "--dump-html")
	}
	if p.Proximity != "" {
		args = append(args, "--proximity", p.Proximity)
	}
	return args, nil
}

// findLatestCSV returns the newest export written since start.
func findLatestCSV(outDir string, since time.Time) string {
	entries, err := filepath.Glob(filepath.Join(outDir, "naver_*.csv"))
	if err != nil || len(entries) == 0 {
		return ""
	}
	var best string
	for _, e := range entries {
		st, err := os.Stat(e)
		if err != nil || st.ModTime().Before(since.Truncate(time.Second)) {
			continue
		}
		if best == "" || e > best {
			best = e
		}
	}
	return best
}

func readCSVLimited(path string, limit int) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := map[string]int{}
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var out []row
	for i := 1; i < len(records) && (limit <= 0 || len(out) < limit); i++ {
		rec := records[i]
		get := func(k string) string {
			j, ok := idx[k]
			if !ok || j >= len(rec) {
				return ""
			}
			return rec[j]
		}
		out = append(out, row{
			Name:            get("name"),
			Phone:           get("phone"),
			PhoneNormalized: get("phone_normalized"),
			Address:         get("address"),
			Category:        get("category"),
			Query:           get("query"),
			CapturedAt:      get("captured_at"),
		})
	}
	return out, nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
