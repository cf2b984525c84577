// Package extract is the tiered place-extraction engine. Three strategies
// of decreasing structural fidelity run in order against a rendered page
// and the first non-empty one wins.
package extract

import (
	"fmt"

	"CrawlerNaverMap/internal/place"
)

// Tier names, also used as the "tier" log field.
const (
	TierStructural     = "structural"
	TierSemiStructural = "semi-structural"
	TierTextScan       = "text-scan"
)

// Result is one tier's output. Trace is diagnostic only: nothing in the
// engine branches on it.
type Result struct {
	Tier    string
	Records []place.Record
	Trace   []string
	Err     error
}

// Empty reports whether the tier produced no records.
func (r Result) Empty() bool { return len(r.Records) == 0 }

type trace struct {
	lines []string
}

func (t *trace) add(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func (t *trace) result(tier string, recs []place.Record) Result {
	return Result{Tier: tier, Records: recs, Trace: t.lines}
}

// snippet shortens s for trace lines.
func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
