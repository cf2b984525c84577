// Package pattern holds the regular-expression cascades used to pull
// phone numbers, addresses and names out of rendered listing text.
package pattern

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// PhoneForm identifies which phone regex matched. Lower is more specific.
type PhoneForm int

const (
	FormExtended PhoneForm = iota + 1 // 4-4-4, e.g. 0507-1346-3668
	FormArea                          // 3-(3|4)-4, e.g. 070-1234-5678
	FormGeneric                       // (2|3)-(3|4)-4
)

func (f PhoneForm) String() string {
	switch f {
	case FormExtended:
		return "extended"
	case FormArea:
		return "area"
	case FormGeneric:
		return "generic"
	}
	return "none"
}

// AdMarker is the reserved advertisement token; names containing it are noise.
const AdMarker = "광고"

// Self-referential labels that the raw-text scan must not take as business names.
var labelTokens = []string{"전화", "번호"}

var (
	phoneForms = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}[-\s]?\d{4}[-\s]?\d{4}`),
		regexp.MustCompile(`\d{3}[-\s]?\d{3,4}[-\s]?\d{4}`),
		regexp.MustCompile(`\d{2,3}[-\s]?\d{3,4}[-\s]?\d{4}`),
	}

	// used to validate text picked by a phone locator
	phoneLoose = regexp.MustCompile(`\d{2,4}[-\s]?\d{3,4}[-\s]?\d{4}`)

	addressRe = regexp.MustCompile(`(경기도|서울|부산|대구|인천|광주|대전|울산|세종|강원|충북|충남|전북|전남|경북|경남|제주).*?[시군구].*?[동면읍로길]`)

	namePhoneForms = []*regexp.Regexp{
		regexp.MustCompile(`([가-힣a-zA-Z0-9\s&\-.()]{2,30})\s*(\d{4}[-\s]?\d{4}[-\s]?\d{4})`),
		regexp.MustCompile(`([가-힣a-zA-Z0-9\s&\-.()]{2,30})\s*(\d{3}[-\s]?\d{3,4}[-\s]?\d{4})`),
		regexp.MustCompile(`([가-힣a-zA-Z0-9\s&\-.()]{2,30})\s*(\d{2,3}[-\s]?\d{3,4}[-\s]?\d{4})`),
	}

	spaceRun = regexp.MustCompile(`[ \t]+`)
)

// Match is a phone found in a text unit.
type Match struct {
	Value string
	Form  PhoneForm
}

// Phone runs the phone cascade over text. Forms are tried most specific
// first and the first form that matches anywhere wins.
func Phone(text string) (Match, bool) {
	for i, re := range phoneForms {
		if m := re.FindString(text); m != "" {
			return Match{Value: m, Form: PhoneForm(i + 1)}, true
		}
	}
	return Match{}, false
}

// PhoneLoose returns the first loosely phone-shaped substring of text.
func PhoneLoose(text string) (string, bool) {
	m := phoneLoose.FindString(text)
	return m, m != ""
}

// Address returns the first administrative-region address span in text.
func Address(text string) string {
	return addressRe.FindString(text)
}

// IsNoise reports whether name carries the advertisement marker.
func IsNoise(name string) bool {
	return strings.Contains(name, AdMarker)
}

// IsLabel reports whether a name-shaped span is really a "phone"/"number" label.
func IsLabel(name string) bool {
	for _, t := range labelTokens {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// Pair is a name-shaped span followed by a phone in raw page text.
type Pair struct {
	Name  string
	Phone string
	Form  PhoneForm
}

// NamePhonePairs scans text with each name+phone form in turn, most
// specific first, and returns the raw pairs in scan order. A looser form
// never re-pairs digits an earlier pair already claimed, so "010-1234-5678"
// does not come back a second time as "0" + "10-1234-5678". Filtering and
// dedup are left to the caller.
func NamePhonePairs(text string) []Pair {
	var (
		out     []Pair
		claimed [][2]int
	)
	overlaps := func(start, end int) bool {
		for _, c := range claimed {
			if start < c[1] && c[0] < end {
				return true
			}
		}
		return false
	}
	for i, re := range namePhoneForms {
		var found [][2]int
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(m[4], m[5]) {
				continue
			}
			found = append(found, [2]int{m[4], m[5]})
			out = append(out, Pair{
				Name:  strings.TrimSpace(text[m[2]:m[3]]),
				Phone: text[m[4]:m[5]],
				Form:  PhoneForm(i + 1),
			})
		}
		claimed = append(claimed, found...)
	}
	return out
}

// FirstLine returns the first non-blank line of text, trimmed.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}

// Clean folds NBSP, composes Hangul (NFC) and trims. Newlines are kept so
// FirstLine still works on the result.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}

// Squash is Clean plus collapsing of horizontal whitespace runs.
func Squash(s string) string {
	return spaceRun.ReplaceAllString(Clean(s), " ")
}
