package extract

import (
	"context"
	"fmt"
	"strings"

	"CrawlerNaverMap/internal/pattern"
	"CrawlerNaverMap/internal/render"
)

// ProximityMode picks which elements the phone-recovery scan considers.
type ProximityMode int

const (
	// ProximityInnermost only looks at elements that mention the name while
	// none of their element children do. Ancestors such as <html> or <body>,
	// whose text spans every listing, are skipped.
	ProximityInnermost ProximityMode = iota
	// ProximityDocument looks at every element mentioning the name, in
	// document order, starting from the root.
	ProximityDocument
)

func (m ProximityMode) String() string {
	if m == ProximityDocument {
		return "document"
	}
	return "innermost"
}

// ParseProximityMode accepts "innermost" or "document".
func ParseProximityMode(s string) (ProximityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "innermost":
		return ProximityInnermost, nil
	case "document":
		return ProximityDocument, nil
	}
	return 0, fmt.Errorf("unknown proximity mode %q", s)
}

// recoverPhone looks for a phone near any element of doc whose text
// contains name or its first word. For each qualifying element, in document
// order, the element's text, its parent's text and the text of the parent's
// children are joined and run through the phone cascade; the first hit wins.
// Which listing the phone belongs to is decided purely by position.
func recoverPhone(ctx context.Context, doc render.Document, name string, mode ProximityMode, tr *trace) (string, error) {
	token := name
	if f := strings.Fields(name); len(f) > 0 {
		token = f[0]
	}
	mentions := func(s string) bool {
		return strings.Contains(s, name) || strings.Contains(s, token)
	}

	els, err := doc.QueryAll(ctx, "*")
	if err != nil {
		return "", err
	}
	for _, el := range els {
		txt, err := el.Text(ctx)
		if err != nil {
			return "", err
		}
		txt = pattern.Clean(txt)
		if !mentions(txt) {
			continue
		}
		if mode == ProximityInnermost {
			inner, err := childMentions(ctx, el, mentions)
			if err != nil {
				return "", err
			}
			if inner {
				continue
			}
		}
		combined, err := neighbourhood(ctx, el, txt)
		if err != nil {
			return "", err
		}
		if m, ok := pattern.Phone(combined); ok {
			tr.add("phone near %q via %s pattern: %q", name, m.Form, m.Value)
			return m.Value, nil
		}
	}
	tr.add("no phone near %q", name)
	return "", nil
}

func childMentions(ctx context.Context, el render.Element, mentions func(string) bool) (bool, error) {
	kids, err := el.Children(ctx)
	if err != nil {
		return false, err
	}
	for _, k := range kids {
		t, err := k.Text(ctx)
		if err != nil {
			return false, err
		}
		if mentions(pattern.Clean(t)) {
			return true, nil
		}
	}
	return false, nil
}

// neighbourhood joins own, parent and sibling texts.
func neighbourhood(ctx context.Context, el render.Element, own string) (string, error) {
	parent, err := el.Parent(ctx)
	if err != nil || parent == nil {
		return own, err
	}
	parentText, err := parent.Text(ctx)
	if err != nil {
		return "", err
	}
	siblings, err := parent.Children(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(siblings))
	for _, s := range siblings {
		t, err := s.Text(ctx)
		if err != nil {
			return "", err
		}
		parts = append(parts, t)
	}
	return own + " " + pattern.Clean(parentText) + " " + pattern.Clean(strings.Join(parts, " ")), nil
}
