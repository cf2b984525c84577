package htmldoc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Frame is the serialized form of one rendering context.
type Frame struct {
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// Snapshot is the on-disk dump of a captured page.
type Snapshot struct {
	Session    string    `json:"session,omitempty"`
	Query      string    `json:"query,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Frame
	Frames []Frame `json:"frames"`
}

// Snapshot serializes p.
func (p *Page) Snapshot(session, query string, at time.Time) Snapshot {
	s := Snapshot{
		Session:    session,
		Query:      query,
		CapturedAt: at,
		Frame:      Frame{URL: p.url, HTML: p.html},
		Frames:     make([]Frame, 0, len(p.frames)),
	}
	for _, f := range p.frames {
		s.Frames = append(s.Frames, Frame{URL: f.url, HTML: f.html})
	}
	return s
}

// Page parses every frame of the snapshot back into a Page.
func (s Snapshot) Page() (*Page, error) {
	top, err := Parse(s.URL, s.HTML)
	if err != nil {
		return nil, err
	}
	frames := make([]*Doc, 0, len(s.Frames))
	for i, f := range s.Frames {
		d, err := Parse(f.URL, f.HTML)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, d)
	}
	return NewPage(top, frames...), nil
}

// ReadSnapshot decodes a dump.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// LoadFile reads a dump from disk and parses it.
func LoadFile(path string) (*Page, Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Snapshot{}, err
	}
	defer f.Close()
	s, err := ReadSnapshot(f)
	if err != nil {
		return nil, Snapshot{}, err
	}
	p, err := s.Page()
	return p, s, err
}

// WriteFile dumps s as indented JSON, creating parent directories.
func WriteFile(path string, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
