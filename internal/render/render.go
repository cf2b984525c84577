// Package render describes the rendered page the extraction engine reads.
//
// Every method crosses the automation boundary (a live browser or a captured
// snapshot) and takes a context; callers issue them one at a time.
package render

import (
	"context"
	"errors"
)

// ErrDetached is returned when a handle no longer belongs to a usable document.
var ErrDetached = errors.New("render: element detached")

// Queryer runs a CSS selector below a scope and returns matches in document order.
type Queryer interface {
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Element is a handle to one node of a Document.
type Element interface {
	Queryer
	// Text is the node's full text content, whitespace preserved.
	Text(ctx context.Context) (string, error)
	// Parent returns nil when the node has no element parent.
	Parent(ctx context.Context) (Element, error)
	// Children lists element children only.
	Children(ctx context.Context) ([]Element, error)
}

// Document is one rendering context: the top page or a frame.
type Document interface {
	Queryer
	URL() string
	// BodyText is the text content of the body element.
	BodyText(ctx context.Context) (string, error)
}

// Page is a top-level document plus the frames nested in it.
type Page interface {
	Document
	Frames(ctx context.Context) ([]Document, error)
}
