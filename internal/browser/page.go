// Package browser owns the headless browser: a bounded pool of isolated sessions,
// the chromedp driver behind each session, and the page processing pipeline that
// runs once per session.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/scrapper/internal/params"
)

// ErrScreenshotTooLarge is returned by Page.Screenshot when a full-page capture
// exceeds the engine's maximum texture size.
var ErrScreenshotTooLarge = errors.New("screenshot larger than the maximum capturable size")

// Page is one browser tab bound to its session. Calls are not safe for concurrent use.
type Page interface {
	// AddInitScript registers source to run in every new document before page scripts.
	AddInitScript(source string) error
	// SetResourceFilter aborts requests whose resource type is not in allow.
	SetResourceFilter(allow []string) error
	// Navigate loads url and waits for the until condition or the timeout.
	Navigate(url string, until params.WaitUntil, timeout time.Duration) error
	// Evaluate runs expr in the page, awaiting promises, and decodes the result into res.
	Evaluate(expr string, res any) error
	// Content returns the serialized HTML of the current document.
	Content() (string, error)
	// Title returns the document title.
	Title() (string, error)
	// URL returns the current page URL after redirects.
	URL() (string, error)
	// Screenshot captures the full scrollable page or only the viewport.
	Screenshot(full bool) ([]byte, error)
}

// Session is an isolated browsing context with exactly one page.
type Session interface {
	Page
	// Close tears down the page, its context and any process it owns.
	Close() error
}

// SessionOptions configure a new session. They are never modified after creation.
type SessionOptions struct {
	Browser params.Browser
	Proxy   params.Proxy
}

// SessionFactory creates sessions. Implementations release everything they
// allocated when NewSession fails.
type SessionFactory interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}
