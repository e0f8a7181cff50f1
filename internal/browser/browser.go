// Package browser provides page sessions behind one contract, backed either
// by headless Chrome for JavaScript-rendered sources or by a plain HTTP
// collector for static ones.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// ErrSelectorNotVisible is returned by WaitVisible when the selector did not
// appear within the given window. Callers escalate their own attempt budgets
// on it.
var ErrSelectorNotVisible = errors.New("selector not visible")

// Session is one isolated page context. Sessions are single-goroutine and
// carry their own cookies, user agent and proxy, so nothing leaks between
// concurrent crawl tasks.
type Session interface {
	// Navigate loads the URL and returns the HTTP status of the document
	// response. A zero status with nil error means the status could not be
	// observed and should be treated as 200.
	Navigate(ctx context.Context, url string) (int, error)
	// WaitVisible blocks until the selector matches at least one visible
	// node or the window elapses, returning ErrSelectorNotVisible on the
	// latter.
	WaitVisible(ctx context.Context, selector string, window time.Duration) error
	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (string, error)
	// BodyText returns the rendered text of the body element.
	BodyText(ctx context.Context) (string, error)
	Close() error
}

// StaticDocument is implemented by sessions whose document is final once
// Navigate returns. Callers may skip repeated selector waits against them,
// waiting longer cannot make a selector appear.
type StaticDocument interface {
	StaticDocument() bool
}

// Factory creates sessions bound to a crawl identity.
type Factory interface {
	NewSession(ctx context.Context, id harvest.Identity) (Session, error)
}
