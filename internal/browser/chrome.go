package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// ChromeFactory builds headless Chrome sessions. Each session gets its own
// exec allocator so the proxy and user agent can differ per identity;
// Chrome's proxy flag is process-wide and cannot be changed on a tab.
type ChromeFactory struct {
	logger *zap.Logger
}

// NewChromeFactory returns a factory for headless sessions.
func NewChromeFactory(logger *zap.Logger) *ChromeFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeFactory{logger: logger}
}

// NewSession launches a browser process for the identity and opens one tab.
func (f *ChromeFactory) NewSession(ctx context.Context, id harvest.Identity) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "ja-JP"),
	)
	if id.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(id.UserAgent))
	}
	if id.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(id.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      f.logger.With(zap.String("session", "chrome")),
	}
	chromedp.ListenTarget(tabCtx, s.captureEvent)

	// Start the browser now so a broken Chrome install fails the task up
	// front instead of on the first page.
	startCtx, cancel := mergeDeadline(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(startCtx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu        sync.Mutex
	docStatus int
}

func (s *chromeSession) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	s.mu.Lock()
	s.docStatus = int(resp.Response.Status)
	s.mu.Unlock()
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (int, error) {
	s.mu.Lock()
	s.docStatus = 0
	s.mu.Unlock()

	runCtx, cancel := mergeDeadline(s.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return 0, fmt.Errorf("navigate %s: %w", url, err)
	}

	s.mu.Lock()
	status := s.docStatus
	s.mu.Unlock()
	return status, nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, window time.Duration) error {
	runCtx, cancel := mergeDeadline(s.tabCtx, ctx)
	defer cancel()
	runCtx, windowCancel := context.WithTimeout(runCtx, window)
	defer windowCancel()

	err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && s.tabCtx.Err() == nil {
		return ErrSelectorNotVisible
	}
	return fmt.Errorf("wait %q: %w", selector, err)
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(s.tabCtx, ctx)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read dom: %w", err)
	}
	return html, nil
}

func (s *chromeSession) BodyText(ctx context.Context) (string, error) {
	runCtx, cancel := mergeDeadline(s.tabCtx, ctx)
	defer cancel()
	var text string
	if err := chromedp.Run(runCtx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read body text: %w", err)
	}
	return text, nil
}

// Close tears down the tab and the browser process.
func (s *chromeSession) Close() error {
	s.tabCancel()
	s.allocCancel()
	return nil
}

// mergeDeadline runs chromedp actions on the tab context while honoring the
// caller's cancellation. chromedp.Run requires the tab context, so the
// caller's ctx is attached as a watcher.
func mergeDeadline(tabCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
