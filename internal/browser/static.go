package browser

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// StaticFactory builds plain HTTP sessions for sources that serve complete
// markup without JavaScript.
type StaticFactory struct {
	timeout time.Duration
}

// NewStaticFactory returns a factory for static sessions. A zero timeout
// defaults to 15 seconds per request.
func NewStaticFactory(timeout time.Duration) *StaticFactory {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StaticFactory{timeout: timeout}
}

// NewSession builds a collector bound to the identity.
func (f *StaticFactory) NewSession(_ context.Context, id harvest.Identity) (Session, error) {
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; rely on the synchronous default instead.
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
	}
	if id.UserAgent != "" {
		opts = append(opts, colly.UserAgent(id.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(f.timeout)
	c.WithTransport(newHTTPTransport())
	if id.Proxy != "" {
		if err := c.SetProxy(id.Proxy); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	s := &staticSession{collector: c}
	c.OnResponse(s.onResponse)
	c.OnError(s.onError)
	return s, nil
}

// staticSession keeps the last fetched document. There is nothing to wait
// for on static markup, so WaitVisible is an immediate selector check.
type staticSession struct {
	collector *colly.Collector

	mu       sync.Mutex
	status   int
	body     []byte
	fetchErr error
	doc      *goquery.Document
}

func (s *staticSession) onResponse(r *colly.Response) {
	s.mu.Lock()
	s.status = r.StatusCode
	s.body = append([]byte(nil), r.Body...)
	s.mu.Unlock()
}

func (s *staticSession) onError(r *colly.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r != nil && r.StatusCode > 0 {
		// The server answered, just unhappily. Record the status and body so
		// the caller can classify it, and leave the error unset.
		s.status = r.StatusCode
		s.body = append([]byte(nil), r.Body...)
		return
	}
	s.fetchErr = err
}

func (s *staticSession) Navigate(ctx context.Context, url string) (int, error) {
	s.mu.Lock()
	s.status = 0
	s.body = nil
	s.fetchErr = nil
	s.doc = nil
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		s.mu.Lock()
		status, fetchErr := s.status, s.fetchErr
		s.mu.Unlock()
		if fetchErr != nil {
			return 0, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if status > 0 {
			return status, nil
		}
		if visitErr != nil {
			return 0, fmt.Errorf("fetch %s: %w", url, visitErr)
		}
		return status, nil
	}
}

func (s *staticSession) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	doc, err := s.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return ErrSelectorNotVisible
	}
	return nil
}

// StaticDocument reports that the fetched document never changes, so a
// selector absent now stays absent.
func (s *staticSession) StaticDocument() bool { return true }

func (s *staticSession) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return string(s.body), nil
}

func (s *staticSession) BodyText(_ context.Context) (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	return doc.Find("body").Text(), nil
}

func (s *staticSession) document() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return s.doc, nil
	}
	if s.body == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	s.doc = doc
	return doc, nil
}

func (s *staticSession) Close() error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
