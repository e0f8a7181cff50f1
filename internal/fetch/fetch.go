// Package fetch turns one page URL into a classified outcome. It owns the
// waiting strategy for late-rendering listings and the retry budget for
// transient failures, so callers only ever see terminal outcome kinds.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/metrics"
)

// Config tunes the state machine. Zero values take the defaults below.
type Config struct {
	// SelectorAttempts is how many escalating waits the card selector gets
	// before the page counts as a transient failure.
	SelectorAttempts int
	// BaseWindow and WindowStep size attempt i's wait as Base + i*Step.
	BaseWindow time.Duration
	WindowStep time.Duration
	// BasePause and PauseStep size the pause after a failed attempt the same
	// way.
	BasePause time.Duration
	PauseStep time.Duration
	// PageAttempts is the total number of fetches a transient page gets
	// before the failure is surfaced. 1 disables retrying.
	PageAttempts int
	RetryDelay   time.Duration
	// SettleDelay is the pause before recounting cards once the selector
	// appeared. Listings append cards while rendering, counting too early
	// truncates the page.
	SettleDelay time.Duration
	// Snapshots stores the raw DOM of each fetched page in the blob store.
	Snapshots bool
}

func (c Config) withDefaults() Config {
	if c.SelectorAttempts <= 0 {
		c.SelectorAttempts = 4
	}
	if c.BaseWindow <= 0 {
		c.BaseWindow = 2 * time.Second
	}
	if c.WindowStep <= 0 {
		c.WindowStep = 500 * time.Millisecond
	}
	if c.BasePause <= 0 {
		c.BasePause = 600 * time.Millisecond
	}
	if c.PauseStep <= 0 {
		c.PauseStep = 200 * time.Millisecond
	}
	if c.PageAttempts <= 0 {
		c.PageAttempts = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 3 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	return c
}

// Machine fetches and classifies listing pages.
type Machine struct {
	cfg    Config
	logger *zap.Logger
	blobs  harvest.BlobStore
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// New builds a Machine. blobs may be nil when snapshots are disabled.
func New(cfg Config, logger *zap.Logger, blobs harvest.BlobStore) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		cfg:    cfg.withDefaults(),
		logger: logger,
		blobs:  blobs,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// FetchPage loads one listing page and returns its outcome. Transient
// failures are retried internally up to the configured budget, everything
// the caller sees is terminal except PageTransient after budget exhaustion.
func (m *Machine) FetchPage(ctx context.Context, sess browser.Session, site adapter.Site, url string, page int) harvest.PageOutcome {
	var outcome harvest.PageOutcome
	for attempt := 0; ; attempt++ {
		outcome = m.fetchOnce(ctx, sess, site, url, page)
		outcome.Attempts = attempt + 1
		if outcome.Kind != harvest.PageTransient || attempt+1 >= m.cfg.PageAttempts || ctx.Err() != nil {
			break
		}
		delay := m.cfg.RetryDelay * time.Duration(attempt+1)
		m.logger.Warn("page fetch failed, retrying",
			zap.String("source", site.Name()),
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(outcome.Err))
		metrics.PagesRetried.WithLabelValues(site.Name()).Inc()
		if err := m.sleep(ctx, delay); err != nil {
			outcome.Err = err
			break
		}
	}
	m.observe(site.Name(), outcome)
	return outcome
}

func (m *Machine) fetchOnce(ctx context.Context, sess browser.Session, site adapter.Site, url string, page int) harvest.PageOutcome {
	status, err := sess.Navigate(ctx, url)
	if err != nil {
		return harvest.PageOutcome{Kind: harvest.PageTransient, Err: err}
	}
	if out, done := classifyStatus(status, url); done {
		return out
	}

	bodyText, err := sess.BodyText(ctx)
	if err != nil {
		return harvest.PageOutcome{Kind: harvest.PageTransient, Err: err}
	}
	if site.IsNoResultsPage(bodyText) {
		return harvest.PageOutcome{Kind: harvest.PageNoResults}
	}

	if err := m.awaitCards(ctx, sess, site); err != nil {
		if errors.Is(err, browser.ErrSelectorNotVisible) {
			// One last look at the text: the empty-result phrase can render
			// after the first check on slow pages.
			if text, terr := sess.BodyText(ctx); terr == nil && site.IsNoResultsPage(text) {
				return harvest.PageOutcome{Kind: harvest.PageNoResults}
			}
			m.snapshot(ctx, site.Name(), url, page, sess)
			return harvest.PageOutcome{
				Kind: harvest.PageTransient,
				Err:  fmt.Errorf("cards never appeared on %s: %w", url, err),
			}
		}
		return harvest.PageOutcome{Kind: harvest.PageTransient, Err: err}
	}

	doc, err := m.settledDocument(ctx, sess, site.CardSelector())
	if err != nil {
		return harvest.PageOutcome{Kind: harvest.PageTransient, Err: err}
	}
	m.snapshot(ctx, site.Name(), url, page, sess)

	outcome := harvest.PageOutcome{Kind: harvest.PageCards}
	cards := doc.Find(site.CardSelector())
	total := cards.Length()
	cards.Each(func(i int, sel *goquery.Selection) {
		if site.IsPromotionalCard(sel, i, total) {
			outcome.PromoSkipped++
			return
		}
		rec := site.ExtractRecord(sel)
		if rec == nil {
			outcome.CardErrors++
			return
		}
		outcome.Records = append(outcome.Records, *rec)
	})
	outcome.MoreAvailable = site.HasMorePages(doc, page)
	return outcome
}

// awaitCards gives the card selector escalating windows with growing pauses
// in between.
func (m *Machine) awaitCards(ctx context.Context, sess browser.Session, site adapter.Site) error {
	var lastErr error
	for i := 0; i < m.cfg.SelectorAttempts; i++ {
		window := m.cfg.BaseWindow + time.Duration(i)*m.cfg.WindowStep
		lastErr = sess.WaitVisible(ctx, site.CardSelector(), window)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, browser.ErrSelectorNotVisible) {
			return lastErr
		}
		// A static document cannot grow cards later, further attempts only
		// burn time.
		if sd, ok := sess.(browser.StaticDocument); ok && sd.StaticDocument() {
			return lastErr
		}
		if i < m.cfg.SelectorAttempts-1 {
			pause := m.cfg.BasePause + time.Duration(i)*m.cfg.PauseStep
			if err := m.sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// settledDocument parses the DOM and recounts the cards once after a short
// pause, taking the later parse when the page was still appending.
func (m *Machine) settledDocument(ctx context.Context, sess browser.Session, cardSelector string) (*goquery.Document, error) {
	_, count, err := m.parseCards(ctx, sess, cardSelector)
	if err != nil {
		return nil, err
	}
	if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
		return nil, err
	}
	doc, recount, err := m.parseCards(ctx, sess, cardSelector)
	if err != nil {
		return nil, err
	}
	if recount != count {
		if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
			return nil, err
		}
		doc, _, err = m.parseCards(ctx, sess, cardSelector)
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (m *Machine) parseCards(ctx context.Context, sess browser.Session, cardSelector string) (*goquery.Document, int, error) {
	html, err := sess.HTML(ctx)
	if err != nil {
		return nil, 0, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("parse page: %w", err)
	}
	return doc, doc.Find(cardSelector).Length(), nil
}

func classifyStatus(status int, url string) (harvest.PageOutcome, bool) {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return harvest.PageOutcome{Kind: harvest.PageNotFound}, true
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return harvest.PageOutcome{
			Kind: harvest.PageBlocked,
			Err:  fmt.Errorf("blocked with status %d on %s", status, url),
		}, true
	case status >= 500:
		return harvest.PageOutcome{
			Kind: harvest.PageTransient,
			Err:  fmt.Errorf("server error %d on %s", status, url),
		}, true
	}
	return harvest.PageOutcome{}, false
}

func (m *Machine) snapshot(ctx context.Context, source, url string, page int, sess browser.Session) {
	if !m.cfg.Snapshots || m.blobs == nil {
		return
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		m.logger.Warn("snapshot skipped", zap.String("url", url), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/page-%d.html", source, m.now().UTC().Format("2006-01-02T15-04-05"), page)
	if _, err := m.blobs.PutObject(ctx, path, "text/html; charset=utf-8", []byte(html)); err != nil {
		m.logger.Warn("snapshot upload failed", zap.String("path", path), zap.Error(err))
	}
}

func (m *Machine) observe(source string, out harvest.PageOutcome) {
	metrics.PagesFetched.WithLabelValues(source, out.Kind.String()).Inc()
	if out.Kind == harvest.PageCards {
		metrics.CardsExtracted.WithLabelValues(source).Add(float64(len(out.Records)))
		metrics.CardsPromoSkipped.WithLabelValues(source).Add(float64(out.PromoSkipped))
		metrics.CardErrors.WithLabelValues(source).Add(float64(out.CardErrors))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
