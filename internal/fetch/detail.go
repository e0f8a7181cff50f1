package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/metrics"
)

// FetchDetail loads one detail page and extracts the enrichment fields.
// Detail fetches get no retry budget, a listing already produced the record
// and a failed enrichment only costs fields.
func (m *Machine) FetchDetail(ctx context.Context, sess browser.Session, site adapter.Site, url string) (harvest.DetailFields, error) {
	fields, err := m.fetchDetail(ctx, sess, site, url)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.DetailsFetched.WithLabelValues(site.Name(), result).Inc()
	return fields, err
}

func (m *Machine) fetchDetail(ctx context.Context, sess browser.Session, site adapter.Site, url string) (harvest.DetailFields, error) {
	status, err := sess.Navigate(ctx, url)
	if err != nil {
		return harvest.DetailFields{}, err
	}
	if out, done := classifyStatus(status, url); done {
		return harvest.DetailFields{}, fmt.Errorf("detail page %s: %s", url, out.Kind)
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return harvest.DetailFields{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.DetailFields{}, fmt.Errorf("parse detail page: %w", err)
	}
	bodyText, err := sess.BodyText(ctx)
	if err != nil {
		return harvest.DetailFields{}, err
	}
	return site.ExtractDetail(doc, bodyText), nil
}
