package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/harvest"
)

func testSite(t *testing.T) adapter.Site {
	t.Helper()
	return adapter.MustCompile(adapter.Config{
		Name:               "testsite",
		BaseURL:            "https://jobs.example.jp",
		PageSize:           2,
		KeywordURLTemplate: "https://jobs.example.jp/?q={keyword}&page={page}",
		CardSelector:       "div.card",
		FieldSelectors:     map[string]string{"title": ".title"},
		BusinessKeyPattern: `/detail/([0-9]+)`,
		NoResultsMarkers:   []string{"該当する求人が見つかりませんでした"},
		NextPageSelectors:  []string{"a[rel='next']"},
	})
}

func cardsHTML(n int, more bool) string {
	html := "<html><body>"
	for i := 1; i <= n; i++ {
		html += fmt.Sprintf(`<div class="card"><a href="/detail/%d"></a><span class="title">求人%d</span></div>`, i, i)
	}
	if more {
		html += `<a rel="next" href="/p2">次へ</a>`
	}
	return html + "</body></html>"
}

// fakeSession replays a scripted page. Slices are consumed per call with the
// last element repeating.
type fakeSession struct {
	statuses []int
	navErrs  []error
	navCalls int

	bodyText string
	htmls    []string

	// visibleAfter is how many WaitVisible calls fail before one succeeds.
	// Negative means the selector never appears.
	visibleAfter int
	waitCalls    int
}

func pick[T any](s []T, i int) T {
	if i >= len(s) {
		i = len(s) - 1
	}
	return s[i]
}

func (f *fakeSession) Navigate(context.Context, string) (int, error) {
	i := f.navCalls
	f.navCalls++
	var err error
	if len(f.navErrs) > 0 {
		err = pick(f.navErrs, i)
	}
	status := 200
	if len(f.statuses) > 0 {
		status = pick(f.statuses, i)
	}
	return status, err
}

func (f *fakeSession) WaitVisible(context.Context, string, time.Duration) error {
	call := f.waitCalls
	f.waitCalls++
	if f.visibleAfter < 0 || call < f.visibleAfter {
		return browser.ErrSelectorNotVisible
	}
	return nil
}

func (f *fakeSession) HTML(context.Context) (string, error) {
	if len(f.htmls) == 0 {
		return "", errors.New("no html scripted")
	}
	html := f.htmls[0]
	if len(f.htmls) > 1 {
		f.htmls = f.htmls[1:]
	}
	return html, nil
}

func (f *fakeSession) BodyText(context.Context) (string, error) { return f.bodyText, nil }
func (f *fakeSession) Close() error                             { return nil }

func newTestMachine(cfg Config) *Machine {
	m := New(cfg, zap.NewNop(), nil)
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m
}

func TestFetchPageCards(t *testing.T) {
	sess := &fakeSession{htmls: []string{cardsHTML(2, true)}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "https://jobs.example.jp/?q=x&page=1", 1)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.Len(t, out.Records, 2)
	require.Equal(t, "1", out.Records[0].BusinessKey)
	require.True(t, out.MoreAvailable)
	require.Equal(t, 1, out.Attempts)
}

func TestFetchPageLastPage(t *testing.T) {
	sess := &fakeSession{htmls: []string{cardsHTML(1, false)}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 3)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.False(t, out.MoreAvailable)
	require.True(t, out.Terminal())
}

func TestFetchPageNoResults(t *testing.T) {
	sess := &fakeSession{bodyText: "検索結果 該当する求人が見つかりませんでした"}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageNoResults, out.Kind)
	require.Zero(t, sess.waitCalls)
}

func TestFetchPageNotFound(t *testing.T) {
	sess := &fakeSession{statuses: []int{404}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 9)
	require.Equal(t, harvest.PageNotFound, out.Kind)
	require.Equal(t, 1, sess.navCalls)
}

func TestFetchPageBlocked(t *testing.T) {
	sess := &fakeSession{statuses: []int{403}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageBlocked, out.Kind)
	require.Error(t, out.Err)
	// Blocks are not retried, hammering a blocking site makes it worse.
	require.Equal(t, 1, sess.navCalls)
}

func TestFetchPageTransientRetriesExhausted(t *testing.T) {
	sess := &fakeSession{statuses: []int{503}}
	m := newTestMachine(Config{PageAttempts: 2})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageTransient, out.Kind)
	// The budget is total attempts, a budget of 2 means exactly 2
	// navigations and never a third.
	require.Equal(t, 2, out.Attempts)
	require.Equal(t, 2, sess.navCalls)
}

func TestFetchPageTransientThenRecovers(t *testing.T) {
	sess := &fakeSession{
		navErrs: []error{errors.New("connection reset"), nil},
		htmls:   []string{cardsHTML(2, false)},
	}
	m := newTestMachine(Config{PageAttempts: 2})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.Equal(t, 2, out.Attempts)
}

func TestFetchPageSelectorEscalation(t *testing.T) {
	sess := &fakeSession{visibleAfter: 2, htmls: []string{cardsHTML(2, false)}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.Equal(t, 3, sess.waitCalls)
}

func TestFetchPageLateNoResults(t *testing.T) {
	// The empty-result phrase only renders after the selector wait gives up.
	sess := &fakeSession{visibleAfter: -1, bodyText: ""}
	m := newTestMachine(Config{SelectorAttempts: 2})
	lateSession := &lateBodySession{fakeSession: sess, lateText: "該当する求人が見つかりませんでした"}

	out := m.FetchPage(context.Background(), lateSession, testSite(t), "u", 1)
	require.Equal(t, harvest.PageNoResults, out.Kind)
}

type lateBodySession struct {
	*fakeSession
	lateText  string
	bodyCalls int
}

func (s *lateBodySession) BodyText(ctx context.Context) (string, error) {
	s.bodyCalls++
	if s.bodyCalls > 1 {
		return s.lateText, nil
	}
	return s.fakeSession.BodyText(ctx)
}

func TestFetchPageSelectorExhaustedIsTransient(t *testing.T) {
	sess := &fakeSession{visibleAfter: -1}
	m := newTestMachine(Config{SelectorAttempts: 3, PageAttempts: 2})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageTransient, out.Kind)
	require.ErrorIs(t, out.Err, browser.ErrSelectorNotVisible)
	require.Equal(t, 2, out.Attempts)
	require.Equal(t, 6, sess.waitCalls)
}

type frozenSession struct {
	*fakeSession
}

func (frozenSession) StaticDocument() bool { return true }

func TestFetchPageStaticSessionSkipsSelectorEscalation(t *testing.T) {
	sess := &fakeSession{visibleAfter: -1}
	m := newTestMachine(Config{PageAttempts: 1})

	out := m.FetchPage(context.Background(), frozenSession{sess}, testSite(t), "u", 1)
	require.Equal(t, harvest.PageTransient, out.Kind)
	require.ErrorIs(t, out.Err, browser.ErrSelectorNotVisible)
	// A static document gets exactly one look at the selector.
	require.Equal(t, 1, sess.waitCalls)
}

func TestFetchPageSettleRecount(t *testing.T) {
	// Cards keep appearing between parses, the later parse wins.
	sess := &fakeSession{htmls: []string{cardsHTML(1, false), cardsHTML(3, false), cardsHTML(3, false)}}
	m := newTestMachine(Config{})

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 1)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.Len(t, out.Records, 3)
}

func TestFetchPageSnapshot(t *testing.T) {
	blobs := &captureBlobs{}
	m := New(Config{Snapshots: true}, zap.NewNop(), blobs)
	m.sleep = func(context.Context, time.Duration) error { return nil }
	sess := &fakeSession{htmls: []string{cardsHTML(1, false)}}

	out := m.FetchPage(context.Background(), sess, testSite(t), "u", 2)
	require.Equal(t, harvest.PageCards, out.Kind)
	require.Len(t, blobs.paths, 1)
	require.Contains(t, blobs.paths[0], "testsite/")
	require.Contains(t, blobs.paths[0], "page-2.html")
}

type captureBlobs struct {
	paths []string
}

func (c *captureBlobs) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	c.paths = append(c.paths, path)
	return path, nil
}

func TestFetchDetail(t *testing.T) {
	site := adapter.MustCompile(adapter.Config{
		Name:               "testsite",
		KeywordURLTemplate: "https://jobs.example.jp/?q={keyword}",
		CardSelector:       "div.card",
		DetailPatterns: map[string]string{
			"phone": `TEL[：:]([0-9\-]{10,13})`,
		},
	})
	sess := &fakeSession{
		htmls:    []string{"<html><body>TEL：03-1234-5678</body></html>"},
		bodyText: "TEL：03-1234-5678",
	}
	m := newTestMachine(Config{})

	fields, err := m.FetchDetail(context.Background(), sess, site, "u")
	require.NoError(t, err)
	require.Equal(t, "03-1234-5678", fields.Phone)
}

func TestFetchDetailNotFound(t *testing.T) {
	sess := &fakeSession{statuses: []int{404}}
	m := newTestMachine(Config{})

	_, err := m.FetchDetail(context.Background(), sess, testSite(t), "u")
	require.Error(t, err)
}
