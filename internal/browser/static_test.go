package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ksaito/jobharvest/internal/harvest"
)

const listingHTML = `<html><body>
	<div class="card"><a href="/detail/1">ホール</a></div>
	<div class="card"><a href="/detail/2">キッチン</a></div>
</body></html>`

func newStaticSession(t *testing.T) Session {
	t.Helper()
	s, err := NewStaticFactory(0).NewSession(context.Background(), harvest.Identity{UserAgent: "test-agent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStaticSessionNavigate(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	s := newStaticSession(t)
	status, err := s.Navigate(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "test-agent", gotAgent)

	require.NoError(t, s.WaitVisible(context.Background(), "div.card", time.Second))
	require.ErrorIs(t, s.WaitVisible(context.Background(), "div.missing", time.Second), ErrSelectorNotVisible)

	html, err := s.HTML(context.Background())
	require.NoError(t, err)
	require.Contains(t, html, "detail/1")

	text, err := s.BodyText(context.Background())
	require.NoError(t, err)
	require.Contains(t, text, "キッチン")
}

func TestStaticSessionErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("該当する求人情報はありませんでした"))
	}))
	defer srv.Close()

	s := newStaticSession(t)
	status, err := s.Navigate(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, status)
}

func TestStaticSessionTransportError(t *testing.T) {
	s := newStaticSession(t)
	_, err := s.Navigate(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
}

func TestStaticSessionReload(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	s := newStaticSession(t)
	_, err := s.Navigate(context.Background(), srv.URL)
	require.NoError(t, err)
	_, err = s.Navigate(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, 2, hits)
}

func TestStaticSessionDeclaresStaticDocument(t *testing.T) {
	s := newStaticSession(t)
	sd, ok := s.(StaticDocument)
	require.True(t, ok)
	require.True(t, sd.StaticDocument())
}
