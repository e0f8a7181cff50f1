package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/harvest"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	site := adapter.MustCompile(adapter.Config{
		Name:               "testsite",
		KeywordURLTemplate: "https://jobs.example.jp/search?q={keyword}&page={page}",
		CardSelector:       "div.card",
	})
	return NewServer(map[string]adapter.Site{"testsite": site}, zap.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	s := testServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := get(t, s, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListSources(t *testing.T) {
	rec := get(t, testServer(t), "/v1/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"testsite"}, body.Sources)
}

func TestLastRunBeforeAnyRun(t *testing.T) {
	rec := get(t, testServer(t), "/v1/runs/last")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLastRunSummaryAndTasks(t *testing.T) {
	s := testServer(t)
	s.RecordRun(harvest.RunResult{
		RunID:      "run-1",
		Started:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		Finished:   time.Date(2026, 8, 1, 9, 5, 0, 0, time.UTC),
		RawCount:   12,
		FinalCount: 9,
		NewCount:   4,
		SavedCount: 12,
		Tasks: []harvest.TaskResult{
			{
				Task:         harvest.CrawlTask{Source: "testsite", Keyword: "カフェ", Area: "東京都"},
				Status:       harvest.TaskStatusSucceeded,
				Records:      make([]harvest.JobRecord, 12),
				PagesFetched: 3,
			},
		},
	})

	rec := get(t, s, "/v1/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary runSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, 1, summary.Tasks)
	require.Equal(t, 9, summary.FinalCount)

	rec = get(t, s, "/v1/runs/last/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks struct {
		RunID string        `json:"run_id"`
		Tasks []taskSummary `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Equal(t, "run-1", tasks.RunID)
	require.Len(t, tasks.Tasks, 1)
	require.Equal(t, "カフェ", tasks.Tasks[0].Keyword)
	require.Equal(t, "success", tasks.Tasks[0].Status)
	require.Equal(t, 12, tasks.Tasks[0].Records)
}

func TestRecordRunReplacesSnapshot(t *testing.T) {
	s := testServer(t)
	s.RecordRun(harvest.RunResult{RunID: "run-1"})
	s.RecordRun(harvest.RunResult{RunID: "run-2"})

	rec := get(t, s, "/v1/runs/last")
	var summary runSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "run-2", summary.RunID)
}
