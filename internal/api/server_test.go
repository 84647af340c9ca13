package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/corpus/internal/api"
	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/engine"
	"github.com/knowledge-engine/corpus/internal/fetcher"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/politeness"
	"github.com/knowledge-engine/corpus/internal/storage"
)

// Mocks

type MockAcquirer struct {
	mock.Mock
}

func (m *MockAcquirer) FetchBalanced(ctx context.Context, theme string, count int, cursor fetcher.Cursor) ([]*document.Document, error) {
	args := m.Called(ctx, theme, count, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.Document), args.Error(1)
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)
}

func setupServer(t *testing.T) (*api.Server, *MockAcquirer) {
	t.Helper()
	logger := logrus.New().WithField("test", "api")
	logger.Logger.SetLevel(logrus.WarnLevel)

	acq := new(MockAcquirer)
	acq.On("FetchBalanced", mock.Anything, "python", 3, fetcher.Cursor{}).Return([]*document.Document{
		document.NewForum(document.Fields{Title: "Async tips", Author: "ann", Date: day(1), URL: "https://forum.example/1", Text: "asyncio makes python code concurrent"}, 2, "t3_a"),
		document.NewForum(document.Fields{Title: "Typing", Author: "bob", Date: day(5), Text: "python type hints help large code bases"}, 0, "t3_b"),
		document.NewFeed(document.Fields{Title: "Interpreters", Author: "ann", Date: day(9), Text: "a study of the python interpreter loop"}, []string{"cy"}, 0),
	}, nil)
	acq.On("FetchBalanced", mock.Anything, "chess", 2, fetcher.Cursor{}).Return([]*document.Document{
		document.NewForum(document.Fields{Title: "Openings", Author: "dee", Date: day(2), Text: "the queen gambit opening"}, 0, "t3_c"),
		document.NewFeed(document.Fields{Title: "Endgames", Author: "eve", Date: day(3), Text: "tablebases solve the endgame"}, nil, 0),
	}, nil)

	store, err := storage.NewCSVStore(t.TempDir(), "\t")
	require.NoError(t, err)

	cfg := &config.Config{Corpora: config.CorporaConfig{
		PreloadConcurrency: 1,
		Themes:             []config.CorpusSpec{{Name: "python", Size: 3}, {Name: "chess", Size: 2}},
	}}
	eng, err := engine.NewEngine(cfg, logger, acq, store, metrics.NewRecorder())
	require.NoError(t, err)

	pm := politeness.NewManager(config.PolitenessConfig{}, logger, nil)
	return api.NewServer(eng, pm, logger), acq
}

func do(t *testing.T, server *api.Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHandleStatus(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.StatusResponse](t, rr)
	assert.Equal(t, 2, resp.Corpora)
	assert.Equal(t, 0, resp.Loaded)
	require.NotNil(t, resp.Politeness)
	assert.Equal(t, int64(0), resp.Politeness.TotalRequests)
}

func TestHandleStatus_PolitenessStatistics(t *testing.T) {
	server, _ := setupServer(t)
	ctx := context.Background()
	require.NoError(t, server.Politeness.Wait(ctx, "https://forum.example/r/python/hot.json"))
	require.NoError(t, server.Politeness.Wait(ctx, "https://forum.example/r/chess/hot.json"))
	require.NoError(t, server.Politeness.Wait(ctx, "https://feed.example/api/query"))

	rr := do(t, server, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.StatusResponse](t, rr)
	require.NotNil(t, resp.Politeness)
	assert.Equal(t, int64(3), resp.Politeness.TotalRequests)
	assert.Equal(t, map[string]int64{"forum.example": 2, "feed.example": 1}, resp.Politeness.HostRequests)
}

func TestHandleStatus_WithoutPoliteness(t *testing.T) {
	server, _ := setupServer(t)
	server = api.NewServer(server.Engine, nil, server.Logger)

	rr := do(t, server, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "politeness")
}

func TestHandleCorpora(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/corpora", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.CorporaResponse](t, rr)
	require.Len(t, resp.Corpora, 2)
	assert.Equal(t, "python", resp.Corpora[0].Name)
	assert.Equal(t, 3, resp.Corpora[0].TargetSize)

	rr = do(t, server, http.MethodPost, "/api/v1/corpora", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleSearch(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/search?corpus=python&q=python+code", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.SearchResponse](t, rr)
	assert.Equal(t, "python code", resp.Query)
	assert.False(t, resp.NoMatch)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "forum", resp.Results[0].Type)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestHandleSearch_Filters(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/search?corpus=python&q=python&author=ann&from=2024-03-02&to=2024-03-09", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.SearchResponse](t, rr)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Interpreters", resp.Results[0].Title)

	rr = do(t, server, http.MethodGet, "/api/v1/search?corpus=python&q=python&limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[api.SearchResponse](t, rr).Results, 1)
}

func TestHandleSearch_NoMatch(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/search?corpus=python&q=rust", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.SearchResponse](t, rr)
	assert.True(t, resp.NoMatch)
	assert.Empty(t, resp.Results)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	server, _ := setupServer(t)

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"Missing corpus", "/api/v1/search?q=python", http.StatusBadRequest},
		{"Missing query", "/api/v1/search?corpus=python", http.StatusBadRequest},
		{"Bad limit", "/api/v1/search?corpus=python&q=python&limit=ten", http.StatusBadRequest},
		{"Bad date", "/api/v1/search?corpus=python&q=python&from=03/02/2024", http.StatusBadRequest},
		{"Unknown corpus", "/api/v1/search?corpus=tennis&q=ace", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, server, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, rr.Code)
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rr).Error)
		})
	}
}

func TestHandleContext(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/context?corpus=chess&keyword=gambit&size=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.ContextResponse](t, rr)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, api.ContextRowView{Left: "queen", Match: "gambit", Right: "opening"}, resp.Rows[0])

	rr = do(t, server, http.MethodGet, "/api/v1/context?corpus=chess&keyword=gambit&size=500", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, server, http.MethodGet, "/api/v1/context?corpus=chess", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleConcordance(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/concordance?corpus=chess&keyword=gambit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[api.ConcordanceResponse](t, rr)
	assert.Equal(t, []string{"the queen gambit opening tablebases"}, resp.Lines)

	rr = do(t, server, http.MethodGet, "/api/v1/concordance?corpus=chess&keyword=rook", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"corpus": "chess", "keyword": "rook", "lines": []}`, rr.Body.String())

	rr = do(t, server, http.MethodGet, "/api/v1/concordance?corpus=chess", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, server, http.MethodGet, "/api/v1/concordance?corpus=tennis&keyword=ace", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleStatsAndAuthors(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/stats?corpus=python&n=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[api.StatsResponse](t, rr)
	assert.Equal(t, 3, stats.Documents)
	require.Len(t, stats.TopTerms, 1)
	assert.Equal(t, api.TermCountView{Word: "python", Frequency: 3}, stats.TopTerms[0])

	rr = do(t, server, http.MethodGet, "/api/v1/authors?corpus=python", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	authors := decode[api.AuthorsResponse](t, rr)
	assert.Equal(t, []engine.AuthorInfo{
		{Name: "ann", Documents: 2},
		{Name: "bob", Documents: 1},
		{Name: "cy", Documents: 1},
	}, authors.Authors)

	rr = do(t, server, http.MethodGet, "/api/v1/authors?corpus=tennis", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCompare(t *testing.T) {
	server, _ := setupServer(t)

	rr := do(t, server, http.MethodGet, "/api/v1/compare?a=python&b=chess&n=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[api.CompareResponse](t, rr)
	assert.Equal(t, "python", resp.Corpora[0].Name)
	assert.Equal(t, "chess", resp.Corpora[1].Name)
	assert.Len(t, resp.Corpora[0].MeanTF, 2)
	assert.Equal(t, "python", resp.Corpora[0].MeanTF[0].Word)

	rr = do(t, server, http.MethodGet, "/api/v1/compare?a=python", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleLoad(t *testing.T) {
	server, acq := setupServer(t)
	acq.On("FetchBalanced", mock.Anything, "chess", 4, fetcher.Cursor{}).Return([]*document.Document{
		document.NewForum(document.Fields{Title: "Blitz", Author: "fay", Text: "blitz games are fast"}, 0, "t3_d"),
	}, nil)

	rr := do(t, server, http.MethodPost, "/api/v1/load", strings.NewReader(`{"corpus": "chess", "count": 4}`))
	require.Equal(t, http.StatusOK, rr.Code)
	info := decode[engine.CorpusInfo](t, rr)
	assert.Equal(t, 1, info.Documents)
	assert.True(t, info.Persisted)

	rr = do(t, server, http.MethodPost, "/api/v1/load", strings.NewReader(`not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, server, http.MethodPost, "/api/v1/load", strings.NewReader(`{"corpus": "chess"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, server, http.MethodGet, "/api/v1/load", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupServer(t)
	do(t, server, http.MethodGet, "/api/v1/search?corpus=python&q=python", nil)

	rr := do(t, server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `corpus_engine_queries_total{kind="search"} 1`)
	assert.Contains(t, rr.Body.String(), `corpus_loader_loads_total{origin="fetch",status="success"} 1`)
}
