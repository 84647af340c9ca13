package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/engine"
	"github.com/knowledge-engine/corpus/internal/politeness"
	"github.com/knowledge-engine/corpus/internal/search"
)

const (
	defaultSearchLimit = 20
	defaultTopTerms    = 20
	dateLayout         = "2006-01-02"
)

type Server struct {
	Engine     *engine.Engine
	Politeness *politeness.Manager
	Logger     *logrus.Entry
	Router     *http.ServeMux
	StartTime  time.Time
}

// NewServer wires the routes. pm may be nil when nothing fetches through
// a politeness manager.
func NewServer(eng *engine.Engine, pm *politeness.Manager, logger *logrus.Entry) *Server {
	s := &Server{
		Engine:     eng,
		Politeness: pm,
		Logger:     logger,
		Router:     http.NewServeMux(),
		StartTime:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/v1/corpora", s.handleCorpora)
	s.Router.HandleFunc("/api/v1/load", s.handleLoad)
	s.Router.HandleFunc("/api/v1/search", s.handleSearch)
	s.Router.HandleFunc("/api/v1/context", s.handleContext)
	s.Router.HandleFunc("/api/v1/concordance", s.handleConcordance)
	s.Router.HandleFunc("/api/v1/stats", s.handleStats)
	s.Router.HandleFunc("/api/v1/authors", s.handleAuthors)
	s.Router.HandleFunc("/api/v1/compare", s.handleCompare)
	s.Router.HandleFunc("/api/v1/status", s.handleStatus)
	s.Router.Handle("/metrics", s.Engine.Metrics.Handler())
}

func (s *Server) Start(addr string) error {
	s.Logger.Infof("Starting API Server on %s", addr)
	return http.ListenAndServe(addr, s.Router)
}

// Responses
type ErrorResponse struct {
	Error string `json:"error"`
}

type CorporaResponse struct {
	Corpora []engine.CorpusInfo `json:"corpora"`
}

type SearchResponse struct {
	Corpus  string             `json:"corpus"`
	Query   string             `json:"query"`
	NoMatch bool               `json:"no_match"`
	Results []SearchResultView `json:"results"`
}

type SearchResultView struct {
	ID     int       `json:"id"`
	Score  float64   `json:"score"`
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
	URL    string    `json:"url"`
}

type ContextResponse struct {
	Corpus  string           `json:"corpus"`
	Keyword string           `json:"keyword"`
	Size    int              `json:"size"`
	Rows    []ContextRowView `json:"rows"`
}

type ContextRowView struct {
	Left  string `json:"left"`
	Match string `json:"match"`
	Right string `json:"right"`
}

type ConcordanceResponse struct {
	Corpus  string   `json:"corpus"`
	Keyword string   `json:"keyword"`
	Lines   []string `json:"lines"`
}

type StatsResponse struct {
	Corpus     string          `json:"corpus"`
	Documents  int             `json:"documents"`
	Authors    int             `json:"authors"`
	Vocabulary int             `json:"vocabulary"`
	TopTerms   []TermCountView `json:"top_terms"`
}

type TermCountView struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

type AuthorsResponse struct {
	Corpus  string              `json:"corpus"`
	Authors []engine.AuthorInfo `json:"authors"`
}

type CompareResponse struct {
	Corpora [2]TermProfileView `json:"corpora"`
}

type TermProfileView struct {
	Name      string           `json:"name"`
	MeanTF    []TermWeightView `json:"mean_tf"`
	MeanTFIDF []TermWeightView `json:"mean_tfidf"`
}

type TermWeightView struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

type StatusResponse struct {
	Corpora    int                    `json:"corpora"`
	Loaded     int                    `json:"loaded"`
	Uptime     string                 `json:"uptime"`
	Politeness *politeness.Statistics `json:"politeness,omitempty"`
}

// Handlers

func (s *Server) handleCorpora(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResponse(w, http.StatusOK, CorporaResponse{Corpora: s.Engine.Corpora()})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Corpus string `json:"corpus"`
		Count  int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON"})
		return
	}
	if req.Corpus == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "corpus is required"})
		return
	}
	if req.Count <= 0 {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "count must be positive"})
		return
	}

	info, err := s.Engine.Load(r.Context(), req.Corpus, req.Count)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, info)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	name := params.Get("corpus")
	keywords := params.Get("q")
	if name == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'corpus' is required"})
		return
	}
	if keywords == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'q' is required"})
		return
	}

	limit, err := intParam(params.Get("limit"), defaultSearchLimit)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'limit'"})
		return
	}
	from, err := dateParam(params.Get("from"), false)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'from' date, expected YYYY-MM-DD"})
		return
	}
	to, err := dateParam(params.Get("to"), true)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'to' date, expected YYYY-MM-DD"})
		return
	}

	res, err := s.Engine.Search(r.Context(), name, engine.Query{
		Keywords: keywords,
		Author:   params.Get("author"),
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	response := SearchResponse{
		Corpus:  name,
		Query:   keywords,
		NoMatch: !res.Matched,
		Results: make([]SearchResultView, len(res.Results)),
	}
	for i, hit := range res.Results {
		doc := hit.Document
		response.Results[i] = SearchResultView{
			ID:     hit.ID,
			Score:  hit.Score,
			Type:   string(doc.Kind()),
			Title:  doc.Title(),
			Author: doc.Author(),
			Date:   doc.Date(),
			URL:    doc.URL(),
		}
	}

	jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	name := params.Get("corpus")
	keyword := params.Get("keyword")
	if name == "" || keyword == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'corpus' and 'keyword' are required"})
		return
	}
	size, err := intParam(params.Get("size"), search.DefaultContextSize)
	if err != nil || size < 0 || size > search.MaxContextSize {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'size'"})
		return
	}

	rows, err := s.Engine.Context(r.Context(), name, keyword, size)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	response := ContextResponse{
		Corpus:  name,
		Keyword: keyword,
		Size:    size,
		Rows:    make([]ContextRowView, len(rows)),
	}
	for i, row := range rows {
		response.Rows[i] = ContextRowView{Left: row.Left, Match: row.Match, Right: row.Right}
	}
	jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleConcordance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	name := params.Get("corpus")
	keyword := params.Get("keyword")
	if name == "" || keyword == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'corpus' and 'keyword' are required"})
		return
	}

	lines, err := s.Engine.Concordance(r.Context(), name, keyword)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	jsonResponse(w, http.StatusOK, ConcordanceResponse{Corpus: name, Keyword: keyword, Lines: lines})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	name := params.Get("corpus")
	if name == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'corpus' is required"})
		return
	}
	n, err := intParam(params.Get("n"), defaultTopTerms)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'n'"})
		return
	}

	stats, err := s.Engine.Stats(r.Context(), name, n)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	response := StatsResponse{
		Corpus:     name,
		Documents:  stats.Documents,
		Authors:    stats.Authors,
		Vocabulary: stats.Vocabulary,
		TopTerms:   make([]TermCountView, len(stats.TopTerms)),
	}
	for i, term := range stats.TopTerms {
		response.TopTerms[i] = TermCountView{Word: term.Word, Frequency: term.Frequency}
	}
	jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("corpus")
	if name == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'corpus' is required"})
		return
	}

	authors, err := s.Engine.Authors(r.Context(), name)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, AuthorsResponse{Corpus: name, Authors: authors})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	a, b := params.Get("a"), params.Get("b")
	if a == "" || b == "" {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'a' and 'b' are required"})
		return
	}
	n, err := intParam(params.Get("n"), defaultTopTerms)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid 'n'"})
		return
	}

	profiles, err := s.Engine.Compare(r.Context(), a, b, n)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	var response CompareResponse
	for i, p := range profiles {
		response.Corpora[i] = TermProfileView{
			Name:      p.Name,
			MeanTF:    weightViews(p.MeanTF),
			MeanTFIDF: weightViews(p.MeanTFIDF),
		}
	}
	jsonResponse(w, http.StatusOK, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	infos := s.Engine.Corpora()
	loaded := 0
	for _, info := range infos {
		if info.Loaded {
			loaded++
		}
	}

	response := StatusResponse{
		Corpora: len(infos),
		Loaded:  loaded,
		Uptime:  time.Since(s.StartTime).Round(time.Second).String(),
	}
	if s.Politeness != nil {
		stats := s.Politeness.GetStatistics()
		response.Politeness = &stats
	}
	jsonResponse(w, http.StatusOK, response)
}

// errorResponse maps engine errors to status codes
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrUnknownCorpus) {
		jsonResponse(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	s.Logger.WithError(err).Error("Request failed")
	jsonResponse(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func weightViews(weights []search.TermWeight) []TermWeightView {
	out := make([]TermWeightView, len(weights))
	for i, w := range weights {
		out[i] = TermWeightView{Word: w.Word, Weight: w.Weight}
	}
	return out
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// dateParam parses YYYY-MM-DD. An end bound covers the whole day.
func dateParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
