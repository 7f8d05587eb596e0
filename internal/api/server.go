// Package api serves the read-only JSON endpoints a static front end
// polls: today's collection progress, stored poems and service health.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/stellarlinkco/chainverse/internal/store"
)

const (
	serviceName      = "chain_verse"
	defaultPoemLimit = 30
	maxPoemLimit     = 100
)

// Server is the HTTP API over the poem store.
type Server struct {
	store       *store.Store
	minKeywords int
	addr        string
	server      *http.Server
}

// NewServer creates a server bound to host:port.
func NewServer(st *store.Store, host string, port, minKeywords int) *Server {
	return &Server{
		store:       st,
		minKeywords: minKeywords,
		addr:        fmt.Sprintf("%s:%d", host, port),
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

type keywordResponse struct {
	Word   string `json:"word"`
	Slot   uint64 `json:"slot"`
	Source string `json:"source"`
}

type poemResponse struct {
	Date        string            `json:"date"`
	Content     string            `json:"content"`
	Model       string            `json:"model"`
	Keywords    []keywordResponse `json:"keywords"`
	PostURI     string            `json:"post_uri,omitempty"`
	GeneratedAt string            `json:"generated_at"`
}

type todayResponse struct {
	Date              string        `json:"date"`
	KeywordsCollected int           `json:"keywords_collected"`
	KeywordsNeeded    int           `json:"keywords_needed"`
	PoemReady         bool          `json:"poem_ready"`
	Keywords          []string      `json:"keywords"`
	Poem              *poemResponse `json:"poem,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler builds the route table. Exposed so tests can drive the API
// without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/poems", s.handlePoems)
	mux.HandleFunc("GET /api/poems/today", s.handleToday)
	mux.HandleFunc("GET /api/poems/{date}", s.handlePoemByDate)
	mux.HandleFunc("GET /api/keywords/today", s.handleKeywordsToday)
	return withCORS(mux)
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		log.Printf("[api] listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[api] shutdown error: %v", err)
		}
	}
	log.Printf("[api] stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	date := store.Today()

	kws, err := s.store.KeywordsForDate(date)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		words = append(words, kw.Word)
	}

	p, err := s.store.PoemByDate(date)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	resp := todayResponse{
		Date:              date,
		KeywordsCollected: len(kws),
		KeywordsNeeded:    s.minKeywords,
		PoemReady:         p != nil,
		Keywords:          words,
	}
	if p != nil {
		pr := toPoemResponse(p)
		resp.Poem = &pr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePoems(w http.ResponseWriter, r *http.Request) {
	limit := defaultPoemLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPoemLimit {
		limit = maxPoemLimit
	}

	poems, err := s.store.LatestPoems(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	out := make([]poemResponse, 0, len(poems))
	for i := range poems {
		out = append(out, toPoemResponse(&poems[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleKeywordsToday(w http.ResponseWriter, r *http.Request) {
	kws, err := s.store.KeywordsForDate(store.Today())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	out := make([]keywordResponse, 0, len(kws))
	for _, kw := range kws {
		out = append(out, keywordResponse{Word: kw.Word, Slot: kw.Slot, Source: string(kw.Source)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePoemByDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	p, err := s.store.PoemByDate(date)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("No poem found for date: %s", date)})
		return
	}
	writeJSON(w, http.StatusOK, toPoemResponse(p))
}

func toPoemResponse(p *store.Poem) poemResponse {
	kws := make([]keywordResponse, 0, len(p.Keywords))
	for _, k := range p.Keywords {
		kws = append(kws, keywordResponse{Word: k.Word, Slot: k.Slot, Source: k.Source})
	}
	return poemResponse{
		Date:        p.Date,
		Content:     p.Content,
		Model:       p.Model,
		Keywords:    kws,
		PostURI:     p.PostURI,
		GeneratedAt: p.GeneratedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// withCORS lets the static site fetch from any origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
