package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mctx "github.com/manaxbt/manaonsol/internal/context"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/manaxbt/manaonsol/internal/persona"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	kb        *knowledge.Base
	ledger    *ledger.Ledger
	assembler *mctx.Assembler
	generator *persona.Generator
	gatherer  prometheus.Gatherer
	logger    *zap.Logger

	retentionDays int
}

const defaultRetentionDays = 30

// NewHandler creates a new API handler. A nil gatherer disables /metrics.
func NewHandler(
	kb *knowledge.Base,
	l *ledger.Ledger,
	assembler *mctx.Assembler,
	generator *persona.Generator,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		kb:        kb,
		ledger:    l,
		assembler: assembler,
		generator: generator,
		gatherer:  gatherer,
		logger:    logger,

		retentionDays: defaultRetentionDays,
	}
}

// WithRetention sets the age cutoff used when a cleanup request names none.
func (h *Handler) WithRetention(days int) *Handler {
	if days > 0 {
		h.retentionDays = days
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Knowledge base
		r.Post("/knowledge/documents", h.addDocument)
		r.Get("/knowledge/search", h.search)
		r.Get("/knowledge/random", h.randomConcept)
		r.Get("/knowledge/topic", h.topicContext)
		r.Get("/knowledge/stats", h.knowledgeStats)
		r.Get("/knowledge/similar", h.similarConcepts)
		r.Get("/knowledge/concepts/{id}/related", h.relatedConcepts)
		r.Get("/knowledge/namespaces/{namespace}/documents", h.listDocuments)
		r.Delete("/knowledge/namespaces/{namespace}/documents/{id}", h.deleteDocument)
		r.Post("/knowledge/namespaces/{namespace}/documents/{id}/tags", h.addTags)

		// Tweet ledger
		r.Get("/tweets", h.listTweets)
		r.Post("/tweets", h.addTweet)
		r.Get("/tweets/history", h.relevantHistory)
		r.Get("/themes/progression", h.themeProgression)
		r.Get("/themes/suggestions", h.suggestThemes)
		r.Get("/themes/stats", h.themeStats)
		r.Get("/users/{authorID}/interactions", h.userInteractions)
		r.Get("/interactions", h.listInteractions)
		r.Post("/interactions", h.addInteraction)

		// Maintenance
		r.Post("/maintenance/cleanup", h.cleanup)
		r.Post("/maintenance/prune", h.prune)
		r.Post("/maintenance/resync", h.resync)

		// Context and generation
		r.Get("/context", h.getContext)
		r.Post("/generate/respond", h.respond)
		r.Post("/generate/tweet", h.generateTweet)
		r.Post("/generate/reply", h.generateReply)
		r.Post("/generate/compose", h.compose)
		r.Post("/analyze/content", h.analyzeContent)
		r.Post("/analyze/thread", h.analyzeThread)
		r.Post("/analyze/thread/clean", h.cleanThread)
		r.Post("/analyze/backrooms", h.backrooms)

		// Prompts
		r.Get("/prompts", h.listPrompts)
		r.Post("/prompts/reload", h.reloadPrompts)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"ledger_size": h.ledger.Size(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads the JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// intParam reads a non-negative integer query parameter, falling back to def
// when it is absent or malformed.
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
