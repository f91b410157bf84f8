package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"go.uber.org/zap"
)

type addDocumentRequest struct {
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Namespace string         `json:"namespace"`
}

type addDocumentResponse struct {
	Success bool `json:"success"`
	knowledge.AddReport
}

func (h *Handler) addDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	report, err := h.kb.AddDocumentReport(r.Context(), req.Text, req.Metadata, req.Namespace)
	if err != nil {
		h.logger.Error("add document failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, addDocumentResponse{Success: true, AddReport: report})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results := h.kb.Search(r.Context(), q, r.URL.Query()["namespace"]...)
	if results == nil {
		results = []knowledge.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) randomConcept(w http.ResponseWriter, r *http.Request) {
	c := h.kb.RandomConcept(r.Context(), r.URL.Query().Get("namespace"))
	if c == nil {
		writeError(w, http.StatusNotFound, "no concepts available")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) topicContext(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	writeJSON(w, http.StatusOK, map[string]string{
		"topic":   topic,
		"context": h.kb.ContextForTopic(r.Context(), topic),
	})
}

func (h *Handler) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	stats := h.kb.Stats(r.Context())
	total := 0
	for _, n := range stats {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"namespaces":     stats,
		"total_vectors":  total,
		"total_concepts": h.kb.TotalConcepts(r.Context()),
	})
}

func (h *Handler) similarConcepts(w http.ResponseWriter, r *http.Request) {
	threshold := knowledge.DefaultSimilarityThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
			return
		}
		threshold = t
	}
	groups := h.kb.FindSimilarConcepts(r.Context(), threshold)
	if groups == nil {
		groups = []knowledge.SimilarGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) relatedConcepts(w http.ResponseWriter, r *http.Request) {
	related := h.kb.ConceptContext(r.Context(), chi.URLParam(r, "id"), intParam(r, "top_k", 3))
	if related == nil {
		related = []knowledge.RelatedText{}
	}
	writeJSON(w, http.StatusOK, related)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.kb.Documents(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if docs == nil {
		docs = []knowledge.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	ok := h.kb.DeleteDocument(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "namespace"))
	if !ok {
		writeJSON(w, http.StatusBadGateway, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type addTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *Handler) addTags(w http.ResponseWriter, r *http.Request) {
	var req addTagsRequest
	if !decode(w, r, &req) {
		return
	}
	ok := h.kb.AddTags(r.Context(), chi.URLParam(r, "id"), req.Tags, chi.URLParam(r, "namespace"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]bool{"success": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
