package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"go.uber.org/zap"
)

func (h *Handler) listTweets(w http.ResponseWriter, r *http.Request) {
	records := h.ledger.Records()
	if limit := intParam(r, "limit", 0); limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}
	if records == nil {
		records = []ledger.TweetRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type addTweetRequest struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

func (h *Handler) addTweet(w http.ResponseWriter, r *http.Request) {
	var req addTweetRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.ledger.AddTweet(r.Context(), req.Text, req.Context)
	if err != nil {
		h.logger.Error("add tweet failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		// Validation failures are reported as a rejection, not an error.
		reason := "rejected"
		if verr := ledger.Validate(req.Text); verr != nil {
			reason = verr.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"accepted": false, "reason": reason})
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) relevantHistory(w http.ResponseWriter, r *http.Request) {
	history := h.ledger.RelevantHistory(r.Context(), r.URL.Query().Get("theme"), intParam(r, "limit", 5))
	if history == nil {
		history = []string{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) themeProgression(w http.ResponseWriter, r *http.Request) {
	snaps := h.ledger.ThemeProgression(r.Context(), intParam(r, "limit", 10))
	if snaps == nil {
		snaps = []ledger.ThemeSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (h *Handler) suggestThemes(w http.ResponseWriter, r *http.Request) {
	theme := r.URL.Query().Get("theme")
	if theme == "" {
		writeError(w, http.StatusBadRequest, "theme is required")
		return
	}
	suggestions := h.ledger.SuggestNextThemes(r.Context(), theme)
	if suggestions == nil {
		suggestions = []ledger.ThemeSuggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *Handler) themeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.ThemeStatistics())
}

func (h *Handler) userInteractions(w http.ResponseWriter, r *http.Request) {
	authorID := chi.URLParam(r, "authorID")
	if hours := intParam(r, "hours", 0); hours > 0 {
		recent := h.ledger.RecentUserInteractions(authorID, hours)
		if recent == nil {
			recent = []ledger.TweetRecord{}
		}
		writeJSON(w, http.StatusOK, recent)
		return
	}
	all := h.ledger.UserInteractions(authorID)
	if all == nil {
		all = []ledger.UserInteraction{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) listInteractions(w http.ResponseWriter, r *http.Request) {
	recent := h.ledger.RecentInteractions(intParam(r, "limit", 50))
	if recent == nil {
		recent = []ledger.Interaction{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (h *Handler) addInteraction(w http.ResponseWriter, r *http.Request) {
	var in ledger.Interaction
	if !decode(w, r, &in) {
		return
	}
	if in.TweetID == "" {
		writeError(w, http.StatusBadRequest, "tweet_id is required")
		return
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	h.ledger.AddInteraction(r.Context(), in)
	writeJSON(w, http.StatusCreated, in)
}

type cleanupRequest struct {
	Days int `json:"days"`
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{Days: h.retentionDays}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	err := h.ledger.CleanupOldTweets(r.Context(), req.Days)
	switch {
	case errors.Is(err, ledger.ErrCleanupInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]int{"remaining": h.ledger.Size()})
	}
}

func (h *Handler) prune(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.PruneTweetCount(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": h.ledger.Size()})
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Resync(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"mirrored": h.ledger.Size()})
}
