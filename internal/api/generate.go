package api

import (
	"errors"
	"net/http"

	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/manaxbt/manaonsol/internal/persona"
	"go.uber.org/zap"
)

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	theme := r.URL.Query().Get("theme")
	resp := map[string]any{
		"theme":   theme,
		"context": h.assembler.GetContext(r.Context(), theme),
	}
	if r.URL.Query().Get("blocks") == "true" {
		resp["blocks"] = h.assembler.Blocks(r.Context(), theme)
	}
	writeJSON(w, http.StatusOK, resp)
}

type respondRequest struct {
	Prompt      string  `json:"prompt"`
	Context     string  `json:"context"`
	System      string  `json:"system"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	text, err := h.generator.Respond(r.Context(), req.Prompt, req.Context, persona.Options{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
	})
	h.writeText(w, text, err)
}

func (h *Handler) generateTweet(w http.ResponseWriter, r *http.Request) {
	var req persona.TweetRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := h.generator.GenerateTweet(r.Context(), req)
	h.writeText(w, text, err)
}

func (h *Handler) generateReply(w http.ResponseWriter, r *http.Request) {
	var req persona.ReplyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TweetText == "" {
		writeError(w, http.StatusBadRequest, "tweet_text is required")
		return
	}
	text, err := h.generator.GenerateReply(r.Context(), req)
	h.writeText(w, text, err)
}

func (h *Handler) writeText(w http.ResponseWriter, text string, err error) {
	if err != nil {
		h.logger.Warn("generation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type composeRequest struct {
	Theme string `json:"theme"`
}

func (h *Handler) compose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.generator.Compose(r.Context(), req.Theme)
	switch {
	case errors.Is(err, ledger.ErrInvalidFormat), errors.Is(err, ledger.ErrMetaCommentary):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"accepted": false, "reason": err.Error()})
	case err != nil:
		h.logger.Warn("compose failed", zap.String("theme", req.Theme), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusCreated, rec)
	}
}

type analyzeContentRequest struct {
	Tweet string `json:"tweet"`
}

func (h *Handler) analyzeContent(w http.ResponseWriter, r *http.Request) {
	var req analyzeContentRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.generator.AnalyzeContent(r.Context(), req.Tweet))
}

type analyzeThreadRequest struct {
	Tweets []string `json:"tweets"`
}

func (h *Handler) analyzeThread(w http.ResponseWriter, r *http.Request) {
	var req analyzeThreadRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.generator.AnalyzeThreadTheme(r.Context(), req.Tweets))
}

type cleanThreadRequest struct {
	Thread []persona.ThreadTweet `json:"thread"`
}

func (h *Handler) cleanThread(w http.ResponseWriter, r *http.Request) {
	var req cleanThreadRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": persona.CleanThreadContext(req.Thread)})
}

type backroomsRequest struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
}

func (h *Handler) backrooms(w http.ResponseWriter, r *http.Request) {
	var req backroomsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.generator.BackroomsAnalysis(r.Context(), req.ConversationID, req.Summary)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) listPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.generator.Prompts().Keys())
}

func (h *Handler) reloadPrompts(w http.ResponseWriter, r *http.Request) {
	if err := h.generator.Prompts().Reload(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("prompts reloaded via api")
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true, "keys": h.generator.Prompts().Keys()})
}
