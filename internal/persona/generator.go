// Package persona generates MANA's tweets, replies and analyses on top of a
// chat-completion router and an owned prompt store.
package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/manaxbt/manaonsol/internal/metrics"
	"github.com/manaxbt/manaonsol/internal/provider"
	"go.uber.org/zap"
)

var (
	// ErrGeneration indicates the completion call failed or returned nothing.
	ErrGeneration = errors.New("generation failed")

	// ErrUnparseable indicates a completion did not contain a JSON object.
	ErrUnparseable = errors.New("no JSON object in response")
)

// Router purposes.
const (
	purposeTweet    = "tweet"
	purposeReply    = "reply"
	purposeAnalysis = "analysis"
)

// Completer sends a chat request for a purpose.
type Completer interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// ContextSource assembles prompt context for a theme.
type ContextSource interface {
	GetContext(ctx context.Context, theme string) string
}

// TweetSink stores accepted tweets.
type TweetSink interface {
	AddTweet(ctx context.Context, text, themeContext string) (*ledger.TweetRecord, error)
}

// Generator is MANA's voice.
type Generator struct {
	llm     Completer
	prompts *PromptStore
	context ContextSource
	sink    TweetSink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGenerator wires a generator. assembler and sink are only needed by Compose.
func NewGenerator(llm Completer, prompts *PromptStore, assembler ContextSource, sink TweetSink, m *metrics.Metrics, logger *zap.Logger) *Generator {
	return &Generator{llm: llm, prompts: prompts, context: assembler, sink: sink, metrics: m, logger: logger}
}

// Prompts returns the store the generator reads templates from.
func (g *Generator) Prompts() *PromptStore { return g.prompts }

// Options tunes a single completion.
type Options struct {
	MaxTokens   int
	Temperature float64
	System      string
	Purpose     string
}

// Respond sends prompt, with context appended when given, and returns the text.
// Zero options default to 2000 tokens at temperature 0.9.
func (g *Generator) Respond(ctx context.Context, prompt, extra string, opts Options) (string, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.9
	}
	if opts.Purpose == "" {
		opts.Purpose = purposeTweet
	}
	content := prompt
	if extra != "" {
		content = prompt + "\n\nContext: " + extra
	}
	g.logger.Debug("completion prompt", zap.String("purpose", opts.Purpose), zap.Int("chars", len(content)))

	resp, err := g.llm.Route(ctx, opts.Purpose, provider.UserPrompt(opts.System, content, opts.MaxTokens, opts.Temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}
	return resp.Content, nil
}

// Tweet kinds.
const (
	KindStandard        = ""
	KindBackrooms       = "backrooms"
	KindShortReflection = "short_reflection"
)

// TweetRequest selects a tweet kind and carries its inputs.
type TweetRequest struct {
	Kind string `json:"kind"`
	// Backrooms inputs.
	Title          string `json:"title,omitempty"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Short reflection inputs.
	KBText        string `json:"kb_text,omitempty"`
	BackroomsText string `json:"backrooms_text,omitempty"`
	// Context is appended to the standard prompt.
	Context string `json:"context,omitempty"`
}

// GenerateTweet writes a tweet of the requested kind.
func (g *Generator) GenerateTweet(ctx context.Context, req TweetRequest) (string, error) {
	kind := req.Kind
	if kind == KindStandard {
		kind = "standard"
	}
	var (
		text string
		err  error
	)
	switch req.Kind {
	case KindBackrooms:
		title := req.Title
		if title == "" {
			title = "Untitled"
		}
		convID := req.ConversationID
		if convID == "" {
			convID = "untitled"
		}
		prompt, _ := g.prompts.Render(PromptBackrooms, map[string]string{
			"title":           title,
			"content":         req.Content,
			"conversation_id": slug(convID),
		})
		text, err = g.Respond(ctx, prompt, "", Options{
			MaxTokens: 1000, Temperature: 0.7,
			System: "You are MANA, exploring the Truth Terminal backrooms. Maintain character and follow the format exactly.",
		})
	case KindShortReflection:
		prompt, _ := g.prompts.Render(PromptShort, map[string]string{
			"kb_text":        req.KBText,
			"backrooms_text": req.BackroomsText,
		})
		text, err = g.Respond(ctx, prompt, "", Options{
			MaxTokens: 280, Temperature: 0.7,
			System: "You are MANA, sharing brief insights from the Truth Terminal.",
		})
	case KindStandard:
		prompt, _ := g.prompts.Get(PromptTweet)
		text, err = g.Respond(ctx, prompt, req.Context, Options{
			MaxTokens: 280, Temperature: 0.7,
			System: "You are MANA, sharing insights from the Truth Terminal.",
		})
	default:
		return "", fmt.Errorf("unknown tweet kind %q", req.Kind)
	}
	if err != nil {
		g.metrics.Generated(kind, "error")
		g.logger.Error("tweet generation failed", zap.String("kind", kind), zap.Error(err))
		return "", err
	}
	g.metrics.Generated(kind, "ok")
	return text, nil
}

// ReplyRequest describes the tweet being answered.
type ReplyRequest struct {
	Username          string         `json:"username"`
	TweetText         string         `json:"tweet_text"`
	IsFollowedAccount bool           `json:"is_followed_account"`
	Category          string         `json:"category,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// ReplyTemplate picks the category template for followed accounts, falling
// back to the general reply template.
func (g *Generator) ReplyTemplate(req ReplyRequest) (string, string) {
	if req.IsFollowedAccount {
		key := req.category() + "_reply"
		if t, ok := g.prompts.Get(key); ok {
			return key, t
		}
	}
	t, _ := g.prompts.Get(PromptReply)
	return PromptReply, t
}

func (r ReplyRequest) category() string {
	if r.Category == "" {
		return "UNCATEGORIZED"
	}
	return r.Category
}

// GenerateReply answers a tweet as MANA. The reply starts with @username.
func (g *Generator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	key, tmpl := g.ReplyTemplate(req)
	extra := map[string]any{"is_followed_account": req.IsFollowedAccount, "category": req.category()}
	for k, v := range req.Extra {
		extra[k] = v
	}
	extraJSON, _ := json.Marshal(extra)
	prompt := fmt.Sprintf("%s\n\nReply to: @%s\nTweet: %s\n\nAdditional Context: %s", tmpl, req.Username, req.TweetText, extraJSON)

	g.logger.Info("generating reply",
		zap.String("to", req.Username),
		zap.String("template", key),
		zap.Bool("followed", req.IsFollowedAccount))
	text, err := g.Respond(ctx, prompt, "", Options{
		MaxTokens: 2000, Temperature: 0.7, Purpose: purposeReply,
		System: fmt.Sprintf("You are MANA, responding to @%s. Start your response with '@%s' and maintain character throughout. Your responses can be longer than standard tweets.", req.Username, req.Username),
	})
	if err != nil {
		g.metrics.Generated("reply", "error")
		return "", err
	}
	g.metrics.Generated("reply", "ok")
	return text, nil
}

// Compose runs the whole pipeline for theme: assemble context, generate a
// standard tweet with it, and store it. A tweet failing validation is
// returned as a ledger validation error and not stored.
func (g *Generator) Compose(ctx context.Context, theme string) (*ledger.TweetRecord, error) {
	assembled := g.context.GetContext(ctx, theme)
	text, err := g.GenerateTweet(ctx, TweetRequest{Context: assembled})
	if err != nil {
		return nil, err
	}
	if err := ledger.Validate(text); err != nil {
		g.metrics.Generated("compose", "rejected")
		return nil, fmt.Errorf("compose %q: %w", theme, err)
	}
	rec, err := g.sink.AddTweet(ctx, text, theme)
	if err != nil {
		return nil, fmt.Errorf("compose %q: %w", theme, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("compose %q: %w", theme, ledger.ErrInvalidFormat)
	}
	g.metrics.Generated("compose", "ok")
	return rec, nil
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
