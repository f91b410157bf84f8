// Package context assembles the generation context for a theme from stored
// knowledge and the tweet ledger.
package context

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/manaxbt/manaonsol/internal/chunker"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"go.uber.org/zap"
)

// Searcher finds the best match per namespace.
type Searcher interface {
	Search(ctx context.Context, query string, namespaces ...string) []knowledge.SearchResult
}

// History exposes what the ledger remembers about prior tweets.
type History interface {
	RelevantHistory(ctx context.Context, themeContext string, limit int) []string
	ThemeProgression(ctx context.Context, limit int) []ledger.ThemeSnapshot
}

// Assembler builds prompt context. It only reads from its sources.
type Assembler struct {
	config  Config
	kb      Searcher
	history History
	logger  *zap.Logger
}

// NewAssembler creates an assembler; zero config fields take defaults.
func NewAssembler(cfg Config, kb Searcher, history History, logger *zap.Logger) *Assembler {
	def := DefaultConfig()
	if cfg.KnowledgePreview <= 0 {
		cfg.KnowledgePreview = def.KnowledgePreview
	}
	if cfg.TweetPreview <= 0 {
		cfg.TweetPreview = def.TweetPreview
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.TrendLimit <= 0 {
		cfg.TrendLimit = def.TrendLimit
	}
	return &Assembler{config: cfg, kb: kb, history: history, logger: logger}
}

// GetContext returns the newline-joined context for theme: knowledge snippets,
// then related prior tweets, then the recent theme trend. Empty sources are
// omitted. An empty theme yields an empty context without any lookups.
func (a *Assembler) GetContext(ctx context.Context, theme string) string {
	if theme == "" {
		return ""
	}
	blocks := a.Blocks(ctx, theme)
	a.Fit(blocks)
	out := render(blocks)
	a.logger.Info("context assembled",
		zap.String("theme", theme),
		zap.Int("blocks", len(blocks)),
		zap.Int("chars", len(out)))
	return out
}

// Blocks gathers the non-empty contributions for theme in output order.
func (a *Assembler) Blocks(ctx context.Context, theme string) []*Block {
	var blocks []*Block

	if results := a.kb.Search(ctx, theme); len(results) > 0 {
		b := &Block{Name: "knowledge", Priority: PriorityKnowledge, Heading: "Relevant concepts from different perspectives:"}
		for _, r := range results {
			b.Lines = append(b.Lines, fmt.Sprintf("[%s] (%.2f): %s...", r.Namespace, r.Score, preview(r.Text, a.config.KnowledgePreview)))
		}
		blocks = append(blocks, b)
	} else {
		a.logger.Debug("no knowledge results", zap.String("theme", theme))
	}

	if tweets := a.history.RelevantHistory(ctx, theme, a.config.HistoryLimit); len(tweets) > 0 {
		b := &Block{Name: "history", Priority: PriorityHistory, Heading: "\nThematic development from previous tweets:"}
		for _, t := range tweets {
			b.Lines = append(b.Lines, fmt.Sprintf("- %s...", preview(t, a.config.TweetPreview)))
		}
		blocks = append(blocks, b)
	}

	if trend := a.history.ThemeProgression(ctx, a.config.TrendLimit); len(trend) > 0 {
		b := &Block{Name: "trend", Priority: PriorityTrend, Heading: "\nRecent thematic progression:"}
		for _, s := range trend {
			b.Lines = append(b.Lines, formatSnapshot(s))
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// Fit trims blocks to the token budget, dropping trailing lines from the
// lowest-priority block first. A block left with no lines is removed by render.
func (a *Assembler) Fit(blocks []*Block) {
	if a.config.MaxTokens <= 0 {
		return
	}
	total := 0
	for _, b := range blocks {
		total += b.tokens()
	}
	for p := PriorityTrend; p <= PriorityKnowledge && total > a.config.MaxTokens; p++ {
		for _, b := range blocks {
			if b.Priority != p {
				continue
			}
			for len(b.Lines) > 0 && total > a.config.MaxTokens {
				last := b.Lines[len(b.Lines)-1]
				b.Lines = b.Lines[:len(b.Lines)-1]
				total -= estimateTokens(last)
				if len(b.Lines) == 0 {
					total -= estimateTokens(b.Heading)
				}
			}
			a.logger.Debug("trimmed context block", zap.String("block", b.Name), zap.Int("lines", len(b.Lines)))
		}
	}
}

func render(blocks []*Block) string {
	var parts []string
	for _, b := range blocks {
		if len(b.Lines) == 0 {
			continue
		}
		parts = append(parts, b.Heading)
		parts = append(parts, b.Lines...)
	}
	return strings.Join(parts, "\n")
}

func formatSnapshot(s ledger.ThemeSnapshot) string {
	theme := s.MainTheme
	if theme == "" {
		theme = "untitled"
	}
	line := "- " + theme
	if s.Category != "" {
		line += " [" + s.Category + "]"
	}
	if len(s.RelatedConcepts) > 0 {
		line += ": " + strings.Join(s.RelatedConcepts, ", ")
	}
	if s.Timestamp != "" {
		line += " (" + s.Timestamp + ")"
	}
	return line
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// estimateTokens uses the same chars-per-token ratio as chunking.
func estimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + chunker.CharsPerToken - 1) / chunker.CharsPerToken
}
