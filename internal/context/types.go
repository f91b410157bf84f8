package context

// BlockPriority orders context blocks for trimming (lower = trimmed first).
type BlockPriority int

const (
	PriorityTrend     BlockPriority = 1 // trimmed first
	PriorityHistory   BlockPriority = 2
	PriorityKnowledge BlockPriority = 3
)

// Block is one contribution to the assembled context: a heading line followed
// by one line per item.
type Block struct {
	Name     string        `json:"name"`
	Priority BlockPriority `json:"priority"`
	Heading  string        `json:"heading"`
	Lines    []string      `json:"lines"`
}

func (b *Block) tokens() int {
	n := estimateTokens(b.Heading)
	for _, l := range b.Lines {
		n += estimateTokens(l)
	}
	return n
}

// Config holds assembler settings.
type Config struct {
	// MaxTokens caps the assembled context; zero means unbounded.
	MaxTokens        int `json:"max_tokens"`
	KnowledgePreview int `json:"knowledge_preview"` // runes of each knowledge snippet
	TweetPreview     int `json:"tweet_preview"`     // runes of each prior tweet
	HistoryLimit     int `json:"history_limit"`
	TrendLimit       int `json:"trend_limit"`
}

// DefaultConfig returns the assembler defaults.
func DefaultConfig() Config {
	return Config{
		KnowledgePreview: 200,
		TweetPreview:     100,
		HistoryLimit:     2,
		TrendLimit:       3,
	}
}
