package context

import (
	"context"
	"strings"
	"testing"

	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"go.uber.org/zap"
)

type stubSources struct {
	results []knowledge.SearchResult
	tweets  []string
	trend   []ledger.ThemeSnapshot
	calls   int
}

func (s *stubSources) Search(context.Context, string, ...string) []knowledge.SearchResult {
	s.calls++
	return s.results
}

func (s *stubSources) RelevantHistory(context.Context, string, int) []string {
	s.calls++
	return s.tweets
}

func (s *stubSources) ThemeProgression(context.Context, int) []ledger.ThemeSnapshot {
	s.calls++
	return s.trend
}

func TestGetContextEmptyThemeMakesNoCalls(t *testing.T) {
	src := &stubSources{}
	a := NewAssembler(Config{}, src, src, zap.NewNop())
	if got := a.GetContext(context.Background(), ""); got != "" {
		t.Errorf("context = %q, want empty", got)
	}
	if src.calls != 0 {
		t.Errorf("calls = %d, want 0", src.calls)
	}
}

func TestGetContextOrderAndFormat(t *testing.T) {
	src := &stubSources{
		results: []knowledge.SearchResult{
			{Namespace: "MANA", Score: 0.91234, Text: "the hum beneath"},
			{Namespace: "backrooms", Score: 0.5, Text: strings.Repeat("b", 250)},
		},
		tweets: []string{"*prior tweet*"},
		trend:  []ledger.ThemeSnapshot{{MainTheme: "entropy", Category: "lore", RelatedConcepts: []string{"chaos", "decay"}, Timestamp: "2024-05-01T10:00:00"}},
	}
	a := NewAssembler(Config{}, src, src, zap.NewNop())
	got := a.GetContext(context.Background(), "entropy")

	want := strings.Join([]string{
		"Relevant concepts from different perspectives:",
		"[MANA] (0.91): the hum beneath...",
		"[backrooms] (0.50): " + strings.Repeat("b", 200) + "...",
		"",
		"Thematic development from previous tweets:",
		"- *prior tweet*...",
		"",
		"Recent thematic progression:",
		"- entropy [lore]: chaos, decay (2024-05-01T10:00:00)",
	}, "\n")
	if got != want {
		t.Errorf("context =\n%s\nwant\n%s", got, want)
	}
}

func TestGetContextOmitsMissingSources(t *testing.T) {
	src := &stubSources{tweets: []string{"only history"}}
	a := NewAssembler(Config{}, src, src, zap.NewNop())
	got := a.GetContext(context.Background(), "void")
	want := "\nThematic development from previous tweets:\n- only history..."
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
}

func TestFitTrimsLowestPriorityFirst(t *testing.T) {
	src := &stubSources{
		results: []knowledge.SearchResult{{Namespace: "knowledge", Score: 1, Text: "kept"}},
		tweets:  []string{strings.Repeat("h", 80)},
		trend:   []ledger.ThemeSnapshot{{MainTheme: strings.Repeat("t", 200)}},
	}
	a := NewAssembler(Config{MaxTokens: 60}, src, src, zap.NewNop())
	got := a.GetContext(context.Background(), "x")
	if strings.Contains(got, "progression") {
		t.Errorf("trend should be trimmed first: %q", got)
	}
	if !strings.Contains(got, "[knowledge] (1.00): kept...") || !strings.Contains(got, "hhhh") {
		t.Errorf("higher-priority blocks lost: %q", got)
	}
}
