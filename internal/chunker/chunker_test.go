package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_FitsInBudget(t *testing.T) {
	text := "short memory"
	got := Chunk(text, 100)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("got %q, want single chunk %q", got, text)
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	got := Chunk("", 100)
	if len(got) != 1 || got[0] != "" {
		t.Fatalf("got %q, want one empty chunk", got)
	}
}

func TestChunk_TwoParagraphsUnderDocumentBudget(t *testing.T) {
	para := strings.Repeat("a", 10000)
	text := para + Separator + para
	got := Chunk(text, MaxCharsForTokens(8000))
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
	if got[0] != text {
		t.Error("single chunk should be the unmodified input")
	}
}

func TestChunk_PacksParagraphs(t *testing.T) {
	text := "aaaa" + Separator + "bbbb" + Separator + "cccc" + Separator + "dddd"
	got := Chunk(text, 10)
	want := []string{"aaaa\n\nbbbb", "cccc\n\ndddd"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunk_OversizedParagraphEmittedWhole(t *testing.T) {
	big := strings.Repeat("x", 50)
	text := "intro" + Separator + big + Separator + "outro"
	got := Chunk(text, 20)
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(got), got)
	}
	if got[1] != big {
		t.Errorf("middle chunk = %q, want the whole oversized paragraph", got[1])
	}
}

func TestChunk_Reconstructs(t *testing.T) {
	cases := []string{
		"one\n\ntwo\n\nthree\n\nfour",
		"  leading space\n\ntrailing space  \n\n\n\nafter blank",
		strings.Repeat("paragraph text here\n\n", 40),
		"héllo wörld\n\nünïcode pärägraph\n\n" + strings.Repeat("ß", 30),
	}
	for _, text := range cases {
		for _, limit := range []int{5, 16, 33, 100} {
			chunks := Chunk(text, limit)
			if joined := strings.Join(chunks, Separator); joined != text {
				t.Fatalf("limit %d: rejoined text differs\n got: %q\nwant: %q", limit, joined, text)
			}
			for _, c := range chunks {
				if utf8.RuneCountInString(c) <= limit {
					continue
				}
				if strings.Contains(c, Separator) {
					t.Errorf("limit %d: multi-paragraph chunk over budget: %q", limit, c)
				}
			}
		}
	}
}

func TestMaxCharsForTokens(t *testing.T) {
	if got := MaxCharsForTokens(8000); got != 32000 {
		t.Errorf("got %d, want 32000", got)
	}
	if got := MaxCharsForTokens(0); got != 32000 {
		t.Errorf("zero budget: got %d, want default 32000", got)
	}
}
