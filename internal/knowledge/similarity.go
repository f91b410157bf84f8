package knowledge

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DefaultSimilarityThreshold is the Jaccard score above which two entries group.
const DefaultSimilarityThreshold = 0.8

const previewRunes = 300

// ConceptPreview is a truncated view of an entry inside a similarity group.
type ConceptPreview struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Similarity float64  `json:"similarity,omitempty"`
}

// SimilarGroup is a base entry and the entries that duplicate it.
type SimilarGroup struct {
	Base    ConceptPreview   `json:"base_concept"`
	Similar []ConceptPreview `json:"similar_concepts"`
}

// FindSimilarConcepts pages through the default namespace and groups
// near-duplicate entries. The comparison is quadratic in namespace size and
// meant for offline maintenance.
func (b *Base) FindSimilarConcepts(ctx context.Context, threshold float64) []SimilarGroup {
	docs, err := b.pages(ctx, b.opts.DefaultNamespace)
	if err != nil {
		b.logger.Error("similarity scan failed", zap.Error(err))
		return nil
	}
	groups := GroupSimilar(docs, threshold)
	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = len(g.Similar) + 1
	}
	b.logger.Info("similar concepts analysis",
		zap.Int("checked", len(docs)),
		zap.Int("groups", len(groups)),
		zap.Ints("group_sizes", sizes))
	return groups
}

// GroupSimilar compares every unvisited pair of docs in order. A pair scoring
// strictly above threshold puts the second under the first; grouped entries
// are never considered again, so no id appears in two groups.
func GroupSimilar(docs []Document, threshold float64) []SimilarGroup {
	words := make([]map[string]struct{}, len(docs))
	for i, d := range docs {
		words[i] = wordSet(d.Text)
	}

	processed := make(map[string]bool)
	var groups []SimilarGroup
	for i, base := range docs {
		if processed[base.ID] {
			continue
		}
		var similar []ConceptPreview
		for j := i + 1; j < len(docs); j++ {
			other := docs[j]
			if processed[other.ID] || other.ID == base.ID {
				continue
			}
			score := jaccard(words[i], words[j])
			if score > threshold {
				p := preview(other)
				p.Similarity = score
				similar = append(similar, p)
				processed[other.ID] = true
			}
		}
		if len(similar) > 0 {
			groups = append(groups, SimilarGroup{Base: preview(base), Similar: similar})
			processed[base.ID] = true
		}
	}
	return groups
}

func preview(d Document) ConceptPreview {
	return ConceptPreview{
		ID:       d.ID,
		Text:     truncateRunes(d.Text, previewRunes),
		Category: stringField(d.Metadata, keyCategory),
		Tags:     stringList(d.Metadata[keyTags]),
	}
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b| over lowercase whitespace-separated words,
// or 0 when both texts are empty.
func Jaccard(a, b string) float64 {
	return jaccard(wordSet(a), wordSet(b))
}

func jaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
