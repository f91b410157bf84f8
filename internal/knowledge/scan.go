package knowledge

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/manaxbt/manaonsol/internal/vectorstore"
	"go.uber.org/zap"
)

// The vector index has no listing primitive, so enumeration and sampling are
// approximated with randomized nearest-neighbour queries. Neither is uniform:
// entries that sit far from every random direction may never be returned.
const (
	randomConceptPool = 50
	scanPoolSize      = 10000
	scanMaxAttempts   = 20
	// scanMinGain is the number of new ids below which a scan that has
	// already seen scanCoverage of the namespace is considered finished.
	scanMinGain  = 10
	scanCoverage = 0.9
	pageSize     = 100
)

// randomVector returns a vector of the given width with components in [-1, 1].
func randomVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rand.Float32()*2 - 1
	}
	return v
}

func randIntN(n int) int { return rand.IntN(n) }

// Documents approximates a listing of namespace by issuing random-vector
// queries and deduplicating by id. It stops when a query adds fewer than ten
// new ids after ninety percent of the reported total has been seen, or after
// a fixed number of attempts. Queries are paced by the scan rate limit.
func (b *Base) Documents(ctx context.Context, namespace string) ([]Document, error) {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %w", ErrVectorStore, err)
	}
	total := stats[namespace]
	if total == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, total)
	var docs []Document
	for attempt := 0; attempt < scanMaxAttempts; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return docs, err
		}
		matches, err := b.store.Query(ctx, namespace, randomVector(b.opts.Dimension), vectorstore.QueryOptions{
			TopK:            scanPoolSize,
			IncludeMetadata: true,
		})
		if err != nil {
			return docs, fmt.Errorf("%w: scan %s: %w", ErrVectorStore, namespace, err)
		}
		gained := 0
		for _, m := range matches {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			gained++
			docs = append(docs, Document{ID: m.ID, Text: stringField(m.Metadata, keyText), Metadata: m.Metadata})
		}
		b.logger.Debug("scan pass",
			zap.String("namespace", namespace),
			zap.Int("attempt", attempt+1),
			zap.Int("gained", gained),
			zap.Int("seen", len(docs)),
			zap.Int("total", total))
		if len(docs) >= total {
			break
		}
		if gained < scanMinGain && float64(len(docs)) > scanCoverage*float64(total) {
			break
		}
	}
	if len(docs) < total {
		b.logger.Info("scan ended before full coverage",
			zap.String("namespace", namespace), zap.Int("seen", len(docs)), zap.Int("total", total))
	}
	return docs, nil
}

// pages walks one random ordering of namespace in offset pages until a page
// comes back short.
func (b *Base) pages(ctx context.Context, namespace string) ([]Document, error) {
	probe := randomVector(b.opts.Dimension)
	seen := make(map[string]bool)
	var docs []Document
	for offset := 0; ; offset += pageSize {
		if err := b.limiter.Wait(ctx); err != nil {
			return docs, err
		}
		matches, err := b.store.Query(ctx, namespace, probe, vectorstore.QueryOptions{
			TopK:            pageSize,
			Offset:          offset,
			IncludeMetadata: true,
		})
		if err != nil {
			return docs, fmt.Errorf("%w: page %s@%d: %w", ErrVectorStore, namespace, offset, err)
		}
		for _, m := range matches {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			docs = append(docs, Document{ID: m.ID, Text: stringField(m.Metadata, keyText), Metadata: m.Metadata})
		}
		if len(matches) < pageSize {
			return docs, nil
		}
	}
}
