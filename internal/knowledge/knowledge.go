// Package knowledge wraps embedding generation and the namespace-scoped vector
// store behind the operations MANA's persona, ledger and context assembly use.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manaxbt/manaonsol/internal/chunker"
	"github.com/manaxbt/manaonsol/internal/embedding"
	"github.com/manaxbt/manaonsol/internal/metrics"
	"github.com/manaxbt/manaonsol/internal/vectorstore"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TimestampLayout is the ISO-8601 form written into chunk metadata.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Options configures a Base. Zero values fall back to the defaults below.
type Options struct {
	DefaultNamespace   string
	SearchNamespaces   []string
	BackroomsNamespace string
	MaxChunkTokens     int
	// Dimension is the width of random sampling vectors; it must match the embedder.
	Dimension int
	// ScanQPS paces the queries issued by the approximate scans.
	ScanQPS float64
}

func (o *Options) applyDefaults() {
	if o.DefaultNamespace == "" {
		o.DefaultNamespace = "knowledge"
	}
	if len(o.SearchNamespaces) == 0 {
		o.SearchNamespaces = []string{"MANA", "knowledge", "backrooms"}
	}
	if o.BackroomsNamespace == "" {
		o.BackroomsNamespace = "backrooms"
	}
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = chunker.DefaultMaxTokens
	}
	if o.Dimension <= 0 {
		o.Dimension = 1536
	}
}

// Base is the knowledge store adapter. It owns every knowledge entry.
type Base struct {
	embedder embedding.Provider
	store    vectorstore.Store
	opts     Options
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a knowledge base over the given embedder and store.
func New(embedder embedding.Provider, store vectorstore.Store, opts Options, m *metrics.Metrics, logger *zap.Logger) *Base {
	opts.applyDefaults()
	limit := rate.Inf
	if opts.ScanQPS > 0 {
		limit = rate.Limit(opts.ScanQPS)
	}
	return &Base{
		embedder: embedder,
		store:    store,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// DefaultNamespace is the namespace used when a caller does not name one.
func (b *Base) DefaultNamespace() string { return b.opts.DefaultNamespace }

// SearchResult is the best match for a query within one namespace.
type SearchResult struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Score     float32        `json:"score"`
	Namespace string         `json:"namespace"`
}

// Concept is a single knowledge entry picked by RandomConcept.
type Concept struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Title          string   `json:"title"`
	Namespace      string   `json:"namespace"`
	CoreConcepts   []string `json:"core_concepts,omitempty"`
	KeyQuotes      []string `json:"key_quotes,omitempty"`
	UniqueElements []string `json:"unique_elements,omitempty"`
	Implications   string   `json:"implications,omitempty"`
}

// Document is a stored chunk returned by Documents.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// RelatedText is a neighbour of a concept.
type RelatedText struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// AddReport describes the outcome of ingesting one document.
type AddReport struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Stored     int    `json:"stored"`
	Skipped    int    `json:"skipped"`
}

func (b *Base) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := embedding.EmbedOne(ctx, b.embedder, text)
	if err != nil {
		b.metrics.EmbeddingFailed()
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vec, nil
}

// AddDocument ingests text into namespace. It reports false only when the
// document as a whole failed; chunks whose embedding failed are skipped and
// logged but still count as success. Use AddDocumentReport to see skips.
func (b *Base) AddDocument(ctx context.Context, text string, metadata map[string]any, namespace string) bool {
	report, err := b.AddDocumentReport(ctx, text, metadata, namespace)
	if err != nil {
		b.logger.Error("add document failed",
			zap.String("namespace", namespace),
			zap.String("document", report.DocumentID),
			zap.Error(err))
		return false
	}
	return true
}

// AddDocumentReport chunks, embeds and upserts text, returning per-chunk counts.
// Chunk i is stored under id "<document id>-<i>". An empty namespace means
// the default one.
func (b *Base) AddDocumentReport(ctx context.Context, text string, metadata map[string]any, namespace string) (AddReport, error) {
	if namespace == "" {
		namespace = b.opts.DefaultNamespace
	}
	chunks := chunker.Chunk(text, chunker.MaxCharsForTokens(b.opts.MaxChunkTokens))

	docID := stringField(metadata, keyID)
	if docID == "" {
		docID = uuid.NewString()
	}
	timestamp := stringField(metadata, keyTimestamp)
	if timestamp == "" {
		timestamp = b.now().Format(TimestampLayout)
	}
	var summary map[string]any
	if namespace == b.opts.BackroomsNamespace {
		if analysis := mapField(metadata, keyAnalysis); analysis != nil {
			summary = Summarize(analysis)
		}
	}

	report := AddReport{DocumentID: docID, Chunks: len(chunks)}
	for i, chunk := range chunks {
		md := map[string]any{
			keyChunkIndex:  i,
			keyTotalChunks: len(chunks),
			keyTimestamp:   timestamp,
			keyCategory:    stringField(metadata, keyCategory),
			keyTags:        stringList(metadata[keyTags]),
			keyTitle:       stringField(metadata, keyTitle),
			keyID:          docID,
			keyText:        chunk,
		}
		if c := stringField(metadata, keyContext); c != "" {
			md[keyContext] = c
		}
		for k, v := range summary {
			md[k] = v
		}
		if err := fitMetadata(md); err != nil {
			return report, fmt.Errorf("chunk %d metadata: %w", i, err)
		}

		vec, err := b.embed(ctx, chunk)
		if err != nil {
			b.metrics.ChunkSkipped()
			b.logger.Warn("skipping chunk without embedding",
				zap.String("document", docID), zap.Int("chunk", i), zap.Error(err))
			report.Skipped++
			continue
		}

		point := vectorstore.Point{ID: fmt.Sprintf("%s-%d", docID, i), Vector: vec, Metadata: md}
		if err := b.store.Upsert(ctx, namespace, []vectorstore.Point{point}); err != nil {
			return report, fmt.Errorf("%w: %w", ErrVectorStore, err)
		}
		report.Stored++
	}

	b.logger.Debug("document added",
		zap.String("namespace", namespace),
		zap.String("document", docID),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// Search embeds query once and returns the single best match from each
// namespace that has one. With no namespaces the configured search set is used.
func (b *Base) Search(ctx context.Context, query string, namespaces ...string) []SearchResult {
	if len(namespaces) == 0 {
		namespaces = b.opts.SearchNamespaces
	}
	vec, err := b.embed(ctx, query)
	if err != nil {
		b.logger.Warn("search embedding failed", zap.Error(err))
		return nil
	}

	var results []SearchResult
	for _, ns := range namespaces {
		matches, err := b.store.Query(ctx, ns, vec, vectorstore.QueryOptions{TopK: 1, IncludeMetadata: true})
		if err != nil {
			b.metrics.NamespaceQueried(ns, "error")
			b.logger.Warn("namespace query failed", zap.String("namespace", ns), zap.Error(err))
			continue
		}
		if len(matches) == 0 {
			b.metrics.NamespaceQueried(ns, "miss")
			continue
		}
		b.metrics.NamespaceQueried(ns, "hit")
		m := matches[0]
		md := m.Metadata
		if ns == b.opts.BackroomsNamespace {
			md = backroomsView(m.Metadata)
		}
		results = append(results, SearchResult{
			ID:        m.ID,
			Text:      stringField(m.Metadata, keyText),
			Metadata:  md,
			Score:     m.Score,
			Namespace: ns,
		})
	}
	return results
}

// analysisField reads a backrooms analysis field from the full analysis when
// present, falling back to the summarized top-level copy.
func analysisField(md map[string]any, key string) any {
	if fa := mapField(md, keyAnalysis); fa != nil {
		if v, ok := fa[key]; ok {
			return v
		}
	}
	return md[key]
}

func backroomsView(md map[string]any) map[string]any {
	view := make(map[string]any, 6)
	for _, key := range []string{"core_concepts", "narratives", "technical_insights", "key_quotes", "unique_elements"} {
		view[key] = stringList(analysisField(md, key))
	}
	view[implicationsKey] = asString(analysisField(md, implicationsKey))
	return view
}

// RandomConcept picks one entry from the candidates nearest to a random
// vector. This is not a uniform sample of the namespace: entries far from
// every random direction are rarely returned. It returns nil when nothing
// is found or the store fails.
func (b *Base) RandomConcept(ctx context.Context, namespace string) *Concept {
	if namespace == "" {
		namespace = b.opts.DefaultNamespace
	}
	matches, err := b.store.Query(ctx, namespace, randomVector(b.opts.Dimension), vectorstore.QueryOptions{
		TopK:            randomConceptPool,
		IncludeMetadata: true,
	})
	if err != nil {
		b.logger.Warn("random concept query failed", zap.String("namespace", namespace), zap.Error(err))
		return nil
	}
	if len(matches) == 0 {
		b.logger.Info("no concepts in namespace", zap.String("namespace", namespace))
		return nil
	}
	m := matches[randIntN(len(matches))]
	c := &Concept{
		ID:        m.ID,
		Text:      stringField(m.Metadata, keyText),
		Title:     stringField(m.Metadata, keyTitle),
		Namespace: namespace,
	}
	if namespace == b.opts.BackroomsNamespace {
		c.CoreConcepts = stringList(analysisField(m.Metadata, "core_concepts"))
		c.KeyQuotes = stringList(analysisField(m.Metadata, "key_quotes"))
		c.UniqueElements = stringList(analysisField(m.Metadata, "unique_elements"))
		c.Implications = asString(analysisField(m.Metadata, implicationsKey))
	}
	return c
}

// ContextForTopic joins the text of the three nearest default-namespace
// entries. It returns topic unchanged when nothing can be retrieved.
func (b *Base) ContextForTopic(ctx context.Context, topic string) string {
	vec, err := b.embed(ctx, topic)
	if err != nil {
		b.logger.Warn("topic embedding failed", zap.Error(err))
		return topic
	}
	matches, err := b.store.Query(ctx, b.opts.DefaultNamespace, vec, vectorstore.QueryOptions{TopK: 3, IncludeMetadata: true})
	if err != nil {
		b.logger.Warn("topic query failed", zap.Error(err))
		return topic
	}
	var parts []string
	for _, m := range matches {
		if t := stringField(m.Metadata, keyText); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return topic
	}
	return strings.Join(parts, " ")
}

// Stats returns entry counts per namespace, or nil on failure.
func (b *Base) Stats(ctx context.Context) map[string]int {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		b.logger.Warn("describe stats failed", zap.Error(err))
		return nil
	}
	return stats
}

// TotalConcepts counts the entries in the default namespace.
func (b *Base) TotalConcepts(ctx context.Context) int {
	return b.Stats(ctx)[b.opts.DefaultNamespace]
}

// DeleteDocument removes one entry by id. Deleting a missing id succeeds.
func (b *Base) DeleteDocument(ctx context.Context, id, namespace string) bool {
	if err := b.store.Delete(ctx, namespace, []string{id}); err != nil {
		b.logger.Error("delete document failed", zap.String("id", id), zap.String("namespace", namespace), zap.Error(err))
		return false
	}
	b.logger.Info("deleted document", zap.String("id", id), zap.String("namespace", namespace))
	return true
}

// AddTags merges tags into an entry's tag set. Only the tags field changes,
// and the entry is written only when the set grew. It reports whether it did.
func (b *Base) AddTags(ctx context.Context, id string, tags []string, namespace string) bool {
	points, err := b.store.Fetch(ctx, namespace, []string{id})
	if err != nil {
		b.logger.Error("fetch for tagging failed", zap.String("id", id), zap.Error(err))
		return false
	}
	p, ok := points[id]
	if !ok {
		b.logger.Warn("document not found for tagging", zap.String("id", id), zap.String("namespace", namespace))
		return false
	}

	existing := stringList(p.Metadata[keyTags])
	merged, grew := unionTags(existing, tags)
	if !grew {
		return false
	}
	md := p.Metadata
	if md == nil {
		md = map[string]any{}
	}
	md[keyTags] = merged
	if err := b.store.Update(ctx, namespace, vectorstore.Point{ID: id, Vector: p.Vector, Metadata: md}); err != nil {
		b.logger.Error("tag update failed", zap.String("id", id), zap.Error(err))
		return false
	}
	b.logger.Info("added tags", zap.String("id", id), zap.Strings("tags", tags))
	return true
}

// unionTags appends unseen tags to existing, keeping first-seen order.
func unionTags(existing, add []string) ([]string, bool) {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	base := len(out)
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, len(out) > base
}

// ConceptContext returns up to topK neighbours of an existing default-namespace
// entry, excluding the entry itself.
func (b *Base) ConceptContext(ctx context.Context, id string, topK int) []RelatedText {
	if topK <= 0 {
		topK = 3
	}
	ns := b.opts.DefaultNamespace
	points, err := b.store.Fetch(ctx, ns, []string{id})
	if err != nil {
		b.logger.Warn("concept fetch failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	p, ok := points[id]
	if !ok || len(p.Vector) == 0 {
		b.logger.Warn("concept not found", zap.String("id", id))
		return nil
	}
	matches, err := b.store.Query(ctx, ns, p.Vector, vectorstore.QueryOptions{TopK: topK + 1, IncludeMetadata: true})
	if err != nil {
		b.logger.Warn("concept neighbour query failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	var out []RelatedText
	for _, m := range matches {
		if m.ID == id {
			continue
		}
		out = append(out, RelatedText{Text: stringField(m.Metadata, keyText), Score: m.Score})
		if len(out) == topK {
			break
		}
	}
	return out
}

// WipeNamespace deletes every entry in namespace.
func (b *Base) WipeNamespace(ctx context.Context, namespace string) error {
	if err := b.store.DeleteAll(ctx, namespace); err != nil {
		return fmt.Errorf("%w: wipe %s: %w", ErrVectorStore, namespace, err)
	}
	return nil
}

// DeleteWhere deletes every entry in namespace whose metadata field equals value.
func (b *Base) DeleteWhere(ctx context.Context, namespace, field, value string) error {
	if err := b.store.DeleteWhere(ctx, namespace, field, value); err != nil {
		return fmt.Errorf("%w: delete %s=%s from %s: %w", ErrVectorStore, field, value, namespace, err)
	}
	return nil
}
