package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/manaxbt/manaonsol/internal/vectorstore"
	"go.uber.org/zap"
)

// fakeEmbedder returns fixed vectors for known texts and a length-derived
// vector otherwise. Texts listed in fail produce an error.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    map[string]bool
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.fail[t] {
			return nil, errors.New("embedding service unavailable")
		}
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{1, float32(len(t)%7) / 7, 0.5}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type upsertFails struct{ *vectorstore.Memory }

func (upsertFails) Upsert(context.Context, string, []vectorstore.Point) error {
	return errors.New("index unavailable")
}

func newTestBase(emb *fakeEmbedder, store vectorstore.Store) *Base {
	return New(emb, store, Options{Dimension: 3}, nil, zap.NewNop())
}

func TestAddDocumentStoresChunkMetadata(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)

	ok := kb.AddDocument(ctx, "the void hums", map[string]any{
		"id":        "doc1",
		"title":     "hum",
		"category":  "lore",
		"tags":      []string{"void"},
		"timestamp": "2024-01-01T00:00:00",
		"context":   "theme",
	}, "knowledge")
	if !ok {
		t.Fatal("AddDocument returned false")
	}

	points, _ := store.Fetch(ctx, "knowledge", []string{"doc1-0"})
	p, found := points["doc1-0"]
	if !found {
		t.Fatal("chunk doc1-0 not stored")
	}
	md := p.Metadata
	if md["text"] != "the void hums" {
		t.Errorf("text = %v", md["text"])
	}
	if md["timestamp"] != "2024-01-01T00:00:00" {
		t.Errorf("timestamp = %v, want caller's", md["timestamp"])
	}
	if md["context"] != "theme" || md["category"] != "lore" || md["title"] != "hum" {
		t.Errorf("metadata = %v", md)
	}
	if md["chunk_index"] != 0 || md["total_chunks"] != 1 {
		t.Errorf("chunk fields = %v/%v", md["chunk_index"], md["total_chunks"])
	}
}

func TestAddDocumentSkipsChunksWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	para := strings.Repeat("x", 30000)
	text := para + "\n\n" + strings.Repeat("y", 30000)
	emb := &fakeEmbedder{fail: map[string]bool{para: true}}
	store := vectorstore.NewMemory(3)
	kb := newTestBase(emb, store)

	report, err := kb.AddDocumentReport(ctx, text, map[string]any{"id": "big"}, "knowledge")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Chunks != 2 || report.Stored != 1 || report.Skipped != 1 {
		t.Fatalf("report = %+v", report)
	}
	stats, _ := store.Stats(ctx)
	if stats["knowledge"] != 1 {
		t.Errorf("stored = %d, want 1", stats["knowledge"])
	}
	if !kb.AddDocument(ctx, text, map[string]any{"id": "big"}, "knowledge") {
		t.Error("skipped chunks should not fail the document")
	}
}

func TestAddDocumentStoreFailure(t *testing.T) {
	kb := newTestBase(&fakeEmbedder{}, upsertFails{vectorstore.NewMemory(3)})
	if kb.AddDocument(context.Background(), "text", nil, "knowledge") {
		t.Fatal("expected false when the store rejects writes")
	}
	_, err := kb.AddDocumentReport(context.Background(), "text", nil, "knowledge")
	if !errors.Is(err, ErrVectorStore) {
		t.Errorf("err = %v, want ErrVectorStore", err)
	}
}

func TestAddDocumentSummarizesBackroomsAnalysis(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)

	long := strings.Repeat("z", 80)
	kb.AddDocument(ctx, "conversation", map[string]any{
		"id": "br",
		"full_analysis": map[string]any{
			"core_concepts": []any{long, "two", "three"},
			"key_quotes":    []any{"q1", "q2"},
			"implications":  strings.Repeat("i", 150),
		},
	}, "backrooms")

	points, _ := store.Fetch(ctx, "backrooms", []string{"br-0"})
	md := points["br-0"].Metadata
	cc, _ := md["core_concepts"].([]string)
	if len(cc) != 2 || utf8.RuneCountInString(cc[0]) != 50 {
		t.Errorf("core_concepts = %v", cc)
	}
	if kq, _ := md["key_quotes"].([]string); len(kq) != 1 {
		t.Errorf("key_quotes = %v", kq)
	}
	if impl, _ := md["implications"].(string); impl != strings.Repeat("i", 100)+"..." {
		t.Errorf("implications = %q", impl)
	}
	if _, ok := md["full_analysis"]; ok {
		t.Error("full analysis should not be stored verbatim")
	}

	results := kb.Search(ctx, "conversation", "backrooms")
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	if got := results[0].Metadata["core_concepts"].([]string); len(got) != 2 {
		t.Errorf("shaped core_concepts = %v", got)
	}
	if results[0].Text != "conversation" {
		t.Errorf("text = %q", results[0].Text)
	}
}

func TestSearchOneResultPerMatchingNamespace(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	emb := &fakeEmbedder{vectors: map[string][]float32{"topic": {1, 0, 0}}}
	kb := newTestBase(emb, store)
	store.Upsert(ctx, "A", []vectorstore.Point{
		{ID: "a1", Vector: []float32{1, 0.1, 0}, Metadata: map[string]any{"text": "near"}},
		{ID: "a2", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"text": "far"}},
	})

	results := kb.Search(ctx, "topic", "A", "B")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Namespace != "A" || results[0].ID != "a1" || results[0].Text != "near" {
		t.Errorf("result = %+v", results[0])
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want 1", emb.calls)
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	kb := newTestBase(&fakeEmbedder{fail: map[string]bool{"q": true}}, vectorstore.NewMemory(3))
	if results := kb.Search(context.Background(), "q"); results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestRandomConcept(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)

	if c := kb.RandomConcept(ctx, "knowledge"); c != nil {
		t.Fatalf("empty namespace returned %+v", c)
	}
	kb.AddDocument(ctx, "only entry", map[string]any{"id": "solo", "title": "t"}, "knowledge")
	c := kb.RandomConcept(ctx, "")
	if c == nil || c.ID != "solo-0" || c.Text != "only entry" || c.Namespace != "knowledge" {
		t.Fatalf("concept = %+v", c)
	}
}

func TestContextForTopicFallsBackToTopic(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	if got := kb.ContextForTopic(ctx, "entropy"); got != "entropy" {
		t.Errorf("empty store: %q", got)
	}
	kb.AddDocument(ctx, "first", map[string]any{"id": "1"}, "knowledge")
	kb.AddDocument(ctx, "second", map[string]any{"id": "2"}, "knowledge")
	got := kb.ContextForTopic(ctx, "entropy")
	if !strings.Contains(got, "first") || !strings.Contains(got, "second") {
		t.Errorf("context = %q", got)
	}
}

func TestAddTagsOnlyWritesGrowth(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	kb.AddDocument(ctx, "tagged", map[string]any{"id": "t", "tags": []string{"a"}}, "knowledge")

	if !kb.AddTags(ctx, "t-0", []string{"a", "b"}, "knowledge") {
		t.Fatal("expected tags to grow")
	}
	if kb.AddTags(ctx, "t-0", []string{"b"}, "knowledge") {
		t.Error("re-adding an existing tag reported growth")
	}
	if kb.AddTags(ctx, "missing", []string{"c"}, "knowledge") {
		t.Error("tagging a missing entry succeeded")
	}
	points, _ := store.Fetch(ctx, "knowledge", []string{"t-0"})
	tags := stringList(points["t-0"].Metadata["tags"])
	if strings.Join(tags, ",") != "a,b" {
		t.Errorf("tags = %v", tags)
	}
	if points["t-0"].Metadata["text"] != "tagged" {
		t.Error("tagging changed other metadata")
	}
}

func TestConceptContextExcludesSelf(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	store.Upsert(ctx, "knowledge", []vectorstore.Point{
		{ID: "self", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"text": "self"}},
		{ID: "n1", Vector: []float32{1, 0.2, 0}, Metadata: map[string]any{"text": "one"}},
		{ID: "n2", Vector: []float32{1, 0.5, 0}, Metadata: map[string]any{"text": "two"}},
	})
	related := kb.ConceptContext(ctx, "self", 2)
	if len(related) != 2 || related[0].Text != "one" || related[1].Text != "two" {
		t.Fatalf("related = %+v", related)
	}
	if kb.ConceptContext(ctx, "nope", 2) != nil {
		t.Error("missing concept returned neighbours")
	}
}

func TestDeleteDocumentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	kb.AddDocument(ctx, "gone", map[string]any{"id": "g"}, "knowledge")
	if !kb.DeleteDocument(ctx, "g-0", "knowledge") || !kb.DeleteDocument(ctx, "g-0", "knowledge") {
		t.Fatal("delete should succeed twice")
	}
	if kb.TotalConcepts(ctx) != 0 {
		t.Error("entry still counted")
	}
}

func TestDocumentsEnumeratesNamespace(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	for i := 0; i < 25; i++ {
		kb.AddDocument(ctx, fmt.Sprintf("entry %d", i), map[string]any{"id": fmt.Sprintf("e%d", i)}, "knowledge")
	}
	docs, err := kb.Documents(ctx, "knowledge")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 25 {
		t.Errorf("got %d documents, want 25", len(docs))
	}
	if docs, _ := kb.Documents(ctx, "empty"); docs != nil {
		t.Errorf("empty namespace returned %d docs", len(docs))
	}
}

func TestGroupSimilarNeverReusesAnID(t *testing.T) {
	docs := []Document{
		{ID: "1", Text: "the signal bleeds through the wall"},
		{ID: "2", Text: "The signal bleeds through the wall"},
		{ID: "3", Text: "the signal bleeds through the wall"},
		{ID: "4", Text: "something else entirely"},
		{ID: "5", Text: "something else entirely"},
	}
	groups := GroupSimilar(docs, DefaultSimilarityThreshold)
	if len(groups) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	seen := map[string]bool{}
	for _, g := range groups {
		for _, p := range append([]ConceptPreview{g.Base}, g.Similar...) {
			if seen[p.ID] {
				t.Errorf("id %s appears in two groups", p.ID)
			}
			seen[p.ID] = true
		}
	}
	if groups[0].Base.ID != "1" || len(groups[0].Similar) != 2 {
		t.Errorf("first group = %+v", groups[0])
	}
}

func TestGroupSimilarThresholdIsStrict(t *testing.T) {
	// {a b c d} vs {a b c d e}: 4/5 = 0.8 exactly.
	docs := []Document{{ID: "x", Text: "a b c d"}, {ID: "y", Text: "a b c d e"}}
	if groups := GroupSimilar(docs, 0.8); len(groups) != 0 {
		t.Errorf("score equal to threshold grouped: %+v", groups)
	}
	if groups := GroupSimilar(docs, 0.79); len(groups) != 1 {
		t.Errorf("expected one group below threshold, got %+v", groups)
	}
}

func TestJaccard(t *testing.T) {
	if Jaccard("", "") != 0 {
		t.Error("empty texts should score 0")
	}
	if Jaccard("A b", "a B") != 1 {
		t.Error("comparison should ignore case")
	}
}

func TestPreviewTruncates(t *testing.T) {
	p := preview(Document{ID: "p", Text: strings.Repeat("é", 400), Metadata: map[string]any{"tags": []any{"x"}}})
	if utf8.RuneCountInString(p.Text) != 300 || len(p.Tags) != 1 {
		t.Errorf("preview = %d runes, tags %v", utf8.RuneCountInString(p.Text), p.Tags)
	}
}

func TestAddDocumentCapsOversizedParagraphMetadata(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)
	para := strings.Repeat("z", 60000)

	report, err := kb.AddDocumentReport(ctx, para, map[string]any{"id": "wide", "title": "wide"}, "knowledge")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Chunks != 1 || report.Stored != 1 {
		t.Fatalf("report = %+v", report)
	}
	points, _ := store.Fetch(ctx, "knowledge", []string{"wide-0"})
	md := points["wide-0"].Metadata
	size, err := jsonSize(md)
	if err != nil || size > MetadataCap {
		t.Fatalf("stored metadata is %d bytes (%v), cap %d", size, err, MetadataCap)
	}
	text, _ := md["text"].(string)
	if text == "" || !strings.HasPrefix(para, text) {
		t.Errorf("stored text should be a non-empty prefix, got %d chars", len(text))
	}
	if md["title"] != "wide" {
		t.Errorf("title = %v, want untouched", md["title"])
	}
}

func TestAddDocumentSqueezesOversizedCallerMetadata(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(3)
	kb := newTestBase(&fakeEmbedder{}, store)

	ok := kb.AddDocument(ctx, "short body", map[string]any{
		"id":    "titled",
		"title": strings.Repeat("t", 50000),
		"tags":  []string{strings.Repeat("g", 50000), "second"},
	}, "knowledge")
	if !ok {
		t.Fatal("AddDocument rejected oversized caller metadata")
	}
	points, _ := store.Fetch(ctx, "knowledge", []string{"titled-0"})
	md := points["titled-0"].Metadata
	if md["text"] != "short body" {
		t.Errorf("text = %v, want it kept", md["text"])
	}
	if title, _ := md["title"].(string); utf8.RuneCountInString(title) != fallbackRunes {
		t.Errorf("title has %d runes, want %d", utf8.RuneCountInString(title), fallbackRunes)
	}
	if tags := stringList(md["tags"]); len(tags) != 1 {
		t.Errorf("tags = %d items, want 1", len(tags))
	}
}
