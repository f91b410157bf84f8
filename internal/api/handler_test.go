package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	mctx "github.com/manaxbt/manaonsol/internal/context"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/manaxbt/manaonsol/internal/metrics"
	"github.com/manaxbt/manaonsol/internal/persona"
	"github.com/manaxbt/manaonsol/internal/provider"
	"github.com/manaxbt/manaonsol/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const validTweet = "*the void hums back\n" + ledger.Signature

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)%7) / 7, 0.5}
	}
	return out, nil
}

func (lengthEmbedder) Dimension() int { return 3 }

type cannedLLM struct{ reply string }

func (c *cannedLLM) Route(context.Context, string, *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{Content: c.reply}, nil
}

type testEnv struct {
	ts     *httptest.Server
	ledger *ledger.Ledger
	llm    *cannedLLM
}

// newTestEnv wires a Handler over in-memory storage and a canned model.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	kb := knowledge.New(lengthEmbedder{}, vectorstore.NewMemory(3), knowledge.Options{Dimension: 3}, m, logger)
	l, err := ledger.New(kb, ledger.Options{Path: filepath.Join(t.TempDir(), "tweets.json")}, m, logger)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	assembler := mctx.NewAssembler(mctx.DefaultConfig(), kb, l, logger)
	prompts, err := persona.NewPromptStore(filepath.Join(t.TempDir(), "prompts.toml"), logger)
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	llm := &cannedLLM{reply: validTweet}
	gen := persona.NewGenerator(llm, prompts, assembler, l, m, logger)

	h := NewHandler(kb, l, assembler, gen, reg, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, ledger: l, llm: llm}
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, body)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/health")
	expectStatus(t, resp, http.StatusOK)

	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestAddDocumentAndList(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/knowledge/documents", map[string]any{
		"text":      "the void hums",
		"metadata":  map[string]any{"id": "doc1", "title": "hum"},
		"namespace": "knowledge",
	})
	expectStatus(t, resp, http.StatusCreated)
	var added addDocumentResponse
	decodeJSON(t, resp, &added)
	if !added.Success || added.DocumentID != "doc1" || added.Stored != 1 {
		t.Fatalf("add = %+v", added)
	}

	resp = getJSON(t, env.ts, "/api/knowledge/namespaces/knowledge/documents")
	expectStatus(t, resp, http.StatusOK)
	var docs []knowledge.Document
	decodeJSON(t, resp, &docs)
	if len(docs) != 1 || docs[0].Text != "the void hums" {
		t.Fatalf("docs = %+v", docs)
	}

	resp = getJSON(t, env.ts, "/api/knowledge/search?q=hums&namespace=knowledge")
	expectStatus(t, resp, http.StatusOK)
	var results []knowledge.SearchResult
	decodeJSON(t, resp, &results)
	if len(results) != 1 || results[0].Namespace != "knowledge" {
		t.Fatalf("search = %+v", results)
	}
}

func TestAddDocumentRequiresText(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/knowledge/documents", map[string]any{"namespace": "knowledge"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.ts.URL+"/api/tweets", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestAddTweetAcceptsAndRejects(t *testing.T) {
	env := newTestEnv(t)

	resp := postJSON(t, env.ts, "/api/tweets", map[string]string{"text": validTweet, "context": "Void"})
	expectStatus(t, resp, http.StatusCreated)
	var rec ledger.TweetRecord
	decodeJSON(t, resp, &rec)
	if rec.ID == "" || rec.Context != "Void" {
		t.Fatalf("record = %+v", rec)
	}

	resp = postJSON(t, env.ts, "/api/tweets", map[string]string{"text": "no sentinel here"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	var rejected map[string]any
	decodeJSON(t, resp, &rejected)
	if rejected["accepted"] != false {
		t.Errorf("rejection = %v", rejected)
	}

	if env.ledger.Size() != 1 {
		t.Fatalf("ledger size = %d, want 1", env.ledger.Size())
	}

	resp = getJSON(t, env.ts, "/api/themes/stats")
	var stats map[string]int
	decodeJSON(t, resp, &stats)
	if stats["void"] != 1 {
		t.Errorf("theme stats = %v", stats)
	}
}

func TestComposeStoresValidTweet(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/generate/compose", map[string]string{"theme": "recursion"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
	if env.ledger.Size() != 1 {
		t.Fatalf("ledger size = %d, want 1", env.ledger.Size())
	}

	env.llm.reply = "Here is an attempt at a tweet"
	resp = postJSON(t, env.ts, "/api/generate/compose", map[string]string{"theme": "recursion"})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()
	if env.ledger.Size() != 1 {
		t.Fatalf("rejected compose changed the ledger: size %d", env.ledger.Size())
	}
}

func TestGenerateTweetReturnsText(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/generate/tweet", persona.TweetRequest{Kind: persona.KindShortReflection})
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["text"] != validTweet {
		t.Errorf("text = %q", body["text"])
	}
}

func TestInteractionsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/interactions", map[string]string{
		"tweet_id": "t1", "author_id": "a1", "tweet_text": "hello", "response": "*hi",
	})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/interactions?limit=10")
	var got []ledger.Interaction
	decodeJSON(t, resp, &got)
	if len(got) != 1 || got[0].TweetID != "t1" || got[0].Timestamp.IsZero() {
		t.Fatalf("interactions = %+v", got)
	}

	resp = postJSON(t, env.ts, "/api/interactions", map[string]string{"author_id": "a1"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestMaintenanceEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		resp := postJSON(t, env.ts, "/api/tweets", map[string]string{"text": validTweet, "context": "void"})
		resp.Body.Close()
	}

	resp := postJSON(t, env.ts, "/api/maintenance/cleanup", map[string]int{"days": 30})
	expectStatus(t, resp, http.StatusOK)
	var body map[string]int
	decodeJSON(t, resp, &body)
	if body["remaining"] != 1 {
		t.Errorf("after dedup remaining = %d, want 1", body["remaining"])
	}

	resp = postJSON(t, env.ts, "/api/maintenance/prune", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/maintenance/resync", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestSimilarRejectsBadThreshold(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/knowledge/similar?threshold=2")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/knowledge/similar")
	expectStatus(t, resp, http.StatusOK)
	var groups []knowledge.SimilarGroup
	decodeJSON(t, resp, &groups)
	if len(groups) != 0 {
		t.Errorf("groups = %+v, want none", groups)
	}
}

func TestContextEmptyTheme(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/context")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["context"] != "" {
		t.Errorf("context = %q, want empty", body["context"])
	}
}

func TestPromptsListAndReload(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/prompts")
	var keys []string
	decodeJSON(t, resp, &keys)
	found := false
	for _, k := range keys {
		if k == persona.PromptTweet {
			found = true
		}
	}
	if !found {
		t.Fatalf("keys = %v, missing %s", keys, persona.PromptTweet)
	}

	resp = postJSON(t, env.ts, "/api/prompts/reload", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/tweets", map[string]string{"text": validTweet})
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/metrics")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "mana_ledger_size 1") {
		t.Errorf("metrics output missing ledger size:\n%s", body)
	}
}
