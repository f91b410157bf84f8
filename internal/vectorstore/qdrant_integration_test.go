//go:build integration

package vectorstore

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// startQdrant runs a Qdrant container and returns a connected store.
func startQdrant(t *testing.T, dim int) *Qdrant {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:v1.12.4",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start qdrant: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("qdrant host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6334/tcp")
	if err != nil {
		t.Fatalf("qdrant port: %v", err)
	}
	q, err := NewQdrant(QdrantConfig{Host: host, Port: port.Int(), CollectionPrefix: "it_", Dimension: dim}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQdrantRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := startQdrant(t, 2)

	err := q.Upsert(ctx, "tweet", []Point{
		{ID: "a-0", Vector: []float32{1, 0}, Metadata: map[string]any{"text": "alpha", "timestamp": "t1", "tags": []string{"mana_tweet"}}},
		{ID: "b-0", Vector: []float32{0, 1}, Metadata: map[string]any{"text": "beta", "timestamp": "t2"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := q.Query(ctx, "tweet", []float32{1, 0.1}, QueryOptions{TopK: 1, IncludeMetadata: true})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a-0" || matches[0].Metadata["text"] != "alpha" {
		t.Fatalf("matches = %+v", matches)
	}

	fetched, err := q.Fetch(ctx, "tweet", []string{"a-0", "missing"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fetched) != 1 || len(fetched["a-0"].Vector) != 2 {
		t.Fatalf("fetched = %+v", fetched)
	}

	if err := q.DeleteWhere(ctx, "tweet", "timestamp", "t2"); err != nil {
		t.Fatalf("delete where: %v", err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["tweet"] != 1 {
		t.Errorf("tweet count = %d, want 1", stats["tweet"])
	}

	if err := q.DeleteAll(ctx, "tweet"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if matches, err := q.Query(ctx, "tweet", []float32{1, 0}, QueryOptions{TopK: 1}); err != nil || len(matches) != 0 {
		t.Errorf("after wipe: %v, %v", matches, err)
	}
}
