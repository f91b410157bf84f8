//go:build integration

package store

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/manaxbt/manaonsol/internal/ledger"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// startStore runs PostgreSQL in a container and returns a migrated store.
func startStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("mana_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx, migrationsDir(t)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestArchiveInteraction(t *testing.T) {
	ctx := context.Background()
	s := startStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i, id := range []string{"t1", "t2"} {
		err := s.ArchiveInteraction(ctx, ledger.Interaction{
			TweetID: id, AuthorID: "u1", AuthorUsername: "neo",
			TweetText: "what is mana", Response: "@neo the void",
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("archive %s: %v", id, err)
		}
	}
	if err := s.ArchiveInteraction(ctx, ledger.Interaction{TweetID: "t1", AuthorID: "u1", Response: "edited", Timestamp: now}); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	n, err := s.CountInteractions(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
	got, err := s.InteractionsByAuthor(ctx, "u1", now.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].TweetID != "t2" || got[1].Response != "edited" {
		t.Errorf("interactions = %+v", got)
	}

	// Migrations run on every start.
	if err := s.Migrate(ctx, migrationsDir(t)); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}
