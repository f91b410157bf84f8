package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/manaxbt/manaonsol/internal/ledger"
)

// ArchiveInteraction stores one reply exchange. Re-archiving a tweet id
// replaces the stored response.
func (s *Store) ArchiveInteraction(ctx context.Context, in ledger.Interaction) error {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO interactions (tweet_id, author_id, author_username, tweet_text, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tweet_id)
		DO UPDATE SET response = EXCLUDED.response, archived_at = now()`,
		in.TweetID, in.AuthorID, in.AuthorUsername, in.TweetText, in.Response, ts,
	)
	if err != nil {
		return fmt.Errorf("archive interaction %s: %w", in.TweetID, err)
	}
	return nil
}

// InteractionsByAuthor returns an author's archived interactions newer than
// since, newest first.
func (s *Store) InteractionsByAuthor(ctx context.Context, authorID string, since time.Time, limit int) ([]ledger.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT tweet_id, author_id, author_username, tweet_text, response, created_at
		FROM interactions
		WHERE author_id = $1 AND created_at > $2
		ORDER BY created_at DESC
		LIMIT $3`,
		authorID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Interaction, error) {
		var in ledger.Interaction
		err := row.Scan(&in.TweetID, &in.AuthorID, &in.AuthorUsername, &in.TweetText, &in.Response, &in.Timestamp)
		return in, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan interactions: %w", err)
	}
	return out, nil
}

// CountInteractions returns the number of archived interactions.
func (s *Store) CountInteractions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return n, nil
}
