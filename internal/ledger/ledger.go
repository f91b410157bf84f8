// Package ledger keeps the durable record of generated tweets and the recent
// interaction buffer. The local file is authoritative; the copy in the
// knowledge store is a best-effort mirror that Resync rebuilds.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/manaxbt/manaonsol/internal/metrics"
	"go.uber.org/zap"
)

// Mirror metadata.
const (
	tweetCategory = "generated_tweet"
	tweetTag      = "mana_tweet"
	unclassified  = "unclassified"
)

const defaultQuality = 0.5

// Knowledge is the subset of the knowledge base the ledger mirrors into and reads from.
type Knowledge interface {
	AddDocument(ctx context.Context, text string, metadata map[string]any, namespace string) bool
	Search(ctx context.Context, query string, namespaces ...string) []knowledge.SearchResult
	WipeNamespace(ctx context.Context, namespace string) error
	DeleteWhere(ctx context.Context, namespace, field, value string) error
}

// Archiver persists accepted interactions beyond the in-memory buffer.
type Archiver interface {
	ArchiveInteraction(ctx context.Context, in Interaction) error
}

// Options configures a Ledger.
type Options struct {
	Path            string
	MaxTweets       int
	MaxInteractions int
	Namespace       string
	// Archive, when set, receives every interaction AddInteraction accepts.
	Archive Archiver
}

// Ledger is the tweet memory.
type Ledger struct {
	opts    Options
	kb      Knowledge
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	records      []TweetRecord
	interactions []Interaction

	cleaning atomic.Bool
}

// New opens the ledger file at opts.Path, creating it on first save.
func New(kb Knowledge, opts Options, m *metrics.Metrics, logger *zap.Logger) (*Ledger, error) {
	if opts.MaxTweets <= 0 {
		opts.MaxTweets = 100
	}
	if opts.MaxInteractions <= 0 {
		opts.MaxInteractions = 1000
	}
	if opts.Namespace == "" {
		opts.Namespace = "tweet"
	}
	records, err := loadFile(opts.Path)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		opts:    opts,
		kb:      kb,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		records: records,
	}
	m.SetLedgerSize(len(records))
	logger.Info("ledger loaded", zap.String("path", opts.Path), zap.Int("tweets", len(records)))
	return l, nil
}

// Size returns the number of retained tweets.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the ledger in insertion order.
func (l *Ledger) Records() []TweetRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TweetRecord(nil), l.records...)
}

// saveLocked persists the current records; the caller holds mu.
func (l *Ledger) saveLocked() error {
	if err := saveFile(l.opts.Path, l.records); err != nil {
		return err
	}
	l.metrics.SetLedgerSize(len(l.records))
	return nil
}

func (l *Ledger) mirrorMetadata(r TweetRecord) map[string]any {
	return map[string]any{
		"id":        r.ID,
		"text":      r.Text,
		"timestamp": r.Timestamp,
		"context":   r.Context,
		"category":  tweetCategory,
		"tags":      []string{tweetTag},
	}
}

// AddTweet validates and stores a generated tweet, then mirrors it. Rejected
// text is logged and dropped: the result is nil with a nil error. An error is
// returned only when the ledger file cannot be written, in which case the
// tweet is not kept.
func (l *Ledger) AddTweet(ctx context.Context, text, themeContext string) (*TweetRecord, error) {
	if err := Validate(text); err != nil {
		reason := "invalid_format"
		if errors.Is(err, ErrMetaCommentary) {
			reason = "meta_commentary"
		}
		l.metrics.TweetOffered(reason)
		l.logger.Warn("tweet rejected", zap.String("reason", reason), zap.Error(err))
		return nil, nil
	}

	rec := TweetRecord{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: l.now().Format(TimestampLayout),
		Context:   themeContext,
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	if err := l.saveLocked(); err != nil {
		l.records = l.records[:len(l.records)-1]
		l.mu.Unlock()
		l.metrics.TweetOffered("persist_error")
		return nil, fmt.Errorf("add tweet: %w", err)
	}
	l.mu.Unlock()
	l.metrics.TweetOffered("accepted")
	l.logger.Debug("tweet stored", zap.String("id", rec.ID), zap.String("context", themeContext))

	if !l.kb.AddDocument(ctx, rec.Text, l.mirrorMetadata(rec), l.opts.Namespace) {
		l.metrics.MirrorFailed()
		l.logger.Warn("tweet mirror failed", zap.String("id", rec.ID))
	}
	return &rec, nil
}

// RelevantHistory returns texts of mirrored tweets related to themeContext.
// Search yields one match per namespace, so at most one text comes back.
func (l *Ledger) RelevantHistory(ctx context.Context, themeContext string, limit int) []string {
	results := l.kb.Search(ctx, themeContext, l.opts.Namespace)
	var out []string
	for _, r := range results {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.Text)
	}
	return out
}

// RecentTweets returns the text of the last limit tweets, oldest first.
func (l *Ledger) RecentTweets(limit int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	tail := lastN(l.records, limit)
	out := make([]string, len(tail))
	for i, r := range tail {
		out[i] = r.Text
	}
	return out
}

// ThemeProgression relates each of the last limit tweets to its closest
// knowledge entry. It issues one search per tweet.
func (l *Ledger) ThemeProgression(ctx context.Context, limit int) []ThemeSnapshot {
	l.mu.Lock()
	recent := append([]TweetRecord(nil), lastN(l.records, limit)...)
	l.mu.Unlock()

	var themes []ThemeSnapshot
	for _, r := range recent {
		results := l.kb.Search(ctx, r.Context+" "+r.Text)
		if len(results) == 0 {
			continue
		}
		md := results[0].Metadata
		themes = append(themes, ThemeSnapshot{
			Timestamp:       r.Timestamp,
			MainTheme:       r.Context,
			RelatedConcepts: tagsOf(md),
			Category:        categoryOf(md),
		})
	}
	return themes
}

// SuggestNextThemes follows the tags of entries related to theme and returns
// up to three of them that lead somewhere.
func (l *Ledger) SuggestNextThemes(ctx context.Context, theme string) []ThemeSuggestion {
	results := l.kb.Search(ctx, theme)
	if len(results) > 2 {
		results = results[:2]
	}
	var tags []string
	for _, r := range results {
		tags = append(tags, tagsOf(r.Metadata)...)
	}

	var out []ThemeSuggestion
	for _, tag := range tags {
		if len(out) == 3 {
			break
		}
		hits := l.kb.Search(ctx, tag)
		if len(hits) == 0 {
			continue
		}
		desc := []rune(hits[0].Text)
		if len(desc) > 100 {
			desc = desc[:100]
		}
		out = append(out, ThemeSuggestion{Theme: tag, Description: string(desc), Category: categoryOf(hits[0].Metadata)})
	}
	return out
}

// CleanupOldTweets drops tweets older than daysOld, collapses duplicate texts
// keeping the first, caps the ledger at the maximum size keeping the newest,
// and saves. It then rebuilds the mirror; a failed rebuild is logged and does
// not fail the cleanup. Only one cleanup runs at a time.
func (l *Ledger) CleanupOldTweets(ctx context.Context, daysOld int) error {
	if !l.cleaning.CompareAndSwap(false, true) {
		l.metrics.CleanupRun("skipped")
		return ErrCleanupInProgress
	}
	defer l.cleaning.Store(false)

	l.logger.Info("starting tweet cleanup", zap.Int("days_old", daysOld))
	cutoff := l.now().Add(-time.Duration(daysOld) * 24 * time.Hour)

	l.mu.Lock()
	before := len(l.records)
	seen := make(map[string]bool, before)
	kept := make([]TweetRecord, 0, before)
	for _, r := range l.records {
		ts, err := r.Time()
		if err != nil {
			l.logger.Warn("dropping tweet with unreadable timestamp", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		if !ts.After(cutoff) || seen[r.Text] {
			continue
		}
		seen[r.Text] = true
		kept = append(kept, r)
	}
	old := l.records
	l.records = lastN(kept, l.opts.MaxTweets)
	if err := l.saveLocked(); err != nil {
		l.records = old
		l.mu.Unlock()
		l.metrics.CleanupRun("error")
		return fmt.Errorf("cleanup: %w", err)
	}
	after := len(l.records)
	l.mu.Unlock()

	l.logger.Info("tweet cleanup finished", zap.Int("before", before), zap.Int("after", after))
	if err := l.Resync(ctx); err != nil {
		l.logger.Warn("mirror rebuild skipped", zap.Error(err))
	}
	l.metrics.CleanupRun("ok")
	return nil
}

// Resync replaces the mirrored namespace with the current ledger contents.
func (l *Ledger) Resync(ctx context.Context) error {
	records := l.Records()
	if err := l.kb.WipeNamespace(ctx, l.opts.Namespace); err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	failed := 0
	for _, r := range records {
		if !l.kb.AddDocument(ctx, r.Text, l.mirrorMetadata(r), l.opts.Namespace) {
			failed++
		}
	}
	if failed > 0 {
		l.metrics.MirrorFailed()
		return fmt.Errorf("resync: %d of %d tweets not mirrored", failed, len(records))
	}
	l.logger.Info("tweet mirror rebuilt", zap.Int("tweets", len(records)))
	return nil
}

// PruneTweetCount trims the oldest tweets beyond the maximum size and removes
// them from the mirror by timestamp. Remote failures are logged.
func (l *Ledger) PruneTweetCount(ctx context.Context) error {
	l.mu.Lock()
	excess := len(l.records) - l.opts.MaxTweets
	if excess <= 0 {
		l.mu.Unlock()
		return nil
	}
	removed := append([]TweetRecord(nil), l.records[:excess]...)
	old := l.records
	l.records = append([]TweetRecord(nil), l.records[excess:]...)
	if err := l.saveLocked(); err != nil {
		l.records = old
		l.mu.Unlock()
		return fmt.Errorf("prune: %w", err)
	}
	l.mu.Unlock()

	for _, r := range removed {
		if err := l.kb.DeleteWhere(ctx, l.opts.Namespace, "timestamp", r.Timestamp); err != nil {
			l.logger.Error("pruning mirrored tweet failed", zap.String("id", r.ID), zap.Error(err))
		}
	}
	l.logger.Info("pruned tweets", zap.Int("removed", len(removed)), zap.Int("max", l.opts.MaxTweets))
	return nil
}

// ThemeStatistics counts tweets per normalized theme, skipping entries that
// lack the leading sentinel. Tweets with no theme count as "unclassified".
func (l *Ledger) ThemeStatistics() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range l.records {
		if !strings.HasPrefix(r.Text, Sentinel) {
			continue
		}
		theme := strings.ToLower(strings.TrimSpace(r.Context))
		if theme == "" {
			theme = unclassified
		}
		counts[theme]++
	}
	return counts
}

// UserInteractions lists ledger entries attributed to authorID.
func (l *Ledger) UserInteractions(authorID string) []UserInteraction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []UserInteraction
	for _, r := range l.records {
		if r.AuthorID != authorID {
			continue
		}
		q := defaultQuality
		if r.QualityScore != nil {
			q = *r.QualityScore
		}
		out = append(out, UserInteraction{Text: r.Text, Timestamp: r.Timestamp, QualityScore: q})
	}
	return out
}

// RecentUserInteractions lists entries by authorID newer than hours ago.
func (l *Ledger) RecentUserInteractions(authorID string, hours int) []TweetRecord {
	cutoff := l.now().Add(-time.Duration(hours) * time.Hour)
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []TweetRecord
	for _, r := range l.records {
		if r.AuthorID != authorID {
			continue
		}
		if ts, err := r.Time(); err == nil && ts.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// AddInteraction appends to the bounded interaction buffer, dropping the
// oldest entry on overflow, and hands it to the archive if one is set.
func (l *Ledger) AddInteraction(ctx context.Context, in Interaction) {
	l.mu.Lock()
	l.interactions = append(l.interactions, in)
	if over := len(l.interactions) - l.opts.MaxInteractions; over > 0 {
		l.interactions = append([]Interaction(nil), l.interactions[over:]...)
	}
	l.mu.Unlock()
	l.logger.Info("stored interaction", zap.String("tweet_id", in.TweetID))

	if l.opts.Archive != nil {
		if err := l.opts.Archive.ArchiveInteraction(ctx, in); err != nil {
			l.logger.Warn("archive interaction failed", zap.String("tweet_id", in.TweetID), zap.Error(err))
		}
	}
}

// RecentInteractions returns the last limit interactions, oldest first.
func (l *Ledger) RecentInteractions(limit int) []Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Interaction(nil), lastN(l.interactions, limit)...)
}

func lastN[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

func tagsOf(md map[string]any) []string {
	switch t := md["tags"].(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func categoryOf(md map[string]any) string {
	s, _ := md["category"].(string)
	return s
}
