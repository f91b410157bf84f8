package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Acceptance markers every stored tweet must carry.
const (
	Sentinel  = "*"
	Signature = "terminal@backrooms:~/$"
)

// leakPhrases mark completions where the model stepped out of character.
var leakPhrases = []string{"Here is an attempt", "I tried to"}

var (
	// ErrInvalidFormat rejects text without the leading sentinel or the terminal signature.
	ErrInvalidFormat = errors.New("invalid tweet format")

	// ErrMetaCommentary rejects text that talks about itself instead of being the tweet.
	ErrMetaCommentary = errors.New("meta-commentary detected")

	// ErrCleanupInProgress is returned when a cleanup is already running.
	ErrCleanupInProgress = errors.New("cleanup already in progress")
)

// Validate applies the acceptance rules to tweet text.
func Validate(text string) error {
	if !strings.HasPrefix(text, Sentinel) || !strings.Contains(text, Signature) {
		return ErrInvalidFormat
	}
	for _, p := range leakPhrases {
		if strings.Contains(text, p) {
			return fmt.Errorf("%w: %q", ErrMetaCommentary, p)
		}
	}
	return nil
}

// TimestampLayout is the local-time ISO-8601 form written to the ledger file.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// TweetRecord is one entry of the ledger file. Timestamp is kept as written so
// that remote deletes filtered on it match the mirrored metadata exactly.
type TweetRecord struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Timestamp      string   `json:"timestamp"`
	Context        string   `json:"context"`
	AuthorID       string   `json:"author_id,omitempty"`
	AuthorUsername string   `json:"author_username,omitempty"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
}

// Time parses the record's timestamp. Both RFC 3339 and zone-less ISO-8601
// (read as local time) are accepted.
func (r TweetRecord) Time() (time.Time, error) {
	return ParseTimestamp(r.Timestamp)
}

// ParseTimestamp parses a ledger or interaction timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Interaction is a reply exchange kept in the bounded interaction buffer.
type Interaction struct {
	TweetID        string    `json:"tweet_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	TweetText      string    `json:"tweet_text"`
	Response       string    `json:"response"`
	Timestamp      time.Time `json:"timestamp"`
}

// UserInteraction is a ledger entry attributed to an author.
type UserInteraction struct {
	Text         string  `json:"text"`
	Timestamp    string  `json:"timestamp"`
	QualityScore float64 `json:"quality_score"`
}

// ThemeSnapshot describes how one recent tweet relates to stored knowledge.
type ThemeSnapshot struct {
	Timestamp       string   `json:"timestamp"`
	MainTheme       string   `json:"main_theme"`
	RelatedConcepts []string `json:"related_concepts"`
	Category        string   `json:"category"`
}

// ThemeSuggestion is a candidate next theme drawn from related tags.
type ThemeSuggestion struct {
	Theme       string `json:"theme"`
	Description string `json:"description"`
	Category    string `json:"category"`
}
