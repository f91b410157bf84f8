package persona

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Prompt keys with built-in defaults.
const (
	PromptTweet     = "tweet_generation"
	PromptReply     = "reply_generation"
	PromptBackrooms = "backrooms_analysis"
	PromptShort     = "short_tweet"
)

// PromptStore owns the prompt templates. Templates come from a TOML file of
// top-level string keys layered over the built-in defaults; Reload swaps the
// whole set at once.
type PromptStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	prompts map[string]string
}

// NewPromptStore loads path over the defaults. A missing file leaves only the defaults.
func NewPromptStore(path string, logger *zap.Logger) (*PromptStore, error) {
	s := &PromptStore{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the prompt file. On error the previous prompts stay active.
func (s *PromptStore) Reload() error {
	next := make(map[string]string, len(defaultPrompts))
	for k, v := range defaultPrompts {
		next[k] = v
	}

	overrides := 0
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Info("prompt file not found, using defaults", zap.String("path", s.path))
		case err != nil:
			return fmt.Errorf("read prompts: %w", err)
		default:
			var loaded map[string]string
			if err := toml.Unmarshal(data, &loaded); err != nil {
				return fmt.Errorf("parse prompts %s: %w", s.path, err)
			}
			for k, v := range loaded {
				next[k] = v
			}
			overrides = len(loaded)
		}
	}

	s.mu.Lock()
	s.prompts = next
	s.mu.Unlock()
	s.logger.Info("prompts loaded", zap.Int("total", len(next)), zap.Int("from_file", overrides))
	return nil
}

// Get returns the template stored under key.
func (s *PromptStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[key]
	return p, ok && p != ""
}

// Keys lists the available template names.
func (s *PromptStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.prompts))
	for k := range s.prompts {
		keys = append(keys, k)
	}
	return keys
}

// Render fills {name} placeholders in the template under key.
func (s *PromptStore) Render(key string, vars map[string]string) (string, bool) {
	tmpl, ok := s.Get(key)
	if !ok {
		return "", false
	}
	return fill(tmpl, vars), true
}

func fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Watch reloads the store whenever the prompt file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (s *PromptStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.Info("watching prompt file", zap.String("path", s.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("prompt watcher error", zap.Error(err))
		}
	}
}

// handleEvent reloads when the prompt file is written or moved into place,
// and reports whether a reload was attempted.
func (s *PromptStore) handleEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
		return false
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	if err := s.Reload(); err != nil {
		s.logger.Warn("prompt reload failed", zap.Error(err))
	}
	return true
}
