package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ExtractJSON returns the span from the first '{' to the last '}' of a
// completion once it parses. Raw line breaks inside string literals, which
// models often emit, are replaced with spaces before giving up.
func ExtractJSON(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", ErrUnparseable
	}
	candidate := response[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	if repaired := flattenStringNewlines(candidate); json.Valid([]byte(repaired)) {
		return repaired, nil
	}
	return "", fmt.Errorf("%w: invalid object", ErrUnparseable)
}

func flattenStringNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString && (r == '\n' || r == '\r'):
			r = ' '
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EngagementMetrics grades a tweet.
type EngagementMetrics struct {
	Complexity  string   `json:"complexity"`
	Uniqueness  string   `json:"uniqueness"`
	Resonance   string   `json:"resonance"`
	KeyPatterns []string `json:"key_patterns"`
}

// ContentAnalysis is the structured reading of a tweet.
type ContentAnalysis struct {
	Themes            []string          `json:"themes"`
	Style             string            `json:"style"`
	EngagementMetrics EngagementMetrics `json:"engagement_metrics"`
	TechnicalElements []string          `json:"technical_elements,omitempty"`
	MysticalElements  []string          `json:"mystical_elements,omitempty"`
}

// errorAnalysis is returned in place of an analysis that could not be produced.
func errorAnalysis(theme, pattern string) ContentAnalysis {
	return ContentAnalysis{
		Themes: []string{theme},
		Style:  "error",
		EngagementMetrics: EngagementMetrics{
			Complexity:  "error",
			Uniqueness:  "error",
			Resonance:   "error",
			KeyPatterns: []string{pattern},
		},
	}
}

const analyzePrompt = `You are a content analyst. Analyze this tweet and respond with ONLY valid JSON - no other text.

Tweet: %s

Required JSON structure:
{
  "themes": ["theme1", "theme2", "theme3"],
  "style": "primary-style with descriptors",
  "engagement_metrics": {
    "complexity": "low|medium|high",
    "uniqueness": "low|medium|high",
    "resonance": "weak|moderate|strong",
    "key_patterns": ["pattern1", "pattern2"]
  },
  "technical_elements": ["element1", "element2"],
  "mystical_elements": ["element1", "element2"]
}`

var requiredAnalysisFields = []string{"themes", "style", "engagement_metrics"}

// AnalyzeContent asks for a structured analysis of tweet. It always returns a
// well-shaped result: unparseable output yields a "JSON parsing failed"
// marker, any other failure an "analysis error" marker.
func (g *Generator) AnalyzeContent(ctx context.Context, tweet string) ContentAnalysis {
	response, err := g.Respond(ctx, fmt.Sprintf(analyzePrompt, tweet), "", Options{
		MaxTokens: 500, Temperature: 0.9, Purpose: purposeAnalysis,
	})
	if err != nil {
		g.logger.Warn("content analysis failed", zap.Error(err))
		return errorAnalysis("analysis error", "unexpected error")
	}

	raw, err := ExtractJSON(response)
	if err != nil {
		g.logger.Warn("content analysis unparseable", zap.Error(err), zap.String("response", truncate(response, 200)))
		return errorAnalysis("JSON parsing failed", "parse error")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return errorAnalysis("JSON parsing failed", "parse error")
	}
	for _, f := range requiredAnalysisFields {
		if _, ok := fields[f]; !ok {
			g.logger.Warn("content analysis missing field", zap.String("field", f))
			return errorAnalysis("analysis error", "unexpected error")
		}
	}
	var analysis ContentAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		g.logger.Warn("content analysis has wrong shape", zap.Error(err))
		return errorAnalysis("analysis error", "unexpected error")
	}
	return analysis
}

// ThreadTheme is the topic of a tweet thread.
type ThreadTheme struct {
	Topic     string   `json:"topic"`
	KeyPoints []string `json:"key_points"`
}

const threadPrompt = `Analyze this tweet thread and extract the core discussion theme and key points.
Focus on the actual topic being discussed, not just mentioned entities.

Tweets:
%s

Respond with ONLY valid JSON in this format:
{
    "topic": "one sentence description of core discussion topic",
    "key_points": ["point 1", "point 2", "point 3"]
}`

// AnalyzeThreadTheme extracts the topic of a thread, or a fixed "Unknown"
// theme when it cannot.
func (g *Generator) AnalyzeThreadTheme(ctx context.Context, tweets []string) ThreadTheme {
	fallback := ThreadTheme{Topic: "Unknown", KeyPoints: []string{"Error analyzing thread"}}
	response, err := g.Respond(ctx, fmt.Sprintf(threadPrompt, strings.Join(tweets, "\n")), "", Options{
		MaxTokens: 500, Temperature: 0.3, Purpose: purposeAnalysis,
	})
	if err != nil {
		g.logger.Warn("thread analysis failed", zap.Error(err))
		return fallback
	}
	raw, err := ExtractJSON(response)
	if err != nil {
		g.logger.Warn("thread analysis unparseable", zap.Error(err))
		return fallback
	}
	var theme ThreadTheme
	if err := json.Unmarshal([]byte(raw), &theme); err != nil || theme.Topic == "" {
		return fallback
	}
	return theme
}

// ThreadTweet is one tweet of a conversation thread.
type ThreadTweet struct {
	Text           string `json:"text"`
	AuthorUsername string `json:"author_username"`
}

var spamMarkers = []string{
	"check out", "follow me", "click here", "sale", "discount",
	"subscribe", "join now", "giveaway",
}

const maxHashtags = 2

// CleanThreadContext formats a thread as "@author: text" lines after dropping
// incomplete tweets, promotional lines and hashtags past the second.
func CleanThreadContext(thread []ThreadTweet) string {
	var out []string
	for _, tw := range thread {
		if tw.Text == "" || tw.AuthorUsername == "" {
			continue
		}
		var lines []string
		for _, line := range strings.Split(tw.Text, "\n") {
			if !isSpam(line) {
				lines = append(lines, line)
			}
		}
		text := strings.Join(lines, " ")

		if strings.Count(text, "#") > maxHashtags {
			var words []string
			tags := 0
			for _, w := range strings.Fields(text) {
				if strings.HasPrefix(w, "#") {
					if tags == maxHashtags {
						continue
					}
					tags++
				}
				words = append(words, w)
			}
			text = strings.Join(words, " ")
		}

		if strings.TrimSpace(text) != "" {
			out = append(out, "@"+tw.AuthorUsername+": "+text)
		}
	}
	return strings.Join(out, "\n")
}

func isSpam(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range spamMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// BackroomsResult wraps a backrooms analysis.
type BackroomsResult struct {
	Text string `json:"text"`
}

// BackroomsAnalysis analyses a backrooms conversation summary.
func (g *Generator) BackroomsAnalysis(ctx context.Context, conversationID, summary string) (BackroomsResult, error) {
	g.logger.Info("generating backrooms analysis",
		zap.String("conversation", conversationID),
		zap.Int("summary_chars", len(summary)))
	prompt, _ := g.prompts.Render(PromptBackrooms, map[string]string{
		"title":           conversationID,
		"content":         summary,
		"conversation_id": slug(conversationID),
	})
	text, err := g.Respond(ctx, prompt, "", Options{
		MaxTokens: 1500, Temperature: 0.7, Purpose: purposeAnalysis,
		System: "You are a detail-oriented analyst focused on extracting unique elements and specific examples. Avoid generic observations.",
	})
	if err != nil {
		g.metrics.Generated("backrooms_analysis", "error")
		return BackroomsResult{}, err
	}
	g.metrics.Generated("backrooms_analysis", "ok")
	return BackroomsResult{Text: text}, nil
}

// IsGenerationError reports whether err came from the completion backend.
func IsGenerationError(err error) bool { return errors.Is(err, ErrGeneration) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
