package knowledge

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MetadataCap is the hard limit on a serialized metadata payload, in bytes.
const MetadataCap = 40000

// fieldLimit bounds one list field of an analysis summary.
type fieldLimit struct {
	key      string
	items    int
	itemRune int
}

var listLimits = []fieldLimit{
	{key: "core_concepts", items: 2, itemRune: 50},
	{key: "narratives", items: 1, itemRune: 75},
	{key: "unique_elements", items: 2, itemRune: 50},
	{key: "key_quotes", items: 1, itemRune: 75},
}

const (
	implicationsKey   = "implications"
	implicationsRunes = 100
	fallbackRunes     = 50
)

// Summarize condenses a rich analysis record into a payload that fits under
// MetadataCap. List items are cut without an ellipsis; implications gets one
// when cut. The result always carries every summary key. It returns an empty
// map if the summary cannot be serialized.
func Summarize(analysis map[string]any) map[string]any {
	summary := map[string]any{implicationsKey: ""}
	for _, l := range listLimits {
		summary[l.key] = truncateList(stringList(analysis[l.key]), l.items, l.itemRune)
	}
	if v, ok := analysis[implicationsKey]; ok && v != nil {
		s := asString(v)
		if utf8.RuneCountInString(s) > implicationsRunes {
			s = truncateRunes(s, implicationsRunes) + "..."
		}
		summary[implicationsKey] = s
	}

	size, err := jsonSize(summary)
	if err != nil {
		return map[string]any{}
	}
	if size > MetadataCap {
		for k, v := range summary {
			switch t := v.(type) {
			case []string:
				if len(t) > 1 {
					summary[k] = t[:1]
				}
			case string:
				summary[k] = truncateRunes(t, fallbackRunes)
			}
		}
	}
	return summary
}

func truncateList(items []string, n, runes int) []string {
	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = truncateRunes(it, runes)
	}
	return out
}

func jsonSize(v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}
	return len(b), nil
}
