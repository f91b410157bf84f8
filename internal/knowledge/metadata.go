package knowledge

import (
	"fmt"
	"unicode/utf8"
)

// Metadata keys written on every chunk.
const (
	keyID          = "id"
	keyText        = "text"
	keyTitle       = "title"
	keyCategory    = "category"
	keyTags        = "tags"
	keyTimestamp   = "timestamp"
	keyContext     = "context"
	keyChunkIndex  = "chunk_index"
	keyTotalChunks = "total_chunks"
	keyAnalysis    = "full_analysis"
)

// stringList reads a list-valued metadata field. Stores hand lists back as
// []any while callers pass []string, so both are accepted.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e != nil {
				out = append(out, asString(e))
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func stringField(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	return asString(md[key])
}

func mapField(md map[string]any, key string) map[string]any {
	if md == nil {
		return nil
	}
	m, _ := md[key].(map[string]any)
	return m
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// fitMetadata brings the serialized payload under MetadataCap by progressive
// truncation. When the fields other than the chunk text are over the cap on
// their own, they are squeezed first so the text survives. The text is then
// shortened as far as needed. An error remains only if nothing left can be cut.
func fitMetadata(md map[string]any) error {
	size, err := jsonSize(md)
	if err != nil {
		return err
	}
	if size <= MetadataCap {
		return nil
	}

	rest, err := sizeWithout(md, keyText)
	if err != nil {
		return err
	}
	if rest > MetadataCap {
		squeeze(md)
		if size, err = jsonSize(md); err != nil {
			return err
		}
	}

	text := stringField(md, keyText)
	overflow := size - MetadataCap
	for size > MetadataCap && text != "" {
		// Drop at least the overflow in runes; each rune is one byte or more.
		keep := utf8.RuneCountInString(text) - overflow
		if keep < 0 {
			keep = 0
		}
		text = truncateRunes(text, keep)
		md[keyText] = text
		if size, err = jsonSize(md); err != nil {
			return err
		}
		overflow = size - MetadataCap
	}
	if size > MetadataCap {
		return fmt.Errorf("metadata is %d bytes after truncation, cap %d", size, MetadataCap)
	}
	return nil
}

func sizeWithout(md map[string]any, key string) (int, error) {
	v, ok := md[key]
	if !ok {
		return jsonSize(md)
	}
	delete(md, key)
	size, err := jsonSize(md)
	md[key] = v
	return size, err
}

// squeeze cuts every string field except the text to fallbackRunes and every
// list to its first item, cut the same way.
func squeeze(md map[string]any) {
	for k, v := range md {
		if k == keyText {
			continue
		}
		switch t := v.(type) {
		case string:
			md[k] = truncateRunes(t, fallbackRunes)
		case []string:
			md[k] = truncateList(t, 1, fallbackRunes)
		case []any:
			md[k] = truncateList(stringList(t), 1, fallbackRunes)
		}
	}
}
