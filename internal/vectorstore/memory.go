package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store doing exact cosine search. It backs local
// runs without Qdrant and the package tests of everything above the store.
type Memory struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]Point
}

// NewMemory creates an empty in-memory store. A dimension of zero accepts any width.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension:  dimension,
		namespaces: make(map[string]map[string]Point),
	}
}

func (m *Memory) Upsert(_ context.Context, namespace string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if err := m.checkDim(p.Vector); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", namespace, p.ID, err)
		}
	}
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Point)
		m.namespaces[namespace] = ns
	}
	for _, p := range points {
		ns[p.ID] = clonePoint(p)
	}
	return nil
}

func (m *Memory) Query(_ context.Context, namespace string, vector []float32, opts QueryOptions) ([]Match, error) {
	if err := m.checkDim(vector); err != nil {
		return nil, fmt.Errorf("query %s: %w", namespace, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	matches := make([]Match, 0, len(ns))
	for id, p := range ns {
		match := Match{ID: id, Score: cosine(vector, p.Vector)}
		if opts.IncludeMetadata {
			match.Metadata = cloneMetadata(p.Metadata)
		}
		matches = append(matches, match)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if opts.Offset >= len(matches) {
		return nil, nil
	}
	matches = matches[opts.Offset:]
	if opts.TopK > 0 && len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

func (m *Memory) Fetch(_ context.Context, namespace string, ids []string) (map[string]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Point, len(ids))
	ns := m.namespaces[namespace]
	for _, id := range ids {
		if p, ok := ns[id]; ok {
			out[id] = clonePoint(p)
		}
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, namespace string, point Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace][point.ID]; !ok {
		return fmt.Errorf("update %s/%s: point not found", namespace, point.ID)
	}
	if err := m.checkDim(point.Vector); err != nil {
		return fmt.Errorf("update %s/%s: %w", namespace, point.ID, err)
	}
	m.namespaces[namespace][point.ID] = clonePoint(point)
	return nil
}

func (m *Memory) Delete(_ context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.namespaces[namespace], id)
	}
	return nil
}

func (m *Memory) DeleteAll(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *Memory) DeleteWhere(_ context.Context, namespace, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.namespaces[namespace] {
		if v, ok := p.Metadata[field].(string); ok && v == value {
			delete(m.namespaces[namespace], id)
		}
	}
	return nil
}

func (m *Memory) Stats(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int, len(m.namespaces))
	for name, ns := range m.namespaces {
		if len(ns) > 0 {
			stats[name] = len(ns)
		}
	}
	return stats, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) checkDim(v []float32) error {
	if m.dimension > 0 && len(v) != m.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), m.dimension)
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clonePoint(p Point) Point {
	v := make([]float32, len(p.Vector))
	copy(v, p.Vector)
	return Point{ID: p.ID, Vector: v, Metadata: cloneMetadata(p.Metadata)}
}

// cloneMetadata deep-copies the JSON-shaped values a payload can hold.
func cloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
