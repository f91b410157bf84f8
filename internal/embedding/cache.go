package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cached wraps a Provider with a Redis cache keyed by model and text hash.
// Redis failures never fail an Embed call; they only cost a cache miss.
type Cached struct {
	inner  Provider
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached decorates inner. A zero ttl keeps entries until evicted by Redis.
func NewCached(inner Provider, rdb redis.Cmdable, model string, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{
		inner:  inner,
		rdb:    rdb,
		prefix: "mana:emb:" + model + ":",
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Embed serves cached vectors and embeds only the misses.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
		cached = nil
	}
	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				if vec, derr := decodeVector([]byte(s)); derr == nil {
					out[i] = vec
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(fresh), len(missTexts))
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return out, nil
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding: corrupt cache entry of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
