// Package memory is an in-process db.Store for local runs and tests.
// KNN is brute force over every hash under the index prefixes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store keeps hashes, plain values and index definitions in maps.
type Store struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	values  map[string]value
	indexes map[string]*db.IndexDefinition
	now     func() time.Time
}

type value struct {
	data    []byte
	expires time.Time // zero: no expiry
}

func (v value) live(now time.Time) bool {
	return v.expires.IsZero() || now.Before(v.expires)
}

// New creates an empty store.
func New() *Store {
	return &Store{
		hashes:  make(map[string]map[string]string),
		values:  make(map[string]value),
		indexes: make(map[string]*db.IndexDefinition),
		now:     time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// WaitForReady always succeeds.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Close is a no-op: the data outlives any single client.
func (s *Store) Close() {}

// HSetMulti merges fields into each hash, like HSET.
func (s *Store) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		h, ok := s.hashes[item.Key]
		if !ok {
			h = make(map[string]string, len(item.Fields))
			s.hashes[item.Key] = h
		}
		for k, v := range item.Fields {
			h[k] = v
		}
	}
	return nil
}

// Get returns a copy of a live value or db.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || !v.live(s.now()) {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(v.data), nil
}

// MGet returns copies of live values; missing or expired keys stay nil.
func (s *Store) MGet(_ context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if v, ok := s.values[key]; ok && v.live(now) {
			out[i] = slices.Clone(v.data)
		}
	}
	return out, nil
}

// Set stores a copy of data. Expired values are dropped lazily on overwrite.
func (s *Store) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := value{data: slices.Clone(data)}
	if ttl > 0 {
		v.expires = s.now().Add(ttl)
	}
	s.values[key] = v
	return nil
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	cp := *def
	cp.Prefixes = slices.Clone(def.Prefixes)
	cp.Fields = slices.Clone(def.Fields)
	s.indexes[def.Name] = &cp
	return nil
}

// IndexExists reports whether an index definition is registered.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.indexes[name]
	return ok, nil
}

type candidate struct {
	key      string
	distance float64
	fields   map[string]string
}

// SearchKNN scores every indexed hash against q.Vector and returns the k nearest.
// Ties are broken by key so results are deterministic.
func (s *Store) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[q.IndexName]
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: db.ErrIndexNotFound}
	}
	field := idx.VectorField(q.Field())
	if field == nil {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("unknown vector attribute %q", q.Field())}
	}
	if len(q.Vector) != field.Vector.Dim {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf(
			"query vector dim %d does not match index dim %d", len(q.Vector), field.Vector.Dim)}
	}

	var candidates []candidate
	for key, h := range s.hashes {
		if !hasAnyPrefix(key, idx.Prefixes) {
			continue
		}
		vec, ok := decodeVector(h[field.Name], field.Vector.Dim)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			key:      key,
			distance: distance(field.Vector.Distance, q.Vector, vec),
			fields:   h,
		})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.distance != b.distance {
			if a.distance < b.distance {
				return -1
			}
			return 1
		}
		return strings.Compare(a.key, b.key)
	})
	if len(candidates) > q.K {
		candidates = candidates[:q.K]
	}

	entries := make([]db.SearchEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, db.SearchEntry{
			Key:    c.key,
			Score:  db.SimilarityFromDistance(field.Vector.Distance, c.distance),
			Fields: projectFields(c.fields, q.ReturnFields),
		})
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func hasAnyPrefix(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func projectFields(h map[string]string, fields []string) map[string]string {
	if len(fields) == 0 {
		out := make(map[string]string, len(h))
		for k, v := range h {
			out[k] = v
		}
		return out
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out[f] = v
		}
	}
	return out
}

func decodeVector(raw string, dim int) ([]float32, bool) {
	if len(raw) != dim*4 {
		return nil, false
	}
	vec, err := db.DecodeVector(raw)
	return vec, err == nil
}

// distance mirrors the search module: COSINE and IP are 1-sim, L2 is squared Euclidean.
func distance(metric db.DistanceMetric, a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		d := x - y
		sq += d * d
	}

	switch metric {
	case db.DistanceL2:
		return sq
	case db.DistanceIP:
		return 1 - dot
	default:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}
