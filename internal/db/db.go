package db

import (
	"context"
	"time"
)

// Store is everything the retrieval layer asks of a backend: fragment hashes,
// plain keys for cached vectors and one FT vector index per collection.
//
//nolint:interfacebloat // facade -- consumers declare narrow interfaces of their own (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem is one fragment hash written by a pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore writes fragment hashes. Reads go through the search index.
type HashStore interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
}

// KVStore holds opaque values such as cached embedding vectors.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one slot per key in order; a missing key leaves its slot nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	// Set stores value; ttl <= 0 keeps it until evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager creates and probes collection indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher runs k-nearest-neighbour queries over an index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
