package collection

import (
	"strings"

	"github.com/kailas-cloud/cvcontext/internal/db"
	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// Hash fields written for every document.
const (
	fieldContent  = "__content"
	fieldVector   = "__vector"
	fieldMetadata = "__metadata"
)

// Default HNSW parameters.
const (
	defaultHNSWM           = 16
	defaultHNSWEFConstruct = 200
)

func keyPrefix(collection string) string {
	return domain.KeyPrefix + collection + ":"
}

func indexName(collection string) string {
	return domain.KeyPrefix + collection + ":idx"
}

func documentKey(collection, id string) string {
	return keyPrefix(collection) + id
}

func documentID(collection, key string) string {
	return strings.TrimPrefix(key, keyPrefix(collection))
}

// buildIndex defines the FT index over a collection's document hashes.
// __metadata stays unindexed: it is a JSON blob returned verbatim.
func buildIndex(collection string, dim int, opts Options) (*db.IndexDefinition, error) {
	return db.NewIndex(indexName(collection)).
		Prefix(keyPrefix(collection)).
		Vector(fieldVector, db.DefaultVectorAlias, db.VectorSpec{
			Dim:         dim,
			Distance:    opts.Distance,
			M:           opts.HNSWM,
			EFConstruct: opts.HNSWEFConstruct,
		}).
		Build()
}
