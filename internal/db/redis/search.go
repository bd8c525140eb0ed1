package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

// scoreField is the alias FT.SEARCH writes the KNN distance into.
const scoreField = "__vector_score"

var (
	errNoIndex  = errors.New("index name is required")
	errNoVector = errors.New("vector is required")
	errBadK     = errors.New("k must be positive")
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// Entries come back nearest first with Score converted to a similarity.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errNoIndex
	case len(q.Vector) == 0:
		return nil, errNoVector
	case q.K <= 0:
		return nil, errBadK
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(searchArgs(q)...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	switch {
	case err == nil:
		return parseKNNReply(raw, q.Metric)
	case isUnknownIndex(err):
		err = db.ErrIndexNotFound
	}
	return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
}

// searchArgs lays out FT.SEARCH arguments after the command name:
//
//	idx "*=>[KNN k @vector $BLOB [EF_RUNTIME n] AS __vector_score]"
//	[RETURN n __vector_score f...] SORTBY __vector_score ASC LIMIT 0 k
//	PARAMS 2 BLOB <float32 le> DIALECT 2
func searchArgs(q *db.KNNQuery) []string {
	knn := fmt.Sprintf("*=>[KNN %d @%s $BLOB", q.K, q.Field())
	if q.EFRuntime > 0 {
		knn += " EF_RUNTIME " + strconv.Itoa(q.EFRuntime)
	}
	knn += " AS " + scoreField + "]"

	args := []string{q.IndexName, knn}
	if n := len(q.ReturnFields); n > 0 {
		args = append(args, "RETURN", strconv.Itoa(n+1), scoreField)
		args = append(args, q.ReturnFields...)
	}
	return append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", packVector(q.Vector),
		"DIALECT", "2",
	)
}

// parseKNNReply reads the RESP2 reply [total, key1, fields1, key2, fields2, ...].
func parseKNNReply(raw []rueidis.RedisMessage, metric db.DistanceMetric) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	res := &db.SearchResult{Total: int(total)}
	for pair := range slices.Chunk(raw[1:], 2) {
		if len(pair) < 2 {
			break
		}
		key, err := pair[0].ToString()
		if err != nil {
			continue
		}
		attrs, err := pair[1].ToArray()
		if err != nil {
			continue
		}
		res.Entries = append(res.Entries, newEntry(key, attrs, metric))
	}
	return res, nil
}

func newEntry(key string, attrs []rueidis.RedisMessage, metric db.DistanceMetric) db.SearchEntry {
	e := db.SearchEntry{Key: key, Fields: make(map[string]string, len(attrs)/2)}
	for kv := range slices.Chunk(attrs, 2) {
		if len(kv) < 2 {
			break
		}
		name, nerr := kv[0].ToString()
		value, verr := kv[1].ToString()
		if nerr != nil || verr != nil {
			continue
		}
		if name != scoreField {
			e.Fields[name] = value
			continue
		}
		if d, err := strconv.ParseFloat(value, 64); err == nil {
			e.Score = db.SimilarityFromDistance(metric, d)
		}
	}
	return e
}

// packVector encodes v as the little-endian float32 blob FT.SEARCH expects.
func packVector(v []float32) string {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return rueidis.BinaryString(buf)
}
