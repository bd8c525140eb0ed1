package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/cvcontext/internal/db"
)

// CreateIndex issues FT.CREATE for def. An existing index maps to db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	err = s.do(ctx, s.b().Arbitrary("FT.CREATE").Args(args...).Build()).Error()
	switch {
	case err == nil:
		return nil
	case isRedisErr(err, "index already exists"):
		return db.ErrIndexExists
	default:
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
}

// IndexExists asks FT.INFO about name.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.do(ctx, s.b().Arbitrary("FT.INFO").Args(name).Build()).Error()
	switch {
	case err == nil:
		return true, nil
	case isUnknownIndex(err):
		return false, nil
	default:
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
}

// isUnknownIndex matches both the RediSearch and the valkey-search wording.
func isUnknownIndex(err error) bool {
	for _, msg := range []string{"unknown index name", "no such index", "not found"} {
		if isRedisErr(err, msg) {
			return true
		}
	}
	return false
}

// buildCreateArgs renders everything after FT.CREATE:
//
//	<name> ON HASH [PREFIX n p...] SCHEMA <field> [AS alias] TYPE [attrs...] ...
func buildCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped in ErrInvalidIndex
	}

	storage := def.StorageType
	if storage == "" {
		storage = db.StorageHash
	}
	args := []string{def.Name, "ON", string(storage)}
	if n := len(def.Prefixes); n > 0 {
		args = append(args, "PREFIX", strconv.Itoa(n))
		args = append(args, def.Prefixes...)
	}

	args = append(args, "SCHEMA")
	for i := range def.Fields {
		f := &def.Fields[i]
		args = append(args, f.Name)
		if f.Alias != "" {
			args = append(args, "AS", f.Alias)
		}
		if f.Type != db.FieldVector {
			args = append(args, string(f.Type))
			continue
		}
		args = append(args, vectorArgs(f.Vector)...)
	}
	return args, nil
}

// vectorArgs renders VECTOR <algo> <nattrs> <attrs...>. Blank algo and distance
// fall back to FLAT and COSINE, the server-side defaults.
func vectorArgs(v *db.VectorSpec) []string {
	algo, distance := v.Algo, v.Distance
	if algo == "" {
		algo = db.VectorFlat
	}
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(v.Dim), "DISTANCE_METRIC", string(distance)}
	if algo == db.VectorHNSW {
		if v.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(v.M))
		}
		if v.EFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruct))
		}
	}
	return append([]string{"VECTOR", string(algo), strconv.Itoa(len(attrs))}, attrs...)
}
