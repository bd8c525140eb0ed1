package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIndex wraps every IndexDefinition.Validate failure.
var ErrInvalidIndex = errors.New("db: invalid index definition")

// StorageType is the ON clause of FT.CREATE.
type StorageType string

// StorageHash indexes plain hashes.
const StorageHash StorageType = "HASH"

// DistanceMetric is the DISTANCE_METRIC of a vector field.
type DistanceMetric string

const (
	DistanceCosine DistanceMetric = "COSINE"
	DistanceL2     DistanceMetric = "L2"
	DistanceIP     DistanceMetric = "IP"
)

// ParseDistanceMetric accepts cosine, l2 or ip in any case; "" means cosine.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	if s == "" {
		return DistanceCosine, nil
	}
	switch m := DistanceMetric(strings.ToUpper(s)); m {
	case DistanceCosine, DistanceL2, DistanceIP:
		return m, nil
	}
	return "", fmt.Errorf("unknown distance metric %q", s)
}

// VectorAlgorithm is the vector index type in a SCHEMA clause.
type VectorAlgorithm string

const (
	VectorHNSW VectorAlgorithm = "HNSW"
	VectorFlat VectorAlgorithm = "FLAT"
)

// FieldType is the SCHEMA keyword of a field.
type FieldType string

const (
	FieldTag    FieldType = "TAG"
	FieldText   FieldType = "TEXT"
	FieldVector FieldType = "VECTOR"
)

// VectorSpec describes how a vector field is stored and searched.
type VectorSpec struct {
	Algo     VectorAlgorithm // HNSW when empty
	Dim      int
	Distance DistanceMetric // COSINE when empty
	// HNSW graph tuning; 0 keeps the server default.
	M           int
	EFConstruct int
}

// IndexField is one SCHEMA entry. Vector is set only for FieldVector.
type IndexField struct {
	Name   string
	Alias  string
	Type   FieldType
	Vector *VectorSpec
}

// AttributeName is the name queries address the field by.
func (f *IndexField) AttributeName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// IndexDefinition is everything FT.CREATE needs.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

// VectorField returns the vector field addressed by attribute, or nil.
func (idx *IndexDefinition) VectorField(attribute string) *IndexField {
	for i := range idx.Fields {
		if f := &idx.Fields[i]; f.Type == FieldVector && f.AttributeName() == attribute {
			return f
		}
	}
	return nil
}

// Validate reports the first structural problem, wrapped in ErrInvalidIndex.
func (idx *IndexDefinition) Validate() error {
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("%w: bad index name %q", ErrInvalidIndex, idx.Name)
	}
	if len(idx.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidIndex, idx.Name)
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: field #%d has no name", ErrInvalidIndex, i)
		}
		attr := f.AttributeName()
		if _, dup := seen[attr]; dup {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidIndex, attr)
		}
		seen[attr] = struct{}{}

		if f.Type == FieldVector && (f.Vector == nil || f.Vector.Dim <= 0) {
			return fmt.Errorf("%w: vector field %q needs a positive dimension", ErrInvalidIndex, f.Name)
		}
	}
	return nil
}

var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// IsValidIdentifier reports whether s is safe to splice into keys and index names.
func IsValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
