package db

import (
	"strconv"
	"strings"
)

// IndexBuilder assembles a HASH-backed FT index definition.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition named name.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, StorageType: StorageHash}}
}

// Prefix restricts the index to keys starting with any of prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Field adds a scalar TAG or TEXT field.
func (b *IndexBuilder) Field(name string, typ FieldType) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: typ})
	return b
}

// Vector adds a vector field stored under name; alias is what KNN clauses address.
func (b *IndexBuilder) Vector(name, alias string, spec VectorSpec) *IndexBuilder {
	if spec.Algo == "" {
		spec.Algo = VectorHNSW
	}
	if spec.Distance == "" {
		spec.Distance = DistanceCosine
	}
	if spec.Algo != VectorHNSW {
		spec.M, spec.EFConstruct = 0, 0
	}
	f := IndexField{Name: name, Alias: alias, Type: FieldVector, Vector: &spec}
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates the definition and returns a copy detached from the builder.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	def.Prefixes = append([]string(nil), b.def.Prefixes...)
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	return &def, nil
}

// String renders the definition for logs, e.g.
// "cvctx:cv:idx ON HASH PREFIX cvctx:cv: [__vector AS vector HNSW/COSINE/384]".
func (idx *IndexDefinition) String() string {
	var sb strings.Builder
	sb.WriteString(idx.Name)
	if idx.StorageType != "" {
		sb.WriteString(" ON " + string(idx.StorageType))
	}
	if len(idx.Prefixes) > 0 {
		sb.WriteString(" PREFIX " + strings.Join(idx.Prefixes, ","))
	}

	fields := make([]string, 0, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		s := f.Name
		if f.Alias != "" {
			s += " AS " + f.Alias
		}
		if v := f.Vector; v != nil {
			s += " " + string(v.Algo) + "/" + string(v.Distance) + "/" + strconv.Itoa(v.Dim)
		} else {
			s += " " + string(f.Type)
		}
		fields = append(fields, s)
	}
	sb.WriteString(" [" + strings.Join(fields, ", ") + "]")
	return sb.String()
}
