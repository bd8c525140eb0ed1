package embcache

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cached vectors are raw little-endian float32s, 4 bytes per component.

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector rejects payloads that are not whole float32s, and those of the
// wrong dimension when dim > 0.
func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, want a positive multiple of 4", len(data))
	}
	n := len(data) / 4
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("cached vector has %d dimensions, want %d", n, dim)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
