package ann

import (
	"encoding/binary"
	"errors"
	"math"
)

var errTruncated = errors.New("ann: truncated data")

// encode stores dim(uint32), n(uint32), then for each item idLen(uint32),
// id bytes and vec(float32[dim]), all little endian.
func encode(dim int, ids []string, vecs [][]float32) []byte {
	size := 8
	for _, id := range ids {
		size += 4 + len(id) + 4*dim
	}

	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(ids)))
	for idx, id := range ids {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(id)))
		out = append(out, id...)
		for _, f := range vecs[idx] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

func decode(data []byte) (ids []string, vecs [][]float32, err error) {
	if len(data) < 8 {
		return nil, nil, errors.New("ann: invalid data")
	}
	off := 0
	getU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		return v
	}

	dim := int(getU32())
	n := int(getU32())
	ids = make([]string, n)
	vecs = make([][]float32, n)
	for idx := 0; idx < n; idx++ {
		if off+4 > len(data) {
			return nil, nil, errTruncated
		}
		idLen := int(getU32())
		if off+idLen > len(data) {
			return nil, nil, errTruncated
		}
		ids[idx] = string(data[off : off+idLen])
		off += idLen

		if off+4*dim > len(data) {
			return nil, nil, errTruncated
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(getU32())
		}
		vecs[idx] = vec
	}
	return ids, vecs, nil
}
