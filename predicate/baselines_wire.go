package predicate

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeBaselines serializes a captured baseline set as a repeated
// {u16 predicate id, f64 value} stream, suitable for storing in the
// context store's predicate-baselines key between a capture op and a
// later evaluate op (including across a snapshot restore within the
// same job).
func EncodeBaselines(b Baselines) []byte {
	out := make([]byte, 0, len(b)*10)
	for id, v := range b {
		var entry [10]byte
		binary.LittleEndian.PutUint16(entry[0:2], id)
		binary.LittleEndian.PutUint64(entry[2:10], math.Float64bits(v))
		out = append(out, entry[:]...)
	}
	return out
}

// DecodeBaselines is the inverse of EncodeBaselines.
func DecodeBaselines(buf []byte) (Baselines, error) {
	if len(buf)%10 != 0 {
		return nil, fmt.Errorf("predicate: baselines buffer length %d not a multiple of 10", len(buf))
	}
	b := make(Baselines, len(buf)/10)
	for i := 0; i+10 <= len(buf); i += 10 {
		id := binary.LittleEndian.Uint16(buf[i : i+2])
		bits := binary.LittleEndian.Uint64(buf[i+2 : i+10])
		b[id] = math.Float64frombits(bits)
	}
	return b, nil
}
