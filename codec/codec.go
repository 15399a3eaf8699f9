// Package codec implements the Payload Codec: one encoder/decoder pair
// per program-kind, dispatched by the tag byte that begins every job
// payload. Each decoder populates a fresh pscontext.Store with the
// canonical keys its phase-script program expects.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jahorta/soasim/pscontext"
)

// Kind is the program-kind tag that begins every payload.
type Kind uint8

const (
	KindSeedProbe          Kind = 1
	KindTasMovie           Kind = 2
	KindBattleTurnRunner   Kind = 3
	KindBattleContextProbe Kind = 4
)

// decoderFunc decodes a payload's program-specific fields (the header's
// tag and version have already been consumed and validated) into s.
type decoderFunc func(r *bytes.Reader, s *pscontext.Store) error

type registryEntry struct {
	version uint16
	decode  decoderFunc
}

// dispatch is the codec's tag -> (version, decoder) table.
var dispatch = map[Kind]registryEntry{
	KindSeedProbe:          {version: 1, decode: decodeSeedProbe},
	KindTasMovie:           {version: 1, decode: decodeTasMovie},
	KindBattleTurnRunner:   {version: 2, decode: decodeBattleTurnRunner},
	KindBattleContextProbe: {version: 1, decode: decodeBattleContextProbe},
}

// Decode validates the payload's tag against want, validates its
// version exactly equals the codec's current version for that
// program-kind, and populates a fresh context store with the canonical
// keys the VM program for that kind expects.
func Decode(payload []byte, want Kind) (*pscontext.Store, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("codec: payload too short for header: got %d bytes", len(payload))
	}
	tag := Kind(payload[0])
	if tag != want {
		return nil, fmt.Errorf("codec: tag mismatch: payload tag %d, active program-kind %d", tag, want)
	}
	entry, ok := dispatch[tag]
	if !ok {
		return nil, fmt.Errorf("codec: unknown program-kind tag %d", tag)
	}

	r := bytes.NewReader(payload[1:])
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("codec: read version: %w", err)
	}
	if version != entry.version {
		return nil, fmt.Errorf("codec: version mismatch for kind %d: payload has %d, codec expects %d", tag, version, entry.version)
	}

	s := pscontext.NewStore()
	if err := entry.decode(r, s); err != nil {
		return nil, fmt.Errorf("codec: decode kind %d: %w", tag, err)
	}
	return s, nil
}

func writeHeader(buf *bytes.Buffer, kind Kind) {
	buf.WriteByte(byte(kind))
	_ = binary.Write(buf, binary.LittleEndian, dispatch[kind].version)
}

func writeLenPrefixed(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readLenPrefixed(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeInputFrame(buf *bytes.Buffer, f pscontext.InputFrame) {
	enc := pscontext.EncodeInputFrame(f)
	buf.Write(enc[:])
}

func readInputFrame(r *bytes.Reader) (pscontext.InputFrame, error) {
	var raw [8]byte
	if _, err := r.Read(raw[:]); err != nil {
		return pscontext.InputFrame{}, err
	}
	return pscontext.DecodeInputFrame(raw[:])
}
