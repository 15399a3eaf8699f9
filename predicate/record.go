// Package predicate implements the Predicate Evaluator: a table of
// per-breakpoint memory comparisons, armed against the canonical
// breakpoint set, captured as baselines, and evaluated on each hit.
package predicate

import (
	"encoding/binary"
	"fmt"

	"github.com/jahorta/soasim/bpmap"
)

// Kind selects whether a predicate compares against a literal or a
// baseline captured earlier in the run.
type Kind uint8

const (
	KindAbsolute Kind = iota
	KindDelta
)

// Width is the memory access width in bytes. Width 8 means the value is
// read and compared as float64.
type Width uint8

const (
	Width1 Width = 1
	Width2 Width = 2
	Width4 Width = 4
	Width8 Width = 8
)

// Cmp is a comparison operator.
type Cmp uint8

const (
	CmpEQ Cmp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

// Flags is a bitset of predicate behavior modifiers.
type Flags uint16

const (
	FlagActive Flags = 1 << iota
	FlagCaptureBaselineAtTurnStart
	FlagLHSIsKey
	FlagRHSIsKey
	FlagLHSIsProgram
	FlagRHSIsProgram
	FlagEvaluateEveryTurn
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Record is one row of the predicate table: a memory comparison tied to
// a canonical breakpoint. The wire form is a packed 24-byte record,
// independent of Go's in-memory struct layout.
type Record struct {
	ID            uint16
	RequiredBPKey bpmap.Key
	Kind          Kind
	Width         Width
	Cmp           Cmp
	Flags         Flags
	Addr          uint32
	RHS           uint64
}

// recordWireSize is the packed on-wire size of one Record: id(2) +
// required_bp_key(2) + kind(1) + width(1) + cmp(1) + flags(2) + addr(4)
// + rhs(8) + 3 reserved padding bytes = 24.
const recordWireSize = 24

// EncodeRecord writes one predicate record in its packed 24-byte form.
func EncodeRecord(r Record) [recordWireSize]byte {
	var buf [recordWireSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], r.ID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(r.RequiredBPKey))
	buf[4] = byte(r.Kind)
	buf[5] = byte(r.Width)
	buf[6] = byte(r.Cmp)
	binary.LittleEndian.PutUint16(buf[7:9], uint16(r.Flags))
	binary.LittleEndian.PutUint32(buf[9:13], r.Addr)
	binary.LittleEndian.PutUint64(buf[13:21], r.RHS)
	// buf[21:24] reserved, left zero.
	return buf
}

// DecodeRecord reads one predicate record from its packed 24-byte form.
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) < recordWireSize {
		return Record{}, fmt.Errorf("predicate: short record buffer: got %d bytes, need %d", len(buf), recordWireSize)
	}
	return Record{
		ID:            binary.LittleEndian.Uint16(buf[0:2]),
		RequiredBPKey: bpmap.Key(binary.LittleEndian.Uint16(buf[2:4])),
		Kind:          Kind(buf[4]),
		Width:         Width(buf[5]),
		Cmp:           Cmp(buf[6]),
		Flags:         Flags(binary.LittleEndian.Uint16(buf[7:9])),
		Addr:          binary.LittleEndian.Uint32(buf[9:13]),
		RHS:           binary.LittleEndian.Uint64(buf[13:21]),
	}, nil
}

// Table is an ordered list of predicate records.
type Table []Record

// EncodeTable serializes a table as a u32 count followed by packed records.
func EncodeTable(t Table) []byte {
	out := make([]byte, 4, 4+len(t)*recordWireSize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(t)))
	for _, r := range t {
		enc := EncodeRecord(r)
		out = append(out, enc[:]...)
	}
	return out
}

// DecodeTable parses a table previously written by EncodeTable.
func DecodeTable(buf []byte) (Table, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("predicate: short table buffer: got %d bytes, need at least 4", len(buf))
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	out := make(Table, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(buf) < recordWireSize {
			return nil, fmt.Errorf("predicate: table truncated at record %d", i)
		}
		r, err := DecodeRecord(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		buf = buf[recordWireSize:]
	}
	return out, nil
}
