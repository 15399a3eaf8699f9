package predicate

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// AddrProg is a small address-traversal program: starting from Base,
// each step dereferences the current address as a u32 pointer and adds
// its offset. The resolved address is then read with the owning
// predicate's width. This is the pointer-chain scheme the game's
// dynamic structures (combatant instances, item drop tables) require.
type AddrProg struct {
	Base    uint32
	Offsets []int32
}

// Resolve walks the chain against mem and returns the final address.
func (p AddrProg) Resolve(mem MemReader) (uint32, bool) {
	cur := p.Base
	for _, off := range p.Offsets {
		ptr, ok := mem.ReadU32(cur)
		if !ok {
			return 0, false
		}
		cur = uint32(int64(ptr) + int64(off))
	}
	return cur, true
}

// Side tells which operand of a predicate a program feeds.
type Side uint8

const (
	SideLHS Side = 0
	SideRHS Side = 1
)

// ProgKey addresses one program in a Programs table: the owning
// predicate's id plus the operand side it produces.
type ProgKey struct {
	ID   uint16
	Side Side
}

// Programs maps predicate operands to their address-traversal
// programs. The table rides in the context store next to the
// predicate table itself.
type Programs map[ProgKey]AddrProg

// EncodePrograms writes a Programs table as
// {u32 count, (u16 id, u8 side, u32 base, u8 n, n*i32 offsets)...}.
func EncodePrograms(progs Programs) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(progs)))
	// Deterministic order: lhs before rhs, ascending id.
	for _, side := range []Side{SideLHS, SideRHS} {
		ids := make([]uint16, 0, len(progs))
		for k := range progs {
			if k.Side == side {
				ids = append(ids, k.ID)
			}
		}
		sortU16(ids)
		for _, id := range ids {
			p := progs[ProgKey{ID: id, Side: side}]
			_ = binary.Write(&buf, binary.LittleEndian, id)
			buf.WriteByte(byte(side))
			_ = binary.Write(&buf, binary.LittleEndian, p.Base)
			buf.WriteByte(byte(len(p.Offsets)))
			for _, off := range p.Offsets {
				_ = binary.Write(&buf, binary.LittleEndian, off)
			}
		}
	}
	return buf.Bytes()
}

// DecodePrograms parses what EncodePrograms wrote.
func DecodePrograms(data []byte) (Programs, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("predicate: programs count: %w", err)
	}
	progs := make(Programs, count)
	for i := uint32(0); i < count; i++ {
		var id uint16
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("predicate: program %d id: %w", i, err)
		}
		side, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("predicate: program %d side: %w", i, err)
		}
		if side > uint8(SideRHS) {
			return nil, fmt.Errorf("predicate: program %d: bad side %d", i, side)
		}
		var base uint32
		if err := binary.Read(r, binary.LittleEndian, &base); err != nil {
			return nil, fmt.Errorf("predicate: program %d base: %w", i, err)
		}
		n, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("predicate: program %d offset count: %w", i, err)
		}
		offsets := make([]int32, n)
		for j := range offsets {
			if err := binary.Read(r, binary.LittleEndian, &offsets[j]); err != nil {
				return nil, fmt.Errorf("predicate: program %d offset %d: %w", i, j, err)
			}
		}
		progs[ProgKey{ID: id, Side: Side(side)}] = AddrProg{Base: base, Offsets: offsets}
	}
	return progs, nil
}

func sortU16(s []uint16) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
