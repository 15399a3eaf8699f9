package pscontext

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wire type tags for the context serialization stream: a repeated
// {u16 key, u8 type_tag, payload} sequence terminated by end-of-buffer.
// Byte-strings and battle-paths carry their own u32 length prefix.
const (
	tagU8 uint8 = iota + 1
	tagU16
	tagU32
	tagF32
	tagF64
	tagBytes
	tagInputFrame
	tagBattlePath
)

// Serialize encodes every entry of s into the trivial length-prefixed
// key-type-value wire stream carried inside IPC RESULT frames.
func Serialize(s *Store) ([]byte, error) {
	var buf bytes.Buffer
	for _, key := range s.Keys() {
		raw := s.values[key]
		if err := writeEntry(&buf, key, raw); err != nil {
			return nil, fmt.Errorf("pscontext: serialize key 0x%04X: %w", key, err)
		}
	}
	return buf.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, key KeyId, raw any) error {
	if err := binary.Write(buf, binary.LittleEndian, uint16(key)); err != nil {
		return err
	}

	switch v := raw.(type) {
	case uint8:
		buf.WriteByte(tagU8)
		buf.WriteByte(v)
	case uint16:
		buf.WriteByte(tagU16)
		return binary.Write(buf, binary.LittleEndian, v)
	case uint32:
		buf.WriteByte(tagU32)
		return binary.Write(buf, binary.LittleEndian, v)
	case float32:
		buf.WriteByte(tagF32)
		return binary.Write(buf, binary.LittleEndian, math.Float32bits(v))
	case float64:
		buf.WriteByte(tagF64)
		return binary.Write(buf, binary.LittleEndian, math.Float64bits(v))
	case []byte:
		buf.WriteByte(tagBytes)
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v))); err != nil {
			return err
		}
		buf.Write(v)
	case InputFrame:
		buf.WriteByte(tagInputFrame)
		return writeInputFrame(buf, v)
	case BattlePath:
		buf.WriteByte(tagBattlePath)
		encoded := encodeBattlePath(v)
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(encoded))); err != nil {
			return err
		}
		buf.Write(encoded)
	default:
		return fmt.Errorf("unsupported context value type %T", raw)
	}
	return nil
}

func writeInputFrame(buf *bytes.Buffer, f InputFrame) error {
	if err := binary.Write(buf, binary.LittleEndian, uint16(f.Buttons)); err != nil {
		return err
	}
	buf.WriteByte(f.MainX)
	buf.WriteByte(f.MainY)
	buf.WriteByte(f.CX)
	buf.WriteByte(f.CY)
	buf.WriteByte(f.TrigL)
	buf.WriteByte(f.TrigR)
	return nil
}

func readInputFrame(r *bytes.Reader) (InputFrame, error) {
	var buttons uint16
	if err := binary.Read(r, binary.LittleEndian, &buttons); err != nil {
		return InputFrame{}, err
	}
	var raw [6]byte
	if _, err := r.Read(raw[:]); err != nil {
		return InputFrame{}, err
	}
	return InputFrame{
		Buttons: Button(buttons),
		MainX:   raw[0], MainY: raw[1],
		CX: raw[2], CY: raw[3],
		TrigL: raw[4], TrigR: raw[5],
	}, nil
}

// Parse decodes a context serialization stream produced by Serialize
// (or by a codec writing the same wire format) into a fresh Store.
func Parse(data []byte) (*Store, error) {
	s := NewStore()
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var key uint16
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return nil, fmt.Errorf("pscontext: parse key: %w", err)
		}
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("pscontext: parse tag: %w", err)
		}
		switch tag {
		case tagU8:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = b
		case tagU16:
			var v uint16
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = v
		case tagU32:
			var v uint32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = v
		case tagF32:
			var bits uint32
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = math.Float32frombits(bits)
		case tagF64:
			var bits uint64
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = math.Float64frombits(bits)
		case tagBytes:
			var n uint32
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return nil, err
			}
			data := make([]byte, n)
			if _, err := r.Read(data); err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = data
		case tagInputFrame:
			f, err := readInputFrame(r)
			if err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = f
		case tagBattlePath:
			var n uint32
			if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
				return nil, err
			}
			data := make([]byte, n)
			if _, err := r.Read(data); err != nil {
				return nil, err
			}
			path, err := decodeBattlePath(data)
			if err != nil {
				return nil, err
			}
			s.values[KeyId(key)] = path
		default:
			return nil, fmt.Errorf("pscontext: unknown type tag %d for key 0x%04X", tag, key)
		}
	}
	return s, nil
}

// encodeBattlePath/decodeBattlePath give BattlePath its own compact
// wire representation so it can ride inside the generic context stream
// as a length-prefixed blob, same as a byte-string.
func encodeBattlePath(p BattlePath) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(p.Turns)))
	for _, turn := range p.Turns {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(turn.Actions)))
		for _, a := range turn.Actions {
			_ = binary.Write(&buf, binary.LittleEndian, int32(a.ActorSlot))
			_ = binary.Write(&buf, binary.LittleEndian, int32(a.Macro))
			_ = binary.Write(&buf, binary.LittleEndian, int32(a.Target))
		}
		_ = binary.Write(&buf, binary.LittleEndian, turn.FakeAttackCount)
	}
	return buf.Bytes()
}

func decodeBattlePath(data []byte) (BattlePath, error) {
	r := bytes.NewReader(data)
	var nTurns uint32
	if err := binary.Read(r, binary.LittleEndian, &nTurns); err != nil {
		return BattlePath{}, err
	}
	turns := make([]TurnPlan, 0, nTurns)
	for i := uint32(0); i < nTurns; i++ {
		var nActions uint32
		if err := binary.Read(r, binary.LittleEndian, &nActions); err != nil {
			return BattlePath{}, err
		}
		actions := make([]ActionSpec, 0, nActions)
		for j := uint32(0); j < nActions; j++ {
			var slot, macro, target int32
			if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
				return BattlePath{}, err
			}
			if err := binary.Read(r, binary.LittleEndian, &macro); err != nil {
				return BattlePath{}, err
			}
			if err := binary.Read(r, binary.LittleEndian, &target); err != nil {
				return BattlePath{}, err
			}
			actions = append(actions, ActionSpec{ActorSlot: int(slot), Macro: int(macro), Target: int(target)})
		}
		var fake uint32
		if err := binary.Read(r, binary.LittleEndian, &fake); err != nil {
			return BattlePath{}, err
		}
		turns = append(turns, TurnPlan{Actions: actions, FakeAttackCount: fake})
	}
	return BattlePath{Turns: turns}, nil
}
