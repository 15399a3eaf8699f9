package pscontext

import (
	"encoding/binary"
	"fmt"
)

// inputFrameWireSize is the fixed on-wire size of one InputFrame: a u16
// button mask followed by six u8 analog fields.
const inputFrameWireSize = 8

// EncodeInputFrame returns the fixed 8-byte wire form of one InputFrame,
// shared by the context serialization stream and the Payload Codec.
func EncodeInputFrame(f InputFrame) [inputFrameWireSize]byte {
	var buf [inputFrameWireSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], uint16(f.Buttons))
	buf[2] = f.MainX
	buf[3] = f.MainY
	buf[4] = f.CX
	buf[5] = f.CY
	buf[6] = f.TrigL
	buf[7] = f.TrigR
	return buf
}

// DecodeInputFrame reads one InputFrame from its fixed 8-byte wire form.
func DecodeInputFrame(buf []byte) (InputFrame, error) {
	if len(buf) < inputFrameWireSize {
		return InputFrame{}, fmt.Errorf("pscontext: short input frame buffer: got %d bytes, need %d", len(buf), inputFrameWireSize)
	}
	return InputFrame{
		Buttons: Button(binary.LittleEndian.Uint16(buf[0:2])),
		MainX:   buf[2],
		MainY:   buf[3],
		CX:      buf[4],
		CY:      buf[5],
		TrigL:   buf[6],
		TrigR:   buf[7],
	}, nil
}

// EncodeInputFrames concatenates the fixed-size wire form of each frame.
func EncodeInputFrames(frames []InputFrame) []byte {
	out := make([]byte, 0, len(frames)*inputFrameWireSize)
	for _, f := range frames {
		enc := EncodeInputFrame(f)
		out = append(out, enc[:]...)
	}
	return out
}

// DecodeInputFrames parses a flat sequence of fixed-size input frames.
func DecodeInputFrames(buf []byte) ([]InputFrame, error) {
	if len(buf)%inputFrameWireSize != 0 {
		return nil, fmt.Errorf("pscontext: input frame table length %d not a multiple of %d", len(buf), inputFrameWireSize)
	}
	out := make([]InputFrame, 0, len(buf)/inputFrameWireSize)
	for i := 0; i+inputFrameWireSize <= len(buf); i += inputFrameWireSize {
		f, err := DecodeInputFrame(buf[i : i+inputFrameWireSize])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// EncodeU32Slice packs a slice of u32 values little-endian, back to back.
func EncodeU32Slice(vals []uint32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], v)
	}
	return out
}

// DecodeU32Slice is the inverse of EncodeU32Slice.
func DecodeU32Slice(buf []byte) ([]uint32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("pscontext: u32 slice length %d not a multiple of 4", len(buf))
	}
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return out, nil
}
