package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/jahorta/soasim/pscontext"
)

// SeedProbeSpec is the encoder input for the SeedProbe program-kind:
// `{tag=1, version=1, run_ms, vi_stall_ms, frame}`.
type SeedProbeSpec struct {
	RunMs     uint32
	ViStallMs uint32
	Frame     pscontext.InputFrame
}

// EncodeSeedProbe produces a SeedProbe payload.
func EncodeSeedProbe(spec SeedProbeSpec) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindSeedProbe)
	_ = binary.Write(&buf, binary.LittleEndian, spec.RunMs)
	_ = binary.Write(&buf, binary.LittleEndian, spec.ViStallMs)
	writeInputFrame(&buf, spec.Frame)
	return buf.Bytes()
}

func decodeSeedProbe(r *bytes.Reader, s *pscontext.Store) error {
	var runMs, viStallMs uint32
	if err := binary.Read(r, binary.LittleEndian, &runMs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &viStallMs); err != nil {
		return err
	}
	frame, err := readInputFrame(r)
	if err != nil {
		return err
	}

	pscontext.Set(s, pscontext.KeyRunMs, runMs)
	pscontext.Set(s, pscontext.KeyViStallMs, viStallMs)
	pscontext.Set(s, pscontext.KeySeedFrame, frame)
	return nil
}
