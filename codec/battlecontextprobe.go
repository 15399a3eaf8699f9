package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/jahorta/soasim/pscontext"
)

// BattleContextProbeSpec is the encoder input for the
// BattleContextProbe program-kind: `{tag=4, version=1, run_ms,
// vi_stall_ms}`.
type BattleContextProbeSpec struct {
	RunMs     uint32
	ViStallMs uint32
}

// EncodeBattleContextProbe produces a BattleContextProbe payload.
func EncodeBattleContextProbe(spec BattleContextProbeSpec) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindBattleContextProbe)
	_ = binary.Write(&buf, binary.LittleEndian, spec.RunMs)
	_ = binary.Write(&buf, binary.LittleEndian, spec.ViStallMs)
	return buf.Bytes()
}

func decodeBattleContextProbe(r *bytes.Reader, s *pscontext.Store) error {
	var runMs, viStallMs uint32
	if err := binary.Read(r, binary.LittleEndian, &runMs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &viStallMs); err != nil {
		return err
	}
	pscontext.Set(s, pscontext.KeyRunMs, runMs)
	pscontext.Set(s, pscontext.KeyViStallMs, viStallMs)
	return nil
}
