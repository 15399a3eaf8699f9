package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
)

// BattleTurnRunnerSpec is the encoder input for the BattleTurnRunner
// program-kind: `{tag=3, version=2, run_ms, vi_stall_ms, initial,
// n_plans, (for each plan: n_frames, frames[]), n_preds, predicates[]}`.
// Plans is already the fully-compiled per-turn frame sequence produced
// by the Branch Explorer — no symbolic actions remain at this layer.
type BattleTurnRunnerSpec struct {
	RunMs      uint32
	ViStallMs  uint32
	Initial    pscontext.InputFrame
	Plans      [][]pscontext.InputFrame
	Predicates predicate.Table

	// Programs carries the address-traversal programs for predicates
	// flagged lhs-is-program / rhs-is-program. Encoded as an optional
	// length-prefixed trailer after the predicate table, so payloads
	// without programs keep the bare layout.
	Programs predicate.Programs
}

// EncodeBattleTurnRunner produces a BattleTurnRunner payload.
func EncodeBattleTurnRunner(spec BattleTurnRunnerSpec) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindBattleTurnRunner)
	_ = binary.Write(&buf, binary.LittleEndian, spec.RunMs)
	_ = binary.Write(&buf, binary.LittleEndian, spec.ViStallMs)
	writeInputFrame(&buf, spec.Initial)

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(spec.Plans)))
	for _, plan := range spec.Plans {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(plan)))
		for _, f := range plan {
			writeInputFrame(&buf, f)
		}
	}

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(spec.Predicates)))
	for _, p := range spec.Predicates {
		enc := predicate.EncodeRecord(p)
		buf.Write(enc[:])
	}

	if len(spec.Programs) > 0 {
		progs := predicate.EncodePrograms(spec.Programs)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(len(progs)))
		buf.Write(progs)
	}

	return buf.Bytes()
}

func decodeBattleTurnRunner(r *bytes.Reader, s *pscontext.Store) error {
	var runMs, viStallMs uint32
	if err := binary.Read(r, binary.LittleEndian, &runMs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &viStallMs); err != nil {
		return err
	}
	initial, err := readInputFrame(r)
	if err != nil {
		return err
	}

	var nPlans uint32
	if err := binary.Read(r, binary.LittleEndian, &nPlans); err != nil {
		return err
	}

	frameCounts := make([]uint32, 0, nPlans)
	var flatFrames []pscontext.InputFrame
	for i := uint32(0); i < nPlans; i++ {
		var nFrames uint32
		if err := binary.Read(r, binary.LittleEndian, &nFrames); err != nil {
			return fmt.Errorf("plan %d: %w", i, err)
		}
		frameCounts = append(frameCounts, nFrames)
		for j := uint32(0); j < nFrames; j++ {
			f, err := readInputFrame(r)
			if err != nil {
				return fmt.Errorf("plan %d frame %d: %w", i, j, err)
			}
			flatFrames = append(flatFrames, f)
		}
	}

	var nPreds uint32
	if err := binary.Read(r, binary.LittleEndian, &nPreds); err != nil {
		return err
	}
	predBuf := make([]byte, nPreds*24)
	if nPreds > 0 {
		if _, err := r.Read(predBuf); err != nil {
			return fmt.Errorf("predicate table: %w", err)
		}
	}
	table := make(predicate.Table, 0, nPreds)
	for i := uint32(0); i < nPreds; i++ {
		rec, err := predicate.DecodeRecord(predBuf[i*24 : (i+1)*24])
		if err != nil {
			return err
		}
		table = append(table, rec)
	}

	pscontext.Set(s, pscontext.KeyRunMs, runMs)
	pscontext.Set(s, pscontext.KeyViStallMs, viStallMs)
	pscontext.Set(s, pscontext.KeyBattleInitialInput, initial)
	pscontext.Set(s, pscontext.KeyBattlePlanCount, nPlans)
	if nPlans > 0 {
		pscontext.Set(s, pscontext.KeyBattlePlanLastTurn, nPlans-1)
	}
	pscontext.Set(s, pscontext.KeyBattlePlanFrameCnts, pscontext.EncodeU32Slice(frameCounts))
	pscontext.Set(s, pscontext.KeyBattlePlanFrames, pscontext.EncodeInputFrames(flatFrames))

	pscontext.Set(s, pscontext.KeyPredCount, nPreds)
	pscontext.Set(s, pscontext.KeyPredTable, predicate.EncodeTable(table))

	if r.Len() > 0 {
		var progsLen uint32
		if err := binary.Read(r, binary.LittleEndian, &progsLen); err != nil {
			return fmt.Errorf("program table length: %w", err)
		}
		progsBuf := make([]byte, progsLen)
		if _, err := r.Read(progsBuf); err != nil {
			return fmt.Errorf("program table: %w", err)
		}
		if _, err := predicate.DecodePrograms(progsBuf); err != nil {
			return fmt.Errorf("program table: %w", err)
		}
		pscontext.Set(s, pscontext.KeyBattlePredProgs, progsBuf)
	}

	return nil
}
