package vm

import (
	"fmt"
	"time"

	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
)

// runUntilBP implements the run-until-bp op. halt=true means execution
// must stop (program terminal, either from a non-hit outcome); halt=
// false means the hit was handled and the interpreter should continue
// to the next op.
func (vm *VM) runUntilBP(store *pscontext.Store, op Op, sink host.ProgressSink) (halt bool, ok bool, err error) {
	timeoutMs := vm.init.DefaultTimeoutMs
	switch {
	case vm.pendingTimeoutMs != nil:
		timeoutMs = *vm.pendingTimeoutMs
		vm.pendingTimeoutMs = nil
	case op.N != 0:
		timeoutMs = op.N
	default:
		if v, found := pscontext.Get[uint32](store, pscontext.KeyRunMs); found {
			timeoutMs = v
		}
	}

	viStallMs, _ := pscontext.Get[uint32](store, pscontext.KeyViStallMs)
	timeout := time.Duration(timeoutMs) * time.Millisecond
	viStall := time.Duration(viStallMs) * time.Millisecond
	poll := pollInterval(timeout, viStall)

	start := time.Now()
	res := vm.host.RunUntilBreakpoint(timeout, viStall, vm.host.IsMoviePlaying(), poll, sink)
	elapsedMs := uint32(time.Since(start).Milliseconds())
	// Accumulate across nested run-until-bp ops so the job's elapsed
	// time is monotonically non-decreasing.
	prev, _ := pscontext.Get[uint32](store, pscontext.KeyElapsedMs)
	pscontext.Set(store, pscontext.KeyElapsedMs, prev+elapsedMs)
	pscontext.Set(store, pscontext.KeyPollMs, uint32(poll.Milliseconds()))

	if res.Reason == host.StopHit {
		vm.lastHitPC = res.PC
		pscontext.Set(store, pscontext.KeyHitPC, res.PC)
		if key, found := vm.bpmap.Match(res.PC); found {
			pscontext.Set(store, pscontext.KeyHitBPKey, uint32(key))
		}
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeHit)
		return false, true, nil
	}

	switch res.Reason {
	case host.StopTimeout:
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeTimeout)
	case host.StopViStall:
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeViStalled)
	case host.StopMovieEnded:
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeMovieEnded)
	case host.StopAborted:
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeAborted)
	default:
		pscontext.Set(store, pscontext.KeyOutcomeCode, OutcomeUnknown)
	}
	return true, false, nil
}

// applyPlanFrameFrom implements apply-plan-frame-from(active-turn-key):
// looks up the active turn plan, advances its per-plan frame cursor by
// one, applies that frame, and sets core.plan_done when exhausted.
func (vm *VM) applyPlanFrameFrom(store *pscontext.Store, activeTurnKey pscontext.KeyId) error {
	activeTurn, ok := pscontext.Get[uint32](store, activeTurnKey)
	if !ok {
		return fmt.Errorf("vm: apply-plan-frame-from: active-turn key 0x%04X missing", activeTurnKey)
	}

	countsRaw, ok := pscontext.Get[[]byte](store, pscontext.KeyBattlePlanFrameCnts)
	if !ok {
		return fmt.Errorf("vm: apply-plan-frame-from: plan frame counts missing")
	}
	counts, err := pscontext.DecodeU32Slice(countsRaw)
	if err != nil {
		return fmt.Errorf("vm: apply-plan-frame-from: %w", err)
	}
	if int(activeTurn) >= len(counts) {
		return fmt.Errorf("vm: apply-plan-frame-from: active turn %d out of range (%d turns)", activeTurn, len(counts))
	}

	framesRaw, ok := pscontext.Get[[]byte](store, pscontext.KeyBattlePlanFrames)
	if !ok {
		return fmt.Errorf("vm: apply-plan-frame-from: plan frame table missing")
	}
	frames, err := pscontext.DecodeInputFrames(framesRaw)
	if err != nil {
		return fmt.Errorf("vm: apply-plan-frame-from: %w", err)
	}

	var base uint32
	for i := uint32(0); i < activeTurn; i++ {
		base += counts[i]
	}

	cursor, _ := pscontext.Get[uint32](store, pscontext.KeyPlanFrameIdx)
	total := counts[activeTurn]

	if cursor >= total {
		pscontext.Set(store, pscontext.KeyPlanDone, uint8(1))
		return nil
	}

	idx := base + cursor
	if int(idx) >= len(frames) {
		return fmt.Errorf("vm: apply-plan-frame-from: frame index %d out of range (%d frames)", idx, len(frames))
	}

	vm.host.SetInput(toHostFrame(frames[idx]))
	cursor++
	pscontext.Set(store, pscontext.KeyPlanFrameIdx, cursor)
	if cursor >= total {
		pscontext.Set(store, pscontext.KeyPlanDone, uint8(1))
	} else {
		pscontext.Set(store, pscontext.KeyPlanDone, uint8(0))
	}
	return nil
}

func decodePredicateTable(store *pscontext.Store) (predicate.Table, error) {
	raw, ok := pscontext.Get[[]byte](store, pscontext.KeyPredTable)
	if !ok {
		return nil, fmt.Errorf("vm: predicate table missing from context")
	}
	return predicate.DecodeTable(raw)
}

// decodePredicatePrograms returns the address-traversal program table,
// or nil when the payload carried none.
func decodePredicatePrograms(store *pscontext.Store) (predicate.Programs, error) {
	raw, ok := pscontext.Get[[]byte](store, pscontext.KeyBattlePredProgs)
	if !ok {
		return nil, nil
	}
	return predicate.DecodePrograms(raw)
}

// storeKeys adapts a context store to predicate.ContextReader for
// key-sourced predicate operands.
type storeKeys struct {
	s *pscontext.Store
}

func (k storeKeys) GetNumeric(key uint16) (float64, bool) {
	return getNumeric(k.s, pscontext.KeyId(key))
}

// getNumeric fetches a context value as float64 regardless of its
// concrete stored type, for goto-if/goto-if-keys comparisons.
func getNumeric(store *pscontext.Store, key pscontext.KeyId) (float64, bool) {
	if v, ok := pscontext.Get[uint8](store, key); ok {
		return float64(v), true
	}
	if v, ok := pscontext.Get[uint16](store, key); ok {
		return float64(v), true
	}
	if v, ok := pscontext.Get[uint32](store, key); ok {
		return float64(v), true
	}
	if v, ok := pscontext.Get[float32](store, key); ok {
		return float64(v), true
	}
	if v, ok := pscontext.Get[float64](store, key); ok {
		return v, true
	}
	return 0, false
}

func compareF(lhs, rhs float64, c predicate.Cmp) bool {
	switch c {
	case predicate.CmpEQ:
		return lhs == rhs
	case predicate.CmpNE:
		return lhs != rhs
	case predicate.CmpLT:
		return lhs < rhs
	case predicate.CmpLE:
		return lhs <= rhs
	case predicate.CmpGT:
		return lhs > rhs
	case predicate.CmpGE:
		return lhs >= rhs
	default:
		return false
	}
}

func toHostFrame(f pscontext.InputFrame) host.InputFrame {
	return host.InputFrame{
		Buttons: uint16(f.Buttons),
		MainX:   f.MainX,
		MainY:   f.MainY,
		CX:      f.CX,
		CY:      f.CY,
		TrigL:   f.TrigL,
		TrigR:   f.TrigR,
	}
}
