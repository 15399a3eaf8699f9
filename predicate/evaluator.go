package predicate

import (
	"fmt"
	"math"

	"github.com/jahorta/soasim/bpmap"
)

// MemReader is the subset of host.Emulator the evaluator needs to read
// raw memory. Defined locally so this package has no dependency on
// host; host.Emulator satisfies it structurally.
type MemReader interface {
	ReadU8(addr uint32) (uint8, bool)
	ReadU16(addr uint32) (uint16, bool)
	ReadU32(addr uint32) (uint32, bool)
	ReadF64(addr uint32) (float64, bool)
}

// ContextReader supplies context-keyed operand values for predicates
// flagged lhs-is-key / rhs-is-key. The VM's context store satisfies it
// through a thin adapter, keeping this package free of a pscontext
// dependency the same way MemReader keeps it free of host.
type ContextReader interface {
	GetNumeric(key uint16) (float64, bool)
}

// Baselines holds one captured value per predicate id, keyed by Record.ID.
type Baselines map[uint16]float64

// ArmFromTable returns the set of program counters that must be armed
// for every active predicate's required breakpoint, deduplicated and
// merged with the canonical set already armed by the program.
func ArmFromTable(t Table, m *bpmap.Map, canonical []uint32) []uint32 {
	seen := make(map[uint32]bool, len(canonical)+len(t))
	out := make([]uint32, 0, len(canonical)+len(t))
	for _, pc := range canonical {
		if !seen[pc] {
			seen[pc] = true
			out = append(out, pc)
		}
	}
	for _, r := range t {
		if !r.Flags.Has(FlagActive) {
			continue
		}
		pc, ok := m.PC(r.RequiredBPKey)
		if !ok {
			continue
		}
		if !seen[pc] {
			seen[pc] = true
			out = append(out, pc)
		}
	}
	return out
}

// lhsValue produces a predicate's left operand: a context-keyed value
// when lhs-is-key is set (the Addr field holds the key id), the value
// at an address-traversal program's resolved address when
// lhs-is-program is set, and a plain memory read at Addr otherwise.
func lhsValue(r Record, mem MemReader, ctx ContextReader, progs Programs) (float64, bool) {
	switch {
	case r.Flags.Has(FlagLHSIsProgram):
		prog, ok := progs[ProgKey{ID: r.ID, Side: SideLHS}]
		if !ok {
			return 0, false
		}
		addr, ok := prog.Resolve(mem)
		if !ok {
			return 0, false
		}
		return readValue(mem, addr, r.Width)
	case r.Flags.Has(FlagLHSIsKey):
		if ctx == nil {
			return 0, false
		}
		return ctx.GetNumeric(uint16(r.Addr))
	default:
		return readValue(mem, r.Addr, r.Width)
	}
}

// rhsValue produces a predicate's right operand before the delta
// baseline is applied: a context-keyed value when rhs-is-key is set
// (the RHS field holds the key id), a program-resolved read when
// rhs-is-program is set, and the literal RHS otherwise (f64 bits for
// width 8).
func rhsValue(r Record, mem MemReader, ctx ContextReader, progs Programs) (float64, bool) {
	switch {
	case r.Flags.Has(FlagRHSIsProgram):
		prog, ok := progs[ProgKey{ID: r.ID, Side: SideRHS}]
		if !ok {
			return 0, false
		}
		addr, ok := prog.Resolve(mem)
		if !ok {
			return 0, false
		}
		return readValue(mem, addr, r.Width)
	case r.Flags.Has(FlagRHSIsKey):
		if ctx == nil {
			return 0, false
		}
		return ctx.GetNumeric(uint16(r.RHS))
	default:
		if r.Width == Width8 {
			return math.Float64frombits(r.RHS), true
		}
		return float64(r.RHS), true
	}
}

// CaptureBaselines evaluates the left operand for every predicate
// flagged capture-baseline-at-turn-start and stores it at the
// predicate's slot, so delta comparisons use the same operand source
// at capture and evaluation time.
func CaptureBaselines(t Table, mem MemReader, ctx ContextReader, progs Programs) (Baselines, error) {
	b := make(Baselines)
	for _, r := range t {
		if !r.Flags.Has(FlagCaptureBaselineAtTurnStart) {
			continue
		}
		v, ok := lhsValue(r, mem, ctx, progs)
		if !ok {
			return nil, fmt.Errorf("predicate: baseline read failed for predicate %d", r.ID)
		}
		b[r.ID] = v
	}
	return b, nil
}

// EvalSummary aggregates the outcome of one evaluate-at-hit-bp pass.
type EvalSummary struct {
	Pass         uint32
	Total        uint32
	FirstFailID  uint16
	HasFirstFail bool
}

// EvaluateAtHitBP iterates the table; every active predicate whose
// required_bp_key equals the hit breakpoint's key — or that is flagged
// evaluate-every-turn, which relaxes the breakpoint filter so the
// predicate is checked on every hit — reads its current left operand
// and compares against either the right operand (absolute) or baseline
// plus right operand (delta). All matching predicates are evaluated;
// the pass counter is never short-circuited.
func EvaluateAtHitBP(t Table, baselines Baselines, mem MemReader, ctx ContextReader, progs Programs, hitKey bpmap.Key) (EvalSummary, error) {
	var sum EvalSummary
	for _, r := range t {
		if !r.Flags.Has(FlagActive) {
			continue
		}
		if r.RequiredBPKey != hitKey && !r.Flags.Has(FlagEvaluateEveryTurn) {
			continue
		}
		sum.Total++

		cur, ok := lhsValue(r, mem, ctx, progs)
		if !ok {
			return sum, fmt.Errorf("predicate: lhs read failed for predicate %d", r.ID)
		}

		target, ok := rhsValue(r, mem, ctx, progs)
		if !ok {
			return sum, fmt.Errorf("predicate: rhs read failed for predicate %d", r.ID)
		}
		if r.Kind == KindDelta {
			base, ok := baselines[r.ID]
			if !ok {
				return sum, fmt.Errorf("predicate: no baseline captured for delta predicate %d", r.ID)
			}
			target = base + target
		}

		if compare(cur, target, r.Cmp) {
			sum.Pass++
		} else if !sum.HasFirstFail {
			sum.HasFirstFail = true
			sum.FirstFailID = r.ID
		}
	}
	return sum, nil
}

func readValue(mem MemReader, addr uint32, w Width) (float64, bool) {
	switch w {
	case Width1:
		v, ok := mem.ReadU8(addr)
		return float64(v), ok
	case Width2:
		v, ok := mem.ReadU16(addr)
		return float64(v), ok
	case Width4:
		v, ok := mem.ReadU32(addr)
		return float64(v), ok
	case Width8:
		v, ok := mem.ReadF64(addr)
		return v, ok
	default:
		return 0, false
	}
}

func compare(lhs, rhs float64, c Cmp) bool {
	switch c {
	case CmpEQ:
		return lhs == rhs
	case CmpNE:
		return lhs != rhs
	case CmpLT:
		return lhs < rhs
	case CmpLE:
		return lhs <= rhs
	case CmpGT:
		return lhs > rhs
	case CmpGE:
		return lhs >= rhs
	default:
		return false
	}
}
