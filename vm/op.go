package vm

import (
	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
)

// OpCode is the Phase-Script VM's closed tagged union of instructions.
// Dispatch over OpCode is always a table/switch, never a dynamic
// interface dispatch: the op set is fixed per program-kind family and
// the dispatch loop's performance matters on long plans.
type OpCode uint8

const (
	OpArmBPs OpCode = iota
	OpLoadSnapshot
	OpCaptureSnapshot
	OpApplyInput
	OpStepFrames
	OpRunUntilBP
	OpReadU8
	OpReadU16
	OpReadU32
	OpReadF32
	OpReadF64
	OpSetTimeout
	OpEmitResult
	OpLabel
	OpGoto
	OpGotoIf
	OpGotoIfKeys
	OpSetU32
	OpAddU32
	OpApplyPlanFrameFrom
	OpArmBPsFromPredicateTable
	OpCapturePredicateBaselines
	OpEvalPredicatesAtHitBP
	OpRecordProgressAtBP
	OpReturnResult
)

// Op is one instruction. It carries only the fields its Code uses; the
// rest are zero. A single struct with optional argument groups keeps
// the dispatch loop a flat switch instead of an interface call.
type Op struct {
	Code OpCode

	Key  pscontext.KeyId // apply-input, emit-result, set-timeout(key), apply-plan-frame-from, goto-if, return-result dst (0 = core.outcome_code)
	Key2 pscontext.KeyId // goto-if-keys: second key

	N uint32 // step-frames(n), set-timeout(literal ms)

	Addr   uint32          // read-*(addr, dst_key)
	DstKey pscontext.KeyId // read-*(addr, dst_key)

	Label string // label(name), goto(name), goto-if*(..., label)

	Cmp     predicate.Cmp // goto-if, goto-if-keys
	Literal uint64        // goto-if literal rhs

	Value uint32 // set-u32(key, value)
	Delta int32  // add-u32(key, delta)

	ResultCode uint32 // return-result(code)
}

// Program is a loaded phase-script: the canonical breakpoint set armed
// once at init, plus the op sequence run linearly per job.
type Program struct {
	CanonicalBPKeys []bpmap.Key
	Ops             []Op

	labels map[string]int
}
