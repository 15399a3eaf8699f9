// Package vm implements the Phase-Script Virtual Machine: a small,
// table-dispatched interpreter that runs a fixed program of ops against
// an emulator host, per job, from an identical snapshot baseline.
package vm

import (
	"fmt"
	"time"

	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
)

// InitParams configures VM.Init: an optional savestate to load before
// the canonical breakpoints are armed and the baseline snapshot taken,
// plus the default run-until-bp timeout used when a job's payload and
// context do not override it.
type InitParams struct {
	SavestatePath    string
	DefaultTimeoutMs uint32
}

// VM is a single-threaded, single-emulator Phase-Script interpreter.
// It owns exactly one host.Emulator and runs one job at a time.
type VM struct {
	host  host.Emulator
	bpmap *bpmap.Map

	program *Program
	init    InitParams

	armedPCs  []uint32
	snapshot  []byte
	lastHitPC uint32

	pendingTimeoutMs *uint32
}

// New returns a VM driving h, resolving breakpoint keys against m.
func New(h host.Emulator, m *bpmap.Map) *VM {
	return &VM{host: h, bpmap: m}
}

// Init prepares the emulator for program: optionally loads a savestate,
// clears any previously-armed breakpoints, arms program's canonical
// breakpoints (deduplicated by pc), and captures the baseline snapshot
// every job will restore from.
func (vm *VM) Init(params InitParams, program *Program) error {
	if params.SavestatePath != "" {
		if !vm.host.LoadSavestate(params.SavestatePath) {
			return fmt.Errorf("vm: load savestate %q failed", params.SavestatePath)
		}
	}

	vm.host.ClearAllPCBreakpoints()

	pcs := bpmap.DedupPCs(vm.bpmap, program.CanonicalBPKeys)
	if len(pcs) > 0 && !vm.host.ArmPCBreakpoints(pcs) {
		return fmt.Errorf("vm: arm canonical breakpoints failed")
	}

	snap, ok := vm.host.SaveSnapshotToBuffer()
	if !ok {
		return fmt.Errorf("vm: capture baseline snapshot failed")
	}

	vm.program = program
	vm.init = params
	vm.armedPCs = pcs
	vm.snapshot = snap
	vm.lastHitPC = 0
	return nil
}

// Run restores the baseline snapshot, decodes payload into a fresh
// context store, and interprets the program linearly. A restore or
// decode failure ends the job immediately with Result.OK=false and no
// op execution.
func (vm *VM) Run(payload []byte, kind codec.Kind, sink host.ProgressSink) (Result, error) {
	if vm.program == nil {
		return Result{}, fmt.Errorf("vm: Run called before Init")
	}

	if !vm.host.LoadSnapshotFromBuffer(vm.snapshot) {
		return Result{OK: false}, fmt.Errorf("vm: restore baseline snapshot failed")
	}

	store, err := codec.Decode(payload, kind)
	if err != nil {
		return Result{OK: false}, fmt.Errorf("vm: decode payload: %w", err)
	}

	ok, err := vm.execute(store, sink)
	if err != nil {
		return Result{OK: false, Context: store}, err
	}
	return Result{OK: ok, HitPC: vm.lastHitPC, Context: store}, nil
}

func (vm *VM) execute(store *pscontext.Store, sink host.ProgressSink) (bool, error) {
	var baselines predicate.Baselines

	pc := 0
	for pc < len(vm.program.Ops) {
		op := vm.program.Ops[pc]

		switch op.Code {
		case OpLabel:
			// Marker only; resolved at load time.

		case OpArmBPs:
			if len(vm.armedPCs) > 0 && !vm.host.ArmPCBreakpoints(vm.armedPCs) {
				return false, fmt.Errorf("vm: arm-bps failed at pc %d", pc)
			}

		case OpLoadSnapshot:
			if !vm.host.LoadSnapshotFromBuffer(vm.snapshot) {
				return false, fmt.Errorf("vm: load-snapshot failed at pc %d", pc)
			}

		case OpCaptureSnapshot:
			buf, ok := vm.host.SaveSnapshotToBuffer()
			if !ok {
				return false, fmt.Errorf("vm: capture-snapshot failed at pc %d", pc)
			}
			vm.snapshot = buf

		case OpApplyInput:
			frame, ok := pscontext.Get[pscontext.InputFrame](store, op.Key)
			if !ok {
				return false, fmt.Errorf("vm: apply-input: key 0x%04X missing or wrong type", op.Key)
			}
			vm.host.SetInput(toHostFrame(frame))

		case OpStepFrames:
			for i := uint32(0); i < op.N; i++ {
				if !vm.host.StepOneFrameBlocking(vm.stepTimeout()) {
					return false, fmt.Errorf("vm: step-frames failed on step %d of %d", i, op.N)
				}
			}

		case OpRunUntilBP:
			halt, ok, err := vm.runUntilBP(store, op, sink)
			if err != nil {
				return false, err
			}
			if halt {
				return ok, nil
			}

		case OpReadU8:
			v, ok := vm.host.ReadU8(op.Addr)
			if !ok {
				return false, fmt.Errorf("vm: read-u8 at 0x%08X failed", op.Addr)
			}
			pscontext.Set(store, op.DstKey, v)

		case OpReadU16:
			v, ok := vm.host.ReadU16(op.Addr)
			if !ok {
				return false, fmt.Errorf("vm: read-u16 at 0x%08X failed", op.Addr)
			}
			pscontext.Set(store, op.DstKey, v)

		case OpReadU32:
			v, ok := vm.host.ReadU32(op.Addr)
			if !ok {
				return false, fmt.Errorf("vm: read-u32 at 0x%08X failed", op.Addr)
			}
			pscontext.Set(store, op.DstKey, v)

		case OpReadF32:
			v, ok := vm.host.ReadF32(op.Addr)
			if !ok {
				return false, fmt.Errorf("vm: read-f32 at 0x%08X failed", op.Addr)
			}
			pscontext.Set(store, op.DstKey, v)

		case OpReadF64:
			v, ok := vm.host.ReadF64(op.Addr)
			if !ok {
				return false, fmt.Errorf("vm: read-f64 at 0x%08X failed", op.Addr)
			}
			pscontext.Set(store, op.DstKey, v)

		case OpSetTimeout:
			if op.Key != 0 {
				if v, ok := pscontext.Get[uint32](store, op.Key); ok {
					vm.pendingTimeoutMs = &v
				}
			} else {
				n := op.N
				vm.pendingTimeoutMs = &n
			}

		case OpEmitResult:
			if !store.Has(op.Key) {
				return false, fmt.Errorf("vm: emit-result: key 0x%04X not set", op.Key)
			}

		case OpGoto:
			pc = vm.program.labels[op.Label]
			continue

		case OpGotoIf:
			if lhs, ok := getNumeric(store, op.Key); ok && compareF(lhs, float64(op.Literal), op.Cmp) {
				pc = vm.program.labels[op.Label]
				continue
			}

		case OpGotoIfKeys:
			lhs, ok1 := getNumeric(store, op.Key)
			rhs, ok2 := getNumeric(store, op.Key2)
			if ok1 && ok2 && compareF(lhs, rhs, op.Cmp) {
				pc = vm.program.labels[op.Label]
				continue
			}

		case OpSetU32:
			pscontext.Set(store, op.Key, op.Value)

		case OpAddU32:
			cur, _ := pscontext.Get[uint32](store, op.Key)
			pscontext.Set(store, op.Key, uint32(int64(cur)+int64(op.Delta)))

		case OpApplyPlanFrameFrom:
			if err := vm.applyPlanFrameFrom(store, op.Key); err != nil {
				return false, err
			}

		case OpArmBPsFromPredicateTable:
			table, err := decodePredicateTable(store)
			if err != nil {
				return false, err
			}
			pcs := predicate.ArmFromTable(table, vm.bpmap, vm.armedPCs)
			if len(pcs) > 0 && !vm.host.ArmPCBreakpoints(pcs) {
				return false, fmt.Errorf("vm: arm-bps-from-predicate-table failed")
			}

		case OpCapturePredicateBaselines:
			table, err := decodePredicateTable(store)
			if err != nil {
				return false, err
			}
			progs, err := decodePredicatePrograms(store)
			if err != nil {
				return false, err
			}
			b, err := predicate.CaptureBaselines(table, vm.host, storeKeys{store}, progs)
			if err != nil {
				return false, err
			}
			baselines = b
			pscontext.Set(store, pscontext.KeyPredBaselines, predicate.EncodeBaselines(b))

		case OpEvalPredicatesAtHitBP:
			table, err := decodePredicateTable(store)
			if err != nil {
				return false, err
			}
			if baselines == nil {
				if raw, ok := pscontext.Get[[]byte](store, pscontext.KeyPredBaselines); ok {
					b, err := predicate.DecodeBaselines(raw)
					if err != nil {
						return false, err
					}
					baselines = b
				}
			}
			hitKey, _ := pscontext.Get[uint32](store, pscontext.KeyHitBPKey)
			progs, err := decodePredicatePrograms(store)
			if err != nil {
				return false, err
			}
			sum, err := predicate.EvaluateAtHitBP(table, baselines, vm.host, storeKeys{store}, progs, bpmap.Key(hitKey))
			if err != nil {
				return false, err
			}
			pscontext.Set(store, pscontext.KeyPredicateTotal, sum.Total)
			pscontext.Set(store, pscontext.KeyPredicatePass, sum.Pass)
			okVal := uint8(0)
			if sum.Total > 0 && sum.Pass == sum.Total {
				okVal = 1
			}
			pscontext.Set(store, pscontext.KeyPredicateOK, okVal)
			if sum.HasFirstFail {
				pscontext.Set(store, pscontext.KeyPredFirstFailed, uint32(sum.FirstFailID))
			}

		case OpRecordProgressAtBP:
			if _, ok := pscontext.Get[uint32](store, pscontext.KeyViFirst); !ok {
				pscontext.Set(store, pscontext.KeyViFirst, vm.lastHitPC)
			}
			pscontext.Set(store, pscontext.KeyViLast, vm.lastHitPC)

		case OpReturnResult:
			dst := op.Key
			if dst == 0 {
				dst = pscontext.KeyOutcomeCode
			}
			pscontext.Set(store, dst, op.ResultCode)
			return true, nil

		default:
			return false, fmt.Errorf("vm: unknown opcode %d at pc %d", op.Code, pc)
		}

		pc++
	}
	return true, nil
}

// RunOnce interprets the loaded program against an empty context store
// without restoring the baseline first, then re-captures the snapshot
// so it becomes the new per-job baseline. This backs the worker's
// run-init-once control: an init program advances the emulator to the
// state every main-program job should start from.
func (vm *VM) RunOnce(sink host.ProgressSink) (Result, error) {
	if vm.program == nil {
		return Result{}, fmt.Errorf("vm: RunOnce called before Init")
	}

	store := pscontext.NewStore()
	ok, err := vm.execute(store, sink)
	if err != nil {
		return Result{OK: false, Context: store}, err
	}
	if ok {
		snap, saved := vm.host.SaveSnapshotToBuffer()
		if !saved {
			return Result{OK: false, Context: store}, fmt.Errorf("vm: re-capture snapshot after init run failed")
		}
		vm.snapshot = snap
	}
	return Result{OK: ok, HitPC: vm.lastHitPC, Context: store}, nil
}

func (vm *VM) stepTimeout() time.Duration {
	return time.Duration(vm.init.DefaultTimeoutMs) * time.Millisecond
}
