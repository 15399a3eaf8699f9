package vm_test

import (
	"testing"

	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T, hitPC uint32, framesUntilHit int) (*vm.VM, *host.FakeEmulator, *bpmap.Map) {
	t.Helper()
	e := host.NewFakeEmulator()
	e.HitPC = &hitPC
	e.FramesUntilHit = framesUntilHit

	m := bpmap.New([]bpmap.Entry{{Key: 1, PC: hitPC, Name: "test.bp"}})
	v := vm.New(e, m)
	return v, e, m
}

func TestVM_RunUntilBP_HitThenReturnResult(t *testing.T) {
	v, _, m := newTestVM(t, 0x8000, 2)

	ops := []vm.Op{
		{Code: vm.OpApplyInput, Key: pscontext.KeySeedFrame},
		{Code: vm.OpRunUntilBP},
		{Code: vm.OpReturnResult, ResultCode: 42},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	payload := codec.EncodeSeedProbe(codec.SeedProbeSpec{RunMs: 500, Frame: pscontext.NeutralInputFrame()})
	res, err := v.Run(payload, codec.KindSeedProbe, nil)
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, uint32(0x8000), res.HitPC)

	outcome, ok := pscontext.Get[uint32](res.Context, pscontext.KeyOutcomeCode)
	require.True(t, ok)
	assert.Equal(t, uint32(42), outcome)

	hitKey, ok := pscontext.Get[uint32](res.Context, pscontext.KeyHitBPKey)
	require.True(t, ok)
	assert.Equal(t, uint32(1), hitKey)
}

func TestVM_RunUntilBP_TimeoutHaltsProgramWithoutReturnResult(t *testing.T) {
	e := host.NewFakeEmulator() // no HitPC configured: always times out
	m := bpmap.New([]bpmap.Entry{{Key: 1, PC: 0x9000, Name: "never_hit"}})
	v := vm.New(e, m)

	ops := []vm.Op{
		{Code: vm.OpRunUntilBP},
		{Code: vm.OpReturnResult, ResultCode: 1},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	payload := codec.EncodeSeedProbe(codec.SeedProbeSpec{Frame: pscontext.NeutralInputFrame()})
	res, err := v.Run(payload, codec.KindSeedProbe, nil)
	require.NoError(t, err)
	assert.False(t, res.OK, "non-hit outcome must halt the program before return-result runs")

	outcome, ok := pscontext.Get[uint32](res.Context, pscontext.KeyOutcomeCode)
	require.True(t, ok)
	assert.Equal(t, vm.OutcomeTimeout, outcome)
}

func TestVM_GotoIf_BranchesOnContextValue(t *testing.T) {
	v, _, m := newTestVM(t, 0x8000, 1)

	ops := []vm.Op{
		{Code: vm.OpSetU32, Key: pscontext.KeyPlanFrameIdx, Value: 7},
		{Code: vm.OpGotoIf, Key: pscontext.KeyPlanFrameIdx, Cmp: predicate.CmpEQ, Literal: 7, Label: "matched"},
		{Code: vm.OpReturnResult, ResultCode: 0},
		{Code: vm.OpLabel, Label: "matched"},
		{Code: vm.OpReturnResult, ResultCode: 99},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	payload := codec.EncodeSeedProbe(codec.SeedProbeSpec{Frame: pscontext.NeutralInputFrame()})
	res, err := v.Run(payload, codec.KindSeedProbe, nil)
	require.NoError(t, err)

	outcome, ok := pscontext.Get[uint32](res.Context, pscontext.KeyOutcomeCode)
	require.True(t, ok)
	assert.Equal(t, uint32(99), outcome)
}

func TestVM_ReadMemoryAndEmitResult(t *testing.T) {
	v, e, m := newTestVM(t, 0x8000, 1)
	e.WriteMemory(0x1000, []byte{0, 0, 0, 55})

	customKey := pscontext.KeyId(0x0090)
	ops := []vm.Op{
		{Code: vm.OpReadU32, Addr: 0x1000, DstKey: customKey},
		{Code: vm.OpEmitResult, Key: customKey},
		{Code: vm.OpReturnResult, ResultCode: 1},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	payload := codec.EncodeSeedProbe(codec.SeedProbeSpec{Frame: pscontext.NeutralInputFrame()})
	res, err := v.Run(payload, codec.KindSeedProbe, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	v32, ok := pscontext.Get[uint32](res.Context, customKey)
	require.True(t, ok)
	assert.Equal(t, uint32(55), v32)
}

func TestVM_ApplyPlanFrameFrom_AdvancesCursorAndSetsPlanDone(t *testing.T) {
	v, _, m := newTestVM(t, 0x8000, 1)

	// active-turn is program-set, not codec-set: prepend a set-u32 op
	// pinning it to turn 0 before apply-plan-frame-from runs.
	ops := []vm.Op{
		{Code: vm.OpSetU32, Key: pscontext.KeyBattleActiveTurn, Value: 0},
		{Code: vm.OpApplyPlanFrameFrom, Key: pscontext.KeyBattleActiveTurn},
		{Code: vm.OpApplyPlanFrameFrom, Key: pscontext.KeyBattleActiveTurn},
		{Code: vm.OpReturnResult, ResultCode: 1},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	payload := codec.EncodeBattleTurnRunner(codec.BattleTurnRunnerSpec{
		Initial: pscontext.NeutralInputFrame(),
		Plans: [][]pscontext.InputFrame{
			{pscontext.NeutralInputFrame(), pscontext.NeutralInputFrame()},
		},
	})

	res, err := v.Run(payload, codec.KindBattleTurnRunner, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	done, ok := pscontext.Get[uint8](res.Context, pscontext.KeyPlanDone)
	require.True(t, ok)
	assert.Equal(t, uint8(1), done)

	cursor, ok := pscontext.Get[uint32](res.Context, pscontext.KeyPlanFrameIdx)
	require.True(t, ok)
	assert.Equal(t, uint32(2), cursor)
}

func TestVM_PredicateLifecycle_ArmCaptureEval(t *testing.T) {
	e := host.NewFakeEmulator()
	e.WriteMemory(0x2000, []byte{0, 0, 0, 10})
	hitPC := uint32(0x8000)
	e.HitPC = &hitPC
	e.FramesUntilHit = 1

	m := bpmap.New([]bpmap.Entry{{Key: 5, PC: hitPC, Name: "turn_end"}})
	v := vm.New(e, m)

	ops := []vm.Op{
		{Code: vm.OpArmBPsFromPredicateTable},
		{Code: vm.OpCapturePredicateBaselines},
		{Code: vm.OpRunUntilBP},
		{Code: vm.OpEvalPredicatesAtHitBP},
		{Code: vm.OpReturnResult, ResultCode: 7},
	}
	program, err := vm.NewProgram(m.Keys(), ops)
	require.NoError(t, err)
	require.NoError(t, v.Init(vm.InitParams{DefaultTimeoutMs: 1000}, program))

	preds := predicate.Table{
		{ID: 1, RequiredBPKey: 5, Kind: predicate.KindAbsolute, Width: predicate.Width4, Cmp: predicate.CmpEQ, Flags: predicate.FlagActive, Addr: 0x2000, RHS: 10},
	}
	payload := codec.EncodeBattleTurnRunner(codec.BattleTurnRunnerSpec{
		Initial:    pscontext.NeutralInputFrame(),
		Predicates: preds,
	})

	res, err := v.Run(payload, codec.KindBattleTurnRunner, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)

	total, ok := pscontext.Get[uint32](res.Context, pscontext.KeyPredicateTotal)
	require.True(t, ok)
	assert.Equal(t, uint32(1), total)

	pass, ok := pscontext.Get[uint32](res.Context, pscontext.KeyPredicatePass)
	require.True(t, ok)
	assert.Equal(t, uint32(1), pass)

	predOK, ok := pscontext.Get[uint8](res.Context, pscontext.KeyPredicateOK)
	require.True(t, ok)
	assert.Equal(t, uint8(1), predOK)
}
