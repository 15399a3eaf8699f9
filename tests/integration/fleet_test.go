// Package integration exercises the full pipeline — explorer to
// runner to worker to VM — over real pipe-backed IPC, with only the
// emulator replaced by the deterministic in-process fake.
package integration

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/explorer"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/ipc"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/programs"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/runner"
	"github.com/jahorta/soasim/worker"
)

func testLog() *fleetlog.Logger {
	return fleetlog.New(io.Discard, fleetlog.LevelError, "")
}

// pipeLauncher runs real workers in-process over io.Pipe pairs.
type pipeLauncher struct {
	makeEmu func(id int) host.Emulator
}

func (l pipeLauncher) Launch(id int) (*runner.WorkerHandle, error) {
	toWorkerR, toWorkerW := io.Pipe()
	fromWorkerR, fromWorkerW := io.Pipe()

	w := worker.New(worker.Options{
		ID:               id,
		ISOPath:          "game.iso",
		DefaultTimeoutMs: 1000,
		Log:              testLog(),
	}, l.makeEmu(id), ipc.NewConn(toWorkerR, fromWorkerW))

	go func() {
		if code := w.Boot(); code == worker.ExitClean {
			_ = w.Serve()
		}
		fromWorkerW.Close()
	}()

	return &runner.WorkerHandle{
		Conn:       ipc.NewConn(fromWorkerR, toWorkerW),
		CloseWrite: toWorkerW.Close,
	}, nil
}

func startFleet(t *testing.T, workers int, makeEmu func(id int) host.Emulator) *runner.Runner {
	t.Helper()
	r := runner.New(testLog())
	require.NoError(t, r.Start(runner.BootPlan{
		Workers:      workers,
		ReadyTimeout: 5 * time.Second,
		AckTimeout:   2 * time.Second,
	}, pipeLauncher{makeEmu: makeEmu}))
	t.Cleanup(r.Stop)
	return r
}

func drainOne(t *testing.T, r *runner.Runner) runner.Result {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var res runner.Result
		if r.TryGetResult(&res) {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no result before deadline")
	return runner.Result{}
}

// Seed probe, neutral frame: a synthetic savestate where the RNG seed
// address holds big-endian 0xDEADBEEF must come back as seed.seed =
// 0xDEADBEEF with outcome hit.
func TestSeedProbeEndToEnd(t *testing.T) {
	r := startFleet(t, 2, func(id int) host.Emulator {
		emu := host.NewFakeEmulator()
		emu.WriteMemory(programs.AddrRNGSeed, []byte{0xDE, 0xAD, 0xBE, 0xEF})
		pc, _ := programs.SeedProbeBreakpoints().PC(programs.BPAfterRandSeedSet)
		emu.HitPC = &pc
		return emu
	})

	require.NoError(t, r.SetProgram(0, codec.KindSeedProbe, 1000, ""))
	require.NoError(t, r.ActivateMain())

	jid := r.Submit(codec.EncodeSeedProbe(codec.SeedProbeSpec{
		RunMs: 500, Frame: pscontext.NeutralInputFrame(),
	}))

	res := drainOne(t, r)
	require.Equal(t, jid, res.JobID)
	require.True(t, res.Accepted)
	require.True(t, res.VMOk)
	require.Equal(t, r.CurrentEpoch(), res.Epoch)

	seed, ok := pscontext.Get[uint32](res.Ctx, pscontext.KeySeedSeed)
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), seed)

	outcome, ok := pscontext.Get[uint32](res.Ctx, pscontext.KeyOutcomeCode)
	require.True(t, ok)
	assert.Equal(t, uint32(0), outcome)

	hitPC, ok := pscontext.Get[uint32](res.Ctx, pscontext.KeyHitPC)
	require.True(t, ok)
	assert.Equal(t, uint32(0x8000A1DC), hitPC)
}

// Battle runner through the explorer: one single-enemy turn whose
// end-of-battle predicate holds must come back as a victory.
func TestBattleRunEndToEnd(t *testing.T) {
	const hpAddr = 0x80500000

	r := startFleet(t, 2, func(id int) host.Emulator {
		emu := host.NewFakeEmulator()
		emu.WriteMemory(hpAddr, []byte{0x00, 0x00, 0x00, 0x07})
		pc, _ := programs.BattleBreakpoints().PC(programs.BPBattleEndBattle)
		emu.HitPC = &pc
		return emu
	})

	e := explorer.New("", testLog())
	ui := explorer.UIConfig{
		Turns: []explorer.UITurn{{
			{ActorSlot: 0, Macro: 1, Target: explorer.TargetBinding{Kind: explorer.SingleEnemy, Mask: 1 << 4}},
		}},
		Predicates: predicate.Table{{
			ID:            1,
			RequiredBPKey: programs.BPBattleEndBattle,
			Kind:          predicate.KindAbsolute,
			Width:         predicate.Width4,
			Cmp:           predicate.CmpEQ,
			Flags:         predicate.FlagActive,
			Addr:          hpAddr,
			RHS:           7,
		}},
		InitialFrames: []pscontext.InputFrame{pscontext.NeutralInputFrame()},
		RunMs:         1000,
		ViStallMs:     0,
	}

	paths := e.EnumeratePaths(explorer.BattleContext{}, ui)
	require.Len(t, paths, 1)

	sum, err := e.RunPaths(ui, paths, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sum.JobsTotal)
	assert.Equal(t, uint64(1), sum.JobsSuccess)
	require.Len(t, sum.Successes, 1)
	assert.Equal(t, programs.BattleOutcomeVictory, sum.Successes[0].Outcome)
}

// A failing predicate at the end-of-battle hit must come back as a
// defeat, not a victory and not a retry.
func TestBattleRunPredicateFailIsDefeat(t *testing.T) {
	const hpAddr = 0x80500000

	r := startFleet(t, 1, func(id int) host.Emulator {
		emu := host.NewFakeEmulator()
		emu.WriteMemory(hpAddr, []byte{0x00, 0x00, 0x00, 0x04})
		pc, _ := programs.BattleBreakpoints().PC(programs.BPBattleEndBattle)
		emu.HitPC = &pc
		return emu
	})

	e := explorer.New("", testLog())
	ui := explorer.UIConfig{
		Turns: []explorer.UITurn{{
			{ActorSlot: 0, Macro: 1, Target: explorer.TargetBinding{Kind: explorer.SingleEnemy, Mask: 1 << 4}},
		}},
		Predicates: predicate.Table{{
			ID:            1,
			RequiredBPKey: programs.BPBattleEndBattle,
			Kind:          predicate.KindAbsolute,
			Width:         predicate.Width4,
			Cmp:           predicate.CmpEQ,
			Flags:         predicate.FlagActive,
			Addr:          hpAddr,
			RHS:           7,
		}},
		InitialFrames: []pscontext.InputFrame{pscontext.NeutralInputFrame()},
		RunMs:         1000,
		MaxRetryCount: 3,
	}

	paths := e.EnumeratePaths(explorer.BattleContext{}, ui)
	sum, err := e.RunPaths(ui, paths, r)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sum.JobsSuccess)
	require.Len(t, sum.Fails, 1)
	assert.Equal(t, programs.BattleOutcomeDefeat, sum.Fails[0].Outcome)
}

// Context probe through the explorer: slot pointers decode into the
// battle context.
func TestGatherContextEndToEnd(t *testing.T) {
	r := startFleet(t, 1, func(id int) host.Emulator {
		emu := host.NewFakeEmulator()
		// Four players and three enemies present; remaining slots null.
		for i := 0; i < 12; i++ {
			var ptr uint32
			if i < 4 || (i >= 4 && i < 7) {
				ptr = 0x80400000 + uint32(i)*0x200
			}
			be := []byte{byte(ptr >> 24), byte(ptr >> 16), byte(ptr >> 8), byte(ptr)}
			emu.WriteMemory(programs.AddrCombatantInstancesTable+uint32(i)*4, be)
		}
		pc, _ := programs.BattleBreakpoints().PC(programs.BPBattleTurnInputs)
		emu.HitPC = &pc
		return emu
	})

	e := explorer.New("", testLog())
	bc, err := e.GatherContext(r)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		assert.True(t, bc.Slots[i].Present, "slot %d", i)
	}
	for i := 7; i < 12; i++ {
		assert.False(t, bc.Slots[i].Present, "slot %d", i)
	}
	assert.Equal(t, uint32(0b111<<4), bc.EnemiesAliveMask())
}
