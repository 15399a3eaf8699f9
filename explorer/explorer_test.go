package explorer

import (
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/programs"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/runner"
	"github.com/jahorta/soasim/vm"
)

func testExplorer() *Explorer {
	return New("battle.sav", fleetlog.New(io.Discard, fleetlog.LevelError, ""))
}

// contextWithEnemies builds a BattleContext with n enemies present in
// slots 4..4+n-1.
func contextWithEnemies(n int) BattleContext {
	var bc BattleContext
	for i := 0; i < 4; i++ {
		bc.Slots[i] = BattleSlot{Present: true, IsPlayer: true, InstanceAddr: 0x80400000 + uint32(i)*0x100}
	}
	for i := 0; i < n; i++ {
		bc.Slots[4+i] = BattleSlot{Present: true, InstanceAddr: 0x80410000 + uint32(i)*0x100}
	}
	return bc
}

func attack(actor uint8, target TargetBinding) UIAction {
	return UIAction{ActorSlot: actor, Macro: 1, Target: target}
}

func TestZeroTurnsZeroBudgetIsOneEmptyPath(t *testing.T) {
	e := testExplorer()
	paths := e.EnumeratePaths(contextWithEnemies(3), UIConfig{})
	require.Len(t, paths, 1)
	assert.Empty(t, paths[0].Turns)
}

func TestAnyEnemyExpandsToAliveEnemies(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{Turns: []UITurn{{attack(0, TargetBinding{Kind: AnyEnemy})}}}
	paths := e.EnumeratePaths(contextWithEnemies(3), ui)
	require.Len(t, paths, 3)

	targets := make(map[int]bool)
	for _, p := range paths {
		targets[p.Turns[0].Actions[0].Target] = true
	}
	assert.Equal(t, map[int]bool{1 << 4: true, 1 << 5: true, 1 << 6: true}, targets)
}

func TestEmptyDomainPropagates(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{Turns: []UITurn{
		{attack(0, TargetBinding{Kind: SingleEnemy, Mask: 1 << 4})},
		{attack(0, TargetBinding{Kind: AnyEnemy})},
	}}
	paths := e.EnumeratePaths(contextWithEnemies(0), ui)
	assert.Empty(t, paths)
}

func TestSameAsMirrorsWithinTurn(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{Turns: []UITurn{{
		attack(0, TargetBinding{Kind: AnyEnemy}),
		attack(1, TargetBinding{Kind: SameAsOtherPC, Actor: 0}),
	}}}
	paths := e.EnumeratePaths(contextWithEnemies(3), ui)
	require.Len(t, paths, 3)
	for _, p := range paths {
		acts := p.Turns[0].Actions
		assert.Equal(t, acts[0].Target, acts[1].Target)
	}
}

func TestSameAsCycleYieldsNoPaths(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{Turns: []UITurn{{
		attack(0, TargetBinding{Kind: SameAsOtherPC, Actor: 1}),
		attack(1, TargetBinding{Kind: SameAsOtherPC, Actor: 0}),
	}}}
	assert.Empty(t, e.EnumeratePaths(contextWithEnemies(3), ui))
}

func TestSameAsPreviousTurnMirrors(t *testing.T) {
	// Scenario: turn 1 any-enemy over 3 enemies, turn 2 the same actor
	// mirroring its own earlier choice. Exactly one mirror per turn-1
	// choice: 3 terminal paths, not 9.
	e := testExplorer()
	ui := UIConfig{Turns: []UITurn{
		{attack(0, TargetBinding{Kind: AnyEnemy})},
		{attack(0, TargetBinding{Kind: SameAsOtherPC, Actor: 0})},
	}}
	paths := e.EnumeratePaths(contextWithEnemies(3), ui)
	require.Len(t, paths, 3)
	for _, p := range paths {
		assert.Equal(t, p.Turns[0].Actions[0].Target, p.Turns[1].Actions[0].Target)
	}
}

func TestFakeAttackExpansion(t *testing.T) {
	// Budget 2 over 2 turns: C(4, 2) = 6 f-vectors; 3 base paths -> 18.
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{
			{attack(0, TargetBinding{Kind: AnyEnemy})},
			{attack(0, TargetBinding{Kind: SingleEnemy, Mask: 1 << 4})},
		},
		FakeAttackBudget: 2,
	}
	paths := e.EnumeratePaths(contextWithEnemies(3), ui)
	require.Len(t, paths, 18)

	seen := make(map[[2]uint32]bool)
	for _, p := range paths {
		sum := p.TotalFakeAttacks()
		assert.LessOrEqual(t, sum, uint32(2), "budget exceeded")
		seen[[2]uint32{p.Turns[0].FakeAttackCount, p.Turns[1].FakeAttackCount}] = true
	}
	assert.Len(t, seen, 6)
}

func TestEnumerationIsDeterministic(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{
			{attack(0, TargetBinding{Kind: AnyEnemy}), attack(1, TargetBinding{Kind: MultipleEnemies, Mask: (1 << 4) | (1 << 5)})},
			{attack(0, TargetBinding{Kind: SameAsOtherPC, Actor: 0})},
		},
		FakeAttackBudget: 1,
	}
	bc := contextWithEnemies(3)
	first := e.EnumeratePaths(bc, ui)
	second := e.EnumeratePaths(bc, ui)
	require.NotEmpty(t, first)
	assert.True(t, reflect.DeepEqual(first, second))
}

func TestNoPathEmittedTwice(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{
			{attack(0, TargetBinding{Kind: AnyEnemy})},
			{attack(0, TargetBinding{Kind: MultipleEnemies, Mask: (1 << 4) | (1 << 6)})},
		},
		FakeAttackBudget: 1,
	}
	paths := e.EnumeratePaths(contextWithEnemies(2), ui)
	// Enemies alive are slots 4,5, so AnyEnemy has 2 choices.
	// MultipleEnemies over {4,6} is not intersected with the alive set:
	// the mask is taken as given, 2 choices. 2*2 base paths, 3 f-vectors
	// each.
	require.Len(t, paths, 12)

	seen := make(map[string]bool)
	for _, p := range paths {
		key := ""
		for _, turn := range p.Turns {
			for _, a := range turn.Actions {
				key += string(rune(a.Target)) + ","
			}
			key += string(rune(turn.FakeAttackCount)) + ";"
		}
		assert.False(t, seen[key], "duplicate path")
		seen[key] = true
	}
}

func TestEstimates(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{
			{attack(0, TargetBinding{Kind: AnyEnemy})},
			{attack(0, TargetBinding{Kind: AnyEnemy})},
		},
		FakeAttackBudget: 2,
	}
	bc := contextWithEnemies(3)

	noFake := e.EstimatePathsNoFake(bc, ui)
	assert.Equal(t, uint64(9), noFake)
	assert.Equal(t, uint64(9*6), e.EstimatePathsWithFake(ui, noFake)) // C(4,2)=6

	empty := UIConfig{Turns: []UITurn{{attack(0, TargetBinding{Kind: AnyEnemy})}}}
	assert.Equal(t, uint64(0), e.EstimatePathsNoFake(contextWithEnemies(0), empty))
}

// scriptedDispatcher fakes the runner for retry-policy tests: every
// Submit immediately queues the scripted response for that attempt.
type scriptedDispatcher struct {
	submits int
	queue   []runner.Result
	respond func(attempt int, jobID uint64) runner.Result
}

func (d *scriptedDispatcher) SetProgram(initKind, mainKind codec.Kind, timeoutMs uint32, savestatePath string) error {
	return nil
}
func (d *scriptedDispatcher) RunInitOnce() error  { return nil }
func (d *scriptedDispatcher) ActivateMain() error { return nil }

func (d *scriptedDispatcher) Submit(payload []byte) uint64 {
	d.submits++
	id := uint64(d.submits)
	d.queue = append(d.queue, d.respond(d.submits, id))
	return id
}

func (d *scriptedDispatcher) TryGetResult(out *runner.Result) bool {
	if len(d.queue) == 0 {
		return false
	}
	*out = d.queue[0]
	d.queue = d.queue[1:]
	return true
}

func timeoutResult(jobID uint64) runner.Result {
	ctx := pscontext.NewStore()
	pscontext.Set(ctx, pscontext.KeyOutcomeCode, uint32(vm.OutcomeTimeout))
	return runner.Result{JobID: jobID, Accepted: true, VMOk: false, Ctx: ctx}
}

func victoryResult(jobID uint64) runner.Result {
	ctx := pscontext.NewStore()
	pscontext.Set(ctx, pscontext.KeyOutcomeCode, uint32(vm.OutcomeHit))
	pscontext.Set(ctx, pscontext.KeyBattleOutcomeCode, programs.BattleOutcomeVictory)
	return runner.Result{JobID: jobID, Accepted: true, VMOk: true, Ctx: ctx}
}

func defeatResult(jobID uint64) runner.Result {
	ctx := pscontext.NewStore()
	pscontext.Set(ctx, pscontext.KeyBattleOutcomeCode, programs.BattleOutcomeDefeat)
	return runner.Result{JobID: jobID, Accepted: true, VMOk: true, Ctx: ctx}
}

func onePathUI(maxRetry int) (UIConfig, []pscontext.BattlePath) {
	ui := UIConfig{
		Turns:         []UITurn{{attack(0, TargetBinding{Kind: SingleEnemy, Mask: 1 << 4})}},
		InitialFrames: []pscontext.InputFrame{pscontext.NeutralInputFrame()},
		MaxRetryCount: maxRetry,
	}
	e := testExplorer()
	return ui, e.EnumeratePaths(contextWithEnemies(1), ui)
}

func TestRetryBoundIsRPlusOne(t *testing.T) {
	ui, paths := onePathUI(2)
	require.Len(t, paths, 1)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		return timeoutResult(jobID) // never recovers
	}}
	sum, err := testExplorer().RunPaths(ui, paths, d)
	require.NoError(t, err)

	assert.Equal(t, 3, d.submits, "r=2 allows exactly r+1 submissions")
	assert.Equal(t, uint64(1), sum.JobsTotal)
	assert.Equal(t, uint64(0), sum.JobsSuccess)
	require.Len(t, sum.Fails, 1)
	assert.Equal(t, uint32(vm.OutcomeTimeout), sum.Fails[0].Outcome)
}

func TestRetryRecoversToVictory(t *testing.T) {
	ui, paths := onePathUI(2)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		if attempt < 3 {
			return timeoutResult(jobID)
		}
		return victoryResult(jobID)
	}}
	sum, err := testExplorer().RunPaths(ui, paths, d)
	require.NoError(t, err)

	assert.Equal(t, 3, d.submits)
	assert.Equal(t, uint64(1), sum.JobsSuccess)
	require.Len(t, sum.Successes, 1)
	assert.Equal(t, programs.BattleOutcomeVictory, sum.Successes[0].Outcome)
}

func TestNonVictoryHitIsNotRetried(t *testing.T) {
	ui, paths := onePathUI(5)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		return defeatResult(jobID)
	}}
	sum, err := testExplorer().RunPaths(ui, paths, d)
	require.NoError(t, err)

	assert.Equal(t, 1, d.submits, "vm_ok results are final even when not victories")
	assert.Equal(t, uint64(0), sum.JobsSuccess)
	require.Len(t, sum.Fails, 1)
	assert.Equal(t, programs.BattleOutcomeDefeat, sum.Fails[0].Outcome)
}

func TestWorkerDeathResultIsFinal(t *testing.T) {
	ui, paths := onePathUI(5)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		return runner.Result{JobID: jobID, Accepted: false}
	}}
	sum, err := testExplorer().RunPaths(ui, paths, d)
	require.NoError(t, err)

	assert.Equal(t, 1, d.submits)
	require.Len(t, sum.Fails, 1)
	assert.False(t, sum.Fails[0].Result.Accepted)
}

func TestNoInitialFramesMeansNoJobs(t *testing.T) {
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{{attack(0, TargetBinding{Kind: SingleEnemy, Mask: 1 << 4})}},
	}
	paths := e.EnumeratePaths(contextWithEnemies(1), ui)
	require.NotEmpty(t, paths)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		t.Fatal("no job should be submitted")
		return runner.Result{}
	}}
	sum, err := e.RunPaths(ui, paths, d)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), sum.JobsTotal)
	assert.Equal(t, 0, d.submits)
}

func TestEnumerationCoverageFormula(t *testing.T) {
	// (prod #concrete) x C(B+N, N) x #initial_frames jobs submitted.
	e := testExplorer()
	ui := UIConfig{
		Turns: []UITurn{
			{attack(0, TargetBinding{Kind: AnyEnemy})},
			{attack(0, TargetBinding{Kind: MultipleEnemies, Mask: (1 << 4) | (1 << 5)})},
		},
		FakeAttackBudget: 1,
		InitialFrames:    []pscontext.InputFrame{pscontext.NeutralInputFrame(), {MainX: 200, MainY: 128, CX: 128, CY: 128}},
	}
	bc := contextWithEnemies(3)
	paths := e.EnumeratePaths(bc, ui)
	// 3 * 2 base paths, C(3,2)=3 f-vectors.
	require.Len(t, paths, 18)

	d := &scriptedDispatcher{respond: func(attempt int, jobID uint64) runner.Result {
		return victoryResult(jobID)
	}}
	sum, err := e.RunPaths(ui, paths, d)
	require.NoError(t, err)
	assert.Equal(t, uint64(36), sum.JobsTotal)
	assert.Equal(t, 36, d.submits)
	assert.Equal(t, uint64(36), sum.JobsSuccess)
}

func TestPlanFramesShapes(t *testing.T) {
	path := pscontext.BattlePath{Turns: []pscontext.TurnPlan{
		{
			Actions:         []pscontext.ActionSpec{{ActorSlot: 0, Macro: 1, Target: 1 << 6}},
			FakeAttackCount: 1,
		},
	}}
	plans := planFrames(path)
	require.Len(t, plans, 1)
	// 4 fake-attack frames + confirm(2) + 2 taps x 2 + confirm(2) = 12.
	assert.Len(t, plans[0], 12)
}
