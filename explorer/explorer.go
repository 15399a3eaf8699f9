// Package explorer implements the Branch Explorer: it compiles
// symbolic battle plans (target bindings like "any enemy" or "same
// target as another actor") into concrete battle paths via constraint
// solving and Cartesian product, dispatches each terminal path as a
// job on the parallel runner, and collates predicate-satisfying
// outcomes with bounded retry.
package explorer

import (
	"fmt"
	"time"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/programs"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/runner"
	"github.com/jahorta/soasim/vm"
)

// TargetBindingKind selects how an action's target is resolved.
type TargetBindingKind uint8

const (
	// SingleEnemy is exactly one enemy (one bit set in Mask).
	SingleEnemy TargetBindingKind = iota
	// MultipleEnemies is one of the enemies listed in Mask.
	MultipleEnemies
	// AnyEnemy is one of all presently-alive enemies from the gathered
	// battle context.
	AnyEnemy
	// SameAsOtherPC defers to whatever actor Actor targets this turn.
	SameAsOtherPC
)

// TargetBinding is an action's symbolic target.
type TargetBinding struct {
	Kind  TargetBindingKind
	Mask  uint32 // SingleEnemy / MultipleEnemies
	Actor uint8  // SameAsOtherPC: the actor whose choice is mirrored
}

// UIAction is one actor's symbolic action within a turn.
type UIAction struct {
	ActorSlot uint8
	Macro     int
	Target    TargetBinding
}

// UITurn is one turn's actions, one per acting party member.
type UITurn []UIAction

// UIConfig is the symbolic input the explorer compiles and runs.
type UIConfig struct {
	Turns            []UITurn
	FakeAttackBudget uint32
	Predicates       predicate.Table
	PredPrograms     predicate.Programs // address-traversal operands for lhs/rhs-is-program predicates
	InitialFrames    []pscontext.InputFrame
	MaxRetryCount    int // -1 = retry forever
	RunMs            uint32
	ViStallMs        uint32
}

// BattleSlot is one combatant slot decoded from the context probe.
type BattleSlot struct {
	Present      bool
	IsPlayer     bool
	InstanceAddr uint32
}

// BattleContext is the live battle state the probe program observed:
// four player slots followed by eight enemy slots.
type BattleContext struct {
	Slots [pscontext.NumBattleSlots]BattleSlot
}

// EnemiesAliveMask returns a bitmask of present enemy slots (bits 4..11).
func (bc BattleContext) EnemiesAliveMask() uint32 {
	var mask uint32
	for i := 4; i < pscontext.NumBattleSlots; i++ {
		if bc.Slots[i].Present {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// Dispatcher is the slice of the parallel runner the explorer drives.
// runner.Runner satisfies it.
type Dispatcher interface {
	SetProgram(initKind, mainKind codec.Kind, timeoutMs uint32, savestatePath string) error
	RunInitOnce() error
	ActivateMain() error
	Submit(payload []byte) uint64
	TryGetResult(out *runner.Result) bool
}

// JobResult records one finished job: the path and initial frame it
// came from, the battle outcome code, and the raw runner result.
type JobResult struct {
	JobID      uint64
	PathIndex  int
	FrameIndex int
	Outcome    uint32
	Result     runner.Result
}

// RunResultSummary aggregates one RunPaths invocation.
type RunResultSummary struct {
	JobsTotal   uint64
	JobsSuccess uint64
	Fails       []JobResult
	Successes   []JobResult
}

// Explorer drives battle-plan exploration against one savestate.
type Explorer struct {
	savestatePath string
	log           *fleetlog.Logger

	// pollInterval paces the result-drain loop.
	pollInterval time.Duration
}

// New returns an Explorer whose programs run from savestatePath.
func New(savestatePath string, log *fleetlog.Logger) *Explorer {
	if log == nil {
		log = fleetlog.Default("explorer: ")
	}
	return &Explorer{
		savestatePath: savestatePath,
		log:           log,
		pollInterval:  time.Millisecond,
	}
}

// GatherContext runs the BattleContextProbe program once and decodes
// the combatant slot table from the result context.
func (e *Explorer) GatherContext(d Dispatcher) (BattleContext, error) {
	var bc BattleContext

	if err := d.SetProgram(0, codec.KindBattleContextProbe, 10000, e.savestatePath); err != nil {
		return bc, fmt.Errorf("explorer: gather context: %w", err)
	}
	if err := d.ActivateMain(); err != nil {
		return bc, fmt.Errorf("explorer: gather context: %w", err)
	}

	payload := codec.EncodeBattleContextProbe(codec.BattleContextProbeSpec{
		RunMs: 100000, ViStallMs: 2000,
	})
	jid := d.Submit(payload)

	for {
		var res runner.Result
		if !d.TryGetResult(&res) {
			time.Sleep(e.pollInterval)
			continue
		}
		if res.JobID != jid {
			continue
		}
		if !res.Accepted || !res.VMOk || res.Ctx == nil {
			return bc, fmt.Errorf("explorer: context probe failed (accepted=%v vm_ok=%v)", res.Accepted, res.VMOk)
		}
		for i := 0; i < pscontext.NumBattleSlots; i++ {
			addr, ok := pscontext.Get[uint32](res.Ctx, pscontext.KeyBattleSlotPtr(i))
			if !ok {
				return bc, fmt.Errorf("explorer: context probe result missing slot %d", i)
			}
			bc.Slots[i] = BattleSlot{
				Present:      addr != 0,
				IsPlayer:     i < 4,
				InstanceAddr: addr,
			}
		}
		return bc, nil
	}
}

// EnumeratePaths builds every terminal, non-branching battle path from
// ui: per-turn constraint solving, Cartesian product across turns, and
// fake-attack expansion. Enumeration is deterministic: calling it
// twice yields identical sequences.
func (e *Explorer) EnumeratePaths(bc BattleContext, ui UIConfig) []pscontext.BattlePath {
	n := len(ui.Turns)

	compiled := make([]compiledTurn, 0, n)
	for _, turn := range ui.Turns {
		ct := compileTurn(bc, turn)
		if len(ct.choices) == 0 {
			return nil
		}
		compiled = append(compiled, ct)
	}

	if n == 0 {
		// Zero turns: exactly one empty path.
		return []pscontext.BattlePath{{}}
	}

	basePaths := productTurns(compiled)
	fvecs := fakeAttackVectors(n, ui.FakeAttackBudget)

	out := make([]pscontext.BattlePath, 0, len(basePaths)*len(fvecs))
	for _, base := range basePaths {
		resolved, ok := resolveDeferred(base, compiled)
		if !ok {
			continue
		}
		for _, fv := range fvecs {
			p := pscontext.BattlePath{Turns: make([]pscontext.TurnPlan, n)}
			for i := 0; i < n; i++ {
				p.Turns[i] = pscontext.TurnPlan{
					Actions:         resolved[i],
					FakeAttackCount: fv[i],
				}
			}
			out = append(out, p)
		}
	}
	return out
}

// EstimatePathsNoFake counts the base paths ui would produce before
// fake-attack expansion (zero if any turn compiles to nothing).
func (e *Explorer) EstimatePathsNoFake(bc BattleContext, ui UIConfig) uint64 {
	total := uint64(1)
	for _, turn := range ui.Turns {
		k := uint64(len(compileTurn(bc, turn).choices))
		if k == 0 {
			return 0
		}
		total *= k
	}
	return total
}

// EstimatePathsWithFake scales a no-fake path count by the fake-attack
// expansion factor C(B+N, N).
func (e *Explorer) EstimatePathsWithFake(ui UIConfig, pathsNoFake uint64) uint64 {
	n := uint64(len(ui.Turns))
	b := uint64(ui.FakeAttackBudget)
	return pathsNoFake * binomial(b+n, n)
}

type pending struct {
	pathIdx  int
	frameIdx int
	retries  int
	spec     codec.BattleTurnRunnerSpec
}

// RunPaths configures the fleet for the BattleTurnRunner program,
// submits one job per (initial frame × path) pair, and drains results
// with bounded retry for recoverable non-hit outcomes.
func (e *Explorer) RunPaths(ui UIConfig, paths []pscontext.BattlePath, d Dispatcher) (RunResultSummary, error) {
	var sum RunResultSummary
	sum.JobsTotal = uint64(len(paths)) * uint64(len(ui.InitialFrames))
	if sum.JobsTotal == 0 {
		return sum, nil
	}

	if err := d.SetProgram(0, codec.KindBattleTurnRunner, 10000, e.savestatePath); err != nil {
		return sum, fmt.Errorf("explorer: run paths: %w", err)
	}
	if err := d.RunInitOnce(); err != nil {
		return sum, fmt.Errorf("explorer: run paths: %w", err)
	}
	if err := d.ActivateMain(); err != nil {
		return sum, fmt.Errorf("explorer: run paths: %w", err)
	}

	runMs := ui.RunMs
	if runMs == 0 {
		runMs = 60000
	}
	viStallMs := ui.ViStallMs
	if viStallMs == 0 {
		viStallMs = 2000
	}

	pendings := make(map[uint64]pending, sum.JobsTotal)
	for fi, initial := range ui.InitialFrames {
		for pi, path := range paths {
			spec := codec.BattleTurnRunnerSpec{
				RunMs:      runMs,
				ViStallMs:  viStallMs,
				Initial:    initial,
				Plans:      planFrames(path),
				Predicates: ui.Predicates,
				Programs:   ui.PredPrograms,
			}
			jid := d.Submit(codec.EncodeBattleTurnRunner(spec))
			pendings[jid] = pending{pathIdx: pi, frameIdx: fi, retries: ui.MaxRetryCount, spec: spec}
		}
	}

	remaining := len(pendings)
	for remaining > 0 {
		var res runner.Result
		if !d.TryGetResult(&res) {
			time.Sleep(e.pollInterval)
			continue
		}

		p, known := pendings[res.JobID]
		if !known {
			continue
		}
		delete(pendings, res.JobID)

		if !res.Accepted {
			// Transport failure (worker death or stale epoch); final.
			e.log.Warnf("job %d not accepted, counting as failure", res.JobID)
			sum.Fails = append(sum.Fails, JobResult{JobID: res.JobID, PathIndex: p.pathIdx, FrameIndex: p.frameIdx, Result: res})
			remaining--
			continue
		}

		if !res.VMOk {
			outcome := uint32(vm.OutcomeUnknown)
			if res.Ctx != nil {
				if oc, ok := pscontext.Get[uint32](res.Ctx, pscontext.KeyOutcomeCode); ok {
					outcome = oc
				}
			}
			if recoverable(outcome) && e.allowRetry(&p) {
				jid := d.Submit(codec.EncodeBattleTurnRunner(p.spec))
				pendings[jid] = p
				e.log.Infof("job %d outcome %d, resubmitted as %d", res.JobID, outcome, jid)
				continue
			}
			sum.Fails = append(sum.Fails, JobResult{JobID: res.JobID, PathIndex: p.pathIdx, FrameIndex: p.frameIdx, Outcome: outcome, Result: res})
			remaining--
			continue
		}

		outcome := uint32(0)
		if res.Ctx != nil {
			outcome, _ = pscontext.Get[uint32](res.Ctx, pscontext.KeyBattleOutcomeCode)
		}
		jr := JobResult{JobID: res.JobID, PathIndex: p.pathIdx, FrameIndex: p.frameIdx, Outcome: outcome, Result: res}
		if outcome == programs.BattleOutcomeVictory {
			sum.JobsSuccess++
			sum.Successes = append(sum.Successes, jr)
		} else {
			sum.Fails = append(sum.Fails, jr)
		}
		remaining--
	}
	return sum, nil
}

// recoverable reports whether a non-hit outcome is worth a retry.
func recoverable(outcome uint32) bool {
	switch outcome {
	case vm.OutcomeTimeout, vm.OutcomeViStalled, vm.OutcomeMovieEnded:
		return true
	default:
		return false
	}
}

// allowRetry consumes one retry from p's budget. A negative budget
// never runs out.
func (e *Explorer) allowRetry(p *pending) bool {
	if p.retries < 0 {
		return true
	}
	if p.retries > 0 {
		p.retries--
		return true
	}
	return false
}
