package programs

import (
	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/predicate"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/vm"
)

// Battle outcome codes, written by the BattleTurnRunner program to
// battle.outcome_code via return-result. They are opaque identifiers
// chosen by this program and surfaced to the caller verbatim; nothing
// outside the program assigns them meaning beyond equality.
const (
	BattleOutcomeVictory        uint32 = 1
	BattleOutcomeDefeat         uint32 = 2
	BattleOutcomePlanMismatch   uint32 = 3
	BattleOutcomeTurnsExhausted uint32 = 4
)

// MakeBattleRunnerProgram builds the BattleTurnRunner phase script:
// run to the first turn-input breakpoint, then per turn feed the
// compiled plan frames one per emulated frame, run to the next
// breakpoint, evaluate predicates, and branch on which breakpoint hit
// until victory, defeat, or the plan runs dry.
func MakeBattleRunnerProgram() (*vm.Program, error) {
	ops := []vm.Op{
		{Code: vm.OpArmBPs},
		{Code: vm.OpArmBPsFromPredicateTable},
		{Code: vm.OpLoadSnapshot},

		{Code: vm.OpApplyInput, Key: pscontext.KeyBattleInitialInput},
		{Code: vm.OpRunUntilBP},

		{Code: vm.OpSetU32, Key: pscontext.KeyBattleActiveTurn, Value: 0},
		{Code: vm.OpCapturePredicateBaselines},

		{Code: vm.OpLabel, Label: "feed"},
		{Code: vm.OpApplyPlanFrameFrom, Key: pscontext.KeyBattleActiveTurn},
		{Code: vm.OpStepFrames, N: 1},
		{Code: vm.OpGotoIf, Key: pscontext.KeyPlanDone, Cmp: predicate.CmpEQ, Literal: 1, Label: "ran"},
		{Code: vm.OpGoto, Label: "feed"},

		{Code: vm.OpLabel, Label: "ran"},
		{Code: vm.OpRunUntilBP},
		{Code: vm.OpEvalPredicatesAtHitBP},
		{Code: vm.OpRecordProgressAtBP},

		{Code: vm.OpGotoIf, Key: pscontext.KeyHitBPKey, Cmp: predicate.CmpNE, Literal: uint64(BPBattleEndBattle), Label: "turn"},
		{Code: vm.OpGotoIf, Key: pscontext.KeyPredicateOK, Cmp: predicate.CmpEQ, Literal: 1, Label: "ret_victory"},
		{Code: vm.OpGoto, Label: "ret_defeat"},

		// Some breakpoint other than end-of-battle fired. Anything but
		// the turn-input checkpoint re-runs; a turn-input hit while the
		// current plan still has frames means the game is not where the
		// plan thinks it is.
		{Code: vm.OpLabel, Label: "turn"},
		{Code: vm.OpGotoIf, Key: pscontext.KeyHitBPKey, Cmp: predicate.CmpNE, Literal: uint64(BPBattleTurnInputs), Label: "ran"},
		{Code: vm.OpGotoIf, Key: pscontext.KeyPlanDone, Cmp: predicate.CmpEQ, Literal: 0, Label: "ret_mismatch"},
		{Code: vm.OpGotoIfKeys, Key: pscontext.KeyBattleActiveTurn, Cmp: predicate.CmpLT, Key2: pscontext.KeyBattlePlanLastTurn, Label: "advance"},
		{Code: vm.OpReturnResult, Key: pscontext.KeyBattleOutcomeCode, ResultCode: BattleOutcomeTurnsExhausted},

		{Code: vm.OpLabel, Label: "advance"},
		{Code: vm.OpAddU32, Key: pscontext.KeyBattleActiveTurn, Delta: 1},
		{Code: vm.OpSetU32, Key: pscontext.KeyPlanFrameIdx, Value: 0},
		{Code: vm.OpSetU32, Key: pscontext.KeyPlanDone, Value: 0},
		{Code: vm.OpCapturePredicateBaselines},
		{Code: vm.OpGoto, Label: "feed"},

		{Code: vm.OpLabel, Label: "ret_victory"},
		{Code: vm.OpReturnResult, Key: pscontext.KeyBattleOutcomeCode, ResultCode: BattleOutcomeVictory},

		{Code: vm.OpLabel, Label: "ret_defeat"},
		{Code: vm.OpReturnResult, Key: pscontext.KeyBattleOutcomeCode, ResultCode: BattleOutcomeDefeat},

		{Code: vm.OpLabel, Label: "ret_mismatch"},
		{Code: vm.OpReturnResult, Key: pscontext.KeyBattleOutcomeCode, ResultCode: BattleOutcomePlanMismatch},
	}
	return vm.NewProgram([]bpmap.Key{BPBattleTurnInputs, BPBattleEndBattle}, ops)
}

// MakeBattleContextProbeProgram builds the BattleContextProbe phase
// script: run to the first turn-input breakpoint and dump the twelve
// combatant slot pointers so the caller can see which slots are live.
func MakeBattleContextProbeProgram() (*vm.Program, error) {
	ops := []vm.Op{
		{Code: vm.OpArmBPs},
		{Code: vm.OpLoadSnapshot},
		{Code: vm.OpRunUntilBP},
	}
	for i := 0; i < pscontext.NumBattleSlots; i++ {
		ops = append(ops, vm.Op{
			Code:   vm.OpReadU32,
			Addr:   AddrCombatantInstancesTable + uint32(i)*4,
			DstKey: pscontext.KeyBattleSlotPtr(i),
		})
	}
	ops = append(ops, vm.Op{Code: vm.OpEmitResult, Key: pscontext.KeyBattleSlotPtr(0)})
	return vm.NewProgram([]bpmap.Key{BPBattleTurnInputs}, ops)
}
