package pscontext

// Module key tables. Each table's ids must lie within the module's
// reserved range declared in keys.go; this is enforced by
// ValidateRegistry at first use.

var coreKeys = []KeyEntry{
	{KeyHitPC, "core.hit_pc"},
	{KeyHitBPKey, "core.hit_bp_key"},
	{KeyOutcomeCode, "core.outcome_code"},
	{KeyElapsedMs, "core.elapsed_ms"},

	{KeyViFirst, "core.vi_first"},
	{KeyViLast, "core.vi_last"},
	{KeyPollMs, "core.poll_ms"},

	{KeyRunMs, "core.run_ms"},
	{KeyViStallMs, "core.vi_stall_ms"},
	{KeyProgressEnabl, "core.progress_enable"},

	{KeyPlanFrameIdx, "core.plan_frame_idx"},
	{KeyPlanDone, "core.plan_done"},

	{KeyPredCount, "core.pred_count"},
	{KeyPredTable, "core.pred_table"},
	{KeyPredBaselines, "core.pred_baselines"},
	{KeyPredicateTotal, "core.predicate_total"},
	{KeyPredicatePass, "core.predicate_pass"},
	{KeyPredicateOK, "core.predicate_ok"},
	{KeyPredFirstFailed, "core.pred_first_failed"},

	{KeyWorkerError, "core.worker_error"},
}

var seedKeys = []KeyEntry{
	{KeySeedFrame, "seed.frame"},
	{KeySeedSeed, "seed.seed"},
}

var tasKeys = []KeyEntry{
	{KeyTasFlags, "tas.flags"},
	{KeyTasDtmPath, "tas.dtm_path"},
	{KeyTasSaveDir, "tas.save_dir"},
	{KeyTasMovieEnded, "tas.movie_ended"},
	{KeyTasGameID, "tas.game_id"},
	{KeyTasViCount, "tas.vi_count"},
	{KeyTasInputCount, "tas.input_count"},
	{KeyTasRecStart, "tas.recording_start_time"},
}

var battleKeys = []KeyEntry{
	{KeyBattleActiveTurn, "battle.active_turn"},
	{KeyBattleInitialInput, "battle.initial_input"},
	{KeyBattleOutcomeCode, "battle.outcome_code"},
	{KeyBattlePlanCount, "battle.plan.count"},
	{KeyBattlePlanFrameCnts, "battle.plan.frame_counts"},
	{KeyBattlePlanFrames, "battle.plan.frames"},
	{KeyBattlePlanLastTurn, "battle.plan.last_turn_idx"},
	{KeyBattlePredCount, "battle.pred.count"},
	{KeyBattlePredTable, "battle.pred.table"},
	{KeyBattlePredProgs, "battle.pred.progs"},

	{KeyBattleSlotPtr0 + 0, "battle.slot_ptr.0"},
	{KeyBattleSlotPtr0 + 1, "battle.slot_ptr.1"},
	{KeyBattleSlotPtr0 + 2, "battle.slot_ptr.2"},
	{KeyBattleSlotPtr0 + 3, "battle.slot_ptr.3"},
	{KeyBattleSlotPtr0 + 4, "battle.slot_ptr.4"},
	{KeyBattleSlotPtr0 + 5, "battle.slot_ptr.5"},
	{KeyBattleSlotPtr0 + 6, "battle.slot_ptr.6"},
	{KeyBattleSlotPtr0 + 7, "battle.slot_ptr.7"},
	{KeyBattleSlotPtr0 + 8, "battle.slot_ptr.8"},
	{KeyBattleSlotPtr0 + 9, "battle.slot_ptr.9"},
	{KeyBattleSlotPtr0 + 10, "battle.slot_ptr.10"},
	{KeyBattleSlotPtr0 + 11, "battle.slot_ptr.11"},
}
