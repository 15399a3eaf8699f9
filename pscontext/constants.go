package pscontext

// Well-known key ids. These are the canonical keys the codec and VM
// populate and read; the tables in tables.go register their names and
// double as the registry's source of truth.
const (
	KeyHitPC       KeyId = 0x0000
	KeyHitBPKey    KeyId = 0x0001
	KeyOutcomeCode KeyId = 0x0002
	KeyElapsedMs   KeyId = 0x0003

	KeyViFirst KeyId = 0x0020
	KeyViLast  KeyId = 0x0021
	KeyPollMs  KeyId = 0x0022

	KeyRunMs         KeyId = 0x0040
	KeyViStallMs     KeyId = 0x0041
	KeyProgressEnabl KeyId = 0x0042

	KeyPlanFrameIdx KeyId = 0x0060
	KeyPlanDone     KeyId = 0x0061

	KeyPredCount       KeyId = 0x0080
	KeyPredTable       KeyId = 0x0081
	KeyPredBaselines   KeyId = 0x0082
	KeyPredicateTotal  KeyId = 0x0083
	KeyPredicatePass   KeyId = 0x0084
	KeyPredicateOK     KeyId = 0x0085
	KeyPredFirstFailed KeyId = 0x0086

	KeyWorkerError KeyId = 0x00A0
)

const (
	KeySeedFrame KeyId = 0x0100
	KeySeedSeed  KeyId = 0x0101
)

const (
	KeyTasFlags      KeyId = 0x0200
	KeyTasDtmPath    KeyId = 0x0201
	KeyTasSaveDir    KeyId = 0x0202
	KeyTasMovieEnded KeyId = 0x0203
	KeyTasGameID     KeyId = 0x0204
	KeyTasViCount    KeyId = 0x0205
	KeyTasInputCount KeyId = 0x0206
	KeyTasRecStart   KeyId = 0x0207
)

const (
	KeyBattleActiveTurn    KeyId = 0x0300
	KeyBattleInitialInput  KeyId = 0x0301
	KeyBattleOutcomeCode   KeyId = 0x0302
	KeyBattlePlanCount     KeyId = 0x0310
	KeyBattlePlanFrameCnts KeyId = 0x0311
	KeyBattlePlanFrames    KeyId = 0x0312
	KeyBattlePlanLastTurn  KeyId = 0x0313
	KeyBattlePredCount     KeyId = 0x0320
	KeyBattlePredTable     KeyId = 0x0321
	KeyBattlePredProgs     KeyId = 0x0322

	// Combatant slot pointers read by the BattleContextProbe program:
	// 12 slots, PC0..PC3 then EC0..EC7, one key per slot.
	KeyBattleSlotPtr0 KeyId = 0x0340
)

// NumBattleSlots is the fixed combatant slot count: four player
// characters followed by eight enemy slots.
const NumBattleSlots = 12

// KeyBattleSlotPtr returns the key holding slot i's combatant instance
// pointer. i must be in [0, NumBattleSlots).
func KeyBattleSlotPtr(i int) KeyId {
	return KeyBattleSlotPtr0 + KeyId(i)
}
