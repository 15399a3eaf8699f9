package programs

import "github.com/jahorta/soasim/bpmap"

// Breakpoint keys are stable per program-kind; the program counters
// they resolve to are build-specific (GC-GEA-USA here) and would move
// with a different game build.
const (
	// Seed-probe phase (pre-battle RNG).
	BPBeforeRandSeedSet bpmap.Key = 101
	BPAfterRandSeedSet  bpmap.Key = 102

	// Battle phase.
	BPBattleTurnInputs bpmap.Key = 201
	BPBattleEndBattle  bpmap.Key = 202
)

// Game memory addresses read by the programs below.
const (
	AddrRNGSeed uint32 = 0x803469A8

	// 12 consecutive u32 combatant instance pointers: PC0..PC3, EC0..EC7.
	AddrCombatantInstancesTable uint32 = 0x80309DE4
)

// SeedProbeBreakpoints returns the breakpoint map for the SeedProbe
// and TasMovie program-kinds.
func SeedProbeBreakpoints() *bpmap.Map {
	return bpmap.New([]bpmap.Entry{
		{Key: BPBeforeRandSeedSet, PC: 0x801019A8, Name: "BeforeRandSeedSet"},
		{Key: BPAfterRandSeedSet, PC: 0x8000A1DC, Name: "AfterRandSeedSet"},
	})
}

// TasMovieBreakpoints aliases the seed-probe map: movie playback runs
// up to the same pre-battle RNG checkpoints.
func TasMovieBreakpoints() *bpmap.Map {
	return SeedProbeBreakpoints()
}

// BattleBreakpoints returns the breakpoint map for the battle
// program-kinds.
func BattleBreakpoints() *bpmap.Map {
	return bpmap.New([]bpmap.Entry{
		{Key: BPBattleTurnInputs, PC: 0x800F83C4, Name: "TurnInputs"},
		{Key: BPBattleEndBattle, PC: 0x800FA918, Name: "EndBattle"},
	})
}
