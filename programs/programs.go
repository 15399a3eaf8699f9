// Package programs defines the fixed phase-script program and
// breakpoint map for each program-kind. The registry here is the
// script half of the dispatch table; the decoder half lives in codec.
// New program-kinds are added by extending both.
package programs

import (
	"fmt"

	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/vm"
)

// Entry pairs one program-kind's breakpoint map with its phase script.
type Entry struct {
	Breakpoints *bpmap.Map
	Script      *vm.Program
}

// For returns the registry entry for kind. Dispatching an unknown kind
// is a program-load failure, not a panic: the worker reports it and
// stays alive.
func For(kind codec.Kind) (Entry, error) {
	switch kind {
	case codec.KindSeedProbe:
		return buildEntry(SeedProbeBreakpoints(), MakeSeedProbeProgram)
	case codec.KindTasMovie:
		return buildEntry(TasMovieBreakpoints(), MakeTasMovieProgram)
	case codec.KindBattleTurnRunner:
		return buildEntry(BattleBreakpoints(), MakeBattleRunnerProgram)
	case codec.KindBattleContextProbe:
		return buildEntry(BattleBreakpoints(), MakeBattleContextProbeProgram)
	default:
		return Entry{}, fmt.Errorf("programs: unknown program-kind %d", kind)
	}
}

func buildEntry(m *bpmap.Map, build func() (*vm.Program, error)) (Entry, error) {
	p, err := build()
	if err != nil {
		return Entry{}, err
	}
	return Entry{Breakpoints: m, Script: p}, nil
}
