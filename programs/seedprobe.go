package programs

import (
	"github.com/jahorta/soasim/bpmap"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/vm"
)

// MakeSeedProbeProgram builds the SeedProbe phase script: apply one
// frame of input, run to the seed-set breakpoint, read the RNG seed.
func MakeSeedProbeProgram() (*vm.Program, error) {
	ops := []vm.Op{
		{Code: vm.OpArmBPs},
		{Code: vm.OpLoadSnapshot},
		{Code: vm.OpApplyInput, Key: pscontext.KeySeedFrame},
		{Code: vm.OpRunUntilBP},
		{Code: vm.OpReadU32, Addr: AddrRNGSeed, DstKey: pscontext.KeySeedSeed},
		{Code: vm.OpEmitResult, Key: pscontext.KeySeedSeed},
	}
	return vm.NewProgram([]bpmap.Key{BPAfterRandSeedSet}, ops)
}

// MakeTasMovieProgram builds the TasMovie phase script. Movie playback
// is started by the worker before the program runs (the dtm path rides
// in the payload); the script itself just bounds the run and lets
// run-until-bp watch for playback ending.
func MakeTasMovieProgram() (*vm.Program, error) {
	ops := []vm.Op{
		{Code: vm.OpArmBPs},
		{Code: vm.OpSetTimeout, Key: pscontext.KeyRunMs},
		{Code: vm.OpRunUntilBP},
	}
	return vm.NewProgram([]bpmap.Key{BPBeforeRandSeedSet}, ops)
}
