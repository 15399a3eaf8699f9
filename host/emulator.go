// Package host declares the emulator host interface the Phase-Script VM
// drives. The real emulator lives outside this repository; this package
// carries only its interface, a link-time registration seam, and a
// deterministic in-memory fake used by the test suites.
package host

import "time"

// StopReason explains why RunUntilBreakpoint returned: StopHit for a
// breakpoint hit, any other value for a return without a hit.
type StopReason int

const (
	StopHit StopReason = iota
	StopTimeout
	StopViStall
	StopMovieEnded
	StopAborted
)

// RunResult is the outcome of one RunUntilBreakpoint call.
type RunResult struct {
	Hit    bool
	PC     uint32
	Reason StopReason
}

// ProgressSink receives progress updates during a long RunUntilBreakpoint
// call. Implementations must not block.
type ProgressSink interface {
	OnProgress(curFrames, totalFrames uint32, elapsedMs uint32, pollMs uint32, flags uint32, text string)
}

// Emulator is the opaque host the VM drives: it exposes memory reads,
// breakpoint arming, input override, savestate save/load, and frame
// stepping. How it emulates hardware, serializes savestates, or wires
// input devices is its own business — only this surface matters here.
type Emulator interface {
	LoadGame(path string) bool
	LoadSavestate(pathOrBuffer string) bool

	SaveSnapshotToBuffer() ([]byte, bool)
	LoadSnapshotFromBuffer(buf []byte) bool

	ReadU8(addr uint32) (uint8, bool)
	ReadU16(addr uint32) (uint16, bool)
	ReadU32(addr uint32) (uint32, bool)
	ReadF32(addr uint32) (float32, bool)
	ReadF64(addr uint32) (float64, bool)

	ArmPCBreakpoints(pcs []uint32) bool
	DisarmPCBreakpoints(pcs []uint32) bool
	ClearAllPCBreakpoints()

	StepOneFrameBlocking(timeout time.Duration) bool

	RunUntilBreakpoint(timeout, viStall time.Duration, watchMovie bool, pollMs time.Duration, sink ProgressSink) RunResult

	SetInput(frame InputFrame)
	ConfigurePort1StandardPad()

	PlayMovie(path string) bool
	EndMoviePlayback(timeout time.Duration) bool
	IsMoviePlaying() bool
}

// InputFrame mirrors pscontext.InputFrame at the host boundary so this
// package has no dependency on pscontext.
type InputFrame struct {
	Buttons uint16
	MainX   uint8
	MainY   uint8
	CX      uint8
	CY      uint8
	TrigL   uint8
	TrigR   uint8
}
