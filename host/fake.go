package host

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// FakeEmulator is a deterministic, in-process stand-in for the real
// embedded emulator, used throughout this repository's test suites.
// It models addressable memory as a sparse byte map; there is no CPU,
// so breakpoint hits and stalls are scripted by the test.
type FakeEmulator struct {
	mu sync.Mutex

	mem map[uint32]byte

	armed map[uint32]bool

	input InputFrame

	loadedGame       string
	loadedSavestate  string
	moviePlaying     bool
	movieFramesLeft  int
	movieTotalFrames int

	// HitPC, when non-nil, causes the next RunUntilBreakpoint call (once
	// framesUntilHit reaches zero) to report a hit at that address,
	// regardless of whether it was armed — this lets tests script
	// breakpoint hits without a real CPU.
	HitPC           *uint32
	FramesUntilHit  int
	ViStallSimulate bool
}

// NewFakeEmulator returns an empty fake with no memory populated.
func NewFakeEmulator() *FakeEmulator {
	return &FakeEmulator{
		mem:   make(map[uint32]byte),
		armed: make(map[uint32]bool),
	}
}

// WriteMemory seeds memory for a test, bypassing the Emulator interface.
func (f *FakeEmulator) WriteMemory(addr uint32, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range data {
		f.mem[addr+uint32(i)] = b
	}
}

func (f *FakeEmulator) LoadGame(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedGame = path
	return true
}

func (f *FakeEmulator) LoadSavestate(pathOrBuffer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedSavestate = pathOrBuffer
	return true
}

func (f *FakeEmulator) SaveSnapshotToBuffer() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Encode as a sorted-by-address sequence so the snapshot is
	// byte-for-byte identical across calls with identical memory state.
	addrs := make([]uint32, 0, len(f.mem))
	for a := range f.mem {
		addrs = append(addrs, a)
	}
	sortUint32(addrs)

	buf := make([]byte, 0, len(addrs)*5)
	for _, a := range addrs {
		var header [5]byte
		binary.LittleEndian.PutUint32(header[:4], a)
		header[4] = f.mem[a]
		buf = append(buf, header[:]...)
	}
	return buf, true
}

func (f *FakeEmulator) LoadSnapshotFromBuffer(buf []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(buf)%5 != 0 {
		return false
	}
	f.mem = make(map[uint32]byte, len(buf)/5)
	for i := 0; i+5 <= len(buf); i += 5 {
		addr := binary.LittleEndian.Uint32(buf[i : i+4])
		f.mem[addr] = buf[i+4]
	}
	return true
}

func (f *FakeEmulator) ReadU8(addr uint32) (uint8, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.mem[addr]
	return b, ok
}

func (f *FakeEmulator) ReadU16(addr uint32) (uint16, bool) {
	hi, ok1 := f.ReadU8(addr)
	lo, ok2 := f.ReadU8(addr + 1)
	if !ok1 || !ok2 {
		return 0, false
	}
	return uint16(hi)<<8 | uint16(lo), true
}

func (f *FakeEmulator) ReadU32(addr uint32) (uint32, bool) {
	b0, ok0 := f.ReadU8(addr)
	b1, ok1 := f.ReadU8(addr + 1)
	b2, ok2 := f.ReadU8(addr + 2)
	b3, ok3 := f.ReadU8(addr + 3)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	return uint32(b0)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3), true
}

func (f *FakeEmulator) ReadF32(addr uint32) (float32, bool) {
	v, ok := f.ReadU32(addr)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func (f *FakeEmulator) ReadF64(addr uint32) (float64, bool) {
	hi, ok1 := f.ReadU32(addr)
	lo, ok2 := f.ReadU32(addr + 4)
	if !ok1 || !ok2 {
		return 0, false
	}
	return math.Float64frombits(uint64(hi)<<32 | uint64(lo)), true
}

func (f *FakeEmulator) ArmPCBreakpoints(pcs []uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pc := range pcs {
		f.armed[pc] = true
	}
	return true
}

func (f *FakeEmulator) DisarmPCBreakpoints(pcs []uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pc := range pcs {
		delete(f.armed, pc)
	}
	return true
}

func (f *FakeEmulator) ClearAllPCBreakpoints() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = make(map[uint32]bool)
}

func (f *FakeEmulator) StepOneFrameBlocking(timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moviePlaying {
		f.movieFramesLeft--
		if f.movieFramesLeft <= 0 {
			f.moviePlaying = false
		}
	}
	return true
}

func (f *FakeEmulator) RunUntilBreakpoint(timeout, viStall time.Duration, watchMovie bool, pollMs time.Duration, sink ProgressSink) RunResult {
	f.mu.Lock()
	hitPC := f.HitPC
	framesUntilHit := f.FramesUntilHit
	viStallSim := f.ViStallSimulate
	f.mu.Unlock()

	if viStallSim && viStall > 0 {
		return RunResult{Reason: StopViStall}
	}

	if watchMovie && !f.IsMoviePlaying() {
		return RunResult{Reason: StopMovieEnded}
	}

	if hitPC == nil {
		return RunResult{Reason: StopTimeout}
	}

	for i := 0; i < framesUntilHit; i++ {
		f.StepOneFrameBlocking(timeout)
		if sink != nil {
			sink.OnProgress(uint32(i+1), uint32(framesUntilHit), 0, uint32(pollMs.Milliseconds()), 0, "")
		}
	}

	return RunResult{Hit: true, PC: *hitPC, Reason: StopHit}
}

func (f *FakeEmulator) SetInput(frame InputFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = frame
}

func (f *FakeEmulator) ConfigurePort1StandardPad() {}

func (f *FakeEmulator) PlayMovie(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moviePlaying = true
	if f.movieTotalFrames == 0 {
		f.movieTotalFrames = 1
	}
	f.movieFramesLeft = f.movieTotalFrames
	return true
}

func (f *FakeEmulator) EndMoviePlayback(timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moviePlaying = false
	return true
}

func (f *FakeEmulator) IsMoviePlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moviePlaying
}

// SetMovieLength configures how many StepOneFrameBlocking calls a
// PlayMovie'd movie survives before IsMoviePlaying reports false.
func (f *FakeEmulator) SetMovieLength(frames int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movieTotalFrames = frames
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

