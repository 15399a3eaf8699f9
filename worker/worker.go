// Package worker implements the Worker Process: a long-lived child
// hosting one emulator and one Phase-Script VM, speaking the framed
// IPC protocol on its stdin/stdout pipe pair. Lifecycle: boot,
// wait-for-program, active, shutdown. It never runs two jobs at once.
package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/host"
	"github.com/jahorta/soasim/ipc"
	"github.com/jahorta/soasim/programs"
	"github.com/jahorta/soasim/pscontext"
	"github.com/jahorta/soasim/vm"
)

// Process exit codes.
const (
	ExitClean              = 0
	ExitMissingPlatformDir = 1
	ExitBootFailed         = 2
	ExitGameLoadFailed     = 3
	ExitVMInitFailed       = 4
	ExitInvalidHandles     = 100
)

// Worker-side error codes carried in a RESULT frame's Err field.
const (
	ErrNone uint8 = iota
	ErrNoProgram
	ErrUnknownKind
	ErrDecodeFailed
	ErrVMFailed
	ErrMovieFailed
)

// Options configures one worker process.
type Options struct {
	ID               int
	ISOPath          string
	SavestatePath    string
	QtBaseDir        string
	UserDir          string
	DefaultTimeoutMs uint32
	Log              *fleetlog.Logger
}

// Worker owns exactly one emulator and one VM.
type Worker struct {
	opts Options
	emu  host.Emulator
	conn *ipc.Conn
	log  *fleetlog.Logger

	initKind  codec.Kind
	mainKind  codec.Kind
	mainEntry programs.Entry
	mainVM    *vm.VM

	timeoutMs     uint32
	savestate     string
	savestateUsed bool
	active        bool
}

// New wires a worker over an already-opened emulator and pipe pair.
// The parent's half of conn reads the worker's stdout and writes its
// stdin; here it is the reverse.
func New(opts Options, emu host.Emulator, conn *ipc.Conn) *Worker {
	logger := opts.Log
	if logger == nil {
		logger = fleetlog.Default(fmt.Sprintf("worker %d: ", opts.ID))
	}
	return &Worker{
		opts:      opts,
		emu:       emu,
		conn:      conn,
		log:       logger,
		timeoutMs: opts.DefaultTimeoutMs,
	}
}

// Boot performs the boot phase: verify the platform directory, create
// the per-worker user dir, load the game and optional savestate, and
// install the input override. It sends the single ready message and
// returns the process exit code to use if boot failed.
func (w *Worker) Boot() int {
	if w.opts.QtBaseDir != "" {
		sys := filepath.Join(w.opts.QtBaseDir, "Sys")
		if fi, err := os.Stat(sys); err != nil || !fi.IsDir() {
			w.log.Errorf("platform directory %s missing", sys)
			w.sendReady(false, ipc.BootMissingPlatformDir)
			return ExitMissingPlatformDir
		}
	}

	if w.opts.UserDir != "" {
		if err := os.MkdirAll(w.opts.UserDir, 0o755); err != nil {
			w.log.Errorf("create user dir %s: %v", w.opts.UserDir, err)
			w.sendReady(false, ipc.BootFailed)
			return ExitBootFailed
		}
	}

	if !w.emu.LoadGame(w.opts.ISOPath) {
		w.log.Errorf("load game %s failed", w.opts.ISOPath)
		w.sendReady(false, ipc.BootGameLoadFailed)
		return ExitGameLoadFailed
	}

	if w.opts.SavestatePath != "" {
		if !w.emu.LoadSavestate(w.opts.SavestatePath) {
			w.log.Errorf("load savestate %s failed", w.opts.SavestatePath)
			w.sendReady(false, ipc.BootVMInitFailed)
			return ExitVMInitFailed
		}
	}

	w.emu.ConfigurePort1StandardPad()

	w.log.Infof("booted against %s", w.opts.ISOPath)
	w.sendReady(true, ipc.BootOK)
	return ExitClean
}

func (w *Worker) sendReady(ok bool, code uint32) {
	if err := w.conn.WriteReady(ipc.Ready{Ok: ok, State: 0, Error: code}); err != nil {
		w.log.Errorf("write ready: %v", err)
	}
}

// Serve runs the wait-for-program and active phases: block on the
// parent's frames, handle control and jobs, and return cleanly on pipe
// EOF (the parent closed our stdin, which is the shutdown signal).
func (w *Worker) Serve() error {
	for {
		tag, err := w.conn.ReadTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.log.Infof("parent closed pipe, shutting down")
				return nil
			}
			return fmt.Errorf("worker: read tag: %w", err)
		}

		switch tag {
		case ipc.TagSetProgram:
			msg, err := w.conn.ReadSetProgram()
			if err != nil {
				return err
			}
			w.handleSetProgram(msg)

		case ipc.TagRunInitOnce:
			w.handleRunInitOnce()

		case ipc.TagActivateMain:
			w.handleActivateMain()

		case ipc.TagJob:
			job, err := w.conn.ReadJob()
			if err != nil {
				return err
			}
			w.handleJob(job)

		default:
			return fmt.Errorf("worker: unexpected frame tag 0x%02X from parent", uint32(tag))
		}
	}
}

func (w *Worker) ack(ok bool, code uint8) {
	if err := w.conn.WriteAck(ipc.Ack{Ok: ok, Code: code}); err != nil {
		w.log.Errorf("write ack: %v", err)
	}
}

func (w *Worker) handleSetProgram(msg ipc.SetProgram) {
	w.active = false
	w.initKind = codec.Kind(msg.InitKind)
	w.mainKind = codec.Kind(msg.MainKind)
	if msg.TimeoutMs != 0 {
		w.timeoutMs = msg.TimeoutMs
	}
	w.savestate = msg.SavestatePath
	w.savestateUsed = false

	entry, err := programs.For(w.mainKind)
	if err != nil {
		w.log.Errorf("set-program: %v", err)
		w.mainEntry = programs.Entry{}
		w.ack(false, ipc.AckSetProgram)
		return
	}
	w.mainEntry = entry
	w.log.Infof("program set: init=%d main=%d timeout=%dms", w.initKind, w.mainKind, w.timeoutMs)
	w.ack(true, ipc.AckSetProgram)
}

func (w *Worker) handleRunInitOnce() {
	if w.initKind == 0 {
		w.ack(true, ipc.AckRunInitOnce)
		return
	}

	entry, err := programs.For(w.initKind)
	if err != nil {
		w.log.Errorf("run-init-once: %v", err)
		w.ack(false, ipc.AckRunInitOnce)
		return
	}

	initVM := vm.New(w.emu, entry.Breakpoints)
	params := vm.InitParams{DefaultTimeoutMs: w.timeoutMs}
	if !w.savestateUsed {
		params.SavestatePath = w.savestate
	}
	if err := initVM.Init(params, entry.Script); err != nil {
		w.log.Errorf("run-init-once: init: %v", err)
		w.ack(false, ipc.AckRunInitOnce)
		return
	}
	w.savestateUsed = w.savestateUsed || params.SavestatePath != ""

	res, err := initVM.RunOnce(nil)
	if err != nil || !res.OK {
		w.log.Errorf("run-init-once: run: ok=%v err=%v", res.OK, err)
		w.ack(false, ipc.AckRunInitOnce)
		return
	}
	w.ack(true, ipc.AckRunInitOnce)
}

func (w *Worker) handleActivateMain() {
	if w.mainEntry.Script == nil {
		w.ack(false, ipc.AckActivateMain)
		return
	}

	w.mainVM = vm.New(w.emu, w.mainEntry.Breakpoints)
	params := vm.InitParams{DefaultTimeoutMs: w.timeoutMs}
	if !w.savestateUsed {
		params.SavestatePath = w.savestate
	}
	if err := w.mainVM.Init(params, w.mainEntry.Script); err != nil {
		w.log.Errorf("activate-main: %v", err)
		w.ack(false, ipc.AckActivateMain)
		return
	}
	w.savestateUsed = w.savestateUsed || params.SavestatePath != ""

	w.active = true
	w.log.Infof("main program %d active", w.mainKind)
	w.ack(true, ipc.AckActivateMain)
}

func (w *Worker) handleJob(job ipc.Job) {
	if !w.active {
		w.sendResult(job, false, ErrNoProgram, nil)
		return
	}

	// Pre-decode to pick up per-job toggles the worker itself acts on
	// (progress reporting, movie playback) before the VM decodes the
	// same payload into its own fresh store.
	pre, err := codec.Decode(job.Payload, w.mainKind)
	if err != nil {
		w.log.Warnf("job %d: decode: %v", job.JobID, err)
		w.sendResult(job, false, ErrDecodeFailed, nil)
		return
	}

	var sink host.ProgressSink
	if enabled, _ := pscontext.Get[uint8](pre, pscontext.KeyProgressEnabl); enabled != 0 {
		sink = &progressSink{w: w, job: job}
	}

	movieStarted := false
	if w.mainKind == codec.KindTasMovie {
		dtm, _ := pscontext.Get[[]byte](pre, pscontext.KeyTasDtmPath)
		if len(dtm) == 0 || !w.emu.PlayMovie(string(dtm)) {
			w.sendResult(job, false, ErrMovieFailed, nil)
			return
		}
		movieStarted = true
	}

	res, runErr := w.mainVM.Run(job.Payload, w.mainKind, sink)

	if movieStarted {
		if res.Context != nil {
			ended := uint8(0)
			if !w.emu.IsMoviePlaying() {
				ended = 1
			}
			pscontext.Set(res.Context, pscontext.KeyTasMovieEnded, ended)
		}
		w.emu.EndMoviePlayback(0)
	}

	errCode := ErrNone
	if runErr != nil {
		w.log.Warnf("job %d: vm: %v", job.JobID, runErr)
		errCode = ErrVMFailed
	}
	w.sendResult(job, res.OK && runErr == nil, errCode, res.Context)
}

func (w *Worker) sendResult(job ipc.Job, ok bool, errCode uint8, ctx *pscontext.Store) {
	var ctxBytes []byte
	if ctx != nil && errCode != ErrNone {
		pscontext.Set(ctx, pscontext.KeyWorkerError, errCode)
	}
	if ctx != nil {
		b, err := pscontext.Serialize(ctx)
		if err != nil {
			w.log.Errorf("job %d: serialize context: %v", job.JobID, err)
			ok = false
			errCode = ErrVMFailed
		} else {
			ctxBytes = b
		}
	}
	res := ipc.Result{
		JobID: job.JobID,
		Epoch: job.Epoch,
		Ok:    ok,
		Err:   errCode,
		Ctx:   ctxBytes,
	}
	if err := w.conn.WriteResult(res); err != nil {
		w.log.Errorf("job %d: write result: %v", job.JobID, err)
	}
}

// progressSink forwards emulator progress callbacks as PROGRESS frames
// stamped with the in-flight job's id and epoch. It runs on the VM's
// thread between polls; the worker is single-threaded so writes never
// interleave with a RESULT frame.
type progressSink struct {
	w   *Worker
	job ipc.Job
}

func (s *progressSink) OnProgress(curFrames, totalFrames, elapsedMs, pollMs, flags uint32, text string) {
	msg := ipc.Progress{
		JobID:       s.job.JobID,
		Epoch:       s.job.Epoch,
		CurFrames:   curFrames,
		TotalFrames: totalFrames,
		ElapsedMs:   elapsedMs,
		Flags:       flags,
		PollMs:      pollMs,
		Text:        text,
	}
	if err := s.w.conn.WriteProgress(msg); err != nil {
		s.w.log.Warnf("write progress: %v", err)
	}
}
