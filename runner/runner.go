// Package runner implements the Parallel Runner: an N-worker
// supervisor owning the worker process handles and pipe endpoints,
// the program lifecycle (set-program, run-init-once, activate-main,
// epoch-stamped reconfiguration), the shared work queue, and the
// result/progress fan-in.
package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/jahorta/soasim/codec"
	"github.com/jahorta/soasim/fleetlog"
	"github.com/jahorta/soasim/ipc"
	"github.com/jahorta/soasim/pscontext"
)

// BootPlan carries the parameters every worker boots with. Workers get
// identical plans apart from the per-worker user directory.
type BootPlan struct {
	WorkerExe        string
	ISOPath          string
	SavestatePath    string
	QtBaseDir        string
	UserDirTemplate  string // %d is replaced by the worker id
	Workers          int
	DefaultTimeoutMs uint32

	ReadyTimeout time.Duration // per worker, default 20s
	AckTimeout   time.Duration // per control per worker, default 5s
}

// Result is one job's outcome as delivered to the caller. Accepted is
// false when transport failed (worker death) — the job never produced
// a VM verdict. VMOk mirrors the worker's vm_ok; Ctx holds the
// deserialized context store snapshot.
type Result struct {
	JobID       uint64
	Epoch       uint32
	WorkerID    uint32
	Accepted    bool
	VMOk        bool
	WorkerError uint8
	Ctx         *pscontext.Store
}

// Status is a point-in-time snapshot of the fleet.
type Status struct {
	Workers  int
	Alive    int
	Degraded int
	Queued   int
	JobsDone uint64
	Epoch    uint32
}

type ctrlKind int

const (
	ctrlSetProgram ctrlKind = iota
	ctrlRunInitOnce
	ctrlActivateMain
)

type ctrlCmd struct {
	kind  ctrlKind
	msg   ipc.SetProgram
	reply chan bool
}

// frame is the tagged union the per-worker read loop hands to its
// dispatch loop. Progress frames bypass this path and go straight to
// the last-write-wins cell.
type frame struct {
	tag    ipc.Tag
	ready  ipc.Ready
	ack    ipc.Ack
	result ipc.Result
}

type workerState struct {
	id     uint32
	handle *WorkerHandle
	frames chan frame

	// Guarded by Runner.mu.
	ctrl     []*ctrlCmd
	alive    bool
	degraded bool
}

// Runner supervises N workers over one shared work queue. One
// goroutine pair per worker handles that worker's half-duplex RPC; no
// lock is held across a pipe read or write.
type Runner struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    []ipc.Job
	results  []Result
	progress map[uint32]ipc.Progress

	workers  []*workerState
	stopped  bool
	epoch    uint32
	jobSeq   uint64
	jobsDone uint64

	ackTimeout time.Duration
	wg         sync.WaitGroup
	log        *fleetlog.Logger
}

// New returns an idle Runner. Call Start to boot the fleet.
func New(log *fleetlog.Logger) *Runner {
	if log == nil {
		log = fleetlog.Default("runner: ")
	}
	r := &Runner{
		progress: make(map[uint32]ipc.Progress),
		log:      log,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start spawns plan.Workers workers via launcher, waits for every
// ready message, and sets the epoch to 1. A worker that fails to
// report ready in time fails the whole start; the fleet is torn down.
func (r *Runner) Start(plan BootPlan, launcher Launcher) error {
	if plan.Workers < 1 {
		return fmt.Errorf("runner: worker count must be at least 1, got %d", plan.Workers)
	}
	if plan.ReadyTimeout == 0 {
		plan.ReadyTimeout = 20 * time.Second
	}
	if plan.AckTimeout == 0 {
		plan.AckTimeout = 5 * time.Second
	}
	r.ackTimeout = plan.AckTimeout

	readyCh := make(chan error, plan.Workers)

	r.mu.Lock()
	if r.workers != nil {
		r.mu.Unlock()
		return fmt.Errorf("runner: already started")
	}
	r.workers = make([]*workerState, 0, plan.Workers)
	r.mu.Unlock()

	for i := 0; i < plan.Workers; i++ {
		handle, err := launcher.Launch(i)
		if err != nil {
			r.Stop()
			return fmt.Errorf("runner: launch worker %d: %w", i, err)
		}
		ws := &workerState{
			id:     uint32(i),
			handle: handle,
			frames: make(chan frame, 4),
			alive:  true,
		}
		r.mu.Lock()
		r.workers = append(r.workers, ws)
		r.mu.Unlock()

		r.wg.Add(2)
		go r.readLoop(ws)
		go r.dispatchLoop(ws, plan.ReadyTimeout, readyCh)
	}

	var firstErr error
	for i := 0; i < plan.Workers; i++ {
		if err := <-readyCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		r.Stop()
		return firstErr
	}

	r.mu.Lock()
	r.epoch = 1
	r.mu.Unlock()
	r.log.Infof("fleet of %d workers ready", plan.Workers)
	return nil
}

// readLoop is the only reader of one worker's stdout. Progress goes
// straight to the per-worker cell; everything else is handed to the
// dispatch loop in order.
func (r *Runner) readLoop(ws *workerState) {
	defer r.wg.Done()
	defer close(ws.frames)

	for {
		tag, err := ws.handle.Conn.ReadTag()
		if err != nil {
			return
		}
		switch tag {
		case ipc.TagReady:
			m, err := ws.handle.Conn.ReadReady()
			if err != nil {
				return
			}
			ws.frames <- frame{tag: tag, ready: m}
		case ipc.TagAck:
			m, err := ws.handle.Conn.ReadAck()
			if err != nil {
				return
			}
			ws.frames <- frame{tag: tag, ack: m}
		case ipc.TagResult:
			m, err := ws.handle.Conn.ReadResult()
			if err != nil {
				return
			}
			ws.frames <- frame{tag: tag, result: m}
		case ipc.TagProgress:
			m, err := ws.handle.Conn.ReadProgress()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.progress[ws.id] = m
			r.mu.Unlock()
		default:
			r.log.Errorf("worker %d: unexpected frame tag 0x%02X, closing pipe", ws.id, uint32(tag))
			return
		}
	}
}

// dispatchLoop is the only writer of one worker's stdin. It waits for
// the boot ready, then alternates between control commands (priority)
// and jobs popped from the shared queue.
func (r *Runner) dispatchLoop(ws *workerState, readyTimeout time.Duration, readyCh chan<- error) {
	defer r.wg.Done()
	defer r.drainFrames(ws)
	defer r.failPendingCtrl(ws)

	select {
	case f, ok := <-ws.frames:
		if !ok || f.tag != ipc.TagReady || !f.ready.Ok {
			r.markDead(ws)
			readyCh <- fmt.Errorf("runner: worker %d failed to boot (error %d)", ws.id, f.ready.Error)
			return
		}
	case <-time.After(readyTimeout):
		r.markDead(ws)
		readyCh <- fmt.Errorf("runner: worker %d ready timeout", ws.id)
		return
	}
	readyCh <- nil

	for {
		cmd, job, stop := r.nextCommand(ws)
		if stop {
			return
		}
		if cmd != nil {
			if !r.runCtrl(ws, cmd) {
				return
			}
			continue
		}
		if !r.runJob(ws, *job) {
			return
		}
	}
}

// nextCommand blocks until this worker has something to do: a pending
// control command (always first), a queued job, or shutdown.
func (r *Runner) nextCommand(ws *workerState) (*ctrlCmd, *ipc.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.stopped || !ws.alive {
			return nil, nil, true
		}
		if len(ws.ctrl) > 0 {
			cmd := ws.ctrl[0]
			ws.ctrl = ws.ctrl[1:]
			return cmd, nil, false
		}
		if !ws.degraded && len(r.queue) > 0 {
			job := r.queue[0]
			r.queue = r.queue[1:]
			return nil, &job, false
		}
		r.cond.Wait()
	}
}

// runCtrl sends one control frame and waits for its ack. A nack or
// timeout degrades the worker (excluded from job dispatch); a
// transport failure kills it. Returns false when the worker is gone.
func (r *Runner) runCtrl(ws *workerState, cmd *ctrlCmd) bool {
	var err error
	switch cmd.kind {
	case ctrlSetProgram:
		err = ws.handle.Conn.WriteSetProgram(cmd.msg)
	case ctrlRunInitOnce:
		err = ws.handle.Conn.WriteRunInitOnce()
	case ctrlActivateMain:
		err = ws.handle.Conn.WriteActivateMain()
	}
	if err != nil {
		cmd.reply <- false
		r.markDead(ws)
		return false
	}

	select {
	case f, ok := <-ws.frames:
		if !ok {
			cmd.reply <- false
			r.markDead(ws)
			return false
		}
		if f.tag != ipc.TagAck || !f.ack.Ok {
			r.log.Warnf("worker %d: control nack (tag 0x%02X), degrading", ws.id, uint32(f.tag))
			r.setDegraded(ws)
			cmd.reply <- false
			return true
		}
		cmd.reply <- true
		return true
	case <-time.After(r.ackTimeout):
		r.log.Warnf("worker %d: control ack timeout, degrading", ws.id)
		r.setDegraded(ws)
		cmd.reply <- false
		return true
	}
}

// runJob sends one job and waits for its result. Worker death while
// the job is in flight completes the job with Accepted=false. Returns
// false when the worker is gone.
func (r *Runner) runJob(ws *workerState, job ipc.Job) bool {
	if err := ws.handle.Conn.WriteJob(job); err != nil {
		r.failInflight(ws, job)
		r.markDead(ws)
		return false
	}

	for {
		f, ok := <-ws.frames
		if !ok {
			r.failInflight(ws, job)
			r.markDead(ws)
			return false
		}
		if f.tag != ipc.TagResult {
			r.log.Warnf("worker %d: expected result, got tag 0x%02X", ws.id, uint32(f.tag))
			continue
		}
		r.deliver(ws, f.result)
		return true
	}
}

// deliver applies the epoch discipline: results stamped with a stale
// epoch are dropped silently and never reach the caller.
func (r *Runner) deliver(ws *workerState, res ipc.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobsDone++

	if res.Epoch != r.epoch {
		r.log.Debugf("worker %d: dropping stale result for job %d (epoch %d, current %d)",
			ws.id, res.JobID, res.Epoch, r.epoch)
		return
	}

	out := Result{
		JobID:       res.JobID,
		Epoch:       res.Epoch,
		WorkerID:    ws.id,
		Accepted:    true,
		VMOk:        res.Ok,
		WorkerError: res.Err,
	}
	if len(res.Ctx) > 0 {
		ctx, err := pscontext.Parse(res.Ctx)
		if err != nil {
			r.log.Errorf("worker %d: job %d context parse: %v", ws.id, res.JobID, err)
			out.VMOk = false
		} else {
			out.Ctx = ctx
		}
	}
	r.results = append(r.results, out)
}

func (r *Runner) failInflight(ws *workerState, job ipc.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, Result{
		JobID:    job.JobID,
		Epoch:    job.Epoch,
		WorkerID: ws.id,
		Accepted: false,
	})
}

func (r *Runner) markDead(ws *workerState) {
	r.mu.Lock()
	wasAlive := ws.alive
	ws.alive = false
	r.cond.Broadcast()
	r.mu.Unlock()
	if wasAlive {
		r.log.Warnf("worker %d dead", ws.id)
		_ = ws.handle.CloseWrite()
	}
}

func (r *Runner) setDegraded(ws *workerState) {
	r.mu.Lock()
	ws.degraded = true
	r.mu.Unlock()
}

// failPendingCtrl replies false to control commands still queued for a
// worker whose dispatch loop is exiting, so broadcast never hangs.
func (r *Runner) failPendingCtrl(ws *workerState) {
	r.mu.Lock()
	pending := ws.ctrl
	ws.ctrl = nil
	r.mu.Unlock()
	for _, cmd := range pending {
		cmd.reply <- false
	}
}

// drainFrames unblocks the read loop after the dispatch loop exits.
func (r *Runner) drainFrames(ws *workerState) {
	go func() {
		for range ws.frames {
		}
	}()
}

// broadcastCtrl queues one control command on every live worker and
// waits for all replies. Returns how many workers acked.
func (r *Runner) broadcastCtrl(kind ctrlKind, msg ipc.SetProgram) int {
	r.mu.Lock()
	replies := make([]chan bool, 0, len(r.workers))
	for _, ws := range r.workers {
		if !ws.alive {
			continue
		}
		cmd := &ctrlCmd{kind: kind, msg: msg, reply: make(chan bool, 1)}
		ws.ctrl = append(ws.ctrl, cmd)
		replies = append(replies, cmd.reply)
	}
	r.cond.Broadcast()
	r.mu.Unlock()

	acked := 0
	for _, reply := range replies {
		if <-reply {
			acked++
		}
	}
	return acked
}

// SetProgram increments the epoch and broadcasts a SET_PROGRAM to the
// fleet. Workers that fail to ack are degraded and excluded from
// dispatch. Returns an error if no worker acked.
func (r *Runner) SetProgram(initKind, mainKind codec.Kind, timeoutMs uint32, savestatePath string) error {
	r.mu.Lock()
	r.epoch++
	r.mu.Unlock()

	acked := r.broadcastCtrl(ctrlSetProgram, ipc.SetProgram{
		InitKind:      uint8(initKind),
		MainKind:      uint8(mainKind),
		TimeoutMs:     timeoutMs,
		SavestatePath: savestatePath,
	})
	if acked == 0 {
		return fmt.Errorf("runner: set-program acked by no worker")
	}
	return nil
}

// RunInitOnce broadcasts RUN_INIT_ONCE and waits for acks.
func (r *Runner) RunInitOnce() error {
	if acked := r.broadcastCtrl(ctrlRunInitOnce, ipc.SetProgram{}); acked == 0 {
		return fmt.Errorf("runner: run-init-once acked by no worker")
	}
	return nil
}

// ActivateMain increments the epoch and broadcasts ACTIVATE_MAIN.
func (r *Runner) ActivateMain() error {
	r.mu.Lock()
	r.epoch++
	r.mu.Unlock()

	if acked := r.broadcastCtrl(ctrlActivateMain, ipc.SetProgram{}); acked == 0 {
		return fmt.Errorf("runner: activate-main acked by no worker")
	}
	return nil
}

// Submit assigns a fresh monotonic job id, stamps the current epoch,
// and enqueues the job. Idle workers race to pop it.
func (r *Runner) Submit(payload []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobSeq++
	job := ipc.Job{JobID: r.jobSeq, Epoch: r.epoch, Payload: payload}
	r.queue = append(r.queue, job)
	r.cond.Broadcast()
	return job.JobID
}

// TryGetResult pops the oldest undelivered result, if any.
func (r *Runner) TryGetResult(out *Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return false
	}
	*out = r.results[0]
	r.results = r.results[1:]
	return true
}

// TryGetProgress reads and clears worker workerID's progress cell. The
// cell is last-write-wins: a slow consumer sees only the latest
// snapshot, never a backlog.
func (r *Runner) TryGetProgress(workerID uint32, out *ipc.Progress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.progress[workerID]
	if !ok {
		return false
	}
	delete(r.progress, workerID)
	*out = p
	return true
}

// WorkerCount returns how many workers are alive and undegraded.
func (r *Runner) WorkerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ws := range r.workers {
		if ws.alive && !ws.degraded {
			n++
		}
	}
	return n
}

// CurrentEpoch returns the runner's epoch counter.
func (r *Runner) CurrentEpoch() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Status reports a point-in-time fleet snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Workers:  len(r.workers),
		Queued:   len(r.queue),
		JobsDone: r.jobsDone,
		Epoch:    r.epoch,
	}
	for _, ws := range r.workers {
		if ws.alive {
			s.Alive++
		}
		if ws.degraded {
			s.Degraded++
		}
	}
	return s
}

// Stop closes the work queue, closes every worker's stdin (the orderly
// shutdown signal), and joins the worker goroutines.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.stopped = true
	r.cond.Broadcast()
	workers := r.workers
	r.mu.Unlock()

	for _, ws := range workers {
		_ = ws.handle.CloseWrite()
	}
	r.wg.Wait()

	for _, ws := range workers {
		if ws.handle.Wait != nil {
			_ = ws.handle.Wait()
		}
	}
	r.log.Infof("fleet stopped")
}
