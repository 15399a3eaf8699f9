package ipc

// Worker boot outcomes reported in a Ready frame's Error field when
// Ok is false.
const (
	BootOK uint32 = iota
	BootMissingPlatformDir
	BootFailed
	BootGameLoadFailed
	BootVMInitFailed
)

// Ack status codes.
const (
	AckSetProgram  = 'S'
	AckRunInitOnce = 'I'
	AckActivateMain = 'A'
)

// Ready is the worker's single boot-completion message.
type Ready struct {
	Ok    bool
	State uint8
	Error uint32
}

func (wr *Writer) WriteReady(m Ready) error {
	if err := wr.writeTag(TagReady); err != nil {
		return err
	}
	ok := uint8(0)
	if m.Ok {
		ok = 1
	}
	if err := wr.writeU8(ok); err != nil {
		return err
	}
	if err := wr.writeU8(m.State); err != nil {
		return err
	}
	return wr.writeU32(m.Error)
}

func (rd *Reader) ReadReady() (Ready, error) {
	ok, err := rd.readU8()
	if err != nil {
		return Ready{}, errShortRead("ready.ok", err)
	}
	state, err := rd.readU8()
	if err != nil {
		return Ready{}, errShortRead("ready.state", err)
	}
	errCode, err := rd.readU32()
	if err != nil {
		return Ready{}, errShortRead("ready.error", err)
	}
	return Ready{Ok: ok != 0, State: state, Error: errCode}, nil
}

// Job carries one opaque payload to a worker, tagged with a monotonic
// job id and the epoch it was submitted under.
type Job struct {
	JobID   uint64
	Epoch   uint32
	Payload []byte
}

func (wr *Writer) WriteJob(m Job) error {
	if err := wr.writeTag(TagJob); err != nil {
		return err
	}
	if err := wr.writeU64(m.JobID); err != nil {
		return err
	}
	if err := wr.writeU32(m.Epoch); err != nil {
		return err
	}
	if err := wr.writeU32(uint32(len(m.Payload))); err != nil {
		return err
	}
	return wr.writeBytes(m.Payload)
}

func (rd *Reader) ReadJob() (Job, error) {
	jobID, err := rd.readU64()
	if err != nil {
		return Job{}, errShortRead("job.job_id", err)
	}
	epoch, err := rd.readU32()
	if err != nil {
		return Job{}, errShortRead("job.epoch", err)
	}
	plen, err := rd.readU32()
	if err != nil {
		return Job{}, errShortRead("job.payload_len", err)
	}
	payload, err := rd.readBytes(plen)
	if err != nil {
		return Job{}, errShortRead("job.payload", err)
	}
	return Job{JobID: jobID, Epoch: epoch, Payload: payload}, nil
}

// Result is the worker's reply to a Job: ok mirrors vm_ok, err carries
// a worker-side error code (0 = none), and ctx is the serialized
// Context Store (pscontext.Serialize output).
type Result struct {
	JobID uint64
	Epoch uint32
	Ok    bool
	Err   uint8
	Ctx   []byte
}

func (wr *Writer) WriteResult(m Result) error {
	if err := wr.writeTag(TagResult); err != nil {
		return err
	}
	if err := wr.writeU64(m.JobID); err != nil {
		return err
	}
	if err := wr.writeU32(m.Epoch); err != nil {
		return err
	}
	ok := uint8(0)
	if m.Ok {
		ok = 1
	}
	if err := wr.writeU8(ok); err != nil {
		return err
	}
	if err := wr.writeU8(m.Err); err != nil {
		return err
	}
	if err := wr.writeU32(uint32(len(m.Ctx))); err != nil {
		return err
	}
	return wr.writeBytes(m.Ctx)
}

func (rd *Reader) ReadResult() (Result, error) {
	jobID, err := rd.readU64()
	if err != nil {
		return Result{}, errShortRead("result.job_id", err)
	}
	epoch, err := rd.readU32()
	if err != nil {
		return Result{}, errShortRead("result.epoch", err)
	}
	ok, err := rd.readU8()
	if err != nil {
		return Result{}, errShortRead("result.ok", err)
	}
	errCode, err := rd.readU8()
	if err != nil {
		return Result{}, errShortRead("result.err", err)
	}
	clen, err := rd.readU32()
	if err != nil {
		return Result{}, errShortRead("result.ctx_len", err)
	}
	ctx, err := rd.readBytes(clen)
	if err != nil {
		return Result{}, errShortRead("result.ctx", err)
	}
	return Result{JobID: jobID, Epoch: epoch, Ok: ok != 0, Err: errCode, Ctx: ctx}, nil
}

const progressTextSize = 64

// Progress is an in-flight status update emitted during a long
// run-until-bp execution.
type Progress struct {
	JobID       uint64
	Epoch       uint32
	Phase       uint32
	CurFrames   uint32
	TotalFrames uint32
	ElapsedMs   uint32
	Flags       uint32
	PollMs      uint32
	Text        string
}

func (wr *Writer) WriteProgress(m Progress) error {
	if err := wr.writeTag(TagProgress); err != nil {
		return err
	}
	if err := wr.writeU64(m.JobID); err != nil {
		return err
	}
	if err := wr.writeU32(m.Epoch); err != nil {
		return err
	}
	if err := wr.writeU32(m.Phase); err != nil {
		return err
	}
	if err := wr.writeU32(m.CurFrames); err != nil {
		return err
	}
	if err := wr.writeU32(m.TotalFrames); err != nil {
		return err
	}
	if err := wr.writeU32(m.ElapsedMs); err != nil {
		return err
	}
	if err := wr.writeU32(m.Flags); err != nil {
		return err
	}
	if err := wr.writeU32(m.PollMs); err != nil {
		return err
	}
	return wr.writeBytes(fixedText(m.Text, progressTextSize))
}

func (rd *Reader) ReadProgress() (Progress, error) {
	jobID, err := rd.readU64()
	if err != nil {
		return Progress{}, errShortRead("progress.job_id", err)
	}
	epoch, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.epoch", err)
	}
	phase, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.phase", err)
	}
	cur, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.cur_frames", err)
	}
	total, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.total_frames", err)
	}
	elapsed, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.elapsed_ms", err)
	}
	flags, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.flags", err)
	}
	pollMs, err := rd.readU32()
	if err != nil {
		return Progress{}, errShortRead("progress.poll_ms", err)
	}
	textBuf, err := rd.readBytes(progressTextSize)
	if err != nil {
		return Progress{}, errShortRead("progress.text", err)
	}
	return Progress{
		JobID: jobID, Epoch: epoch, Phase: phase,
		CurFrames: cur, TotalFrames: total, ElapsedMs: elapsed,
		Flags: flags, PollMs: pollMs, Text: textFromFixed(textBuf),
	}, nil
}

const savestatePathSize = 260

// SetProgram reconfigures a worker's init/main program pair and
// default timeout, optionally loading a fresh savestate first.
type SetProgram struct {
	InitKind      uint8
	MainKind      uint8
	TimeoutMs     uint32
	SavestatePath string
}

func (wr *Writer) WriteSetProgram(m SetProgram) error {
	if err := wr.writeTag(TagSetProgram); err != nil {
		return err
	}
	if err := wr.writeU8(m.InitKind); err != nil {
		return err
	}
	if err := wr.writeU8(m.MainKind); err != nil {
		return err
	}
	if err := wr.writeU32(m.TimeoutMs); err != nil {
		return err
	}
	return wr.writeBytes(fixedText(m.SavestatePath, savestatePathSize))
}

func (rd *Reader) ReadSetProgram() (SetProgram, error) {
	initKind, err := rd.readU8()
	if err != nil {
		return SetProgram{}, errShortRead("set_program.init_kind", err)
	}
	mainKind, err := rd.readU8()
	if err != nil {
		return SetProgram{}, errShortRead("set_program.main_kind", err)
	}
	timeout, err := rd.readU32()
	if err != nil {
		return SetProgram{}, errShortRead("set_program.timeout_ms", err)
	}
	pathBuf, err := rd.readBytes(savestatePathSize)
	if err != nil {
		return SetProgram{}, errShortRead("set_program.savestate_path", err)
	}
	return SetProgram{
		InitKind: initKind, MainKind: mainKind, TimeoutMs: timeout,
		SavestatePath: textFromFixed(pathBuf),
	}, nil
}

// RunInitOnce and ActivateMain carry no body beyond their tag.
func (wr *Writer) WriteRunInitOnce() error { return wr.writeTag(TagRunInitOnce) }
func (wr *Writer) WriteActivateMain() error { return wr.writeTag(TagActivateMain) }

// Ack replies to a control frame (SetProgram, RunInitOnce,
// ActivateMain) with a status code identifying which control it
// answers ('S', 'I', 'A') and whether it succeeded.
type Ack struct {
	Ok   bool
	Code uint8
}

func (wr *Writer) WriteAck(m Ack) error {
	if err := wr.writeTag(TagAck); err != nil {
		return err
	}
	ok := uint8(0)
	if m.Ok {
		ok = 1
	}
	if err := wr.writeU8(ok); err != nil {
		return err
	}
	return wr.writeU8(m.Code)
}

func (rd *Reader) ReadAck() (Ack, error) {
	ok, err := rd.readU8()
	if err != nil {
		return Ack{}, errShortRead("ack.ok", err)
	}
	code, err := rd.readU8()
	if err != nil {
		return Ack{}, errShortRead("ack.code", err)
	}
	return Ack{Ok: ok != 0, Code: code}, nil
}
