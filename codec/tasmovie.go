package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jahorta/soasim/pscontext"
)

// TasMovie flag bits.
const (
	// TasFlagProgress asks the worker to stream progress frames during
	// the movie run.
	TasFlagProgress uint16 = 1 << 0
)

// TasMovieSpec is the encoder input for the TasMovie program-kind:
// `{tag=2, version=1, flags, run_ms, vi_stall_ms, dtm_path, save_dir}`.
type TasMovieSpec struct {
	Flags     uint16
	RunMs     uint32
	ViStallMs uint32
	DtmPath   string
	SaveDir   string
}

// EncodeTasMovie produces a TasMovie payload.
func EncodeTasMovie(spec TasMovieSpec) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, KindTasMovie)
	_ = binary.Write(&buf, binary.LittleEndian, spec.Flags)
	_ = binary.Write(&buf, binary.LittleEndian, spec.RunMs)
	_ = binary.Write(&buf, binary.LittleEndian, spec.ViStallMs)
	writeLenPrefixed(&buf, spec.DtmPath)
	writeLenPrefixed(&buf, spec.SaveDir)
	return buf.Bytes()
}

func decodeTasMovie(r *bytes.Reader, s *pscontext.Store) error {
	var flags uint16
	var runMs, viStallMs uint32
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &runMs); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &viStallMs); err != nil {
		return err
	}
	dtmPath, err := readLenPrefixed(r)
	if err != nil {
		return err
	}
	saveDir, err := readLenPrefixed(r)
	if err != nil {
		return err
	}

	pscontext.Set(s, pscontext.KeyTasFlags, flags)
	if flags&TasFlagProgress != 0 {
		pscontext.Set(s, pscontext.KeyProgressEnabl, uint8(1))
	}
	pscontext.Set(s, pscontext.KeyRunMs, runMs)
	pscontext.Set(s, pscontext.KeyViStallMs, viStallMs)
	pscontext.Set(s, pscontext.KeyTasDtmPath, []byte(dtmPath))
	pscontext.Set(s, pscontext.KeyTasSaveDir, []byte(saveDir))

	// Header-based metadata extraction: the movie body stays opaque,
	// but the header's game id, vi/input counts, and recording start
	// time ride along in the context for the program and the caller.
	info, err := ReadDTMFile(dtmPath)
	if err != nil {
		return fmt.Errorf("dtm %q: %w", dtmPath, err)
	}
	pscontext.Set(s, pscontext.KeyTasGameID, []byte(info.GameID))
	pscontext.Set(s, pscontext.KeyTasViCount, saturateU32(info.ViCount))
	pscontext.Set(s, pscontext.KeyTasInputCount, saturateU32(info.InputCount))
	var recStart [8]byte
	binary.LittleEndian.PutUint64(recStart[:], info.RecordingStartTime)
	pscontext.Set(s, pscontext.KeyTasRecStart, recStart[:])
	return nil
}

// saturateU32 clamps a 64-bit header counter into the context store's
// u32 value range. Movie counters never get near the limit in
// practice; clamping keeps an absurd header from wrapping silently.
func saturateU32(v uint64) uint32 {
	if v > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(v)
}
