package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// DTM header layout. The movie body is consumed as opaque bytes; only
// these header fields are extracted.
const (
	dtmOffGameID             = 0x004
	dtmOffVICount            = 0x00D
	dtmOffInputCount         = 0x015
	dtmOffRecordingStartTime = 0x081
	dtmMinHeader             = 0x100
)

var dtmSignature = []byte{'D', 'T', 'M', 0x1A}

// DTMInfo is the metadata the TasMovie codec extracts from a movie
// file's header.
type DTMInfo struct {
	GameID             string
	ViCount            uint64
	InputCount         uint64
	RecordingStartTime uint64 // unix seconds
}

// ParseDTMHeader extracts movie metadata from the leading header
// bytes. Fails on a short buffer or a bad signature.
func ParseDTMHeader(b []byte) (DTMInfo, error) {
	if len(b) < dtmMinHeader {
		return DTMInfo{}, fmt.Errorf("codec: dtm header too short: %d bytes", len(b))
	}
	if !bytes.Equal(b[:4], dtmSignature) {
		return DTMInfo{}, fmt.Errorf("codec: bad dtm signature % X", b[:4])
	}
	return DTMInfo{
		GameID:             string(bytes.TrimRight(b[dtmOffGameID:dtmOffGameID+6], "\x00")),
		ViCount:            binary.LittleEndian.Uint64(b[dtmOffVICount : dtmOffVICount+8]),
		InputCount:         binary.LittleEndian.Uint64(b[dtmOffInputCount : dtmOffInputCount+8]),
		RecordingStartTime: binary.LittleEndian.Uint64(b[dtmOffRecordingStartTime : dtmOffRecordingStartTime+8]),
	}, nil
}

// ReadDTMFile reads just enough of the movie at path to parse its
// header.
func ReadDTMFile(path string) (DTMInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return DTMInfo{}, fmt.Errorf("codec: open dtm: %w", err)
	}
	defer f.Close()

	header := make([]byte, dtmMinHeader)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return DTMInfo{}, fmt.Errorf("codec: read dtm header: %w", err)
	}
	return ParseDTMHeader(header[:n])
}
