// internal/driver/ecr/response.go
package ecr

import (
	"bytes"
	"fmt"
)

// Response control bytes
const (
	NAK             byte = 0x15
	SYN             byte = 0x16
	StatusSeparator byte = 0x04
)

// Decoder turns raw register responses into readable outcomes
type Decoder struct {
	// LegacyPaperCheck reproduces the host software that always reported paper present
	LegacyPaperCheck bool
}

// NewDecoder creates a response decoder
func NewDecoder(legacyPaperCheck bool) *Decoder {
	return &Decoder{LegacyPaperCheck: legacyPaperCheck}
}

// DecodeResponse renders the response data followed by the hex status trailer
func (d *Decoder) DecodeResponse(data []byte, status []byte) string {
	return d.DecodeResultData(data) + " / " + d.DecodeResultStatus(status)
}

// DecodeResultData renders the response data as text
func (d *Decoder) DecodeResultData(data []byte) string {
	return LegacyText(data)
}

// DecodeResultStatus renders status bytes as two hex digits each
func (d *Decoder) DecodeResultStatus(status []byte) string {
	return HexString(status)
}

// HasPaper reports whether the status says paper is loaded. The check reads the
// lowest bit of the second status byte; anything it cannot read counts as paper present.
func (d *Decoder) HasPaper(status []byte) bool {
	if d.LegacyPaperCheck && len(status) >= 1 {
		status = make([]byte, 2)
	}
	if len(status) < 2 {
		return true
	}

	bits := fmt.Sprintf("%08b", status[1])
	return bits[7] != '1'
}

// Response is a parsed register answer
type Response struct {
	Sequence byte   `json:"sequence"`
	Command  byte   `json:"command"`
	Data     []byte `json:"data"`
	Status   []byte `json:"status"`
}

// ParseResponse splits a response frame into data and status.
//
// Frame structure:
//
//	[STX][LEN][SEQ][CMD][DATA][0x04][STATUS][0x05][CS3..CS0][ETX]
//
// Leading SYN bytes are skipped. A lone NAK yields ErrNegativeAck.
func ParseResponse(raw []byte) (*Response, error) {
	raw = bytes.TrimLeft(raw, string([]byte{SYN}))
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedResponse)
	}
	if raw[0] == NAK {
		return nil, ErrNegativeAck
	}

	start := bytes.IndexByte(raw, STX)
	end := bytes.LastIndexByte(raw, ETX)
	if start < 0 || end < 0 || end-start+1 < FrameOverhead {
		return nil, fmt.Errorf("%w: missing frame borders", ErrMalformedResponse)
	}
	frame := raw[start : end+1]

	term := len(frame) - 6
	if frame[term] != Terminator {
		return nil, fmt.Errorf("%w: missing terminator", ErrMalformedResponse)
	}
	sep := bytes.IndexByte(frame[4:term], StatusSeparator)
	if sep < 0 {
		return nil, fmt.Errorf("%w: missing status separator", ErrMalformedResponse)
	}
	sep += 4

	expected := Checksum(frame[1 : term+1])
	if !bytes.Equal(expected[:], frame[term+1:term+5]) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrChecksumMismatch, frame[term+1:term+5], expected[:])
	}
	if want := byte(0x20 + term); frame[1] != want {
		return nil, fmt.Errorf("%w: length byte 0x%02x, want 0x%02x", ErrMalformedResponse, frame[1], want)
	}

	return &Response{
		Sequence: frame[2],
		Command:  frame[3],
		Data:     append([]byte(nil), frame[4:sep]...),
		Status:   append([]byte(nil), frame[sep+1:term]...),
	}, nil
}
