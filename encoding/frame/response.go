package frame

import (
	"fmt"
	"io"
	"math"
)

// SizeFieldLen is the width of a SIZE payload as it is sent on the stream.
const SizeFieldLen = 4

// MaxSize is the largest size that fits a SizeFieldLen-wide SIZE payload.
const MaxSize = math.MaxUint32

// Response is a RESPONSE frame: the RESPONSE tag, one flag, and the payload selected by the flag.
type Response struct {
	Flag Flag

	// Status is set when Flag is FlagStatus.
	Status Status

	// Reason is set when Flag is FlagError.
	Reason Reason

	// Size is set when Flag is FlagSize.
	Size uint64
}

// NewStatus returns a RESPONSE‖STATUS frame carrying OK or NOTOK.
func NewStatus(ok bool) *Response {
	if ok {
		return &Response{Flag: FlagStatus, Status: StatusOK}
	}
	return &Response{Flag: FlagStatus, Status: StatusNotOK}
}

// NewError returns a RESPONSE‖ERROR frame carrying the given reason.
func NewError(reason Reason) *Response {
	return &Response{Flag: FlagError, Reason: reason}
}

// NewSize returns a RESPONSE‖SIZE frame carrying the given size.
func NewSize(size uint64) *Response {
	return &Response{Flag: FlagSize, Size: size}
}

// IsStatus reports whether r is a STATUS frame carrying want.
func (r *Response) IsStatus(want Status) bool {
	return r.Flag == FlagStatus && r.Status == want
}

// IsError reports whether r is an ERROR frame carrying want.
func (r *Response) IsError(want Reason) bool {
	return r.Flag == FlagError && r.Reason == want
}

func (r *Response) String() string {
	switch r.Flag {
	case FlagStatus:
		return fmt.Sprintf("RESPONSE|STATUS|%v", r.Status)
	case FlagError:
		return fmt.Sprintf("RESPONSE|ERROR|%v", r.Reason)
	case FlagSize:
		return fmt.Sprintf("RESPONSE|SIZE|%d", r.Size)
	default:
		return fmt.Sprintf("RESPONSE|%v", r.Flag)
	}
}

// MarshalBinary returns r as the binary encoding of r.
// SIZE payloads are always encoded in SizeFieldLen bytes.
func (r *Response) MarshalBinary() ([]byte, error) {
	const op = "encode response"

	b := NewMarshalBuffer(2 + SizeFieldLen)
	b.AppendUint8(uint8(OpResponse))
	b.AppendUint8(uint8(r.Flag))

	switch r.Flag {
	case FlagStatus:
		if r.Status != StatusOK && r.Status != StatusNotOK {
			return nil, protocolErrorf(op, nil, "invalid status %v", r.Status)
		}
		b.AppendUint8(uint8(r.Status))

	case FlagError:
		if !r.Reason.Valid() {
			return nil, protocolErrorf(op, nil, "invalid reason %v", r.Reason)
		}
		b.AppendUint8(uint8(r.Reason))

	case FlagSize:
		if r.Size > MaxSize {
			return nil, protocolErrorf(op, ErrSizeOverflow, "size %d", r.Size)
		}
		b.AppendUint32(uint32(r.Size))

	default:
		return nil, protocolErrorf(op, nil, "invalid flag %v", r.Flag)
	}

	return b.Bytes(), nil
}

// UnmarshalBinary decodes exactly one RESPONSE frame from data.
//
// Unlike ReadResponse, the SIZE payload may be anywhere from 1 to 8 bytes wide:
// every byte after the flag is taken as the big-endian size.
func (r *Response) UnmarshalBinary(data []byte) error {
	const op = "decode response"

	buf := NewBuffer(data)

	tag, err := buf.ConsumeUint8()
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	if Opcode(tag) != OpResponse {
		return protocolErrorf(op, nil, "unexpected tag %v", Opcode(tag))
	}

	flag, err := buf.ConsumeUint8()
	if err != nil {
		return &ProtocolError{Op: op, Msg: "missing flag", Err: err}
	}

	*r = Response{
		Flag: Flag(flag),
	}

	switch r.Flag {
	case FlagStatus:
		v, err := buf.ConsumeUint8()
		if err != nil {
			return &ProtocolError{Op: op, Msg: "missing status", Err: err}
		}
		r.Status = Status(v)
		if r.Status != StatusOK && r.Status != StatusNotOK {
			return protocolErrorf(op, nil, "invalid status %v", r.Status)
		}

	case FlagError:
		v, err := buf.ConsumeUint8()
		if err != nil {
			return &ProtocolError{Op: op, Msg: "missing reason", Err: err}
		}
		r.Reason = Reason(v)
		if !r.Reason.Valid() {
			return protocolErrorf(op, nil, "invalid reason %v", r.Reason)
		}

	case FlagSize:
		if r.Size, err = buf.ConsumeUintN(buf.Len()); err != nil {
			return &ProtocolError{Op: op, Msg: "bad size", Err: err}
		}

	default:
		return protocolErrorf(op, nil, "unexpected flag %v", r.Flag)
	}

	if buf.Len() != 0 {
		return protocolErrorf(op, ErrLongFrame, "%d trailing bytes", buf.Len())
	}

	return nil
}

// DecodeResponse decodes exactly one RESPONSE frame from b.
func DecodeResponse(b []byte) (*Response, error) {
	r := new(Response)
	if err := r.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadResponse reads exactly one RESPONSE frame from r.
//
// Since RESPONSE frames carry no length prefix,
// the payload width is taken from the flag: one byte for STATUS and ERROR,
// SizeFieldLen bytes for SIZE.
// ReadResponse never consumes bytes beyond the frame.
func ReadResponse(r io.Reader) (*Response, error) {
	const op = "read response"

	var b [2 + SizeFieldLen]byte

	if _, err := io.ReadFull(r, b[:2]); err != nil {
		return nil, err
	}

	if Opcode(b[0]) != OpResponse {
		return nil, protocolErrorf(op, nil, "unexpected tag %v", Opcode(b[0]))
	}

	var n int
	switch Flag(b[1]) {
	case FlagStatus, FlagError:
		n = 1
	case FlagSize:
		n = SizeFieldLen
	default:
		return nil, protocolErrorf(op, nil, "unexpected flag %v", Flag(b[1]))
	}

	if _, err := io.ReadFull(r, b[2:2+n]); err != nil {
		return nil, unexpectedEOF(err)
	}

	return DecodeResponse(b[:2+n])
}
