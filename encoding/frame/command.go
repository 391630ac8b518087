package frame

import (
	"io"
)

// Command is a request frame sent by the client to start a session.
//
// On the wire it is opcode ‖ uint16(len(name)) ‖ name,
// except for LIST, which is the opcode alone.
type Command struct {
	Op   Opcode
	Name string
}

// EncodeCommand returns the wire encoding of a command with the given opcode and filename.
// The filename is ignored for LIST.
func EncodeCommand(op Opcode, name string) ([]byte, error) {
	return (&Command{Op: op, Name: name}).MarshalBinary()
}

// MarshalBinary returns c as the binary encoding of c.
func (c *Command) MarshalBinary() ([]byte, error) {
	if !c.Op.IsCommand() {
		return nil, protocolErrorf("encode command", nil, "%v is not a command opcode", c.Op)
	}

	if !c.Op.HasName() {
		return []byte{uint8(c.Op)}, nil
	}

	// byte(opcode) + uint16(length) + name
	b := NewMarshalBuffer(1 + 2 + len(c.Name))
	b.AppendUint8(uint8(c.Op))
	if err := b.AppendString(c.Name); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalBinary decodes exactly one command frame from data.
// Trailing bytes are a ProtocolError.
func (c *Command) UnmarshalBinary(data []byte) error {
	const op = "decode command"

	buf := NewBuffer(data)

	typ, err := buf.ConsumeUint8()
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}

	c.Op = Opcode(typ)
	c.Name = ""

	if !c.Op.IsCommand() {
		return protocolErrorf(op, nil, "unexpected opcode %v", c.Op)
	}

	if c.Op.HasName() {
		if c.Name, err = buf.ConsumeString(); err != nil {
			return &ProtocolError{Op: op, Err: err}
		}
	}

	if buf.Len() != 0 {
		return protocolErrorf(op, ErrLongFrame, "%d trailing bytes", buf.Len())
	}

	return nil
}

// ReadCommand reads exactly one command frame from r.
//
// If r is at end of stream before the opcode, ReadCommand returns io.EOF unwrapped,
// so a server can tell an orderly close apart from a broken frame.
func ReadCommand(r io.Reader) (*Command, error) {
	var hdr [2]byte

	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, err
	}

	c := &Command{
		Op: Opcode(hdr[0]),
	}

	if !c.Op.IsCommand() {
		return nil, protocolErrorf("read command", nil, "unexpected opcode %v", c.Op)
	}

	if !c.Op.HasName() {
		return c, nil
	}

	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return nil, unexpectedEOF(err)
	}

	name := make([]byte, int(hdr[0])<<8|int(hdr[1]))
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, unexpectedEOF(err)
	}

	c.Name = string(name)
	return c, nil
}

// unexpectedEOF turns an io.EOF in the middle of a frame into io.ErrUnexpectedEOF.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
