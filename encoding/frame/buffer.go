package frame

import (
	"encoding/binary"
	"errors"
)

// Various encoding errors.
var (
	ErrShortFrame   = errors.New("frame too short")
	ErrLongFrame    = errors.New("frame too long")
	ErrNameTooLong  = errors.New("filename longer than 65535 bytes")
	ErrSizeOverflow = errors.New("size does not fit the size field")
)

// Buffer wraps up the various encoding details of the xfer wire format.
//
// All integers are unsigned and in network byte order (big-endian).
// Names are a uint16 length followed by that number of raw bytes.
type Buffer struct {
	b   []byte
	off int
}

// NewBuffer creates and initializes a new Buffer using buf as its initial contents.
// The new Buffer takes ownership of buf, and the caller should not use buf after this call.
//
// In most cases, new(Buffer) (or just declaring a Buffer variable) is sufficient to initialize a Buffer.
func NewBuffer(buf []byte) *Buffer {
	return &Buffer{
		b: buf,
	}
}

// NewMarshalBuffer creates a new Buffer with room for size bytes.
func NewMarshalBuffer(size int) *Buffer {
	return NewBuffer(make([]byte, 0, size))
}

// Bytes returns a slice of length b.Len() holding the unconsumed bytes in the Buffer.
// The slice is valid for use only until the next buffer modification
// (that is, only until the next call to an Append or Consume method).
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Len returns the number of unconsumed bytes in the Buffer.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// ConsumeUint8 consumes a single byte from the Buffer.
// If Buffer does not have enough data, it will return ErrShortFrame.
func (b *Buffer) ConsumeUint8() (uint8, error) {
	if b.Len() < 1 {
		return 0, ErrShortFrame
	}

	var v uint8
	v, b.off = b.b[b.off], b.off+1
	return v, nil
}

// AppendUint8 appends a single byte into the Buffer.
func (b *Buffer) AppendUint8(v uint8) {
	b.b = append(b.b, v)
}

// ConsumeUint16 consumes a single uint16 from the Buffer, in network byte order (big-endian).
// If Buffer does not have enough data, it will return ErrShortFrame.
func (b *Buffer) ConsumeUint16() (uint16, error) {
	if b.Len() < 2 {
		return 0, ErrShortFrame
	}

	v := binary.BigEndian.Uint16(b.b[b.off:])
	b.off += 2
	return v, nil
}

// AppendUint16 appends single uint16 into the Buffer, in network byte order (big-endian).
func (b *Buffer) AppendUint16(v uint16) {
	b.b = binary.BigEndian.AppendUint16(b.b, v)
}

// ConsumeUint32 consumes a single uint32 from the Buffer, in network byte order (big-endian).
// If Buffer does not have enough data, it will return ErrShortFrame.
func (b *Buffer) ConsumeUint32() (uint32, error) {
	if b.Len() < 4 {
		return 0, ErrShortFrame
	}

	v := binary.BigEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// AppendUint32 appends a single uint32 into the Buffer, in network byte order (big-endian).
func (b *Buffer) AppendUint32(v uint32) {
	b.b = binary.BigEndian.AppendUint32(b.b, v)
}

// ConsumeUintN consumes an n-byte unsigned integer from the Buffer, in network byte order (big-endian).
// n must be between 1 and 8 inclusive.
// If Buffer does not have enough data, it will return ErrShortFrame.
func (b *Buffer) ConsumeUintN(n int) (uint64, error) {
	if n < 1 {
		return 0, ErrShortFrame
	}
	if n > 8 {
		return 0, ErrLongFrame
	}
	if b.Len() < n {
		return 0, ErrShortFrame
	}

	var v uint64
	for _, c := range b.b[b.off : b.off+n] {
		v = v<<8 | uint64(c)
	}
	b.off += n
	return v, nil
}

// ConsumeByteSlice consumes a single name of raw binary data from the Buffer.
// A name is a uint16 length, followed by that number of raw bytes.
// If Buffer does not have enough data, or defines a length larger than available, it will return ErrShortFrame.
func (b *Buffer) ConsumeByteSlice() ([]byte, error) {
	length, err := b.ConsumeUint16()
	if err != nil {
		return nil, err
	}

	if b.Len() < int(length) {
		return nil, ErrShortFrame
	}

	v := b.b[b.off : b.off+int(length) : b.off+int(length)]
	b.off += int(length)
	return v, nil
}

// AppendByteSlice appends a single name of raw binary data into the Buffer.
// A name is a uint16 length, followed by that number of raw bytes.
// It returns ErrNameTooLong if v does not fit the length prefix.
func (b *Buffer) AppendByteSlice(v []byte) error {
	if len(v) > 0xFFFF {
		return ErrNameTooLong
	}

	b.AppendUint16(uint16(len(v)))
	b.b = append(b.b, v...)
	return nil
}

// ConsumeString consumes a single name from the Buffer, see ConsumeByteSlice.
//
// NOTE: Go implicitly assumes that strings contain UTF-8 encoded data.
// All caveats on using arbitrary binary data in Go strings applies.
func (b *Buffer) ConsumeString() (string, error) {
	v, err := b.ConsumeByteSlice()
	if err != nil {
		return "", err
	}

	return string(v), nil
}

// AppendString appends a single name into the Buffer, see AppendByteSlice.
func (b *Buffer) AppendString(v string) error {
	return b.AppendByteSlice([]byte(v))
}

// MarshalBinary returns the remaining binary data in the Buffer as a byte slice.
// This aliases the internal buffer, and so comes with the same caveats as Bytes().
//
// This function is a thin wrapper of Bytes() solely to implement encoding.BinaryMarshaler.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	return b.Bytes(), nil
}

// UnmarshalBinary sets the internal buffer of b to be data, and zeros any internal offset.
// To avoid additional allocations,
// UnmarshalBinary takes ownership of buf, and the caller should not use buf after this call.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	b.b = data
	b.off = 0
	return nil
}
