package xfer

import (
	"io"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// DefaultChunkSize is the chunk size shared by both peers unless configured otherwise.
const DefaultChunkSize = 65535

// transfer tracks one file body moving across the connection.
//
// moved never exceeds expected; the transfer is complete exactly when they are equal.
type transfer struct {
	session string
	op      frame.Opcode
	name    string

	expected int64
	moved    int64

	obs Observer
}

func (t *transfer) complete() bool {
	return t.moved == t.expected
}

func (t *transfer) event(n int) ChunkEvent {
	return ChunkEvent{
		Session:  t.session,
		Command:  t.op,
		Name:     t.name,
		Chunk:    n,
		Total:    t.moved,
		Expected: t.expected,
	}
}

// send reads src in chunks of at most len(buf) bytes and writes every chunk fully to dst
// before reading the next one. It stops when src reports io.EOF.
//
// Callers bound src to the declared size; if src ends early the transfer fails,
// since the peer is still waiting for the rest of the body.
func (t *transfer) send(src io.Reader, dst io.Writer, buf []byte) error {
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if t.moved+int64(n) > t.expected {
				return &LocalError{Op: "read", Path: t.name, Err: errors.New("source longer than declared size")}
			}

			if _, err := writeFull(dst, buf[:n]); err != nil {
				return transportErr("send body", err)
			}

			t.moved += int64(n)
			t.obs.ChunkSent(t.event(n))
		}

		switch {
		case rerr == io.EOF:
			if !t.complete() {
				return &LocalError{Op: "read", Path: t.name, Err: io.ErrUnexpectedEOF}
			}
			return nil

		case rerr != nil:
			return &LocalError{Op: "read", Path: t.name, Err: rerr}
		}
	}
}

// receive reads at most len(buf) bytes at a time from src and appends them to dst,
// until t.expected bytes have been read.
// It never asks src for more than the bytes still owed, so nothing past the body is consumed.
//
// A zero-length read before completion is a connection break.
// If dst fails, the rest of the body is still drained from src so the stream stays in step,
// and a LocalError is returned; the partially written dst is left as it is.
func (t *transfer) receive(src io.Reader, dst io.Writer, buf []byte) error {
	var (
		read    int64
		sinkErr error
	)

	for read < t.expected {
		want := int64(len(buf))
		if rest := t.expected - read; rest < want {
			want = rest
		}

		n, rerr := src.Read(buf[:want])
		if n > 0 {
			read += int64(n)

			if sinkErr == nil {
				if _, err := writeFull(dst, buf[:n]); err != nil {
					sinkErr = &LocalError{Op: "write", Path: t.name, Err: err}
				} else {
					t.moved += int64(n)
					t.obs.ChunkReceived(t.event(n))
				}
			}
		}

		if read == t.expected {
			break
		}

		switch {
		case rerr == io.EOF, rerr == nil && n == 0:
			return &TransportError{
				Op:  "receive body",
				Err: errors.Wrapf(ErrConnectionBreak, "stream ended after %d of %d bytes", read, t.expected),
			}

		case rerr != nil:
			return transportErr("receive body", rerr)
		}
	}

	return sinkErr
}

// writeFull writes all of p to w, retrying short writes until p is exhausted.
func writeFull(w io.Writer, p []byte) (int, error) {
	var n int
	for n < len(p) {
		m, err := w.Write(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.ErrShortWrite
		}
	}
	return n, nil
}
