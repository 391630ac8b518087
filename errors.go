package xfer

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// Sentinel errors reported by clients and servers.
var (
	// ErrConnectionRejected is returned when the server answers the handshake with NOTOK.
	ErrConnectionRejected = errors.New("xfer: connection rejected by server")

	// ErrConnectionBreak is matched by every error caused by the connection going away
	// mid-session: resets, timeouts, and streams that end before the declared size.
	ErrConnectionBreak = errors.New("xfer: connection break")

	// ErrRejected is returned when the peer answers STATUS NOTOK to a transfer or a delete.
	ErrRejected = errors.New("xfer: rejected by peer")

	// ErrListingUnavailable is returned when the server cannot produce a listing.
	ErrListingUnavailable = errors.New("xfer: listing unavailable")

	// ErrChecksum is matched by a RemoteError carrying ChecksumError.
	ErrChecksum = errors.New("xfer: checksum error")

	// ErrFileTooLarge is returned when a file does not fit the 4-byte size field.
	ErrFileTooLarge = errors.New("xfer: file too large")

	// ErrConnClosed is returned when a command is issued on a closed Conn.
	ErrConnClosed = errors.New("xfer: use of closed connection")
)

// RemoteError is returned when the peer answers with an ERROR frame.
//
// It matches fs.ErrNotExist for FileNotFound, ErrConnectionBreak for ConnectionBreak,
// and ErrChecksum for ChecksumError.
type RemoteError struct {
	Reason frame.Reason
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("xfer: remote error: %v", e.Reason)
}

// Is implements the errors.Is interface.
func (e *RemoteError) Is(target error) bool {
	switch e.Reason {
	case frame.ReasonFileNotFound:
		return target == fs.ErrNotExist
	case frame.ReasonConnectionBreak:
		return target == ErrConnectionBreak
	case frame.ReasonChecksumError:
		return target == ErrChecksum
	}
	return false
}

// reasonFor picks the ERROR reason that describes a local failure to the peer.
func reasonFor(err error) frame.Reason {
	if errors.Is(err, fs.ErrNotExist) {
		return frame.ReasonFileNotFound
	}
	return frame.ReasonConnectionBreak
}

// LocalError records a failure of a local file operation during a session.
type LocalError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("xfer: local %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("xfer: local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalError) Unwrap() error {
	return e.Err
}

// TransportError records a socket-level failure. It always matches ErrConnectionBreak.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("xfer: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface.
func (e *TransportError) Is(target error) bool {
	return target == ErrConnectionBreak
}

// transportErr wraps err as a TransportError, unless it already carries its own classification.
func transportErr(op string, err error) error {
	var (
		terr *TransportError
		perr *frame.ProtocolError
	)
	if errors.As(err, &terr) || errors.As(err, &perr) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// isFatal reports whether err leaves the connection in an unknown state,
// so that no further command can be issued on it.
func isFatal(err error) bool {
	var perr *frame.ProtocolError
	return errors.Is(err, ErrConnectionBreak) && !isRemote(err) || errors.As(err, &perr)
}

func isRemote(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr)
}

func unexpected(op string, resp *frame.Response) error {
	return &frame.ProtocolError{
		Op:  op,
		Msg: fmt.Sprintf("unexpected response %v", resp),
	}
}
