package xfer

import (
	"context"
	"encoding"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// aLongTimeAgo is a deadline that has always already passed.
var aLongTimeAgo = time.Unix(1, 0)

// conn is a deadline-bound, framed view of one stream connection.
// Every Read and Write carries its own deadline,
// and a bound context forces pending I/O to fail once it is done.
type conn struct {
	rwc net.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	ctx context.Context
}

func newConn(rwc net.Conn, readTimeout, writeTimeout time.Duration) *conn {
	return &conn{
		rwc:          rwc,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		ctx:          context.Background(),
	}
}

// bind ties in-flight I/O to ctx until the returned release func is called.
// Cancelling ctx expires the socket deadline, which is the only way to interrupt a session.
func (c *conn) bind(ctx context.Context) (release func()) {
	c.ctx = ctx
	stop := context.AfterFunc(ctx, func() {
		_ = c.rwc.SetDeadline(aLongTimeAgo)
	})

	return func() {
		stop()
		c.ctx = context.Background()
	}
}

func (c *conn) deadline(timeout time.Duration) time.Time {
	var t time.Time
	if timeout > 0 {
		t = time.Now().Add(timeout)
	}
	if d, ok := c.ctx.Deadline(); ok && (t.IsZero() || d.Before(t)) {
		t = d
	}
	return t
}

func (c *conn) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, &TransportError{Op: "read", Err: err}
	}

	// A failed deadline only matters if the read fails too;
	// a closed peer must still surface as io.EOF.
	derr := c.rwc.SetReadDeadline(c.deadline(c.readTimeout))

	n, err := c.rwc.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}

	if cerr := c.ctx.Err(); cerr != nil {
		err = cerr
	} else if derr != nil {
		err = errors.Wrap(err, derr.Error())
	}
	return n, &TransportError{Op: "read", Err: err}
}

func (c *conn) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, &TransportError{Op: "write", Err: err}
	}

	derr := c.rwc.SetWriteDeadline(c.deadline(c.writeTimeout))

	n, err := c.rwc.Write(p)
	if err == nil {
		return n, nil
	}

	if cerr := c.ctx.Err(); cerr != nil {
		err = cerr
	} else if derr != nil {
		err = errors.Wrap(err, derr.Error())
	}
	return n, &TransportError{Op: "write", Err: err}
}

func (c *conn) Close() error {
	return c.rwc.Close()
}

// sendFrame marshals m and writes it to the connection in full.
func (c *conn) sendFrame(m encoding.BinaryMarshaler) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := writeFull(c, b); err != nil {
		return transportErr("send frame", err)
	}
	return nil
}

// recvResponse reads exactly one RESPONSE frame.
func (c *conn) recvResponse() (*frame.Response, error) {
	resp, err := frame.ReadResponse(c)
	if err != nil {
		return nil, transportErr("recv response", err)
	}
	return resp, nil
}

// recvCommand reads exactly one command frame.
// An orderly close before the opcode is reported as a bare io.EOF.
func (c *conn) recvCommand() (*frame.Command, error) {
	cmd, err := frame.ReadCommand(c)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, transportErr("recv command", err)
	}
	return cmd, nil
}

// handshake reads the server greeting: STATUS OK to proceed, NOTOK to reject.
func (c *conn) handshake() error {
	resp, err := c.recvResponse()
	if err != nil {
		return err
	}

	switch {
	case resp.IsStatus(frame.StatusOK):
		return nil
	case resp.IsStatus(frame.StatusNotOK):
		return ErrConnectionRejected
	default:
		return unexpected("handshake", resp)
	}
}

// greet sends the server greeting.
func (c *conn) greet(accept bool) error {
	return c.sendFrame(frame.NewStatus(accept))
}

// awaitStatus reads one reply where only STATUS OK means success.
func (c *conn) awaitStatus(op, name string) error {
	resp, err := c.recvResponse()
	if err != nil {
		return err
	}

	switch {
	case resp.IsStatus(frame.StatusOK):
		return nil
	case resp.IsStatus(frame.StatusNotOK):
		return errors.Wrapf(ErrRejected, "%s %s", op, name)
	case resp.Flag == frame.FlagError:
		return &RemoteError{Reason: resp.Reason}
	default:
		return unexpected(op, resp)
	}
}
