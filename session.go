package xfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// maxListing bounds the LIST payload a client is willing to buffer.
const maxListing = 64 << 20

// run executes one command session while holding the connection.
// It reports the outcome to the observer and retires the connection
// if the failure left the stream in an unknown state.
func (cn *Conn) run(ctx context.Context, op frame.Opcode, name string, fn func(t *transfer) error) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	if cn.closed.Load() {
		return ErrConnClosed
	}
	if cn.broken != nil {
		return errors.Wrap(cn.broken, "xfer: connection unusable after earlier failure")
	}

	release := cn.c.bind(ctx)
	defer release()

	t := &transfer{
		session: cn.id,
		op:      op,
		name:    name,
		obs:     cn.obs,
	}

	start := time.Now()
	err := fn(t)
	if err != nil && isFatal(err) {
		cn.broken = err
	}

	cn.obs.CommandCompleted(CommandEvent{
		Session:  cn.id,
		Command:  op,
		Name:     name,
		Bytes:    t.moved,
		Duration: time.Since(start),
		Err:      err,
	})

	return err
}

// get runs the client side of GET.
// open is called once the size is known; it returns the sink for the body.
func (cn *Conn) get(t *transfer, open func(size int64) (io.Writer, error)) error {
	c := cn.c

	if err := c.sendFrame(&frame.Command{Op: frame.OpGet, Name: t.name}); err != nil {
		return err
	}

	resp, err := c.recvResponse()
	if err != nil {
		return err
	}

	switch resp.Flag {
	case frame.FlagSize:
	case frame.FlagError:
		return &RemoteError{Reason: resp.Reason}
	default:
		return unexpected("get", resp)
	}

	t.expected = int64(resp.Size)

	w, err := open(t.expected)
	if err != nil {
		if serr := c.sendFrame(frame.NewStatus(false)); serr != nil {
			return serr
		}
		return err
	}

	if err := c.sendFrame(frame.NewStatus(true)); err != nil {
		return err
	}

	buf := cn.bufs.Get()
	defer cn.bufs.Put(buf)

	if err := t.receive(c, w, buf); err != nil {
		var lerr *LocalError
		if !errors.As(err, &lerr) {
			// Best effort: the stream may already be gone.
			_ = c.sendFrame(frame.NewStatus(false))
			return err
		}

		// The body was drained, so the peer can still be told.
		if serr := c.sendFrame(frame.NewStatus(false)); serr != nil {
			return serr
		}
		return err
	}

	return c.sendFrame(frame.NewStatus(true))
}

// put runs the client side of PUT.
// open returns the source and its size; its failure is reported to the peer as an ERROR frame.
func (cn *Conn) put(t *transfer, open func() (io.ReadCloser, int64, error)) error {
	c := cn.c

	if err := c.sendFrame(&frame.Command{Op: frame.OpPut, Name: t.name}); err != nil {
		return err
	}

	src, size, err := open()
	if err == nil && size > frame.MaxSize {
		src.Close()
		err = errors.Wrapf(ErrFileTooLarge, "%s: %d bytes", t.name, size)
	}
	if err != nil {
		if serr := c.sendFrame(frame.NewError(reasonFor(err))); serr != nil {
			return serr
		}
		return err
	}
	defer src.Close()

	t.expected = size

	if err := c.sendFrame(frame.NewSize(uint64(size))); err != nil {
		return err
	}

	if err := cn.c.awaitStatus("put ready", t.name); err != nil {
		return err
	}

	buf := cn.bufs.Get()
	defer cn.bufs.Put(buf)

	if err := t.send(io.LimitReader(src, size), c, buf); err != nil {
		// The peer is still waiting for the rest of the body.
		cn.broken = err
		return err
	}

	return cn.c.awaitStatus("put confirm", t.name)
}

// list runs the client side of LIST.
func (cn *Conn) list(t *transfer) ([]frame.Entry, error) {
	c := cn.c

	if err := c.sendFrame(&frame.Command{Op: frame.OpList}); err != nil {
		return nil, err
	}

	resp, err := c.recvResponse()
	if err != nil {
		return nil, err
	}

	switch resp.Flag {
	case frame.FlagSize:
	case frame.FlagError:
		return nil, fmt.Errorf("%w: %w", ErrListingUnavailable, &RemoteError{Reason: resp.Reason})
	default:
		return nil, unexpected("list", resp)
	}

	if resp.Size > maxListing {
		return nil, &frame.ProtocolError{
			Op:  "list",
			Msg: fmt.Sprintf("listing of %d bytes exceeds %d byte limit", resp.Size, maxListing),
		}
	}

	t.expected = int64(resp.Size)

	var body bytes.Buffer
	body.Grow(int(resp.Size))

	buf := cn.bufs.Get()
	defer cn.bufs.Put(buf)

	if err := t.receive(c, &body, buf); err != nil {
		return nil, err
	}

	return frame.UnmarshalEntries(body.Bytes())
}

// remove runs the client side of DELETE.
func (cn *Conn) remove(t *transfer) error {
	if err := cn.c.sendFrame(&frame.Command{Op: frame.OpDelete, Name: t.name}); err != nil {
		return err
	}

	return cn.c.awaitStatus("delete", t.name)
}
