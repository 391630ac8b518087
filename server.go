package xfer

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pkg/xfer/encoding/frame"
	"github.com/pkg/xfer/internal/pool"
	"github.com/pkg/xfer/store"
)

// ServerOption specifies an optional that can be set on a server.
type ServerOption func(*Server) error

// WithServerLogger sets the logger for connection lifecycle messages.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) error {
		if l == nil {
			return errors.New("xfer: logger cannot be nil")
		}

		s.log = l

		return nil
	}
}

// WithServerObserver sets the observer that receives chunk and command events.
func WithServerObserver(obs Observer) ServerOption {
	return func(s *Server) error {
		if obs == nil {
			return errors.New("xfer: observer cannot be nil")
		}

		s.obs = obs

		return nil
	}
}

// WithMaxConns limits how many connections are served at once.
// Connections beyond the limit are greeted with STATUS NOTOK and closed.
// Zero means no limit.
func WithMaxConns(n int) ServerOption {
	return func(s *Server) error {
		if n < 0 {
			return errors.Errorf("xfer: max connections cannot be negative, was: %d", n)
		}

		s.maxConns = n

		return nil
	}
}

// WithServerChunkSize sets the largest body chunk read or written at once.
func WithServerChunkSize(size int) ServerOption {
	return func(s *Server) error {
		if size < 1 {
			return errors.Errorf("xfer: chunk size cannot be less than 1, was: %d", size)
		}

		s.chunkSize = size

		return nil
	}
}

// WithServerTimeout sets the read and write timeout of every socket operation.
// The read timeout also bounds how long an idle connection is kept open.
func WithServerTimeout(read, write time.Duration) ServerOption {
	return func(s *Server) error {
		if read < 0 || write < 0 {
			return errors.Errorf("xfer: timeouts cannot be negative, was: %v, %v", read, write)
		}

		s.readTimeout = read
		s.writeTimeout = write

		return nil
	}
}

// Server serves a Store to xfer clients.
type Server struct {
	store store.Store

	log *zap.Logger
	obs Observer

	maxConns     int
	chunkSize    int
	readTimeout  time.Duration
	writeTimeout time.Duration

	bufs   *pool.Chunks
	active atomic.Int64
}

// NewServer creates a server for st.
func NewServer(st store.Store, opts ...ServerOption) (*Server, error) {
	if st == nil {
		return nil, errors.New("xfer: store cannot be nil")
	}

	s := &Server{
		store:     st,
		log:       zap.NewNop(),
		obs:       NopObserver{},
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.bufs = pool.NewChunks(max(s.maxConns, 16), s.chunkSize)

	return s, nil
}

// Active returns the number of connections currently being served.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Serve accepts connections on l and serves each on its own goroutine.
//
// It returns once l is closed or ctx is done, after every connection has finished.
// Cancelling ctx interrupts connections in the middle of a command.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	s.log.Info("listening", zap.Stringer("addr", l.Addr()))

	var (
		g   errgroup.Group
		err error
	)
	for {
		nc, aerr := l.Accept()
		if aerr != nil {
			if ctx.Err() == nil && !errors.Is(aerr, net.ErrClosed) {
				err = errors.Wrap(aerr, "accept")
			}
			break
		}

		g.Go(func() error {
			// Connection failures are logged by ServeConn and never stop the server.
			_ = s.ServeConn(ctx, nc)
			return nil
		})
	}

	g.Wait()

	s.log.Info("stopped", zap.Stringer("addr", l.Addr()))
	return err
}

// ServeConn runs the handshake on nc, then serves commands until the client closes it.
// nc is always closed on return. An orderly close by the client returns nil.
func (s *Server) ServeConn(ctx context.Context, nc net.Conn) error {
	defer nc.Close()

	sc := &serverConn{
		srv: s,
		c:   newConn(nc, s.readTimeout, s.writeTimeout),
		id:  uuid.NewString(),
	}
	sc.log = s.log.With(zap.String("session", sc.id), zap.Stringer("remote", nc.RemoteAddr()))

	release := sc.c.bind(ctx)
	defer release()

	n := s.active.Add(1)
	defer s.active.Add(-1)

	if s.maxConns > 0 && n > int64(s.maxConns) {
		sc.log.Warn("connection rejected", zap.Int("max_conns", s.maxConns))
		return sc.c.greet(false)
	}

	if err := sc.c.greet(true); err != nil {
		sc.log.Warn("handshake failed", zap.Error(err))
		return err
	}

	sc.log.Info("connection accepted")

	err := sc.serve()
	if err != nil {
		sc.log.Warn("connection closed", zap.Error(err))
		return err
	}

	sc.log.Info("connection closed")
	return nil
}

// serverConn is the server side of one connection.
type serverConn struct {
	srv *Server
	c   *conn
	id  string
	log *zap.Logger

	// broken is set when the stream can no longer be trusted to be in step.
	broken bool
}

func (sc *serverConn) serve() error {
	for {
		cmd, err := sc.c.recvCommand()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err := sc.handle(cmd); err != nil && (sc.broken || isFatal(err)) {
			return err
		}
	}
}

func (sc *serverConn) handle(cmd *frame.Command) error {
	t := &transfer{
		session: sc.id,
		op:      cmd.Op,
		name:    cmd.Name,
		obs:     sc.srv.obs,
	}

	start := time.Now()

	var err error
	switch cmd.Op {
	case frame.OpGet:
		err = sc.get(t)
	case frame.OpPut:
		err = sc.put(t)
	case frame.OpList:
		err = sc.list(t)
	case frame.OpDelete:
		err = sc.remove(t)
	default:
		err = &frame.ProtocolError{Op: "serve", Msg: "unexpected opcode " + cmd.Op.String()}
	}

	sc.srv.obs.CommandCompleted(CommandEvent{
		Session:  sc.id,
		Command:  cmd.Op,
		Name:     cmd.Name,
		Bytes:    t.moved,
		Duration: time.Since(start),
		Err:      err,
	})

	return err
}

// sendError answers a failed store operation with the matching ERROR frame.
func (sc *serverConn) sendError(op, name string, err error) error {
	if serr := sc.c.sendFrame(frame.NewError(storeReason(err))); serr != nil {
		return serr
	}
	return &LocalError{Op: op, Path: name, Err: err}
}

func (sc *serverConn) get(t *transfer) error {
	rc, size, err := sc.srv.store.Open(t.name)
	if err != nil {
		return sc.sendError("open", t.name, err)
	}
	defer rc.Close()

	if size > frame.MaxSize {
		return sc.sendError("open", t.name, errors.Wrapf(ErrFileTooLarge, "%s: %d bytes", t.name, size))
	}

	t.expected = size

	if err := sc.c.sendFrame(frame.NewSize(uint64(size))); err != nil {
		return err
	}

	if err := sc.c.awaitStatus("get ready", t.name); err != nil {
		return err
	}

	buf := sc.srv.bufs.Get()
	defer sc.srv.bufs.Put(buf)

	if err := t.send(io.LimitReader(rc, size), sc.c, buf); err != nil {
		sc.broken = true
		return err
	}

	return sc.c.awaitStatus("get confirm", t.name)
}

func (sc *serverConn) put(t *transfer) error {
	resp, err := sc.c.recvResponse()
	if err != nil {
		return err
	}

	switch resp.Flag {
	case frame.FlagSize:
	case frame.FlagError:
		// The client could not read its file and abandoned the upload.
		return &RemoteError{Reason: resp.Reason}
	default:
		return unexpected("put", resp)
	}

	t.expected = int64(resp.Size)

	w, err := sc.srv.store.Create(t.name)
	if err != nil {
		if serr := sc.c.sendFrame(frame.NewStatus(false)); serr != nil {
			return serr
		}
		return &LocalError{Op: "create", Path: t.name, Err: err}
	}

	if err := sc.c.sendFrame(frame.NewStatus(true)); err != nil {
		w.Abort()
		return err
	}

	buf := sc.srv.bufs.Get()
	defer sc.srv.bufs.Put(buf)

	if err := t.receive(sc.c, w, buf); err != nil {
		w.Abort()

		var lerr *LocalError
		if !errors.As(err, &lerr) {
			return err
		}

		if serr := sc.c.sendFrame(frame.NewStatus(false)); serr != nil {
			return serr
		}
		return err
	}

	if err := w.Commit(); err != nil {
		if serr := sc.c.sendFrame(frame.NewStatus(false)); serr != nil {
			return serr
		}
		return &LocalError{Op: "commit", Path: t.name, Err: err}
	}

	return sc.c.sendFrame(frame.NewStatus(true))
}

func (sc *serverConn) list(t *transfer) error {
	entries, err := sc.srv.store.List()
	if err == nil {
		var body []byte
		if body, err = frame.MarshalEntries(entries); err == nil {
			return sc.sendListing(t, body)
		}
	}

	if serr := sc.c.sendFrame(frame.NewError(frame.ReasonConnectionBreak)); serr != nil {
		return serr
	}
	return &LocalError{Op: "list", Err: err}
}

func (sc *serverConn) sendListing(t *transfer, body []byte) error {
	t.expected = int64(len(body))

	if err := sc.c.sendFrame(frame.NewSize(uint64(len(body)))); err != nil {
		return err
	}

	buf := sc.srv.bufs.Get()
	defer sc.srv.bufs.Put(buf)

	if err := t.send(bytes.NewReader(body), sc.c, buf); err != nil {
		sc.broken = true
		return err
	}
	return nil
}

func (sc *serverConn) remove(t *transfer) error {
	if err := sc.srv.store.Remove(t.name); err != nil {
		return sc.sendError("remove", t.name, err)
	}

	return sc.c.sendFrame(frame.NewStatus(true))
}

// storeReason maps a store failure to the ERROR reason sent to the client.
// Names the store refuses are reported as missing.
func storeReason(err error) frame.Reason {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, store.ErrInvalidName) {
		return frame.ReasonFileNotFound
	}
	return frame.ReasonConnectionBreak
}
