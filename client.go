package xfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pkg/xfer/config"
	"github.com/pkg/xfer/encoding/frame"
	"github.com/pkg/xfer/internal/pool"
	"github.com/pkg/xfer/internal/sockopt"
)

// Dialer opens the stream connection to a server. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ClientOption specifies an optional that can be set on a client.
type ClientOption func(*Client) error

// WithObserver sets the observer that receives chunk and command events.
func WithObserver(obs Observer) ClientOption {
	return func(cl *Client) error {
		if obs == nil {
			return errors.New("xfer: observer cannot be nil")
		}

		cl.obs = obs

		return nil
	}
}

// WithLogger sets the logger used for connection lifecycle messages.
func WithLogger(l *zap.Logger) ClientOption {
	return func(cl *Client) error {
		if l == nil {
			return errors.New("xfer: logger cannot be nil")
		}

		cl.log = l

		return nil
	}
}

// WithDialer replaces the TCP dialer, for example to route through a proxy.
func WithDialer(d Dialer) ClientOption {
	return func(cl *Client) error {
		if d == nil {
			return errors.New("xfer: dialer cannot be nil")
		}

		cl.dialer = d

		return nil
	}
}

// WithChunkSize sets the largest body chunk read or written at once.
//
// It will generate an error if one attempts to set it to a value less than one.
func WithChunkSize(size int) ClientOption {
	return func(cl *Client) error {
		if size < 1 {
			return errors.Errorf("xfer: chunk size cannot be less than 1, was: %d", size)
		}

		cl.chunkSize = size

		return nil
	}
}

// WithTimeout sets both the read and the write timeout of every socket operation.
// Zero disables the timeouts.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) error {
		if d < 0 {
			return errors.Errorf("xfer: timeout cannot be negative, was: %v", d)
		}

		cl.readTimeout = d
		cl.writeTimeout = d

		return nil
	}
}

// Client connects to an xfer server.
// A Client is safe for concurrent use; each Conn it dials is not shared.
type Client struct {
	addr string
	cfg  config.Client

	dialer Dialer
	obs    Observer
	log    *zap.Logger

	chunkSize    int
	readTimeout  time.Duration
	writeTimeout time.Duration

	bufs *pool.Chunks
}

// NewClient creates a client for the server described by cfg.
func NewClient(cfg config.Client, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "xfer: client config")
	}

	cl := &Client{
		addr: cfg.Addr(),
		cfg:  cfg,

		dialer: &net.Dialer{
			Timeout:   cfg.DialTimeout.Duration,
			KeepAlive: -1, // set by sockopt after the dial
		},
		obs: NopObserver{},
		log: zap.NewNop(),

		chunkSize:    cfg.ChunkSize,
		readTimeout:  cfg.ReadTimeout.Duration,
		writeTimeout: cfg.WriteTimeout.Duration,
	}

	for _, opt := range opts {
		if err := opt(cl); err != nil {
			return nil, err
		}
	}

	cl.bufs = pool.NewChunks(4, cl.chunkSize)

	return cl, nil
}

// Addr returns the server address the client dials.
func (cl *Client) Addr() string {
	return cl.addr
}

// ReportPoolMetrics writes chunk buffer pool metrics to the given writer.
// It is expected that this is only useful during testing, and benchmarking.
func (cl *Client) ReportPoolMetrics(wr io.Writer) {
	st := cl.bufs.Stats()
	total := st.Hits + st.Misses
	if total == 0 {
		return
	}

	fmt.Fprintf(wr, "bufpool hit rate: %d / %d = %f\n", st.Hits, total, float64(st.Hits)/float64(total))
}

// Dial connects to the server and completes the handshake.
//
// The TCP dial is retried as configured; the handshake is not.
// ErrConnectionRejected is returned if the server turns the connection away.
func (cl *Client) Dial(ctx context.Context) (*Conn, error) {
	var nc net.Conn

	err := retry.New(
		retry.Attempts(uint(cl.cfg.DialAttempts)),
		retry.Delay(cl.cfg.DialRetryDelay.Duration),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			cl.log.Debug("dial failed", zap.String("addr", cl.addr), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	).Do(func() error {
		c, err := cl.dialer.DialContext(ctx, "tcp", cl.addr)
		if err != nil {
			return err
		}

		nc = c
		return nil
	})
	if err != nil {
		return nil, &TransportError{Op: "dial " + cl.addr, Err: err}
	}

	if err := sockopt.KeepAlive(nc, cl.cfg.KeepAlive.Duration); err != nil {
		cl.log.Debug("keepalive not set", zap.String("addr", cl.addr), zap.Error(err))
	}

	c := newConn(nc, cl.readTimeout, cl.writeTimeout)

	release := c.bind(ctx)
	err = c.handshake()
	release()

	if err != nil {
		nc.Close()
		return nil, err
	}

	cn := &Conn{
		c:    c,
		id:   uuid.NewString(),
		obs:  cl.obs,
		bufs: cl.bufs,
	}

	cl.log.Debug("connected", zap.String("session", cn.id), zap.Stringer("remote", nc.RemoteAddr()))

	return cn, nil
}

// Conn is one handshaken connection to a server.
//
// Commands on a Conn run one at a time; a command holds the connection until
// its session has finished. After a failure that leaves the stream out of step,
// every later command fails and the Conn should be closed.
type Conn struct {
	mu sync.Mutex
	c  *conn
	id string

	obs  Observer
	bufs *pool.Chunks

	broken error // guarded by mu

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ID returns the session id used in observer events.
func (cn *Conn) ID() string {
	return cn.id
}

// Close closes the underlying connection, interrupting any command in progress.
// Calling Close more than once is safe.
func (cn *Conn) Close() error {
	cn.closeOnce.Do(func() {
		cn.closed.Store(true)
		cn.closeErr = cn.c.Close()
	})
	return cn.closeErr
}

// Get downloads name into w and returns the number of bytes written.
func (cn *Conn) Get(ctx context.Context, name string, w io.Writer) (int64, error) {
	var n int64
	err := cn.run(ctx, frame.OpGet, name, func(t *transfer) error {
		defer func() { n = t.moved }()

		return cn.get(t, func(int64) (io.Writer, error) {
			return w, nil
		})
	})
	return n, err
}

// GetFile downloads name into the local file localPath.
// The file is created only once the server has accepted the request;
// a failed download leaves whatever was written in place.
func (cn *Conn) GetFile(ctx context.Context, name, localPath string) (int64, error) {
	var (
		n int64
		f *os.File
	)

	err := cn.run(ctx, frame.OpGet, name, func(t *transfer) error {
		defer func() { n = t.moved }()

		return cn.get(t, func(int64) (io.Writer, error) {
			var err error
			f, err = os.Create(localPath)
			if err != nil {
				return nil, &LocalError{Op: "create", Path: localPath, Err: err}
			}
			return f, nil
		})
	})

	if f != nil {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &LocalError{Op: "close", Path: localPath, Err: cerr}
		}
	}

	return n, err
}

// Put uploads size bytes read from r as name.
func (cn *Conn) Put(ctx context.Context, name string, r io.Reader, size int64) (int64, error) {
	var n int64
	err := cn.run(ctx, frame.OpPut, name, func(t *transfer) error {
		defer func() { n = t.moved }()

		return cn.put(t, func() (io.ReadCloser, int64, error) {
			if size < 0 {
				return nil, 0, &LocalError{Op: "stat", Path: name, Err: errors.Errorf("negative size %d", size)}
			}
			return io.NopCloser(r), size, nil
		})
	})
	return n, err
}

// PutFile uploads the local file localPath as name.
// If the file cannot be opened, the server is told FileNotFound or ConnectionBreak
// and the local error is returned.
func (cn *Conn) PutFile(ctx context.Context, name, localPath string) (int64, error) {
	var n int64
	err := cn.run(ctx, frame.OpPut, name, func(t *transfer) error {
		defer func() { n = t.moved }()

		return cn.put(t, func() (io.ReadCloser, int64, error) {
			f, err := os.Open(localPath)
			if err != nil {
				return nil, 0, &LocalError{Op: "open", Path: localPath, Err: err}
			}

			fi, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, 0, &LocalError{Op: "stat", Path: localPath, Err: err}
			}

			if !fi.Mode().IsRegular() {
				f.Close()
				return nil, 0, &LocalError{Op: "open", Path: localPath, Err: errors.New("not a regular file")}
			}

			return f, fi.Size(), nil
		})
	})
	return n, err
}

// List returns the server's file listing.
func (cn *Conn) List(ctx context.Context) ([]frame.Entry, error) {
	var entries []frame.Entry
	err := cn.run(ctx, frame.OpList, "", func(t *transfer) error {
		var err error
		entries, err = cn.list(t)
		return err
	})
	return entries, err
}

// Delete removes name on the server.
func (cn *Conn) Delete(ctx context.Context, name string) error {
	return cn.run(ctx, frame.OpDelete, name, cn.remove)
}
