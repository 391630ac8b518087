package xfer

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/pkg/xfer/config"
	"github.com/pkg/xfer/encoding/frame"
	"github.com/pkg/xfer/store"
)

// startServer serves st on a loopback listener until the test ends,
// and returns a client configured for it.
func startServer(t *testing.T, st store.Store, sopts []ServerOption, copts ...ClientOption) (*Server, *Client) {
	t.Helper()

	srv, err := NewServer(st, sopts...)
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	var g errgroup.Group
	g.Go(func() error {
		return srv.Serve(ctx, l)
	})

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, g.Wait())
	})

	cfg := config.Default().Client
	cfg.Port = l.Addr().(*net.TCPAddr).Port
	cfg.ReadTimeout = config.Duration{Duration: 5 * time.Second}
	cfg.WriteTimeout = config.Duration{Duration: 5 * time.Second}

	cl, err := NewClient(cfg, copts...)
	require.NoError(t, err)

	return srv, cl
}

func TestRoundTrip(t *testing.T) {
	var tests = []struct {
		desc        string
		size        int
		clientChunk int
		serverChunk int
	}{
		{"empty", 0, 8, 8},
		{"single chunk", 5, 65535, 65535},
		{"multi chunk", 1000, 7, 13},
		{"exact chunks", 64, 16, 16},
		{"large", 300000, DefaultChunkSize, DefaultChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			mem := store.NewMemory()
			_, cl := startServer(t, mem,
				[]ServerOption{WithServerChunkSize(tt.serverChunk)},
				WithChunkSize(tt.clientChunk),
			)

			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i * 7)
			}

			ctx := context.Background()
			cn, err := cl.Dial(ctx)
			require.NoError(t, err)
			defer cn.Close()

			n, err := cn.Put(ctx, "blob", bytes.NewReader(data), int64(len(data)))
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), n)

			stored, err := mem.ReadFile("blob")
			require.NoError(t, err)
			assert.Equal(t, data, stored)

			var got bytes.Buffer
			n, err = cn.Get(ctx, "blob", &got)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.size), n)
			assert.Len(t, got.Bytes(), tt.size)
			assert.True(t, bytes.Equal(data, got.Bytes()))
		})
	}
}

func TestServerSession(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.WriteFile("a.txt", []byte("hello")))
	require.NoError(t, mem.WriteFile("b.txt", nil))

	_, cl := startServer(t, mem, nil)

	ctx := context.Background()
	cn, err := cl.Dial(ctx)
	require.NoError(t, err)
	defer cn.Close()

	entries, err := cn.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []frame.Entry{{Name: "a.txt", Size: 5}, {Name: "b.txt", Size: 0}}, entries)

	_, err = cn.Get(ctx, "missing", io.Discard)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = cn.Get(ctx, "../etc/passwd", io.Discard)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, cn.Delete(ctx, "a.txt"))
	assert.ErrorIs(t, cn.Delete(ctx, "a.txt"), fs.ErrNotExist)

	_, err = cn.PutFile(ctx, "c.txt", filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	entries, err = cn.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []frame.Entry{{Name: "b.txt", Size: 0}}, entries)
}

func TestServerRejectsInvalidPut(t *testing.T) {
	_, cl := startServer(t, store.NewMemory(), nil)

	ctx := context.Background()
	cn, err := cl.Dial(ctx)
	require.NoError(t, err)
	defer cn.Close()

	_, err = cn.Put(ctx, "dir/a.txt", bytes.NewReader([]byte("x")), 1)
	assert.ErrorIs(t, err, ErrRejected)

	// Nothing was sent after the refusal, so the connection is still in step.
	entries, err := cn.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClientCommands(t *testing.T) {
	root := t.TempDir()
	dir, err := store.NewDir(root)
	require.NoError(t, err)

	_, cl := startServer(t, dir, nil, WithChunkSize(3))

	local := t.TempDir()
	src := filepath.Join(local, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("remember the milk"), 0o644))

	ctx := context.Background()

	n, err := cl.Upload(ctx, src, "")
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	entries, err := cl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []frame.Entry{{Name: "notes.txt", Size: 17}}, entries)

	dst := filepath.Join(local, "copy.txt")
	n, err = cl.Download(ctx, "notes.txt", dst)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(data))

	require.NoError(t, cl.Delete(ctx, "notes.txt"))

	_, err = os.Stat(filepath.Join(root, "notes.txt"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = cl.Download(ctx, "notes.txt", dst)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestServerMaxConns(t *testing.T) {
	srv, cl := startServer(t, store.NewMemory(), []ServerOption{WithMaxConns(1)})

	ctx := context.Background()
	first, err := cl.Dial(ctx)
	require.NoError(t, err)

	_, err = cl.Dial(ctx)
	assert.ErrorIs(t, err, ErrConnectionRejected)

	require.NoError(t, first.Close())

	// The slot is freed once the server notices the close.
	require.Eventually(t, func() bool {
		return srv.Active() == 0
	}, 5*time.Second, 10*time.Millisecond)

	second, err := cl.Dial(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestServerLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	_, cl := startServer(t, store.NewMemory(), []ServerOption{WithServerLogger(zap.New(core))})

	cn, err := cl.Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, cn.Close())

	require.Eventually(t, func() bool {
		return logs.FilterMessage("connection closed").Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	accepted := logs.FilterMessage("connection accepted").All()
	require.Len(t, accepted, 1)
	assert.Contains(t, accepted[0].ContextMap(), "session")
}

func TestRejectedHandshakeSendsNoCommand(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	var (
		g    errgroup.Group
		sent []byte
	)
	g.Go(func() error {
		nc, err := l.Accept()
		if err != nil {
			return err
		}
		defer nc.Close()

		if err := newConn(nc, 5*time.Second, 5*time.Second).greet(false); err != nil {
			return err
		}

		// Everything the client sends until it hangs up.
		sent, err = io.ReadAll(nc)
		return err
	})

	cfg := config.Default().Client
	cfg.Port = l.Addr().(*net.TCPAddr).Port

	cl, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = cl.Do(context.Background(), Delete{Name: "x"})
	assert.ErrorIs(t, err, ErrConnectionRejected)

	require.NoError(t, g.Wait())
	assert.Empty(t, sent)
}

func TestServerAbandonedPut(t *testing.T) {
	mem := store.NewMemory()
	srv, err := NewServer(mem)
	require.NoError(t, err)

	a, b := net.Pipe()

	var g errgroup.Group
	g.Go(func() error {
		return srv.ServeConn(context.Background(), b)
	})

	p := peer{a}
	require.NoError(t, p.expectResponse(frame.NewStatus(true)))

	// PUT abandoned by the client because it could not read its file.
	_, err = a.Write([]byte{0x02, 0x00, 0x01, 'x'})
	require.NoError(t, err)
	require.NoError(t, p.reply(frame.NewError(frame.ReasonFileNotFound)))

	_, err = a.Write([]byte{0x04})
	require.NoError(t, err)
	require.NoError(t, p.expectResponse(frame.NewSize(0)))

	require.NoError(t, a.Close())
	require.NoError(t, g.Wait())
}

func TestServerProtocolError(t *testing.T) {
	srv, err := NewServer(store.NewMemory())
	require.NoError(t, err)

	a, b := net.Pipe()
	defer a.Close()

	var g errgroup.Group
	g.Go(func() error {
		return srv.ServeConn(context.Background(), b)
	})

	p := peer{a}
	require.NoError(t, p.expectResponse(frame.NewStatus(true)))

	// A RESPONSE tag where a command is expected.
	_, err = a.Write([]byte{0x05})
	require.NoError(t, err)

	var perr *frame.ProtocolError
	assert.ErrorAs(t, g.Wait(), &perr)
}

// flakyDialer fails the first `fails` dials, then hands out pipes served by srv.
type flakyDialer struct {
	srv   *Server
	fails int32
	calls atomic.Int32
}

func (d *flakyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.calls.Add(1) <= d.fails {
		return nil, errors.New("connection refused")
	}

	a, b := net.Pipe()
	go d.srv.ServeConn(context.Background(), b)
	return a, nil
}

func TestDialRetry(t *testing.T) {
	srv, err := NewServer(store.NewMemory())
	require.NoError(t, err)

	cfg := config.Default().Client
	cfg.DialAttempts = 3
	cfg.DialRetryDelay = config.Duration{Duration: time.Millisecond}

	d := &flakyDialer{srv: srv, fails: 2}
	cl, err := NewClient(cfg, WithDialer(d))
	require.NoError(t, err)

	entries, err := cl.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(3), d.calls.Load())

	cfg.DialAttempts = 1
	d = &flakyDialer{srv: srv, fails: 2}
	cl, err = NewClient(cfg, WithDialer(d))
	require.NoError(t, err)

	_, err = cl.Dial(context.Background())
	assert.ErrorIs(t, err, ErrConnectionBreak)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestClientOptions(t *testing.T) {
	cfg := config.Default().Client

	_, err := NewClient(cfg, WithChunkSize(0))
	assert.Error(t, err)

	_, err = NewClient(cfg, WithTimeout(-time.Second))
	assert.Error(t, err)

	_, err = NewClient(cfg, WithObserver(nil))
	assert.Error(t, err)

	cfg.Port = 0
	_, err = NewClient(cfg)
	assert.Error(t, err)
}

func TestServerOptions(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(store.NewMemory(), WithMaxConns(-1))
	assert.Error(t, err)

	_, err = NewServer(store.NewMemory(), WithServerTimeout(-1, 0))
	assert.Error(t, err)
}
