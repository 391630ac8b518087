package xfer

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/pkg/xfer/encoding/frame"
)

// Command is one client request: Get, Put, List or Delete.
type Command interface {
	Opcode() frame.Opcode

	sealed()
}

// Get downloads Name into LocalPath, or into Name in the working directory if LocalPath is empty.
type Get struct {
	Name      string
	LocalPath string
}

// Put uploads LocalPath as Name. An empty Name uploads under LocalPath's base name.
type Put struct {
	Name      string
	LocalPath string
}

// List fetches the server's listing.
type List struct{}

// Delete removes Name on the server.
type Delete struct {
	Name string
}

func (Get) Opcode() frame.Opcode    { return frame.OpGet }
func (Put) Opcode() frame.Opcode    { return frame.OpPut }
func (List) Opcode() frame.Opcode   { return frame.OpList }
func (Delete) Opcode() frame.Opcode { return frame.OpDelete }

func (Get) sealed()    {}
func (Put) sealed()    {}
func (List) sealed()   {}
func (Delete) sealed() {}

// Result is the outcome of a successful command.
type Result struct {
	Op frame.Opcode

	// Bytes is the body size moved by Get or Put.
	Bytes int64

	// Entries is the listing returned by List.
	Entries []frame.Entry
}

// Do runs cmd on the connection. cmd may also be a pointer to one of the variants.
func (cn *Conn) Do(ctx context.Context, cmd Command) (*Result, error) {
	cmd, err := deref(cmd)
	if err != nil {
		return nil, err
	}

	res := &Result{Op: cmd.Opcode()}

	switch cmd := cmd.(type) {
	case Get:
		local := cmd.LocalPath
		if local == "" {
			local = cmd.Name
		}
		res.Bytes, err = cn.GetFile(ctx, cmd.Name, local)

	case Put:
		name := cmd.Name
		if name == "" {
			name = filepath.Base(cmd.LocalPath)
		}
		res.Bytes, err = cn.PutFile(ctx, name, cmd.LocalPath)

	case List:
		res.Entries, err = cn.List(ctx)

	case Delete:
		err = cn.Delete(ctx, cmd.Name)

	default:
		err = errors.Errorf("xfer: unknown command %T", cmd)
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

// deref turns a pointer to a variant into the variant itself.
func deref(cmd Command) (Command, error) {
	switch c := cmd.(type) {
	case *Get:
		if c != nil {
			return *c, nil
		}
	case *Put:
		if c != nil {
			return *c, nil
		}
	case *List:
		if c != nil {
			return *c, nil
		}
	case *Delete:
		if c != nil {
			return *c, nil
		}
	case nil:
	default:
		return cmd, nil
	}
	return nil, errors.Errorf("xfer: nil command %T", cmd)
}

// Do dials the server, runs cmd on a fresh connection and closes it.
func (cl *Client) Do(ctx context.Context, cmd Command) (*Result, error) {
	cn, err := cl.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cn.Close()

	return cn.Do(ctx, cmd)
}

// Download fetches name into localPath on a fresh connection.
func (cl *Client) Download(ctx context.Context, name, localPath string) (int64, error) {
	res, err := cl.Do(ctx, Get{Name: name, LocalPath: localPath})
	if err != nil {
		return 0, err
	}
	return res.Bytes, nil
}

// Upload sends localPath as name on a fresh connection.
func (cl *Client) Upload(ctx context.Context, localPath, name string) (int64, error) {
	res, err := cl.Do(ctx, Put{Name: name, LocalPath: localPath})
	if err != nil {
		return 0, err
	}
	return res.Bytes, nil
}

// List fetches the server's listing on a fresh connection.
func (cl *Client) List(ctx context.Context) ([]frame.Entry, error) {
	res, err := cl.Do(ctx, List{})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Delete removes name on the server over a fresh connection.
func (cl *Client) Delete(ctx context.Context, name string) error {
	_, err := cl.Do(ctx, Delete{Name: name})
	return err
}
