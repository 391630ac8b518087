// Command xfer runs one command against an xfer server.
//
// Usage:
//
//	xfer [global options] get NAME [LOCAL]
//	xfer [global options] put LOCAL [NAME]
//	xfer [global options] list
//	xfer [global options] delete NAME
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pkg/xfer"
	"github.com/pkg/xfer/config"
	"github.com/pkg/xfer/internal/cmdutil"
	xlog "github.com/pkg/xfer/log"
)

func main() {
	app := &cli.App{
		Name:           "xfer",
		Usage:          "transfer files to and from an xfer server",
		ExitErrHandler: cmdutil.ExitErrHandler,
		Flags: []cli.Flag{
			cmdutil.ConfigFlag,
			cmdutil.LogLevelFlag,
			&cli.StringFlag{Name: "host", Aliases: []string{"H"}, Usage: "server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "server port"},
			&cli.IntFlag{Name: "chunk-size", Usage: "body chunk size in bytes"},
			&cli.DurationFlag{Name: "timeout", Usage: "read and write timeout per socket operation"},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "download a file",
				ArgsUsage: "NAME [LOCAL]",
				Action:    getAction,
			},
			{
				Name:      "put",
				Usage:     "upload a file",
				ArgsUsage: "LOCAL [NAME]",
				Action:    putAction,
			},
			{
				Name:   "list",
				Usage:  "list the files on the server",
				Action: listAction,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "delete a file",
				ArgsUsage: "NAME",
				Action:    deleteAction,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}

// newClient builds a client from config, environment and flags, in increasing precedence.
func newClient(c *cli.Context) (*xfer.Client, error) {
	cfg, err := cmdutil.LoadConfig(c)
	if err != nil {
		return nil, err
	}

	applyFlags(c, &cfg.Client)

	logger, err := cmdutil.Logger(cfg)
	if err != nil {
		return nil, err
	}

	return xfer.NewClient(cfg.Client,
		xfer.WithLogger(logger),
		xfer.WithObserver(xlog.NewObserver(logger)),
	)
}

func applyFlags(c *cli.Context, cfg *config.Client) {
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("chunk-size") {
		cfg.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("timeout") {
		cfg.ReadTimeout = config.Duration{Duration: c.Duration("timeout")}
		cfg.WriteTimeout = cfg.ReadTimeout
	}
}

func getAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: xfer get NAME [LOCAL]", 2)
	}

	cl, err := newClient(c)
	if err != nil {
		return err
	}

	name := c.Args().Get(0)
	local := c.Args().Get(1)
	if local == "" {
		local = name
	}

	n, err := cl.Download(c.Context, name, local)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: %d bytes\n", local, n)
	return nil
}

func putAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: xfer put LOCAL [NAME]", 2)
	}

	cl, err := newClient(c)
	if err != nil {
		return err
	}

	local := c.Args().Get(0)
	name := c.Args().Get(1)
	if name == "" {
		name = filepath.Base(local)
	}

	n, err := cl.Upload(c.Context, local, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: %d bytes\n", name, n)
	return nil
}

func listAction(c *cli.Context) error {
	if c.NArg() != 0 {
		return cli.Exit("usage: xfer list", 2)
	}

	cl, err := newClient(c)
	if err != nil {
		return err
	}

	entries, err := cl.List(c.Context)
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintf(c.App.Writer, "%12d  %s\n", e.Size, e.Name)
	}
	return nil
}

func deleteAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: xfer delete NAME", 2)
	}

	cl, err := newClient(c)
	if err != nil {
		return err
	}

	return cl.Delete(c.Context, c.Args().First())
}
