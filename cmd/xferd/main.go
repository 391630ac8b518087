// Command xferd serves files to xfer clients until interrupted.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pkg/xfer"
	"github.com/pkg/xfer/config"
	"github.com/pkg/xfer/internal/cmdutil"
	xlog "github.com/pkg/xfer/log"
	"github.com/pkg/xfer/store"
)

func main() {
	app := &cli.App{
		Name:           "xferd",
		Usage:          "serve files over the xfer protocol",
		ExitErrHandler: cmdutil.ExitErrHandler,
		Flags: []cli.Flag{
			cmdutil.ConfigFlag,
			cmdutil.LogLevelFlag,
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen address"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "directory served by the dir backend"},
			&cli.StringFlag{Name: "backend", Usage: "storage backend: dir, memory or s3"},
			&cli.IntFlag{Name: "max-conns", Usage: "connections served at once (0 = no limit)"},
		},
		Action: serve,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := cmdutil.LoadConfig(c)
	if err != nil {
		return err
	}

	if c.IsSet("listen") {
		cfg.Server.Listen = c.String("listen")
	}
	if c.IsSet("root") {
		cfg.Server.Root = c.String("root")
	}
	if c.IsSet("backend") {
		cfg.Server.Backend = c.String("backend")
	}
	if c.IsSet("max-conns") {
		cfg.Server.MaxConns = c.Int("max-conns")
	}

	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	logger, err := cmdutil.Logger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg.Server)
	if err != nil {
		return err
	}

	srv, err := xfer.NewServer(st,
		xfer.WithServerLogger(logger),
		xfer.WithServerObserver(xlog.NewObserver(logger)),
		xfer.WithMaxConns(cfg.Server.MaxConns),
		xfer.WithServerChunkSize(cfg.Server.ChunkSize),
		xfer.WithServerTimeout(cfg.Server.ReadTimeout.Duration, cfg.Server.WriteTimeout.Duration),
	)
	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	logger.Info("serving",
		zap.String("backend", cfg.Server.Backend),
		zap.Int("max_conns", cfg.Server.MaxConns),
		zap.Int("chunk_size", cfg.Server.ChunkSize),
	)

	return srv.Serve(c.Context, l)
}

func openStore(cfg config.Server) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendDir:
		return store.NewDir(cfg.Root)

	case config.BackendMemory:
		return store.NewMemory(), nil

	case config.BackendS3:
		var opts []store.S3Option
		if cfg.S3.KMSKeyID != "" {
			opts = append(opts, store.WithKMSKey(cfg.S3.KMSKeyID))
		}
		return store.DialS3(cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.S3.Endpoint, opts...)
	}

	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}
