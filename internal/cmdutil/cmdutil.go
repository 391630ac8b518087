// Package cmdutil holds the setup shared by the xfer and xferd commands.
package cmdutil

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pkg/xfer/config"
	xlog "github.com/pkg/xfer/log"
)

// ConfigFlag is the --config flag understood by both commands.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML config file",
	EnvVars: []string{config.EnvPrefix + "_CONFIG"},
}

// LogLevelFlag is the --log-level flag understood by both commands.
var LogLevelFlag = &cli.StringFlag{
	Name:  "log-level",
	Usage: "debug, info, warn or error",
}

// LoadConfig builds the configuration from defaults, the --config file and XFER_* variables.
// Flags are applied by the caller.
func LoadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()

	if path := c.String(ConfigFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if c.IsSet(LogLevelFlag.Name) {
		cfg.Log.Level = c.String(LogLevelFlag.Name)
	}

	return cfg, nil
}

// Logger returns a logger on stderr; entries are rendered for humans when stderr is a terminal.
func Logger(cfg *config.Config) (*zap.Logger, error) {
	return xlog.New(os.Stderr, cfg.Log.Level, term.IsTerminal(int(os.Stderr.Fd())))
}

// ExitErrHandler prints err and exits with its code, or 1 if it carries none.
func ExitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
