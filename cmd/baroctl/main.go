// Package main is the baroctl command: one-off sensor reads and the
// sampling service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "baro-go/drivers/mpl3115a2/mplsim"
	"baro-go/services/config"
)

const (
	flagLogLevel = "log-level"
	flagConfig   = "config"
	flagEmbedded = "embedded"

	flagBackend  = "backend"
	flagBus      = "bus"
	flagAddr     = "addr"
	flagSigned   = "signed"
	flagMaxPolls = "max-polls"
	flagOS       = "oversampling"
	flagCount    = "count"
	flagInterval = "interval"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "baroctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "baroctl",
		Usage: "read MPL3115A2 pressure sensors and run the sampling service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "debug, info, warn or error; overrides the config file",
			},
		},
		Commands: []*cli.Command{
			readCommand(),
			watchCommand(),
			serveCommand(),
		},
	}
}

// configFlags are shared by the commands that run the service.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  flagEmbedded,
			Value: "sim",
			Usage: "built-in configuration used when --config is not set",
		},
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	if path := c.String(flagConfig); path != "" {
		return config.Load(path)
	}
	return config.Embedded(c.String(flagEmbedded))
}

// newLogger builds a console logger at the --log-level flag, falling back to
// level when the flag is unset.
func newLogger(c *cli.Context, level string) (*zap.Logger, error) {
	if l := c.String(flagLogLevel); l != "" {
		level = l
	}
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
