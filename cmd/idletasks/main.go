package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-idle-tasks/core"
	"github.com/Swind/go-idle-tasks/internal/config"
)

const envKey = "env"

// appEnv is what every command needs: the loaded config and a logger.
type appEnv struct {
	cfg    config.Config
	logger *logrus.Logger
}

func (e *appEnv) coreLogger(command string) core.Logger {
	return core.NewLogrusLogger(e.logger).With(core.F("command", command))
}

func envFrom(c *cli.Context) *appEnv {
	return c.App.Metadata[envKey].(*appEnv)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "idletasks",
		Usage: "Run cooperative task batches on idle slices and bounded async slots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"IDLETASKS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the config file",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
			}
			if lvl := c.String("log-level"); lvl != "" {
				cfg.LogLevel = lvl
				if _, err := cfg.Level(); err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[envKey] = &appEnv{cfg: cfg, logger: cfg.NewLogger()}
			return nil
		},
		Commands: []*cli.Command{
			syncCommand(),
			asyncCommand(),
			pipelineCommand(),
			serveCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
