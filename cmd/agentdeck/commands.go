package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"agentdeck/internal/app"
	"agentdeck/internal/config"
	"agentdeck/internal/logging"
)

type commandWiring struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func(path string) (config.Config, error)
	newClient  clientFactory
	runViewer  func(ctx context.Context, opts app.Options) error
	openLog    func() (io.Writer, error)
	version    string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: loadConfig,
		newClient:  newAgentClient,
		runViewer:  app.Run,
		openLog:    openUILog,
		version:    buildVersion(),
	}
}

func newApp(wiring commandWiring) *cli.App {
	return &cli.App{
		Name:      "agentdeck",
		Usage:     "watch and drive coding agent sessions",
		Version:   wiring.version,
		Writer:    wiring.stdout,
		ErrWriter: wiring.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.toml",
				EnvVars: []string{"AGENTDECK_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override [logging] level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			psCommand(wiring),
			watchCommand(wiring),
			runCommand(wiring),
			configCommand(wiring),
		},
		DisableSliceFlagSeparator: true,
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

// commandEnv is the per-invocation state shared by every command: the
// effective config and a logger built from it.
type commandEnv struct {
	cfg    config.Config
	logger logging.Logger
}

func (w commandWiring) env(c *cli.Context, toFile bool) (commandEnv, error) {
	cfg, err := w.loadConfig(c.String("config"))
	if err != nil {
		return commandEnv{}, err
	}
	levelName := cfg.LogLevel()
	if override := c.String("log-level"); override != "" {
		levelName = override
	}
	out := w.stderr
	if toFile && w.openLog != nil {
		if file, err := w.openLog(); err == nil {
			out = file
		} else {
			out = io.Discard
		}
	}
	logger := logging.NewConsole(out, logging.ParseLevel(levelName)).With(logging.F("request_id", logging.NewRequestID()))
	return commandEnv{cfg: cfg, logger: logger}, nil
}

func (w commandWiring) client(env commandEnv) (commandClient, error) {
	client, err := w.newClient(env.cfg, env.logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}

// openUILog appends to the data dir log so the terminal UI keeps the screen.
func openUILog() (io.Writer, error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
