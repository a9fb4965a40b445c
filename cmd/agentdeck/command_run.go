package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	agentclient "agentdeck/internal/client"
	"agentdeck/internal/logging"
	"agentdeck/internal/registry"
	"agentdeck/internal/streamrun"
	"agentdeck/internal/workdir"
)

func runCommand(wiring commandWiring) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "start an action and stream its output until it finishes",
		ArgsUsage: "<action>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "session the action belongs to"},
			&cli.StringFlag{Name: "dir", Usage: "working directory for the action"},
			&cli.StringSliceFlag{Name: "param", Usage: "action parameter as key=value (repeatable)"},
			&cli.BoolFlag{Name: "quiet", Usage: "print only the head and tail of the output once the action settles"},
		},
		Description: "Actions: " + strings.Join(agentclient.Actions(), ", ") + ".\n" +
			"Interrupted streams are resumed from the last received log line.",
		Action: func(c *cli.Context) error {
			action := strings.TrimSpace(c.Args().First())
			if action == "" {
				return errors.New("run requires an action")
			}
			if !agentclient.IsAction(action) {
				return fmt.Errorf("unknown action %q (expected one of %s)", action, strings.Join(agentclient.Actions(), ", "))
			}
			params, err := parseParams(c.StringSlice("param"))
			if err != nil {
				return err
			}
			dir, err := workdir.Resolve("", c.String("dir"), nil)
			if err != nil {
				return err
			}
			env, err := wiring.env(c, false)
			if err != nil {
				return err
			}
			client, err := wiring.client(env)
			if err != nil {
				return err
			}
			req := agentclient.ActionRequest{
				SessionID: c.String("session"),
				Directory: dir,
				Params:    params,
			}
			return runAction(c.Context, actionRun{
				action: action,
				req:    req,
				quiet:  c.Bool("quiet"),
				client: client,
				env:    env,
				stdout: wiring.stdout,
				stderr: wiring.stderr,
			})
		},
	}
}

type actionRun struct {
	action string
	req    agentclient.ActionRequest
	quiet  bool
	client commandClient
	env    commandEnv
	stdout io.Writer
	stderr io.Writer
}

func runAction(ctx context.Context, run actionRun) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := run.env.cfg
	logger := run.env.logger.With(logging.F("action", run.action))
	printer := &logPrinter{out: run.stdout, notices: run.stderr, follow: !run.quiet}
	runs := registry.New(registry.Config{
		Stream: streamrun.Config{
			MaxReconnects:  cfg.MaxReconnects(),
			ReconnectDelay: cfg.ReconnectDelay(),
			MaxDelay:       cfg.ReconnectMaxDelay(),
			IsPermanent:    agentclient.IsPermanent,
			Logger:         logger,
		},
		HeadLines: cfg.HeadLines(),
		TailLines: cfg.TailLines(),
		Logger:    logger,
		OnChange:  printer.observe,
	})
	entry, err := runs.Start(run.action, actionStarter(run.client, run.action, run.req))
	if err != nil {
		return err
	}
	logger.Info("action_started", logging.F("run_id", entry.RunID()))
	state, err := entry.Controller.Wait(ctx)
	if err != nil {
		runs.Remove(run.action)
		return err
	}
	if run.quiet {
		for _, line := range entry.Lines() {
			fmt.Fprintln(run.stdout, line)
		}
	}
	return reportResult(run.stdout, run.action, state)
}

// logPrinter streams new log lines from controller snapshots and reports
// reconnect attempts.
type logPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	notices    io.Writer
	follow     bool
	printed    int
	reconnects int
}

func (p *logPrinter) observe(_ string, state streamrun.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.Reconnecting && state.ReconnectionCount > p.reconnects {
		p.reconnects = state.ReconnectionCount
		if p.notices != nil {
			fmt.Fprintf(p.notices, "connection lost, reconnecting (attempt %d)\n", p.reconnects)
		}
	}
	if !p.follow {
		return
	}
	if len(state.Logs) < p.printed {
		p.printed = 0
	}
	for _, line := range state.Logs[p.printed:] {
		fmt.Fprintln(p.out, line)
	}
	p.printed = len(state.Logs)
}

func reportResult(out io.Writer, action string, state streamrun.State) error {
	if state.Result == nil {
		return fmt.Errorf("%s: finished without a result", action)
	}
	result := state.Result
	if !result.OK {
		return fmt.Errorf("%s failed: %s", action, result.Message)
	}
	message := result.Message
	if message == "" {
		message = "ok"
	}
	fmt.Fprintf(out, "%s: %s\n", action, message)
	keys := make([]string, 0, len(result.Extra))
	for key := range result.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %s: %v\n", key, result.Extra[key])
	}
	return nil
}

func parseParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param %q (expected key=value)", item)
		}
		params[key] = value
	}
	return params, nil
}
