package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"agentdeck/internal/app"
	"agentdeck/internal/config"
	"agentdeck/internal/logging"
	"agentdeck/internal/poller"
	"agentdeck/internal/sessions"
	"agentdeck/internal/transcript"
)

func watchCommand(wiring commandWiring) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "follow a session's conversation live",
		ArgsUsage: "<session>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "plain", Usage: "print the transcript when the stream ends instead of opening the viewer"},
			&cli.StringFlag{Name: "transport", Usage: "push transport: sse or websocket (defaults to [server] transport)"},
		},
		Action: func(c *cli.Context) error {
			id := strings.TrimSpace(c.Args().First())
			if id == "" {
				return errors.New("watch requires a session id")
			}
			plain := c.Bool("plain")
			env, err := wiring.env(c, !plain)
			if err != nil {
				return err
			}
			transport := env.cfg.Transport()
			if override := c.String("transport"); override != "" {
				cfg := env.cfg
				cfg.Server.Transport = override
				transport = cfg.Transport()
			}
			client, err := wiring.client(env)
			if err != nil {
				return err
			}
			w := sessionWatch{
				id:        id,
				transport: transport,
				plain:     plain,
				client:    client,
				cfg:       env.cfg,
				logger:    env.logger.With(logging.F("session_id", id)),
				stdout:    wiring.stdout,
				runViewer: wiring.runViewer,
			}
			return w.run(c.Context)
		},
	}
}

type sessionWatch struct {
	id        string
	transport string
	plain     bool
	client    commandClient
	cfg       config.Config
	logger    logging.Logger
	stdout    io.Writer
	runViewer func(ctx context.Context, opts app.Options) error
}

func (w sessionWatch) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := sessions.NewTracker(w.logger)
	if list, err := w.client.ListSessions(ctx); err != nil {
		w.logger.Warn("watch_seed_failed", logging.F("error", err))
	} else {
		tracker.Seed(list)
	}

	stream, err := w.client.SessionEvents(ctx, w.id, w.transport)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer stream.Close()
	w.logger.Info("watch_started", logging.F("transport", w.transport))

	statusPoller := poller.New(w.client, tracker, w.cfg.PollInterval(), w.logger)
	go func() {
		if err := statusPoller.Run(ctx, w.id); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("status_poller_stopped", logging.F("error", err))
		}
	}()

	live := transcript.NewLive(transcript.Transcript{}, tracker)
	ended := make(chan error, 1)
	go func() {
		if err := live.Consume(ctx, stream.Updates()); err != nil {
			ended <- nil
			return
		}
		ended <- stream.Err()
	}()

	if w.plain {
		return w.printPlain(ctx, tracker, live, ended)
	}
	return w.runViewer(ctx, app.Options{
		SessionID:  w.id,
		Transcript: live,
		Status:     tracker,
		Ended:      ended,
		Logger:     w.logger,
	})
}

func (w sessionWatch) printPlain(ctx context.Context, tracker *sessions.Tracker, live *transcript.Live, ended <-chan error) error {
	statuses, unsubscribe := tracker.Subscribe(w.id)
	defer unsubscribe()
	for {
		select {
		case status, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			fmt.Fprintf(w.stdout, "status: %s\n", status)
		case err := <-ended:
			fmt.Fprint(w.stdout, app.PlainText(live.Snapshot()))
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("event stream: %w", err)
			}
			return nil
		case <-ctx.Done():
			fmt.Fprint(w.stdout, app.PlainText(live.Snapshot()))
			return nil
		}
	}
}
