package main

import (
	"context"

	agentclient "agentdeck/internal/client"
	"agentdeck/internal/config"
	"agentdeck/internal/logging"
	"agentdeck/internal/streamrun"
	"agentdeck/internal/types"
)

type clientFactory func(cfg config.Config, logger logging.Logger) (commandClient, error)

type commandClient interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	SessionEvents(ctx context.Context, id string, transport string) (streamrun.Stream, error)
	StartAction(ctx context.Context, action string, req agentclient.ActionRequest, cursor int) (streamrun.Stream, error)
}

type agentClientAdapter struct {
	client *agentclient.Client
}

func newAgentClient(cfg config.Config, logger logging.Logger) (commandClient, error) {
	tokenPath, err := cfg.TokenFilePath()
	if err != nil {
		return nil, err
	}
	client := agentclient.New(agentclient.Options{
		BaseURL:           cfg.ServerBaseURL(),
		Token:             cfg.Server.Token,
		TokenPath:         tokenPath,
		RequestsPerSecond: cfg.RequestsPerSecond(),
		StreamDebug:       cfg.StreamDebugEnabled(),
		Logger:            logger,
	})
	return &agentClientAdapter{client: client}, nil
}

func (c *agentClientAdapter) ListSessions(ctx context.Context) ([]types.Session, error) {
	return c.client.ListSessions(ctx)
}

func (c *agentClientAdapter) SessionEvents(ctx context.Context, id string, transport string) (streamrun.Stream, error) {
	open := c.client.SessionEvents
	if transport == config.TransportWebSocket {
		open = c.client.SessionEventsWS
	}
	stream, err := open(ctx, id)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *agentClientAdapter) StartAction(ctx context.Context, action string, req agentclient.ActionRequest, cursor int) (streamrun.Stream, error) {
	stream, err := c.client.StartAction(ctx, action, req, cursor)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// actionStarter binds an action request to the controller's start contract.
// Each reconnect reissues the request with the current log cursor.
func actionStarter(c commandClient, action string, req agentclient.ActionRequest) streamrun.StartFunc {
	return func(ctx context.Context, cursor int) (streamrun.Stream, error) {
		return c.StartAction(ctx, action, req, cursor)
	}
}
