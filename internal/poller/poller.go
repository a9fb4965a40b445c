package poller

import (
	"context"
	"strings"
	"time"

	"agentdeck/internal/logging"
	"agentdeck/internal/types"
)

const (
	DefaultInterval = 1500 * time.Millisecond
	sourcePoll      = "poll"
)

type SessionLister interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
}

// StatusTracker is the single writer the poller reports through.
type StatusTracker interface {
	Apply(id string, status types.SessionStatus, source string) bool
	Status(id string) (types.SessionStatus, bool)
	Subscribe(id string) (<-chan types.SessionStatus, func())
}

type Poller struct {
	lister   SessionLister
	tracker  StatusTracker
	interval time.Duration
	logger   logging.Logger
}

func New(lister SessionLister, tracker StatusTracker, interval time.Duration, logger logging.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{
		lister:   lister,
		tracker:  tracker,
		interval: interval,
		logger:   logger,
	}
}

// Run polls the session list while sessionID is starting. It returns nil as
// soon as the tracked status leaves starting, whichever source reported it,
// and ctx.Err() when ctx is canceled first.
func (p *Poller) Run(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if p == nil || p.lister == nil || p.tracker == nil || sessionID == "" {
		return nil
	}
	if p.settled(sessionID) {
		return nil
	}
	changes, cancel := p.tracker.Subscribe(sessionID)
	defer cancel()

	logger := p.logger.With(logging.F("session_id", sessionID))
	logger.Debug("status_poll_start", logging.F("interval", p.interval))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status, ok := <-changes:
			if !ok || !status.Transitional() {
				logger.Debug("status_poll_stop", logging.F("status", string(status)))
				return nil
			}
		case <-ticker.C:
			p.poll(ctx, sessionID, logger)
			if p.settled(sessionID) {
				logger.Debug("status_poll_stop")
				return nil
			}
		}
	}
}

func (p *Poller) settled(sessionID string) bool {
	status, ok := p.tracker.Status(sessionID)
	return ok && !status.Transitional()
}

func (p *Poller) poll(ctx context.Context, sessionID string, logger logging.Logger) {
	list, err := p.lister.ListSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("status_poll_error", logging.F("error", err))
		}
		return
	}
	for _, session := range list {
		if session.ID != sessionID {
			continue
		}
		p.tracker.Apply(sessionID, session.Status, sourcePoll)
		return
	}
	logger.Debug("status_poll_missing")
}
