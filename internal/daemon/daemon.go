package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"peerctl/internal/events"
	"peerctl/internal/model"
)

// Outcomes of a daemon call.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

const DefaultTimeout = 30 * time.Second

var ErrDisabled = errors.New("daemon control disabled")

// Controller applies configuration to the running WireGuard daemon.
type Controller interface {
	// Apply updates the peer list in place.
	Apply(ctx context.Context, conf string) error
	// Restart fully restarts the interface; conf is the current server config.
	Restart(ctx context.Context, conf string) error
}

// Inspector is implemented by controllers that can list the live peers.
type Inspector interface {
	LivePeers(ctx context.Context) ([]model.LivePeer, error)
}

// Result reports a daemon call. It is informational; callers never fail on it.
type Result struct {
	Outcome  string
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Syncer runs controller calls under a timeout and reports them through logs and events.
type Syncer struct {
	Controller Controller
	Timeout    time.Duration
	Logger     *slog.Logger
	Publisher  events.Publisher
}

// Sync pushes conf to the daemon without restarting it.
func (s *Syncer) Sync(ctx context.Context, conf string) Result {
	return s.call(ctx, model.EventDaemonSync, func(ctx context.Context) error {
		return s.Controller.Apply(ctx, conf)
	})
}

// Restart restarts the daemon.
func (s *Syncer) Restart(ctx context.Context, conf string) Result {
	return s.call(ctx, model.EventDaemonRestart, func(ctx context.Context) error {
		return s.Controller.Restart(ctx, conf)
	})
}

func (s *Syncer) call(ctx context.Context, kind string, fn func(context.Context) error) Result {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var err error
	if s.Controller == nil {
		err = ErrDisabled
	} else {
		err = fn(ctx)
	}
	res := Result{Outcome: OutcomeSuccess, Err: err, Duration: time.Since(start)}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimeout
	default:
		res.Outcome = OutcomeFailure
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Warn("daemon call did not succeed",
			slog.String("kind", kind),
			slog.String("outcome", res.Outcome),
			slog.Duration("duration", res.Duration),
			slog.String("error", err.Error()))
	} else {
		logger.Debug("daemon call succeeded",
			slog.String("kind", kind),
			slog.Duration("duration", res.Duration))
	}

	if s.Publisher != nil {
		ev := model.Event{Kind: kind, Outcome: res.Outcome, Duration: res.Duration}
		if err != nil {
			ev.Detail = err.Error()
		}
		s.Publisher.Publish(ev)
	}
	return res
}

// Disabled is the controller used when daemon control is turned off.
type Disabled struct{}

func (Disabled) Apply(context.Context, string) error   { return ErrDisabled }
func (Disabled) Restart(context.Context, string) error { return ErrDisabled }
