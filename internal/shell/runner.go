package shell

import (
	"context"
	"log/slog"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/connection"
	"github.com/ent0n29/chatform/internal/journal"
	"github.com/ent0n29/chatform/internal/observability"
	"github.com/ent0n29/chatform/internal/rtc"
	"github.com/ent0n29/chatform/internal/session"
)

type RunnerConfig struct {
	UI          config.UI
	Coordinator session.CoordinatorConfig
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Journal     *journal.Recorder
	Sessions    *session.Manager
}

// Runner mounts a fresh coordinator and shell for every connection.
type Runner struct {
	fetcher connection.Fetcher
	dialer  rtc.Dialer
	cfg     RunnerConfig
}

func NewRunner(fetcher connection.Fetcher, dialer rtc.Dialer, cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{fetcher: fetcher, dialer: dialer, cfg: cfg}
}

func (r *Runner) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	logger := r.cfg.Logger.With("session_id", s.ID)

	coordCfg := r.cfg.Coordinator
	coordCfg.Logger = logger
	if r.cfg.Metrics != nil && coordCfg.OnDrop == nil {
		dropped := r.cfg.Metrics.DroppedEvents
		coordCfg.OnDrop = func(t session.EventType) {
			dropped.WithLabelValues(string(t)).Inc()
		}
	}
	coord := session.NewCoordinator(r.dialer, coordCfg)

	sh := New(Config{
		SessionID: s.ID,
		UI:        r.cfg.UI,
		Logger:    logger,
		Metrics:   r.cfg.Metrics,
		Journal:   r.cfg.Journal,
		Sessions:  r.cfg.Sessions,
	}, r.fetcher, coord)
	return sh.Run(ctx, inbound, outbound)
}
