package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/connection"
	"github.com/ent0n29/chatform/internal/httpapi"
	"github.com/ent0n29/chatform/internal/journal"
	"github.com/ent0n29/chatform/internal/observability"
	"github.com/ent0n29/chatform/internal/rtc"
	"github.com/ent0n29/chatform/internal/session"
	"github.com/ent0n29/chatform/internal/shell"
)

type TransportInfo struct {
	Provider  string
	ServerURL string
	Journal   string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Runner   *shell.Runner
	Journal  *journal.Recorder
	Metrics  *observability.Metrics
	Fetcher  connection.Fetcher
	Dialer   rtc.Dialer
	Info     TransportInfo

	// Cleanup should be called on shutdown to flush the journal and close its store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, journalKind, err := journal.NewStore(ctx, cfg.DatabaseURL, cfg.JournalSQLitePath)
	if err != nil {
		return nil, fmt.Errorf("journal store init failed: %w", err)
	}
	recorder := journal.NewRecorder(store, logger)

	dialer, provider, err := rtc.NewDialer(rtc.Config{
		Provider:      cfg.RTCProvider,
		ServerURL:     cfg.RTCServerURL,
		AgentIdentity: cfg.AgentIdentity,
		Mock:          rtc.MockConfig{DisplayDelay: cfg.MockDisplayDelay},
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("rtc dialer init failed: %w", err)
	}

	serverURL := cfg.RTCServerURL
	if provider == "mock" && serverURL == "" {
		serverURL = "mock://local"
	}
	fetcher := connection.NewProvider(connection.Config{
		TokenServiceURL: cfg.TokenServiceURL,
		ServerURL:       serverURL,
		CallerID:        cfg.TokenCallerID,
		CallerField:     cfg.TokenCallerField,
		ParticipantName: cfg.ParticipantName,
		Timeout:         cfg.TokenFetchTimeout,
	}, connection.WithObserver(metrics.ObserveTokenFetch))

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		recorder.Record(s.ID, journal.KindSessionExpired, "")
	})

	runner := shell.NewRunner(fetcher, dialer, shell.RunnerConfig{
		UI: cfg.UI,
		Coordinator: session.CoordinatorConfig{
			AgentIdentity: cfg.AgentIdentity,
			SubmitTimeout: cfg.LeadSubmitTimeout,
		},
		Logger:   logger,
		Metrics:  metrics,
		Journal:  recorder,
		Sessions: sessions,
	})

	api := httpapi.New(cfg, sessions, runner, recorder, metrics)

	cleanup := func() error {
		var errs []string
		recorder.Flush()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Runner:   runner,
		Journal:  recorder,
		Metrics:  metrics,
		Fetcher:  fetcher,
		Dialer:   dialer,
		Info: TransportInfo{
			Provider:  provider,
			ServerURL: serverURL,
			Journal:   journalKind,
		},
		Cleanup: cleanup,
	}, nil
}
