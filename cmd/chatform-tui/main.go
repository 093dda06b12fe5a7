package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/ent0n29/chatform/internal/app"
	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/tui"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI; logs go to a file when asked for.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if path := os.Getenv("CHATFORM_TUI_LOG"); path != "" {
		f, err := tea.LogToFile(path, "chatform")
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = built.Cleanup() }()

	sess := built.Sessions.Create("terminal")
	toShell := make(chan any, 16)
	fromShell := make(chan any, 64)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(fromShell)
		if err := built.Runner.RunConnection(ctx, sess, toShell, fromShell); err != nil {
			logger.Warn("shell run failed", "error", err)
		}
	}()

	p := tea.NewProgram(tui.NewModel(cfg.UI, sess.ID, toShell, fromShell), tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	<-runDone
	_, _ = built.Sessions.End(sess.ID)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", runErr)
		os.Exit(1)
	}
}
