package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
	"github.com/dsouza-anush/open-deep-research/internal/config"
	"github.com/dsouza-anush/open-deep-research/internal/export"
	"github.com/dsouza-anush/open-deep-research/internal/research"
	"github.com/dsouza-anush/open-deep-research/internal/store"
	"github.com/dsouza-anush/open-deep-research/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deep-research: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	// Log to a file next to the database; stdout belongs to the TUI.
	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))
	slog.SetDefault(logger)

	client := research.NewClient(cfg.ServerURL, logger)

	if cfg.Ask != "" {
		return runAsk(cfg, client)
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, err := chat.NewManager(st, logger)
	if err != nil {
		return err
	}
	ctrl := research.NewController(mgr, logger)
	exporter, err := export.New("")
	if err != nil {
		return err
	}

	model := ui.NewModel(cfg, st, mgr, ctrl, client, exporter, logger)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// runAsk runs a single research query without the TUI: progress goes to
// stderr, the rendered report to stdout.
func runAsk(cfg config.AppConfig, client *research.Client) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobID, err := client.StartJob(ctx, cfg.Ask, research.JobOptions{})
	if err != nil {
		return fmt.Errorf("start research job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "job %s started\n", jobID)

	poller := research.NewPoller(jobID)
	outcome := poller.Run(ctx, cfg.PollInterval, client.JobStatus, func(progress string) {
		fmt.Fprintf(os.Stderr, "... %s\n", progress)
	})

	if outcome.Kind != research.OutcomeCompleted {
		return fmt.Errorf("research did not complete: %s", outcome.Text)
	}

	if cfg.Out != "" {
		if err := os.WriteFile(cfg.Out, []byte(outcome.Text), 0o644); err != nil {
			return fmt.Errorf("write report file: %w", err)
		}
	}

	rendered := outcome.Text
	if r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(cfg.GlamourStyle),
		glamour.WithWordWrap(100),
	); err == nil {
		if out, renderErr := r.Render(outcome.Text); renderErr == nil {
			rendered = out
		}
	}
	fmt.Print(rendered)
	return nil
}
