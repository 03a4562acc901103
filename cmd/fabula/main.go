// Package main implements the entry point for the fabula engine, which
// turns novels into interactive games. It wires together the resilient
// operation executor and the progress tracker that every remote model call
// in the system is routed through, and runs a short simulated workload to
// exercise the wiring end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/mhollis/fabula/internal/config"
	"github.com/mhollis/fabula/internal/executor"
	"github.com/mhollis/fabula/internal/platform/logger"
	"github.com/mhollis/fabula/internal/progress"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.runDemo(context.Background()); err != nil {
		log.Fatalf("Demo workload failed: %v", err)
	}
}

// application bundles the shared service handles. They are constructed once
// here and passed by reference to every consumer; nothing in the codebase
// reaches for a package-level singleton.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	exec    *executor.Executor
	tracker *progress.Tracker
}

// initializeApp loads configuration and sets up application components.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	exec, err := executor.New(executor.ConfigFrom(cfg.Executor), appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	tracker := progress.NewTracker(appLogger)

	slog.Info("engine configured",
		"log_level", cfg.Server.LogLevel,
		"max_retries", cfg.Executor.MaxRetries,
		"max_concurrent", cfg.Executor.MaxConcurrent,
		"timeout_ms", cfg.Executor.TimeoutMs)

	return &application{
		cfg:     cfg,
		logger:  appLogger,
		exec:    exec,
		tracker: tracker,
	}, nil
}

// runDemo drives a simulated novel-analysis pipeline through the executor
// and tracker: each step performs one flaky "remote" call, and progress is
// reported both through a subscription and the final snapshot.
func (a *application) runDemo(ctx context.Context) error {
	const opID = "novel-analysis"
	steps := []progress.StepDef{
		{ID: "load-text", Name: "Load novel text", Weight: 1},
		{ID: "identify-characters", Name: "Identify characters", Weight: 3},
		{ID: "extract-plot", Name: "Extract plot points", Weight: 2},
		{ID: "assemble-game", Name: "Assemble game script", Weight: 1},
	}

	result, err := progress.Run(a.tracker, ctx, opID, steps,
		func(ctx context.Context) (string, error) {
			var last string
			for _, s := range steps {
				if err := a.tracker.StartStep(opID, s.ID); err != nil {
					return "", err
				}
				value, err := executor.Execute(a.exec, ctx, a.simulatedCall(s.ID), &executor.Hooks{
					OnRetry: func(attempt int, err error, delay time.Duration) {
						a.logger.Warn("step call retrying",
							"step_id", s.ID,
							"attempt", attempt,
							"delay", delay,
							"error", err)
					},
				})
				if err != nil {
					return "", err
				}
				if err := a.tracker.CompleteStep(opID, s.ID); err != nil {
					return "", err
				}
				last = value
			}
			return last, nil
		},
		func(snap progress.Snapshot) {
			a.logger.Info("progress",
				"operation_id", snap.OperationID,
				"status", snap.Status,
				"progress_pct", fmt.Sprintf("%.1f", snap.Progress),
				"completed_steps", snap.CompletedSteps,
				"total_steps", snap.TotalSteps,
				"remaining", snap.Remaining)
		})
	if err != nil {
		return err
	}

	a.logger.Info("demo workload finished", "result", result)
	return nil
}

// simulatedCall stands in for a remote model call. The character step is
// rate limited on its first attempt so the retry path is exercised.
func (a *application) simulatedCall(stepID string) executor.Operation[string] {
	limited := false
	return func(ctx context.Context) (string, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if stepID == "identify-characters" && !limited {
			limited = true
			return "", &executor.StatusError{Code: 429, Message: "model is overloaded"}
		}
		return stepID + " ok", nil
	}
}
