// Recall: long-lived memory MCP server for coding sessions.
//
// Indexes markdown memory files from spec folders into a local SQLite
// database and serves search, context retrieval, checkpoints, causal links
// and learning records to any MCP client over stdio.
//
// Usage:
//
//	recall serve    # Start MCP server (stdio transport)
//	recall update   # Update to the latest version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/recall/internal/config"
	"github.com/HendryAvila/recall/internal/embeddings"
	"github.com/HendryAvila/recall/internal/server"
	"github.com/HendryAvila/recall/internal/telemetry"
	"github.com/HendryAvila/recall/internal/updater"
)

const updateTimeout = 2 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("recall v%s\n", server.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOpts := telemetry.LogOptions{Level: cfg.LogLevel}
	if cfg.LogToFile {
		logOpts.Dir = filepath.Join(cfg.DataDir, "logs")
	}
	logger, logCloser, err := telemetry.NewLogger(logOpts)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	embedder, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	rt, err := server.New(server.Options{
		Config:   cfg,
		Version:  server.Version,
		Logger:   logger,
		Embedder: embedder,
		Exit: func(code int) {
			_ = logCloser.Close()
			os.Exit(code)
		},
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("main goroutine panicked", "panic", fmt.Sprint(p))
			rt.Shutdown(server.ReasonPanic)
		}
	}()

	stop := rt.WatchSignals()
	defer stop()

	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		logger.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		rt.Shutdown(server.ReasonStartupFailed)
		return err
	}
	logger.Info("recall serving", "version", server.Version, "base_path", cfg.BasePath)

	if err := rt.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("transport failed", "error", err)
	}
	if !rt.Shutdown(server.ReasonTransportEnded) {
		// A signal got there first; let its teardown finish.
		<-rt.Done()
	}
	return nil
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "🔍 Checking for updates...\n")

	result := updater.CheckVersion(ctx, server.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "✅ Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "📦 New version available: v%s → v%s\n", result.CurrentVersion, result.LatestVersion)
	fmt.Fprintf(os.Stderr, "⬇️  Downloading...\n")

	if err := updater.SelfUpdate(ctx, server.Version); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\n   You can download manually from:\n   %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "✅ Updated to v%s!\n", result.LatestVersion)
	fmt.Fprintf(os.Stderr, "   Restart recall to use the new version.\n")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Recall v%s: memory MCP server for coding sessions

Usage:
  recall serve    Start the MCP server (stdio transport)
  recall update   Update to the latest version

Configuration:
  ~/.recall/config.yaml (or $RECALL_CONFIG), overridden by RECALL_* variables.
  Memory files live under <spec-folder>/memory/*.md below RECALL_BASE_PATH.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "recall": {
        "command": "recall",
        "args": ["serve"]
      }
    }
  }

Learn more: https://github.com/HendryAvila/recall
`, server.Version)
}
