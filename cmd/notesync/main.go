package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nbarrett/notesync/internal/cloud"
	"github.com/nbarrett/notesync/internal/config"
	"github.com/nbarrett/notesync/internal/logging"
	"github.com/nbarrett/notesync/internal/store"
	"github.com/nbarrett/notesync/internal/sync"
)

var Version = "dev"

func main() {
	// Handle the store subcommands before config loading: they work
	// offline and need no cloud credentials.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "export":
			exitOn(exportNotes())
			return
		case "import":
			exitOn(importNotes())
			return
		}
	}

	exitOn(run())
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exportNotes writes the note collection as YAML to stdout.
func exportNotes() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Export(os.Stdout)
}

// importNotes reads a YAML note collection from stdin. Imported notes
// start local-only and are uploaded by the next sync pass.
func importNotes() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.Import(os.Stdin)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "imported %d notes\n", count)

	return nil
}

func openStore() (*store.Store, error) {
	if path := os.Getenv("NOTESYNC_DATA_PATH"); path != "" {
		return store.LoadAt(path)
	}

	return store.Load()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("notesync starting",
		slog.String("version", Version),
		slog.Bool("sync", cfg.EnableSync),
	)

	if !cfg.EnableSync {
		logger.Info("sync disabled, nothing to run")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runSync(gctx, cfg, logger)
	})

	return g.Wait()
}

// runSync drives the sync engine: one pass immediately, then one per
// interval until the context is cancelled.
func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		st  *store.Store
		err error
	)

	if cfg.DataPath != "" {
		st, err = store.LoadAt(cfg.DataPath)
	} else {
		st, err = store.Load()
	}
	if err != nil {
		return fmt.Errorf("loading note store: %w", err)
	}
	defer st.Close()

	client := cloud.NewClient(cfg.APIBaseURL, cfg.APIToken, nil)
	orch := sync.NewOrchestrator(st, client, cfg.UserID, logger)

	syncOnce := func() {
		err := orch.Sync(ctx)
		switch {
		case err == nil:
		case errors.Is(err, sync.ErrSyncInProgress):
			logger.Debug("sync pass skipped, previous still running")
		case errors.Is(err, sync.ErrConflictPending):
			logger.Debug("sync pass skipped, conflicts pending")
		default:
			logger.Error("sync pass failed", slog.String("error", err.Error()))
		}

		if orch.State() == sync.StateConflictPending {
			logConflicts(logger, orch)
		}
	}

	syncOnce()

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sync daemon stopping")
			return ctx.Err()
		case <-ticker.C:
			syncOnce()
		}
	}
}

// logConflicts reports the notes awaiting manual resolution. The daemon
// has no interactive surface, so resolution happens through whatever
// frontend drives the orchestrator; here we only surface the halt.
func logConflicts(logger *slog.Logger, orch *sync.Orchestrator) {
	conflicts := orch.Conflicts()
	logger.Warn("sync halted on conflicts", slog.Int("count", len(conflicts)))

	for _, c := range conflicts {
		logger.Warn("conflict pending",
			slog.String("note_id", c.NoteID),
			slog.String("title", c.Local.Title),
			slog.String("type", string(c.Type)),
		)
	}
}
