package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/aristath/taskcycle/internal/config"
	"github.com/aristath/taskcycle/internal/dispatch"
	"github.com/aristath/taskcycle/internal/engine"
	"github.com/aristath/taskcycle/internal/events"
	"github.com/aristath/taskcycle/internal/store"
	"github.com/aristath/taskcycle/internal/trigger"
)

var log = logging.Logger("taskcycle/daemon")

// cleanupTask prunes files older than a week from the daemon's scratch
// directory. Ships as the built-in example of a scheduled task.
type cleanupTask struct {
	dir string
}

func (t *cleanupTask) Name() string { return "ScratchCleanup" }

func (t *cleanupTask) Run(ctx context.Context, report func(float64)) error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading scratch dir: %w", err)
	}

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(t.dir, entry.Name())); err != nil {
				log.Warnw("removing stale file", "file", entry.Name(), "error", err)
			}
		}
		report(float64(i+1) / float64(len(entries)) * 100)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewSQLiteStore(ctx, cfg.DatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	bus := events.NewBus()
	defer bus.Close()

	dispatcher := dispatch.NewQueueDispatcher(cfg.QueueLength, cfg.MaxConcurrent)
	dispatcher.Start(ctx)

	worker := engine.NewWorker(engine.WorkerConfig{
		Task:       &cleanupTask{dir: filepath.Join(cfg.DataDir, "scratch")},
		Store:      st,
		Dispatcher: dispatcher,
		Notifier:   bus,
		DefaultTriggers: []trigger.Descriptor{
			{Type: trigger.TypeCron, Expression: "0 3 * * *"},
			{Type: trigger.TypeStartup, Options: map[string]string{"delay": "1m"}},
		},
	})

	// Log every run outcome.
	sub := bus.Subscribe(events.TopicExecution, cfg.EventBufferSize)
	go func() {
		for ev := range sub {
			if ended, ok := ev.(events.ExecutionEndedEvent); ok {
				log.Infow("run finished",
					"task", ended.Result.Name,
					"outcome", ended.Result.Outcome,
					"duration", ended.Result.Duration())
			}
		}
	}()

	if err := worker.StartTriggers(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting triggers: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Infow("shutting down")

	// A close mid-run records the run as aborted before teardown.
	if err := worker.Close(); err != nil {
		log.Errorw("closing worker", "error", err)
	}
	dispatcher.Wait()
}
