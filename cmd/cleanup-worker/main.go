package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/vaultiq/mediavault/cmd/cleanup-worker/worker"
	"github.com/vaultiq/mediavault/common/bootstrap"
	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/queue"
	"github.com/vaultiq/mediavault/common/repository"
	rediscommon "github.com/vaultiq/mediavault/common/redis"
	"github.com/vaultiq/mediavault/common/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "cleanup-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("cleanup-worker starting")

	cfg := components.Config
	log := components.Logger

	disks := make([]storage.Disk, 0, len(cfg.Storage.Disks))
	for name, root := range cfg.Storage.Disks {
		disks = append(disks, storage.NewLocalDisk(name, osfs.New(root)))
	}
	registry := storage.NewRegistry(disks...)

	redisClient := rediscommon.NewClient(components.Redis, log)
	scheduler := cleanup.NewScheduler(&cleanup.SchedulerOpts{
		States:     repository.NewCleanupStateRepository(components.DB),
		Dispatcher: queue.NewRedisDispatcher(redisClient, log),
		Clock:      components.Clock,
		Logger:     log,
	})

	cleanupWorker := worker.NewCleanupWorker(&worker.CleanupWorkerOpts{
		Redis:      components.Redis,
		Scheduler:  scheduler,
		Executor:   cleanup.NewExecutor(registry, log),
		Quarantine: quarantine.NewStore(osfs.New(cfg.Quarantine.Root), components.Clock, log),
		Config:     cfg,
		Logger:     log,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := cleanupWorker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("cleanup worker error: %w", err)
		}
	}()

	components.Logger.Info("cleanup-worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("worker failed", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}
}
