package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/vaultiq/mediavault/cmd/conversion-worker/worker"
	"github.com/vaultiq/mediavault/common/bootstrap"
	"github.com/vaultiq/mediavault/common/storage"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Conversion jobs carry everything they need; no database here.
	components, err := bootstrap.Setup(ctx, "conversion-worker", bootstrap.WithoutDB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("conversion-worker starting")

	disks := make([]storage.Disk, 0, len(components.Config.Storage.Disks))
	for name, root := range components.Config.Storage.Disks {
		disks = append(disks, storage.NewLocalDisk(name, osfs.New(root)))
	}

	conversionWorker := worker.NewConversionWorker(&worker.ConversionWorkerOpts{
		Redis:       components.Redis,
		Disks:       storage.NewRegistry(disks...),
		Logger:      components.Logger,
		MaxAttempts: components.Config.Cleanup.MaxAttempts,
		BaseBackoff: components.Config.Cleanup.BaseBackoff,
	})

	errChan := make(chan error, 1)
	go func() {
		if err := conversionWorker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("conversion worker error: %w", err)
		}
	}()

	components.Logger.Info("conversion-worker started successfully")

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
