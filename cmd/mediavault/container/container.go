package container

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/vaultiq/mediavault/cmd/mediavault/repository"
	"github.com/vaultiq/mediavault/cmd/mediavault/service"
	"github.com/vaultiq/mediavault/common/bootstrap"
	"github.com/vaultiq/mediavault/common/cache"
	"github.com/vaultiq/mediavault/common/cleanup"
	"github.com/vaultiq/mediavault/common/db"
	"github.com/vaultiq/mediavault/common/quarantine"
	"github.com/vaultiq/mediavault/common/queue"
	"github.com/vaultiq/mediavault/common/ratelimit"
	commonrepo "github.com/vaultiq/mediavault/common/repository"
	rediscommon "github.com/vaultiq/mediavault/common/redis"
	"github.com/vaultiq/mediavault/common/scan"
	"github.com/vaultiq/mediavault/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	TxManager  *db.TxManager

	// Repositories
	OwnerRepo        *repository.OwnerRepository
	MediaRepo        *repository.MediaRepository
	CleanupStateRepo *commonrepo.CleanupStateRepository

	// Infrastructure
	Quarantine  *quarantine.Store
	Disks       *storage.Registry
	Breaker     *scan.Breaker
	Dispatcher  *queue.RedisDispatcher
	RateLimiter *ratelimit.Limiter
	MediaCache  *cache.ArtifactCache

	// Services
	Scanner            *scan.Coordinator
	CleanupScheduler   *cleanup.Scheduler
	ReplacementService *service.MediaReplacementService
	UploadService      *service.UploadService
	MediaService       *service.MediaService
	OwnerService       *service.OwnerService
	MaintenanceService *service.MaintenanceService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	redisClient := rediscommon.NewClient(components.Redis, log)

	// Repositories
	ownerRepo := repository.NewOwnerRepository(components.DB)
	mediaRepo := repository.NewMediaRepository(components.DB)
	cleanupStateRepo := commonrepo.NewCleanupStateRepository(components.DB)

	txManager := db.NewTxManager(components.DB, log)

	// Storage disks
	disks := make([]storage.Disk, 0, len(cfg.Storage.Disks))
	for name, root := range cfg.Storage.Disks {
		disks = append(disks, storage.NewLocalDisk(name, osfs.New(root)))
	}
	registry := storage.NewRegistry(disks...)
	if _, err := registry.Get(cfg.Storage.DefaultDisk); err != nil {
		return nil, fmt.Errorf("default disk not configured: %w", err)
	}

	// Quarantine staging area
	quarantineStore := quarantine.NewStore(osfs.New(cfg.Quarantine.Root), components.Clock, log)

	// Scan stack
	validator := scan.NewValidator(scan.ValidatorConfig{
		MaxFileSize:       cfg.Quarantine.MaxFileSize,
		MaxPixels:         cfg.Scanner.MaxPixels,
		MaxDimension:      cfg.Scanner.MaxDimension,
		MaxDecompression:  cfg.Scanner.MaxDecompression,
		AllowedExtensions: cfg.Scanner.AllowedExtensions,
	})

	heuristic, err := scan.NewHeuristic(cfg.Scanner.HeuristicScanSize, scan.DefaultSuspiciousPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build heuristic scanner: %w", err)
	}

	engine := scan.NewClamAVEngine(cfg.Scanner.Binary, cfg.Scanner.Timeout, log)
	counters := scan.NewRedisCounterStore(components.Redis)
	breaker := scan.NewBreaker(counters, cfg.Scanner.BreakerThreshold, cfg.Scanner.BreakerWindow, log)

	scanner := scan.NewCoordinator(&scan.CoordinatorOpts{
		Store:     quarantineStore,
		Validator: validator,
		Heuristic: heuristic,
		Engine:    engine,
		Breaker:   breaker,
		Logger:    log,
	})

	dispatcher := queue.NewRedisDispatcher(redisClient, log)

	rateLimiter := ratelimit.NewLimiter(components.Redis, log)
	mediaCache := cache.New(cfg.Cache.Size, cfg.Cache.TTL)

	// Services (bottom-up: dependencies first)
	cleanupScheduler := cleanup.NewScheduler(&cleanup.SchedulerOpts{
		States:     cleanupStateRepo,
		Dispatcher: dispatcher,
		Clock:      components.Clock,
		Logger:     log,
	})

	replacementService := service.NewMediaReplacementService(&service.MediaReplacementOpts{
		Owners:      ownerRepo,
		Media:       mediaRepo,
		Tx:          txManager,
		Quarantine:  quarantineStore,
		Scheduler:   cleanupScheduler,
		Dispatcher:  dispatcher,
		Disks:       registry,
		DefaultDisk: cfg.Storage.DefaultDisk,
		Clock:       components.Clock,
		Logger:      log,
	})

	uploadService := service.NewUploadService(&service.UploadServiceOpts{
		Quarantine: quarantineStore,
		Scanner:    scanner,
		Replacer:   replacementService,
		MaxBytes:   cfg.Quarantine.MaxFileSize,
		Logger:     log,
	})

	mediaService := service.NewMediaService(&service.MediaServiceOpts{
		Media:  mediaRepo,
		Disks:  registry,
		Cache:  mediaCache,
		Logger: log,
	})

	ownerService := service.NewOwnerService(&service.OwnerServiceOpts{
		Owners: ownerRepo,
		Clock:  components.Clock,
		Logger: log,
	})

	maintenanceService := service.NewMaintenanceService(&service.MaintenanceServiceOpts{
		Quarantine:       quarantineStore,
		Scheduler:        cleanupScheduler,
		Breaker:          breaker,
		QuarantineMaxAge: cfg.Quarantine.MaxAge,
		PayloadTTL:       cfg.Cleanup.PayloadTTL,
		SweepBatch:       cfg.Cleanup.SweepBatch,
		Logger:           log,
	})

	return &Container{
		Components:         components,
		Redis:              redisClient,
		TxManager:          txManager,
		OwnerRepo:          ownerRepo,
		MediaRepo:          mediaRepo,
		CleanupStateRepo:   cleanupStateRepo,
		Quarantine:         quarantineStore,
		Disks:              registry,
		Breaker:            breaker,
		Dispatcher:         dispatcher,
		RateLimiter:        rateLimiter,
		MediaCache:         mediaCache,
		Scanner:            scanner,
		CleanupScheduler:   cleanupScheduler,
		ReplacementService: replacementService,
		UploadService:      uploadService,
		MediaService:       mediaService,
		OwnerService:       ownerService,
		MaintenanceService: maintenanceService,
	}, nil
}
