package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/typesense/typesense-go/v2/typesense"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/conf"
	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/docbox/store"
	"github.com/docboxhq/docbox/internal/eventreconciler"
	"github.com/docboxhq/docbox/internal/ingest"
	"github.com/docboxhq/docbox/internal/objectstore"
	"github.com/docboxhq/docbox/internal/pkg/database"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	pkgredis "github.com/docboxhq/docbox/internal/pkg/redis"
	"github.com/docboxhq/docbox/internal/pkg/rpcclient"
	"github.com/docboxhq/docbox/internal/pkg/workerpool"
	"github.com/docboxhq/docbox/internal/presigned"
	"github.com/docboxhq/docbox/internal/processing"
	"github.com/docboxhq/docbox/internal/search"
	"github.com/docboxhq/docbox/internal/tenant"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

// tenantResources bundles the per-tenant components the daemon needs to
// keep running: the presigned-upload coordinator for reconciled S3
// events, and the event reconciler itself.
type tenantResources struct {
	tenantID   string
	presigned  *presigned.Coordinator
	reconciler *eventreconciler.Reconciler
}

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	rootDB, err := database.New(&database.Config{
		Host: config.RootDB.Host, Port: config.RootDB.Port,
		User: config.RootDB.User, Password: config.RootDB.Password,
		DBName: config.RootDB.DBName, SSLMode: config.RootDB.SSLMode,
		MaxIdleConns: config.RootDB.MaxIdleConns, MaxOpenConns: config.RootDB.MaxOpenConns,
		ConnMaxLifetime: config.RootDB.ConnMaxLifetime, ConnMaxIdleTime: config.RootDB.ConnMaxIdleTime,
		LogLevel: config.RootDB.LogLevel, SlowThreshold: config.RootDB.SlowThreshold,
		AutoMigrate: config.RootDB.AutoMigrate, PreferSimpleProtocol: config.RootDB.PreferSimpleProtocol,
	}, log)
	if err != nil {
		log.Fatal("failed to open root database", zap.Error(err))
	}

	rootDBCfg := &database.Config{
		Host: config.RootDB.Host, Port: config.RootDB.Port,
		User: config.RootDB.User, Password: config.RootDB.Password,
		SSLMode: config.RootDB.SSLMode,
		MaxIdleConns: config.RootDB.MaxIdleConns, MaxOpenConns: config.RootDB.MaxOpenConns,
		ConnMaxLifetime: config.RootDB.ConnMaxLifetime, ConnMaxIdleTime: config.RootDB.ConnMaxIdleTime,
		LogLevel: config.RootDB.LogLevel, SlowThreshold: config.RootDB.SlowThreshold,
		PreferSimpleProtocol: config.RootDB.PreferSimpleProtocol,
	}

	redisClient, err := pkgredis.New(&pkgredis.Config{
		Mode:       pkgredis.ModeSingle,
		MasterAddr: fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password:   config.Redis.Password,
		DB:         config.Redis.DB,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	registry := tenant.New(rootDB, rootDBCfg, redisClient, log, 5*time.Minute)

	pool, err := workerpool.New(&workerpool.Config{
		InitialWorkers: config.Processing.IngestWorkers,
		QueueSize:      config.Processing.IngestQueueSize,
	}, log.Logger)
	if err != nil {
		log.Fatal("failed to start ingest worker pool", zap.Error(err))
	}

	planner := buildPlanner(config)

	var tsClient *typesense.Client
	if config.Search.Backend == "typesense" {
		tsClient = typesense.NewClient(
			typesense.WithServer(config.Search.TypesenseURL),
			typesense.WithAPIKey(config.Search.TypesenseKey),
		)
	}

	objectAdapters := &adapterCache{adapters: make(map[string]objectstore.Adapter)}
	searchBackends := &backendCache{backends: make(map[string]search.Backend), tsClient: tsClient, backend: config.Search.Backend}

	objectFactory := func(bucket string) (objectstore.Adapter, error) {
		return objectAdapters.get(bucket, config.S3)
	}
	searchFactory := func(handle tenant.Handle) (search.Backend, error) {
		return searchBackends.get(handle)
	}

	derivationHandler := processing.NewDerivationHandler(registry, config.Server.Env, objectFactory, searchFactory, planner, log)
	queue := processing.NewQueue(redisClient, derivationHandler, log, config.Processing.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Start(ctx); err != nil {
		log.Fatal("failed to start derivation queue", zap.Error(err))
	}
	defer queue.Stop()

	go func() {
		if err := registry.WatchInvalidations(ctx); err != nil && ctx.Err() == nil {
			log.Error("tenant invalidation watcher stopped", zap.Error(err))
		}
	}()

	tenants, err := registry.All(ctx)
	if err != nil {
		log.Fatal("failed to list tenants", zap.Error(err))
	}

	resources := make([]*tenantResources, 0, len(tenants))
	for _, t := range tenants {
		res, err := buildTenantResources(ctx, config, registry, objectFactory, searchFactory, queue, pool, t, log)
		if err != nil {
			log.Error("failed to wire tenant, skipping", zap.String("tenant_id", t.ID.String()), zap.Error(err))
			continue
		}
		resources = append(resources, res)
	}

	var wg sync.WaitGroup
	for _, res := range resources {
		wg.Add(1)
		go func(res *tenantResources) {
			defer wg.Done()
			if err := res.reconciler.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("event reconciler stopped", zap.String("tenant_id", res.tenantID), zap.Error(err))
			}
		}(res)
	}

	sweepInterval := config.Processing.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweepLoop(ctx, resources, sweepInterval, log)
	}()

	log.Info("docbox daemon started",
		zap.Int("tenants", len(resources)),
		zap.Int("derivation_workers", config.Processing.Workers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down docbox daemon...")
	cancel()
	queue.Stop()
	pool.Shutdown()
	wg.Wait()

	log.Info("docbox daemon exited")
}

// buildPlanner selects the PDF/office backends per conf.RPCConfig.UseLocal,
// mirroring the choice §6 leaves to deployment (in-process go-fitz vs the
// external RPC processor).
func buildPlanner(config *conf.Config) *processing.Planner {
	var pdf processing.PDFExtractor
	if config.PDF.UseLocal {
		pdf = processing.LocalPDFExtractor{}
	} else {
		pdf = processing.NewHTTPPDFExtractor(rpcclient.New(config.PDF))
	}
	office := processing.NewHTTPOfficeConverter(rpcclient.New(config.Office))

	return processing.NewPlanner(processing.PlanConfig{
		SmallThumbnailPx: config.Processing.SmallThumbnailPx,
		LargeThumbnailPx: config.Processing.LargeThumbnailPx,
		TextChunkBytes:   config.Processing.TextChunkBytes,
	}, pdf, office)
}

// buildTenantResources resolves one tenant's Handle and wires the
// ingest/presigned/reconciler stack bound to it. internal/linkmeta is
// not wired here: it answers request-time "resolve this link" calls
// from the API surface that spec.md §1 puts outside this daemon.
func buildTenantResources(
	ctx context.Context,
	config *conf.Config,
	registry *tenant.Registry,
	objectFactory processing.ObjectStoreFactory,
	searchFactory processing.SearchBackendFactory,
	queue *processing.Queue,
	pool *workerpool.Pool,
	t model.Tenant,
	log *logger.Logger,
) (*tenantResources, error) {
	handle, err := registry.Resolve(ctx, t.Env, t.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	objects, err := objectFactory(handle.Bucket)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}

	searchBackend, err := searchFactory(handle)
	if err != nil {
		return nil, fmt.Errorf("build search backend: %w", err)
	}

	files := store.NewFileStore(handle.DB)
	folders := store.NewFolderStore(handle.DB)
	history := store.NewEditHistoryStore(handle.DB)
	presignedStore := store.NewPresignedTaskStore(handle.DB)

	ingestCoordinator := ingest.New(handle.DB, files, folders, history, presignedStore, objects, searchBackend, queue, pool, log)
	presignedCoordinator := presigned.New(presignedStore, objects, ingestCoordinator, log)

	reconciler, err := eventreconciler.New(ctx, config.SQS, config.S3, handle.EventQueueURL, t.ID, presignedCoordinator, log)
	if err != nil {
		return nil, fmt.Errorf("build event reconciler: %w", err)
	}

	return &tenantResources{tenantID: t.ID.String(), presigned: presignedCoordinator, reconciler: reconciler}, nil
}

// runSweepLoop periodically expires stale PresignedUploadTasks (§4.4) for
// every wired tenant until ctx is canceled.
func runSweepLoop(ctx context.Context, resources []*tenantResources, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, res := range resources {
				n, err := res.presigned.SweepExpired(ctx)
				if err != nil {
					log.Error("presigned sweep failed", zap.String("tenant_id", res.tenantID), zap.Error(err))
					continue
				}
				if n > 0 {
					log.Info("swept expired presigned tasks", zap.String("tenant_id", res.tenantID), zap.Int("count", n))
				}
			}
		}
	}
}

// adapterCache memoizes one objectstore.Adapter per bucket for the
// process lifetime, since each adapter owns its own S3 client.
type adapterCache struct {
	mu       sync.Mutex
	adapters map[string]objectstore.Adapter
}

func (c *adapterCache) get(bucket string, cfg conf.S3Config) (objectstore.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.adapters[bucket]; ok {
		return a, nil
	}
	a, err := objectstore.New(context.Background(), cfg, bucket)
	if err != nil {
		return nil, err
	}
	c.adapters[bucket] = a
	return a, nil
}

// backendCache memoizes one search.Backend per tenant index name. The
// Typesense client is shared process-wide; Postgres backends wrap the
// already-cached per-tenant *database.DB from the tenant registry.
type backendCache struct {
	mu       sync.Mutex
	backends map[string]search.Backend
	tsClient *typesense.Client
	backend  string
}

func (c *backendCache) get(handle tenant.Handle) (search.Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.backends[handle.IndexName]; ok {
		return b, nil
	}

	var b search.Backend
	switch c.backend {
	case "typesense":
		if c.tsClient == nil {
			return nil, fmt.Errorf("typesense backend selected but client not configured")
		}
		b = search.NewTypesenseBackend(c.tsClient, handle.IndexName)
	default:
		b = search.NewPostgresBackend(handle.DB)
	}
	c.backends[handle.IndexName] = b
	return b, nil
}
