//go:build wireinject
// +build wireinject

package injector

import (
	"context"
	"fmt"

	"github.com/google/wire"

	"github.com/docboxhq/docbox/internal/conf"
	"github.com/docboxhq/docbox/internal/eventreconciler"
	"github.com/docboxhq/docbox/internal/ingest"
	"github.com/docboxhq/docbox/internal/objectstore"
	"github.com/docboxhq/docbox/internal/pkg/database"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	pkgredis "github.com/docboxhq/docbox/internal/pkg/redis"
	"github.com/docboxhq/docbox/internal/pkg/workerpool"
	"github.com/docboxhq/docbox/internal/presigned"
	"github.com/docboxhq/docbox/internal/processing"
	"github.com/docboxhq/docbox/internal/tenant"
)

// ProviderSet is the Wire provider set for the docbox daemon. It is kept
// as documentation of the dependency graph (this file never compiles
// into the binary; see cmd/server/main.go for the hand-wired
// equivalent, same as the teacher's own wire.go/main.go split).
var ProviderSet = wire.NewSet(
	rootProviderSet,
	tenantProviderSet,
	processingProviderSet,
)

var rootProviderSet = wire.NewSet(
	provideRootDatabase,
	provideRedisClient,
	provideWorkerPool,
)

var tenantProviderSet = wire.NewSet(
	tenant.New,
)

var processingProviderSet = wire.NewSet(
	processing.NewPlanner,
	processing.NewDerivationHandler,
	processing.NewQueue,
	ingest.New,
	presigned.New,
	provideObjectStoreFactory,
	provideEventReconciler,
)

// InitializeApp wires the whole daemon graph; wire generates the real
// body of this function into wire_gen.go.
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}

func provideRootDatabase(config *conf.Config, log *logger.Logger) (*database.DB, error) {
	return database.New(&database.Config{
		Host: config.RootDB.Host, Port: config.RootDB.Port,
		User: config.RootDB.User, Password: config.RootDB.Password,
		DBName: config.RootDB.DBName, SSLMode: config.RootDB.SSLMode,
		MaxIdleConns: config.RootDB.MaxIdleConns, MaxOpenConns: config.RootDB.MaxOpenConns,
		ConnMaxLifetime: config.RootDB.ConnMaxLifetime, ConnMaxIdleTime: config.RootDB.ConnMaxIdleTime,
		LogLevel: config.RootDB.LogLevel, SlowThreshold: config.RootDB.SlowThreshold,
		AutoMigrate: config.RootDB.AutoMigrate, PreferSimpleProtocol: config.RootDB.PreferSimpleProtocol,
	}, log)
}

func provideRedisClient(config *conf.Config, log *logger.Logger) (*pkgredis.Client, error) {
	return pkgredis.New(&pkgredis.Config{
		Mode: pkgredis.ModeSingle,
		MasterAddr: fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password, DB: config.Redis.DB,
	}, log)
}

func provideWorkerPool(config *conf.Config, log *logger.Logger) (*workerpool.Pool, error) {
	return workerpool.New(&workerpool.Config{
		InitialWorkers: config.Processing.IngestWorkers,
		QueueSize:      config.Processing.IngestQueueSize,
	}, log.Logger)
}

func provideObjectStoreFactory(config *conf.Config) processing.ObjectStoreFactory {
	return func(bucket string) (objectstore.Adapter, error) {
		return objectstore.New(context.Background(), config.S3, bucket)
	}
}

func provideEventReconciler(config *conf.Config, registry *tenant.Registry, finalize eventreconciler.TaskFinalizer, log *logger.Logger, t tenant.Handle) (*eventreconciler.Reconciler, error) {
	return eventreconciler.New(context.Background(), config.SQS, config.S3, t.EventQueueURL, t.Tenant.ID, finalize, log)
}
