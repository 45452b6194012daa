// Package tenant implements the tenant registry (C1): resolving a
// (env, tenant id) pair to a Handle carrying everything downstream
// components need — a tenant-scoped database connection, object bucket
// name, search index name, and event queue URL. Docbox has no ambient
// tenant: every call into a domain package starts by resolving a Handle.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/database"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	"github.com/docboxhq/docbox/internal/pkg/redis"
)

// Handle is the resolved, ready-to-use set of per-tenant resources.
type Handle struct {
	Tenant        model.Tenant
	DB            *database.DB
	Bucket        string
	IndexName     string
	EventQueueURL string
}

// Registry resolves tenants against the root database and caches Handles
// for a bounded TTL, invalidated early via a Redis pub/sub channel so a
// tenant migration or bucket rotation propagates without a restart.
type Registry struct {
	root     *database.DB
	rootCfg  *database.Config
	redis    *redis.Client
	log      *logger.Logger
	ttl      time.Duration
	mu       sync.RWMutex
	cache    map[cacheKey]cacheEntry
	openConn func(cfg *database.Config) (*database.DB, error)
}

type cacheKey struct {
	env      string
	tenantID uuid.UUID
}

type cacheEntry struct {
	handle    Handle
	expiresAt time.Time
}

const invalidationChannel = "docbox:tenant:invalidate"

// New builds a Registry. openConn is exposed as a field (not a package
// function) purely so tests can substitute a fake without opening a real
// Postgres connection per tenant.
func New(root *database.DB, rootCfg *database.Config, rc *redis.Client, log *logger.Logger, ttl time.Duration) *Registry {
	r := &Registry{
		root:    root,
		rootCfg: rootCfg,
		redis:   rc,
		log:     log,
		ttl:     ttl,
		cache:   make(map[cacheKey]cacheEntry),
	}
	r.openConn = func(cfg *database.Config) (*database.DB, error) {
		return database.New(cfg, log)
	}
	return r
}

// WatchInvalidations subscribes to the invalidation channel and evicts
// affected cache entries until ctx is canceled. Intended to run as a
// background goroutine from cmd/server.
func (r *Registry) WatchInvalidations(ctx context.Context) error {
	sub := r.redis.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := uuid.Parse(msg.Payload)
			if err != nil {
				r.log.Warn("invalid tenant invalidation payload", zap.String("payload", msg.Payload))
				continue
			}
			r.evictByID(id)
		}
	}
}

// Invalidate publishes an eviction for tenantID to every registry
// instance watching the invalidation channel, including this one.
func (r *Registry) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.redis.Publish(ctx, invalidationChannel, tenantID.String())
	return err
}

func (r *Registry) evictByID(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.cache {
		if key.tenantID == id {
			delete(r.cache, key)
		}
	}
}

// Resolve returns the Handle for (env, tenantID), consulting the cache
// first and falling back to the root database + a fresh tenant-scoped
// connection on a miss or expiry.
func (r *Registry) Resolve(ctx context.Context, env string, tenantID uuid.UUID) (Handle, error) {
	key := cacheKey{env: env, tenantID: tenantID}

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.handle, nil
	}

	var row model.Tenant
	err := r.root.WithContext(ctx).
		Where("id = ? AND env = ?", tenantID, env).
		First(&row).Error
	if err != nil {
		return Handle{}, fmt.Errorf("resolve tenant %s/%s: %w", env, tenantID, err)
	}

	tenantDB, err := r.openConn(r.rootCfg.ForTenant(row.DBName))
	if err != nil {
		return Handle{}, fmt.Errorf("open tenant database %s: %w", row.DBName, err)
	}

	handle := Handle{
		Tenant:        row,
		DB:            tenantDB,
		Bucket:        row.S3Name,
		IndexName:     row.OsIndexName,
		EventQueueURL: row.EventQueueURL,
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{handle: handle, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return handle, nil
}

// ResolveByBucket looks a tenant up by its S3 bucket name, used by the
// object-event reconciler (§4.6) which only has the bucket from the S3
// event payload, not the tenant id.
func (r *Registry) ResolveByBucket(ctx context.Context, bucket string) (Handle, error) {
	var row model.Tenant
	if err := r.root.WithContext(ctx).Where("s3_name = ?", bucket).First(&row).Error; err != nil {
		return Handle{}, fmt.Errorf("resolve tenant by bucket %s: %w", bucket, err)
	}
	return r.Resolve(ctx, row.Env, row.ID)
}

// All returns every tenant row, used by the event reconciler and the
// presigned-task sweeper to iterate every tenant's queue/expiry set.
func (r *Registry) All(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	if err := r.root.WithContext(ctx).Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}
