package injector

import (
	"github.com/docboxhq/docbox/internal/conf"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	"github.com/docboxhq/docbox/internal/presigned"
	"github.com/docboxhq/docbox/internal/processing"
	"github.com/docboxhq/docbox/internal/tenant"
)

// App encapsulates every long-running component of the docbox
// background daemon: no HTTP/gRPC surface is built here (out of scope
// per spec.md §1), only the tenant registry, the derivation queue, and
// the per-tenant reconciler/sweeper loops cmd/server drives.
type App struct {
	Config    *conf.Config
	Logger    *logger.Logger
	Registry  *tenant.Registry
	Queue     *processing.Queue
	Presigned *presigned.Coordinator
	cleanup   func()
}

// Cleanup releases all resources acquired during wiring.
func (a *App) Cleanup() {
	if a.cleanup != nil {
		a.cleanup()
	}
}
