package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

var tracer = otel.Tracer("convex-versioned-assets/storage")

// Config is the top-level storage configuration, read once at process
// startup and handed down as a capability rather than re-read from the
// environment inside leaf packages.
type Config struct {
	Convex ConvexConfig `yaml:"convex"`
	R2     R2Config     `yaml:"r2"`
}

// Registry holds both backends by kind and resolves which one a new
// write should target. Config is read once per process and the primary
// is fixed by NewRegistry, so changing which backend new uploads target
// takes a restart with the new configuration.
type Registry struct {
	backends map[ids.Backend]Backend
	primary  ids.Backend
}

// NewRegistry constructs both backends and selects a primary. convex is
// always available; r2 is wired in only when its credentials are
// configured (R2Config.Enabled), in which case it becomes primary for
// new writes, a migration-friendly default.
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	convexBackend, err := NewConvexBackend(cfg.Convex)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		backends: map[ids.Backend]Backend{
			ids.BackendConvex: convexBackend,
		},
		primary: ids.BackendConvex,
	}

	if cfg.R2.Enabled() {
		r2Backend, err := NewR2Backend(ctx, cfg.R2)
		if err != nil {
			return nil, err
		}
		reg.backends[ids.BackendR2] = r2Backend
		reg.primary = ids.BackendR2
	}

	return reg, nil
}

// Primary returns the backend new uploads are issued against.
func (r *Registry) Primary() Backend {
	return r.backends[r.primary]
}

// Get resolves the backend a given locator or version record belongs to.
func (r *Registry) Get(kind ids.Backend) (Backend, error) {
	b, ok := r.backends[kind]
	if !ok {
		return nil, apperror.New(apperror.KindBackendFailure, fmt.Sprintf("backend %q is not configured", kind))
	}
	return b, nil
}

// ForLocator resolves the backend that should serve loc, preferring r2
// when a version is mid-migration and both locator halves are set.
func (r *Registry) ForLocator(loc Locator) (Backend, error) {
	return r.Get(loc.Preferred())
}

// HasR2 reports whether the r2 backend is configured at all, used by the
// migration engine and the migrateAllToR2 job to short-circuit when
// there is nothing to migrate to.
func (r *Registry) HasR2() bool {
	_, ok := r.backends[ids.BackendR2]
	return ok
}
