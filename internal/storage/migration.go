package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

// MigrateVersionToR2 copies a version's bytes from whatever backend
// currently holds them to r2 and returns loc with its r2 half
// (R2Key/R2PublicURL) filled in and its source half kept. The caller is
// responsible for persisting the dual-pointed
// locator transactionally: both storageId and r2Key/r2PublicUrl may be
// populated simultaneously mid-migration, and readers prefer the
// S3-compatible locator when both are set.
func (r *Registry) MigrateVersionToR2(ctx context.Context, loc Locator, assetID ids.AssetID, version int, filename, contentType string, size int64) (Locator, error) {
	ctx, span := tracer.Start(ctx, "storage.MigrateVersionToR2",
		trace.WithAttributes(attribute.String("storage.asset_id", assetID.String())))
	defer span.End()

	if !r.HasR2() {
		return Locator{}, apperror.New(apperror.KindBackendFailure, "r2 backend is not configured")
	}
	if loc.HasR2() {
		return loc, nil
	}

	src, err := r.ForLocator(loc)
	if err != nil {
		return Locator{}, err
	}
	dst, err := r.Get(ids.BackendR2)
	if err != nil {
		return Locator{}, err
	}

	body, err := src.ReadBytes(ctx, loc)
	if err != nil {
		span.RecordError(err)
		return Locator{}, fmt.Errorf("read source bytes: %w", err)
	}
	defer body.Close()

	newLoc, err := dst.WriteBytes(ctx, assetID, version, filename, body, size, contentType)
	if err != nil {
		span.RecordError(err)
		return Locator{}, fmt.Errorf("write r2 bytes: %w", err)
	}

	// keep the source half of the locator so readers still in flight
	// against it are unaffected; r2 becomes Preferred() once R2Key is set.
	merged := loc
	merged.Backend = newLoc.Backend
	merged.R2Key = newLoc.R2Key
	merged.R2PublicURL = newLoc.R2PublicURL
	return merged, nil
}
