package catalog

import (
	"context"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

// ListVersionsMissingR2 returns every version whose locator has not yet
// been backfilled to r2, oldest first, for the migrateAllToR2 job
// (SPEC_FULL.md domain stack: background jobs).
func (r *Repository) ListVersionsMissingR2(ctx context.Context, limit int) ([]AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListVersionsMissingR2")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM asset_versions
		WHERE r2_key IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AssetVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetVersionLocator persists the result of a backend migration (e.g.
// storage.Registry.MigrateVersionToR2) against an existing version row.
// It does not touch state or published_version_id.
func (r *Repository) SetVersionLocator(ctx context.Context, versionID ids.VersionID, loc storage.Locator) error {
	ctx, span := tracer.Start(ctx, "catalog.SetVersionLocator")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		UPDATE asset_versions
		SET backend = $1, storage_id = $2, r2_key = $3, r2_public_url = $4
		WHERE id = $5`,
		string(loc.Backend), nullString(loc.StorageID), nullString(loc.R2Key), nullString(loc.R2PublicURL),
		[16]byte(versionID))
	return err
}
