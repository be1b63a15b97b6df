package catalog

import (
	"errors"

	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/pathutil"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

const versionColumns = `id, asset_id, version, state, created_at, label, size, content_type, original_filename, backend, storage_id, r2_key, r2_public_url`

const versionColumnsAliasedAV = `av.id, av.asset_id, av.version, av.state, av.created_at, av.label, av.size, av.content_type, av.original_filename, av.backend, av.storage_id, av.r2_key, av.r2_public_url`

func scanVersion(row pgx.Row) (AssetVersion, error) {
	var v AssetVersion
	var id, assetID [16]byte
	var label, storageID, r2Key, r2PublicURL *string
	var backend string

	if err := row.Scan(&id, &assetID, &v.Version, &v.State, &v.CreatedAt, &label, &v.Size, &v.ContentType,
		&v.OriginalFilename, &backend, &storageID, &r2Key, &r2PublicURL); err != nil {
		return AssetVersion{}, err
	}

	v.ID = ids.VersionID(id)
	v.AssetID = ids.AssetID(assetID)
	if label != nil {
		v.Label = *label
	}
	v.Locator = storage.Locator{Backend: ids.Backend(backend)}
	if storageID != nil {
		v.Locator.StorageID = *storageID
	}
	if r2Key != nil {
		v.Locator.R2Key = *r2Key
	}
	if r2PublicURL != nil {
		v.Locator.R2PublicURL = *r2PublicURL
	}
	return v, nil
}

// GetAssetVersions returns every version of an asset, newest first. The
// full version history is retained; versions are never deleted, only
// archived.
func (r *Repository) GetAssetVersions(ctx context.Context, assetID ids.AssetID) ([]AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.GetAssetVersions")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM asset_versions WHERE asset_id = $1 ORDER BY version DESC`, [16]byte(assetID))
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

func (r *Repository) getVersionTx(ctx context.Context, tx dbtx, id ids.VersionID) (AssetVersion, error) {
	row := tx.QueryRow(ctx, `SELECT `+versionColumns+` FROM asset_versions WHERE id = $1`, [16]byte(id))
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AssetVersion{}, apperror.New(apperror.KindVersionNotFound, "version not found")
	}
	return v, err
}

// GetVersion returns a version by id outside any transaction, for the
// read-only preview/signed-url/text-content operations.
func (r *Repository) GetVersion(ctx context.Context, id ids.VersionID) (AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.GetVersion")
	defer span.End()

	row := r.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM asset_versions WHERE id = $1`, [16]byte(id))
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AssetVersion{}, apperror.New(apperror.KindVersionNotFound, "version not found")
	}
	return v, err
}

// GetPublishedFile returns the currently published version at
// folderPath/basename, or apperror.KindVersionNotFound if the asset has
// never published one. An asset with no published version is invisible
// to readers.
func (r *Repository) GetPublishedFile(ctx context.Context, folderPath, basename string) (AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.GetPublishedFile")
	defer span.End()

	folderPath = pathutil.Normalize(folderPath)
	row := r.pool.QueryRow(ctx, `
		SELECT `+versionColumnsAliasedAV+`
		FROM assets a
		JOIN asset_versions av ON av.id = a.published_version_id
		WHERE a.folder_path = $1 AND a.basename = $2`, folderPath, basename)
	v, err := scanVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AssetVersion{}, apperror.New(apperror.KindVersionNotFound, "no published version for "+basename)
	}
	return v, err
}

// ListPublishedFilesInFolder returns the published version of every
// asset directly inside folderPath that currently has one.
func (r *Repository) ListPublishedFilesInFolder(ctx context.Context, folderPath string) ([]AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListPublishedFilesInFolder")
	defer span.End()

	folderPath = pathutil.Normalize(folderPath)
	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumnsAliasedAV+`
		FROM assets a
		JOIN asset_versions av ON av.id = a.published_version_id
		WHERE a.folder_path = $1
		ORDER BY a.basename`, folderPath)
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

// publishVersion makes newVersionID the asset's published version and
// archives whatever was previously published, appending a
// ChangelogVersionArchived entry for it, inside tx. It does not commit;
// callers (finishUpload, RestoreVersion) own the transaction.
func (r *Repository) publishVersion(ctx context.Context, tx dbtx, asset Asset, newVersionID ids.VersionID, appended *[]ChangelogEntry) error {
	if asset.PublishedVersionID != nil {
		if _, err := tx.Exec(ctx, `UPDATE asset_versions SET state = $1 WHERE id = $2`,
			ids.VersionArchived, [16]byte(*asset.PublishedVersionID)); err != nil {
			return err
		}

		entry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogVersionArchived,
			FolderPath: asset.FolderPath,
			Basename:   asset.Basename,
			AssetID:    &asset.ID,
			VersionID:  asset.PublishedVersionID,
		})
		if err != nil {
			return err
		}
		*appended = append(*appended, entry)
	}

	if _, err := tx.Exec(ctx, `UPDATE asset_versions SET state = $1 WHERE id = $2`,
		ids.VersionPublished, [16]byte(newVersionID)); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE assets SET published_version_id = $1, updated_at = now() WHERE id = $2`,
		[16]byte(newVersionID), [16]byte(asset.ID)); err != nil {
		return err
	}

	return nil
}

// RestoreVersion publishes a copy of an archived version as a brand-new
// version, rather than transitioning the archived row back to published.
// The original archived row is left untouched.
func (r *Repository) RestoreVersion(ctx context.Context, assetID ids.AssetID, targetVersionID ids.VersionID) (AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.RestoreVersion")
	defer span.End()

	var created AssetVersion
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		asset, err := r.GetAssetByID(ctx, tx, assetID)
		if err != nil {
			return err
		}

		target, err := r.getVersionTx(ctx, tx, targetVersionID)
		if err != nil {
			return err
		}
		if target.AssetID != assetID {
			return apperror.New(apperror.KindVersionNotFound, "version does not belong to asset")
		}

		nextVersion := asset.VersionCounter + 1
		newID := ids.NewVersionID()

		row := tx.QueryRow(ctx, `
			INSERT INTO asset_versions
				(id, asset_id, version, state, label, size, content_type, original_filename, backend, storage_id, r2_key, r2_public_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING `+versionColumns,
			[16]byte(newID), [16]byte(assetID), nextVersion, ids.VersionArchived, nullString(target.Label),
			target.Size, target.ContentType, target.OriginalFilename, string(target.Locator.Backend),
			nullString(target.Locator.StorageID), nullString(target.Locator.R2Key), nullString(target.Locator.R2PublicURL))
		created, err = scanVersion(row)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE assets SET version_counter = $1 WHERE id = $2`, nextVersion, [16]byte(assetID)); err != nil {
			return err
		}

		if err := r.publishVersion(ctx, tx, asset, newID, appended); err != nil {
			return err
		}
		created.State = ids.VersionPublished

		entry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogVersionPublished,
			FolderPath: asset.FolderPath,
			Basename:   asset.Basename,
			AssetID:    &assetID,
			VersionID:  &newID,
		})
		if err != nil {
			return err
		}
		*appended = append(*appended, entry)
		return nil
	})
	if err != nil {
		return AssetVersion{}, err
	}
	return created, nil
}

// RenameAsset changes an asset's basename within its folder.
func (r *Repository) RenameAsset(ctx context.Context, assetID ids.AssetID, newBasename string) (Asset, error) {
	ctx, span := tracer.Start(ctx, "catalog.RenameAsset")
	defer span.End()

	if err := pathutil.ValidateBasename(newBasename); err != nil {
		return Asset{}, err
	}

	var renamed Asset
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		asset, err := r.GetAssetByID(ctx, tx, assetID)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 AND basename = $2`, asset.FolderPath, newBasename)
		if _, err := scanAsset(row); err == nil {
			return apperror.New(apperror.KindAssetExists, "an asset with that name already exists in the folder")
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		updateRow := tx.QueryRow(ctx, `
			UPDATE assets SET basename = $1, updated_at = now() WHERE id = $2
			RETURNING `+assetColumns, newBasename, [16]byte(assetID))
		renamed, err = scanAsset(updateRow)
		if err != nil {
			return err
		}

		entry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogAssetRenamed,
			FolderPath: renamed.FolderPath,
			Basename:   renamed.Basename,
			AssetID:    &assetID,
		})
		if err != nil {
			return err
		}
		*appended = append(*appended, entry)
		return nil
	})
	if err != nil {
		return Asset{}, err
	}
	return renamed, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
