package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/pathutil"
)

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	var id [16]byte
	var publishedID *[16]byte
	if err := row.Scan(&id, &a.FolderPath, &a.Basename, &a.VersionCounter, &publishedID, &a.UpdatedAt); err != nil {
		return Asset{}, err
	}
	a.ID = ids.AssetID(id)
	if publishedID != nil {
		v := ids.VersionID(*publishedID)
		a.PublishedVersionID = &v
	}
	return a, nil
}

const assetColumns = `id, folder_path, basename, version_counter, published_version_id, updated_at`

// GetAsset returns the asset at folderPath/basename.
func (r *Repository) GetAsset(ctx context.Context, folderPath, basename string) (Asset, error) {
	ctx, span := tracer.Start(ctx, "catalog.GetAsset")
	defer span.End()

	folderPath = pathutil.Normalize(folderPath)
	row := r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 AND basename = $2`, folderPath, basename)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, apperror.New(apperror.KindAssetNotFound, "asset not found")
	}
	if err != nil {
		return Asset{}, err
	}
	return a, nil
}

// GetAssetByID returns the asset by its id, used by the upload coordinator
// and restore/rename flows once an intent or request already carries an id.
func (r *Repository) GetAssetByID(ctx context.Context, tx dbtx, id ids.AssetID) (Asset, error) {
	row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, [16]byte(id))
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, apperror.New(apperror.KindAssetNotFound, "asset not found")
	}
	return a, err
}

// ListAssets returns every asset directly inside folderPath.
func (r *Repository) ListAssets(ctx context.Context, folderPath string) ([]Asset, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListAssets")
	defer span.End()

	folderPath = pathutil.Normalize(folderPath)
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 ORDER BY basename`, folderPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAsset creates an empty asset shell at folderPath/basename with no
// versions yet. The parent folder must already exist.
func (r *Repository) CreateAsset(ctx context.Context, folderPath, basename string) (Asset, error) {
	ctx, span := tracer.Start(ctx, "catalog.CreateAsset")
	defer span.End()

	if err := pathutil.ValidateBasename(basename); err != nil {
		return Asset{}, err
	}
	folderPath = pathutil.Normalize(folderPath)

	var created Asset
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		if folderPath != "" {
			if _, err := r.getFolderTx(ctx, tx, folderPath); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperror.New(apperror.KindParentMissing, "folder does not exist: "+folderPath)
				}
				return err
			}
		}

		row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 AND basename = $2`, folderPath, basename)
		if _, err := scanAsset(row); err == nil {
			return apperror.New(apperror.KindAssetExists, "asset already exists")
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		id := ids.NewAssetID()
		insertRow := tx.QueryRow(ctx, `
			INSERT INTO assets (id, folder_path, basename)
			VALUES ($1, $2, $3)
			RETURNING `+assetColumns, [16]byte(id), folderPath, basename)
		a, err := scanAsset(insertRow)
		if err != nil {
			return err
		}
		created = a

		entry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogAssetCreated,
			FolderPath: a.FolderPath,
			Basename:   a.Basename,
			AssetID:    &a.ID,
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
	return created, nil
}

// ensureAsset returns the existing asset at folderPath/basename, or
// creates it and appends a ChangelogAssetCreated entry, within an
// already-open transaction. Used by StartUpload so the first upload to
// a never-seen path implicitly creates the asset.
func (r *Repository) ensureAsset(ctx context.Context, tx dbtx, folderPath, basename string, appended *[]ChangelogEntry) (Asset, error) {
	row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 AND basename = $2 FOR UPDATE`, folderPath, basename)
	a, err := scanAsset(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, err
	}

	id := ids.NewAssetID()
	insertRow := tx.QueryRow(ctx, `
		INSERT INTO assets (id, folder_path, basename)
		VALUES ($1, $2, $3)
		ON CONFLICT (folder_path, basename) DO NOTHING
		RETURNING `+assetColumns, [16]byte(id), folderPath, basename)
	a, err = scanAsset(insertRow)
	if errors.Is(err, pgx.ErrNoRows) {
		// lost the creation race; the winner's row is now visible.
		row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE folder_path = $1 AND basename = $2 FOR UPDATE`, folderPath, basename)
		return scanAsset(row)
	}
	if err != nil {
		return Asset{}, err
	}

	entry, err := r.appendChangelog(ctx, tx, changelogWrite{
		Kind:       ids.ChangelogAssetCreated,
		FolderPath: a.FolderPath,
		Basename:   a.Basename,
		AssetID:    &a.ID,
	})
	if err != nil {
		return Asset{}, err
	}
	*appended = append(*appended, entry)
	return a, nil
}
