package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/pathutil"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

const intentColumns = `id, asset_id, folder_path, basename, backend, r2_key, storage_id, label, original_filename, created_at, expires_at, consumed_at`

// defaultIntentTTL bounds how long an UploadIntent is honored before the
// sweep job reclaims it. Reclamation is best-effort and TTL-based.
const defaultIntentTTL = 1 * time.Hour

func scanUploadIntent(row pgx.Row) (UploadIntent, error) {
	var in UploadIntent
	var id, assetID [16]byte
	var backend string
	var r2Key, storageID, label, originalFilename *string

	if err := row.Scan(&id, &assetID, &in.FolderPath, &in.Basename, &backend, &r2Key, &storageID,
		&label, &originalFilename, &in.CreatedAt, &in.ExpiresAt, &in.ConsumedAt); err != nil {
		return UploadIntent{}, err
	}

	in.ID = ids.IntentID(id)
	in.AssetID = ids.AssetID(assetID)
	in.Pending = storage.Locator{Backend: ids.Backend(backend)}
	if r2Key != nil {
		in.Pending.R2Key = *r2Key
	}
	if storageID != nil {
		in.Pending.StorageID = *storageID
	}
	if label != nil {
		in.Label = *label
	}
	if originalFilename != nil {
		in.OriginalFilename = *originalFilename
	}
	return in, nil
}

// StartUploadParams is the input to StartUpload.
type StartUploadParams struct {
	FolderPath       string
	Basename         string
	ContentType      string
	SizeHint         int64
	Label            string
	OriginalFilename string
}

// StartUploadResult is what the client needs to perform the upload and
// later call FinishUpload with the same IntentID.
type StartUploadResult struct {
	IntentID  ids.IntentID
	UploadURL string
	Method    string
}

// StartUpload begins the two-phase upload protocol: it implicitly
// creates the asset shell if this is the first version at
// folderPath/basename, mints an intent, and asks the primary backend for
// an upload grant.
func (r *Repository) StartUpload(ctx context.Context, p StartUploadParams) (StartUploadResult, error) {
	ctx, span := tracer.Start(ctx, "catalog.StartUpload")
	defer span.End()

	if err := pathutil.ValidateBasename(p.Basename); err != nil {
		return StartUploadResult{}, err
	}
	folderPath := pathutil.Normalize(p.FolderPath)

	var result StartUploadResult
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		if folderPath != "" {
			if _, err := r.getFolderTx(ctx, tx, folderPath); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperror.New(apperror.KindFolderNotFound, "folder does not exist: "+folderPath)
				}
				return err
			}
		}

		asset, err := r.ensureAsset(ctx, tx, folderPath, p.Basename, appended)
		if err != nil {
			return err
		}

		intentID := ids.NewIntentID()
		primary := r.backends.Primary()

		grant, err := primary.IssueUpload(ctx, storage.IssueUploadOptions{
			AssetID:     asset.ID,
			IntentID:    intentID,
			Basename:    p.Basename,
			ContentType: p.ContentType,
			SizeHint:    p.SizeHint,
		})
		if err != nil {
			return err
		}

		expiresAt := time.Now().Add(defaultIntentTTL)
		if _, err := tx.Exec(ctx, `
			INSERT INTO upload_intents
				(id, asset_id, folder_path, basename, backend, r2_key, storage_id, label, original_filename, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			[16]byte(intentID), [16]byte(asset.ID), folderPath, p.Basename, string(grant.PendingLocator.Backend),
			nullString(grant.PendingLocator.R2Key), nullString(grant.PendingLocator.StorageID),
			nullString(p.Label), nullString(p.OriginalFilename), expiresAt); err != nil {
			return err
		}

		result = StartUploadResult{IntentID: intentID, UploadURL: grant.UploadURL, Method: grant.Method}
		return nil
	})
	if err != nil {
		return StartUploadResult{}, err
	}
	return result, nil
}

// FinishUploadParams is the input to FinishUpload.
type FinishUploadParams struct {
	IntentID       ids.IntentID
	UploadResponse map[string]any
}

// FinishUpload completes the upload protocol: it validates the intent
// hasn't already been consumed or expired, asks the owning backend to
// resolve the definitive locator, creates the new version, publishes it,
// archives whatever was previously published, appends changelog entries,
// and marks the intent consumed, all inside one transaction. A retry
// with the same IntentID after the transaction commits finds the intent
// already marked consumed and is rejected rather than silently redone.
func (r *Repository) FinishUpload(ctx context.Context, p FinishUploadParams) (AssetVersion, error) {
	ctx, span := tracer.Start(ctx, "catalog.FinishUpload")
	defer span.End()

	var created AssetVersion
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		row := tx.QueryRow(ctx, `SELECT `+intentColumns+` FROM upload_intents WHERE id = $1 FOR UPDATE`, [16]byte(p.IntentID))
		intent, err := scanUploadIntent(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.New(apperror.KindIntentNotFound, "upload intent not found or expired")
		}
		if err != nil {
			return err
		}
		if intent.ConsumedAt != nil {
			return apperror.New(apperror.KindIntentConsumed, "upload intent already consumed")
		}
		if time.Now().After(intent.ExpiresAt) {
			return apperror.New(apperror.KindIntentNotFound, "upload intent expired")
		}

		backend, err := r.backends.Get(intent.Pending.Backend)
		if err != nil {
			return err
		}

		asset, err := r.GetAssetByID(ctx, tx, intent.AssetID)
		if err != nil {
			return err
		}

		loc, err := backend.FinalizeUpload(ctx, storage.FinalizeInput{
			Pending:          intent.Pending,
			AssetID:          intent.AssetID,
			Version:          asset.VersionCounter + 1,
			OriginalFilename: intent.OriginalFilename,
			UploadResponse:   p.UploadResponse,
		})
		if err != nil {
			return err
		}

		nextVersion := asset.VersionCounter + 1
		newID := ids.NewVersionID()

		contentType := p.UploadResponse["contentType"]
		contentTypeStr, _ := contentType.(string)
		sizeVal := p.UploadResponse["size"]
		size, _ := sizeVal.(float64)

		insertRow := tx.QueryRow(ctx, `
			INSERT INTO asset_versions
				(id, asset_id, version, state, label, size, content_type, original_filename, backend, storage_id, r2_key, r2_public_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING `+versionColumns,
			[16]byte(newID), [16]byte(intent.AssetID), nextVersion, ids.VersionArchived, nullString(intent.Label),
			int64(size), contentTypeStr, intent.OriginalFilename, string(loc.Backend),
			nullString(loc.StorageID), nullString(loc.R2Key), nullString(loc.R2PublicURL))
		created, err = scanVersion(insertRow)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE assets SET version_counter = $1 WHERE id = $2`, nextVersion, [16]byte(intent.AssetID)); err != nil {
			return err
		}

		if err := r.publishVersion(ctx, tx, asset, newID, appended); err != nil {
			return err
		}
		created.State = ids.VersionPublished

		createdEntry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogVersionCreated,
			FolderPath: asset.FolderPath,
			Basename:   asset.Basename,
			AssetID:    &intent.AssetID,
			VersionID:  &newID,
		})
		if err != nil {
			return err
		}
		publishedEntry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogVersionPublished,
			FolderPath: asset.FolderPath,
			Basename:   asset.Basename,
			AssetID:    &intent.AssetID,
			VersionID:  &newID,
		})
		if err != nil {
			return err
		}
		*appended = append(*appended, createdEntry, publishedEntry)

		_, err = tx.Exec(ctx, `UPDATE upload_intents SET consumed_at = now() WHERE id = $1`, [16]byte(intent.ID))
		return err
	})
	if err != nil {
		return AssetVersion{}, err
	}
	return created, nil
}

// SweepExpiredIntents deletes upload intents past their TTL. It is
// deliberately best-effort: a client that finishes an upload a moment
// after its intent was swept simply gets KindIntentNotFound and must
// restart from StartUpload.
func (r *Repository) SweepExpiredIntents(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "catalog.SweepExpiredIntents")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM upload_intents WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
