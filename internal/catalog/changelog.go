package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
)

const changelogColumns = `id, created_at, kind, folder_path, basename, asset_id, version_id`

// changelogWrite is the set of fields a caller supplies; CreatedAt and ID
// are always assigned by appendChangelog itself. CreatedAt has
// millisecond resolution and ID is a random UUID, so entries that share a
// millisecond are ordered by ID, not by insertion order.
type changelogWrite struct {
	Kind       ids.ChangelogKind
	FolderPath string
	Basename   string
	AssetID    *ids.AssetID
	VersionID  *ids.VersionID
}

func scanChangelogEntry(row pgx.Row) (ChangelogEntry, error) {
	var e ChangelogEntry
	var id [16]byte
	var basename *string
	var assetID, versionID *[16]byte

	if err := row.Scan(&id, &e.CreatedAt, &e.Kind, &e.FolderPath, &basename, &assetID, &versionID); err != nil {
		return ChangelogEntry{}, err
	}

	e.ID = ids.ChangelogID(id)
	if basename != nil {
		e.Basename = *basename
	}
	if assetID != nil {
		a := ids.AssetID(*assetID)
		e.AssetID = &a
	}
	if versionID != nil {
		v := ids.VersionID(*versionID)
		e.VersionID = &v
	}
	return e, nil
}

// appendChangelog inserts a new entry inside tx, using the database's own
// clock (so it stays monotonic with other statements in the same
// transaction) truncated to milliseconds, and returns the committed row
// so callers can hand it to Hub.Publish once the transaction commits.
func (r *Repository) appendChangelog(ctx context.Context, tx dbtx, w changelogWrite) (ChangelogEntry, error) {
	id := ids.NewChangelogID()

	var assetID, versionID *[16]byte
	if w.AssetID != nil {
		b := [16]byte(*w.AssetID)
		assetID = &b
	}
	if w.VersionID != nil {
		b := [16]byte(*w.VersionID)
		versionID = &b
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO changelog (id, created_at, kind, folder_path, basename, asset_id, version_id)
		VALUES ($1, (extract(epoch from clock_timestamp()) * 1000)::bigint, $2, $3, $4, $5, $6)
		RETURNING `+changelogColumns,
		[16]byte(id), w.Kind, w.FolderPath, nullString(w.Basename), assetID, versionID)
	return scanChangelogEntry(row)
}

// ListSince returns up to limit changelog entries strictly after cursor,
// ordered by the compound (createdAt, id) key, guaranteeing no skip and
// no duplicate across pages even when multiple entries share a
// millisecond.
func (r *Repository) ListSince(ctx context.Context, cursor *Cursor, limit int) ([]ChangelogEntry, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListSince")
	defer span.End()

	var rows pgx.Rows
	var err error
	if cursor == nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+changelogColumns+` FROM changelog
			ORDER BY created_at, id LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+changelogColumns+` FROM changelog
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id LIMIT $3`, cursor.CreatedAt, [16]byte(cursor.ID), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangelogEntry
	for rows.Next() {
		e, err := scanChangelogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListForFolder is ListSince scoped to a single folder path, backed by
// the changelog_by_folder_path composite index.
func (r *Repository) ListForFolder(ctx context.Context, folderPath string, cursor *Cursor, limit int) ([]ChangelogEntry, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListForFolder")
	defer span.End()

	var rows pgx.Rows
	var err error
	if cursor == nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+changelogColumns+` FROM changelog
			WHERE folder_path = $1
			ORDER BY created_at, id LIMIT $2`, folderPath, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+changelogColumns+` FROM changelog
			WHERE folder_path = $1 AND (created_at, id) > ($2, $3)
			ORDER BY created_at, id LIMIT $4`, folderPath, cursor.CreatedAt, [16]byte(cursor.ID), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangelogEntry
	for rows.Next() {
		e, err := scanChangelogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NextCursor derives the cursor to resume after the last entry of a page,
// or nil if the page was empty (the caller should keep its old cursor).
func NextCursor(entries []ChangelogEntry) *Cursor {
	if len(entries) == 0 {
		return nil
	}
	last := entries[len(entries)-1]
	return &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
}
