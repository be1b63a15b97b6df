package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/pathutil"
)

func scanFolder(row pgx.Row) (Folder, error) {
	var f Folder
	var id [16]byte
	if err := row.Scan(&id, &f.Path, &f.Name, &f.ParentPath, &f.CreatedAt); err != nil {
		return Folder{}, err
	}
	f.ID = ids.FolderID(id)
	return f, nil
}

// GetFolder returns the folder at path, or apperror.KindFolderNotFound.
func (r *Repository) GetFolder(ctx context.Context, path string) (Folder, error) {
	ctx, span := tracer.Start(ctx, "catalog.GetFolder")
	defer span.End()

	path = pathutil.Normalize(path)
	row := r.pool.QueryRow(ctx, `
		SELECT id, path, name, parent_path, created_at FROM folders WHERE path = $1`, path)
	f, err := scanFolder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Folder{}, apperror.New(apperror.KindFolderNotFound, "folder not found: "+path)
	}
	if err != nil {
		return Folder{}, err
	}
	return f, nil
}

// ListFolders returns the direct children of parentPath.
func (r *Repository) ListFolders(ctx context.Context, parentPath string) ([]Folder, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListFolders")
	defer span.End()

	parentPath = pathutil.Normalize(parentPath)
	rows, err := r.pool.Query(ctx, `
		SELECT id, path, name, parent_path, created_at
		FROM folders WHERE parent_path = $1 ORDER BY name`, parentPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAllFolders returns every folder in the tree. Callers must restrict
// this to admin actors; it is not scoped to any subtree.
func (r *Repository) ListAllFolders(ctx context.Context) ([]Folder, error) {
	ctx, span := tracer.Start(ctx, "catalog.ListAllFolders")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT id, path, name, parent_path, created_at FROM folders ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repository) insertFolder(ctx context.Context, tx dbtx, path string) (Folder, error) {
	parent, name := pathutil.ParentAndName(path)
	f := Folder{ID: ids.NewFolderID(), Path: path, Name: name, ParentPath: parent}

	row := tx.QueryRow(ctx, `
		INSERT INTO folders (id, path, name, parent_path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO NOTHING
		RETURNING id, path, name, parent_path, created_at`,
		[16]byte(f.ID), f.Path, f.Name, f.ParentPath)
	got, err := scanFolder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// another request created it concurrently; treat as already-existing.
		return r.getFolderTx(ctx, tx, path)
	}
	if err != nil {
		return Folder{}, err
	}
	return got, nil
}

func (r *Repository) getFolderTx(ctx context.Context, tx dbtx, path string) (Folder, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, path, name, parent_path, created_at FROM folders WHERE path = $1`, path)
	return scanFolder(row)
}

// CreateFolderByName creates a single child folder under an existing
// parent. The parent must already exist; use CreateFolderByPath to
// create the whole ancestor chain at once.
func (r *Repository) CreateFolderByName(ctx context.Context, parentPath, name string) (Folder, error) {
	ctx, span := tracer.Start(ctx, "catalog.CreateFolderByName")
	defer span.End()

	if err := pathutil.ValidateName(name); err != nil {
		return Folder{}, err
	}
	parentPath = pathutil.Normalize(parentPath)

	var created Folder
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		if parentPath != "" {
			if _, err := r.getFolderTx(ctx, tx, parentPath); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return apperror.New(apperror.KindParentMissing, "parent folder does not exist: "+parentPath)
				}
				return err
			}
		}

		path := pathutil.Join(parentPath, name)
		existing, err := r.getFolderTx(ctx, tx, path)
		if err == nil {
			return apperror.New(apperror.KindFolderExists, "folder already exists: "+existing.Path)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		created, err = r.insertFolder(ctx, tx, path)
		if err != nil {
			return err
		}

		entry, err := r.appendChangelog(ctx, tx, changelogWrite{
			Kind:       ids.ChangelogFolderCreated,
			FolderPath: created.Path,
		})
		if err != nil {
			return err
		}
		*appended = append(*appended, entry)
		return nil
	})
	if err != nil {
		return Folder{}, err
	}
	return created, nil
}

// CreateFolderByPath creates every missing ancestor of path in one
// transaction, idempotently: a path that already exists in full is not
// an error.
func (r *Repository) CreateFolderByPath(ctx context.Context, path string) (Folder, error) {
	ctx, span := tracer.Start(ctx, "catalog.CreateFolderByPath")
	defer span.End()

	if err := pathutil.ValidatePath(path); err != nil {
		return Folder{}, err
	}
	path = pathutil.Normalize(path)

	chain := append(pathutil.Ancestors(path), path)

	var leaf Folder
	err := r.withTxNotify(ctx, func(tx pgx.Tx, appended *[]ChangelogEntry) error {
		for _, segment := range chain {
			f, err := r.getFolderTx(ctx, tx, segment)
			if errors.Is(err, pgx.ErrNoRows) {
				f, err = r.insertFolder(ctx, tx, segment)
				if err != nil {
					return err
				}
				entry, err := r.appendChangelog(ctx, tx, changelogWrite{
					Kind:       ids.ChangelogFolderCreated,
					FolderPath: f.Path,
				})
				if err != nil {
					return err
				}
				*appended = append(*appended, entry)
			} else if err != nil {
				return err
			}
			leaf = f
		}
		return nil
	})
	if err != nil {
		return Folder{}, err
	}
	return leaf, nil
}
