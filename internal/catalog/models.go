// Package catalog implements the asset/folder/version data model and the
// upload, publish, restore, and changelog operations of the asset store.
// It owns all transactional access to Postgres; internal/storage is taken
// as a capability (storage.Registry) rather than constructed here.
package catalog

import (
	"time"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/ids"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

type Folder struct {
	ID         ids.FolderID
	Path       string
	Name       string
	ParentPath string
	CreatedAt  time.Time
}

type Asset struct {
	ID                 ids.AssetID
	FolderPath         string
	Basename           string
	VersionCounter     int
	PublishedVersionID *ids.VersionID
	UpdatedAt          time.Time
}

type AssetVersion struct {
	ID               ids.VersionID
	AssetID          ids.AssetID
	Version          int
	State            ids.VersionState
	CreatedAt        time.Time
	Label            string
	Size             int64
	ContentType      string
	OriginalFilename string
	Locator          storage.Locator
}

type UploadIntent struct {
	ID               ids.IntentID
	AssetID          ids.AssetID
	FolderPath       string
	Basename         string
	Pending          storage.Locator
	Label            string
	OriginalFilename string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ConsumedAt       *time.Time
}

type ChangelogEntry struct {
	ID         ids.ChangelogID
	CreatedAt  int64 // unix millis
	Kind       ids.ChangelogKind
	FolderPath string
	Basename   string
	AssetID    *ids.AssetID
	VersionID  *ids.VersionID
}

// Cursor is the compound (createdAt, id) pagination token for the
// changelog feed.
type Cursor struct {
	CreatedAt int64
	ID        ids.ChangelogID
}
