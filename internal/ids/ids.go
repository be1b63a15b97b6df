// Package ids defines tagged identifier types for every entity in the
// asset store. Internally every ID is its own type so the compiler
// rejects passing a VersionID where a FolderID is expected; at the
// HTTP/JSON boundary (internal/server) they are cast to and from plain
// strings.
package ids

import "github.com/google/uuid"

type FolderID uuid.UUID
type AssetID uuid.UUID
type VersionID uuid.UUID
type IntentID uuid.UUID
type ChangelogID uuid.UUID

func NewFolderID() FolderID         { return FolderID(uuid.New()) }
func NewAssetID() AssetID           { return AssetID(uuid.New()) }
func NewVersionID() VersionID       { return VersionID(uuid.New()) }
func NewIntentID() IntentID         { return IntentID(uuid.New()) }
func NewChangelogID() ChangelogID   { return ChangelogID(uuid.New()) }

func (i FolderID) String() string     { return uuid.UUID(i).String() }
func (i AssetID) String() string      { return uuid.UUID(i).String() }
func (i VersionID) String() string    { return uuid.UUID(i).String() }
func (i IntentID) String() string     { return uuid.UUID(i).String() }
func (i ChangelogID) String() string  { return uuid.UUID(i).String() }

func (i FolderID) MarshalText() ([]byte, error)    { return []byte(i.String()), nil }
func (i AssetID) MarshalText() ([]byte, error)      { return []byte(i.String()), nil }
func (i VersionID) MarshalText() ([]byte, error)    { return []byte(i.String()), nil }
func (i IntentID) MarshalText() ([]byte, error)     { return []byte(i.String()), nil }
func (i ChangelogID) MarshalText() ([]byte, error)  { return []byte(i.String()), nil }

func (i *FolderID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = FolderID(u)
	return nil
}

func (i *AssetID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = AssetID(u)
	return nil
}

func (i *VersionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = VersionID(u)
	return nil
}

func (i *IntentID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = IntentID(u)
	return nil
}

func (i *ChangelogID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = ChangelogID(u)
	return nil
}

func (i FolderID) IsZero() bool    { return i == FolderID{} }
func (i AssetID) IsZero() bool     { return i == AssetID{} }
func (i VersionID) IsZero() bool   { return i == VersionID{} }
func (i IntentID) IsZero() bool    { return i == IntentID{} }

func ParseFolderID(s string) (FolderID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return FolderID{}, err
	}
	return FolderID(u), nil
}

func ParseAssetID(s string) (AssetID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssetID{}, err
	}
	return AssetID(u), nil
}

func ParseVersionID(s string) (VersionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return VersionID{}, err
	}
	return VersionID(u), nil
}

func ParseIntentID(s string) (IntentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return IntentID{}, err
	}
	return IntentID(u), nil
}

func ParseChangelogID(s string) (ChangelogID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChangelogID{}, err
	}
	return ChangelogID(u), nil
}

// Backend is the closed two-variant sum of storage backends.
type Backend string

const (
	BackendConvex Backend = "convex"
	BackendR2     Backend = "r2"
)

// ChangelogKind enumerates the changelog entry kinds.
type ChangelogKind string

const (
	ChangelogFolderCreated   ChangelogKind = "folderCreated"
	ChangelogFolderRenamed   ChangelogKind = "folderRenamed"
	ChangelogAssetCreated    ChangelogKind = "assetCreated"
	ChangelogAssetRenamed    ChangelogKind = "assetRenamed"
	ChangelogVersionCreated  ChangelogKind = "versionCreated"
	ChangelogVersionPublished ChangelogKind = "versionPublished"
	ChangelogVersionArchived ChangelogKind = "versionArchived"
)

// VersionState is the per-version state machine: published or archived.
type VersionState string

const (
	VersionPublished VersionState = "published"
	VersionArchived  VersionState = "archived"
)
