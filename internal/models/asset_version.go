package models

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// AssetVersion represents one immutable file revision of an asset
type AssetVersion struct {
	ID         int64     `json:"id" db:"id"`
	AssetID    int64     `json:"assetId" db:"asset_id"`
	Version    int       `json:"version" db:"version"`
	File       string    `json:"file" db:"file"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Note       *string   `json:"note" db:"note"`
	UploaderID *int64    `json:"uploadedBy" db:"uploader_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// MaxNoteLength is the maximum length of a version note
const MaxNoteLength = 255

// NewVersion describes a version about to be appended to an asset's ledger.
//
// When File is set the version reuses an already stored blob (restores).
// Otherwise FileName is used to derive the blob key for the allocated number
// and Store is called with that key after the ledger row has been inserted.
type NewVersion struct {
	UploaderID *int64
	Note       *string
	File       string
	FileName   string
	Store      func(ctx context.Context, key string) error
}

// RestoreNote returns the audit note recorded on a version created by a restore
func RestoreNote(from int) string {
	return fmt.Sprintf("restored from v%d", from)
}

// VersionFileKey derives the blob key of a version file from the asset, version number and filename
func VersionFileKey(assetID int64, version int, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return fmt.Sprintf("assets/%d/v%d/%s", assetID, version, name)
}
