package models

import (
	"io"
	"time"
)

// AssetType represents valid asset type tags
type AssetType string

const (
	AssetTypeImage    AssetType = "image"
	AssetTypeVideo    AssetType = "video"
	AssetTypeDocument AssetType = "document"
	AssetTypeAudio    AssetType = "audio"
	AssetType3DModel  AssetType = "3d-model"
	AssetTypeOther    AssetType = "other"
)

// IsValid reports whether the asset type is one of the known values
func (t AssetType) IsValid() bool {
	switch t {
	case AssetTypeImage, AssetTypeVideo, AssetTypeDocument, AssetTypeAudio, AssetType3DModel, AssetTypeOther:
		return true
	default:
		return false
	}
}

// Asset represents a managed file record.
// File is the head pointer: the blob key of the currently active version.
type Asset struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	AssetNo       string    `json:"assetNo" db:"asset_no"`
	Type          AssetType `json:"assetType" db:"asset_type"`
	File          string    `json:"file" db:"file"`
	FileURL       string    `json:"fileUrl,omitempty"`
	Description   string    `json:"description" db:"description"`
	Brand         string    `json:"brand" db:"brand"`
	OwnerID       *int64    `json:"uploadedBy" db:"owner_id"`
	Tags          []Tag     `json:"tags"`
	ViewCount     int64     `json:"viewCount" db:"view_count"`
	DownloadCount int64     `json:"downloadCount" db:"download_count"`
	CreatedAt     time.Time `json:"uploadDate" db:"created_at"`
}

// IsOwnedBy reports whether the given identity uploaded the asset
func (a *Asset) IsOwnedBy(userID int64) bool {
	return a.OwnerID != nil && *a.OwnerID == userID
}

// CreateAssetRequest carries the metadata of a new asset upload
type CreateAssetRequest struct {
	Name        string
	AssetNo     string
	Type        AssetType
	Description string
	Brand       string
	TagIDs      []int64
}

// UpdateAssetRequest carries a metadata edit; nil fields are left untouched
type UpdateAssetRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Brand       *string    `json:"brand"`
	Type        *AssetType `json:"assetType"`
	TagIDs      *[]int64   `json:"tagIds"`
}

// AssetFilter narrows an asset listing.
// DateFrom and DateTo are calendar days, both inclusive.
type AssetFilter struct {
	Type     AssetType
	OwnerID  *int64
	TagID    *int64
	DateFrom *time.Time
	DateTo   *time.Time
	Ordering string
	Page     int
	PageSize int
}

// FileUpload is an incoming file stream with its client-side name
type FileUpload struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Download is a file stream ready to be sent to a client
type Download struct {
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

// ViewResult is returned from view tracking
type ViewResult struct {
	ViewCount int64 `json:"viewCount"`
	Counted   bool  `json:"counted"`
}
