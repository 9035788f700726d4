package models

// Tag represents a labeled category shared between assets
type Tag struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Color string `json:"color" db:"color"`
}

// DefaultTagColor is used when a tag is created without an explicit color
const DefaultTagColor = "#3498db"

// CreateTagRequest is the payload of a tag creation request
type CreateTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// UpdateTagRequest renames or recolors a tag. Nil fields are left unchanged.
type UpdateTagRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}
