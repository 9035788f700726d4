// Package policy decides which asset and tag operations a role may perform
package policy

import "github.com/damstudio/backend/internal/models"

// Operation represents an asset operation gated by the role policy
type Operation string

const (
	OpRead           Operation = "read"
	OpCreate         Operation = "create"
	OpUpdate         Operation = "update"
	OpDelete         Operation = "delete"
	OpUploadVersion  Operation = "upload_version"
	OpRestoreVersion Operation = "restore_version"
	// OpManageTags covers creating, renaming, recoloring and deleting tags.
	OpManageTags     Operation = "manage_tags"
)

// rule holds the decision for one operation per role.
// Editors have separate decisions for owned and foreign assets.
type rule struct {
	admin          bool
	editorOwner    bool
	editorNonOwner bool
	viewer         bool
}

// Admins may delete and restore but never edit metadata in place.
var rules = map[Operation]rule{
	OpRead:           {admin: true, editorOwner: true, editorNonOwner: true, viewer: true},
	OpCreate:         {admin: false, editorOwner: true, editorNonOwner: true, viewer: false},
	OpUpdate:         {admin: false, editorOwner: true, editorNonOwner: false, viewer: false},
	OpDelete:         {admin: true, editorOwner: true, editorNonOwner: false, viewer: false},
	OpUploadVersion:  {admin: true, editorOwner: true, editorNonOwner: true, viewer: false},
	OpRestoreVersion: {admin: true, editorOwner: true, editorNonOwner: true, viewer: false},
	OpManageTags:     {admin: true, editorOwner: true, editorNonOwner: true, viewer: true},
}

// Can reports whether a role may perform the operation.
// isOwner tells whether the actor uploaded the target asset; it only matters for editors.
// Unknown roles are treated as viewers and unknown operations are denied.
func Can(role models.Role, op Operation, isOwner bool) bool {
	r, ok := rules[op]
	if !ok {
		return false
	}

	switch models.ResolveRole(string(role)) {
	case models.RoleAdmin:
		return r.admin
	case models.RoleEditor:
		if isOwner {
			return r.editorOwner
		}
		return r.editorNonOwner
	default:
		return r.viewer
	}
}
