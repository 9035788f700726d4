package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRole(t *testing.T) {
	tests := []struct {
		raw      string
		expected Role
	}{
		{"admin", RoleAdmin},
		{"Admin", RoleAdmin},
		{" editor ", RoleEditor},
		{"viewer", RoleViewer},
		{"", RoleViewer},
		{"owner", RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveRole(tt.raw))
		})
	}
}

func TestResolveProfileRole(t *testing.T) {
	assert.Equal(t, RoleViewer, ResolveProfileRole(nil))
	assert.Equal(t, RoleEditor, ResolveProfileRole(&Profile{UserID: 1, Role: RoleEditor}))
	assert.Equal(t, RoleViewer, ResolveProfileRole(&Profile{UserID: 1, Role: "unknown"}))
}

func TestVersionFileKey(t *testing.T) {
	assert.Equal(t, "assets/7/v3/logo.png", VersionFileKey(7, 3, "logo.png"))
	assert.Equal(t, "assets/7/v3/logo.png", VersionFileKey(7, 3, "../../etc/logo.png"))
	assert.Equal(t, "assets/7/v3/report.pdf", VersionFileKey(7, 3, `C:\docs\report.pdf`))
	assert.Equal(t, "assets/7/v1/file", VersionFileKey(7, 1, ""))
}

func TestRestoreNote(t *testing.T) {
	assert.Equal(t, "restored from v1", RestoreNote(1))
}

func TestAsset_IsOwnedBy(t *testing.T) {
	owner := int64(5)
	a := &Asset{OwnerID: &owner}
	assert.True(t, a.IsOwnedBy(5))
	assert.False(t, a.IsOwnedBy(6))
	assert.False(t, (&Asset{}).IsOwnedBy(5))
}

func TestAssetType_IsValid(t *testing.T) {
	assert.True(t, AssetType3DModel.IsValid())
	assert.True(t, AssetTypeDocument.IsValid())
	assert.False(t, AssetType("pdf").IsValid())
}
