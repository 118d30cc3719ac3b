package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name    string
		dataDir string
		xdg     string
		want    string
	}{
		{"home default", "", "", filepath.Join(home, ".ragcore")},
		{"explicit override", "/custom/data/path", "/xdg", "/custom/data/path"},
		{"xdg data home", "", "/xdg/share", filepath.Join("/xdg/share", "ragcore")},
		{"relative xdg ignored", "", "relative/share", filepath.Join(home, ".ragcore")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetDataDir()
			t.Setenv(EnvDataDir, tt.dataDir)
			t.Setenv("XDG_DATA_HOME", tt.xdg)

			assert.Equal(t, tt.want, GetDataDir())
		})
	}
}

func TestGetDataDir_Cached(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "/first/path")
	assert.Equal(t, "/first/path", GetDataDir())

	t.Setenv(EnvDataDir, "/second/path")
	assert.Equal(t, "/first/path", GetDataDir(), "缓存值不受环境变量修改影响")

	ResetDataDir()
	assert.Equal(t, "/second/path", GetDataDir())
}
