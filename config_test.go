package atombase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomdb.yaml")
	body := "bin-max-elems: 128\npersist:\n  enabled: true\n  data-path: /tmp/atomdb-data\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.BinMaxElems)
	assert.True(t, cfg.Persist.Enabled)
	assert.Equal(t, "/tmp/atomdb-data", cfg.Persist.DataPath)
	assert.Equal(t, DefaultConfig().BinMaxBytes, cfg.BinMaxBytes)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
