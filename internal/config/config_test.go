package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	once = sync.Once{}
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Server.AdminAddr)
	assert.Equal(t, "mem", cfg.HAL.Backend)
	assert.Equal(t, 10000, cfg.Kernel.SysLogCapacity)
}

func TestLoadDecodesYamlFile(t *testing.T) {
	once = sync.Once{}
	dir := t.TempDir()
	path := filepath.Join(dir, "orbital.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hal:\n  backend: docker\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "docker", cfg.HAL.Backend)
}
