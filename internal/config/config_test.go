package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wraithcore/ac5gate/internal/appver"
)

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Equal(t, Default(), onDisk)
}

func TestLoad_ExistingFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"login_port": 60011, "public_hostname": "game.example.com"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 60011, cfg.LoginPort)
	require.Equal(t, "game.example.com", cfg.PublicHostname)
	require.Equal(t, Default().AuthPort, cfg.AuthPort, "unset fields keep their default")
}

func TestConfig_TimeoutHelpers(t *testing.T) {
	cfg := Default()
	require.Equal(t, int(30*1e9), int(cfg.LoginClientTimeout()))
	require.Equal(t, int(30*1e9), int(cfg.AuthClientTimeout()))
}

func TestConfig_Default_HasAdminAddr(t *testing.T) {
	require.Equal(t, "127.0.0.1:9090", Default().AdminAddr)
}

func TestConfig_AppVersionRange(t *testing.T) {
	cfg := Default()
	min, max := cfg.AppVersionRange()
	require.Equal(t, appver.FromUint64(cfg.AppVersionMin), min)
	require.Equal(t, appver.FromUint64(cfg.AppVersionMax), max)
	require.Equal(t, appver.BuildTag, min.BuildTag())
	require.True(t, min.Compare(max) < 0)
}

func TestConfig_FSDPParams(t *testing.T) {
	cfg := Default()
	rto, heartbeat, closeGrace := cfg.FSDPParams()
	require.Equal(t, int(500*1e6), int(rto))
	require.Equal(t, int(5000*1e6), int(heartbeat))
	require.Equal(t, 2*rto, closeGrace)
}
