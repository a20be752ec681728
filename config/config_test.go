package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexabus/gwbus/broker"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gwbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "broker:\n  inbox_variant: in_memory\n")
	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, broker.InMemory, opts.InboxVariant)
	assert.True(t, opts.AttachStartCallbackEnabled)
}

func TestLoad_TransportVariant(t *testing.T) {
	path := writeConfig(t, "broker:\n  inbox_variant: transport\n  attach_start_callback_enabled: false\n")
	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, broker.TransportVariant, opts.InboxVariant)
	assert.False(t, opts.AttachStartCallbackEnabled)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, broker.DefaultOptions(), opts)
}

func TestLoad_RejectsUnknownVariant(t *testing.T) {
	path := writeConfig(t, "broker:\n  inbox_variant: carrier-pigeon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
