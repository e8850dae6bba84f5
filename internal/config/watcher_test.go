package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := withTempConfigDir(t)
	require.NoError(t, Save(Settings{DefaultPermissionMode: "dontAsk"}))

	changes := make(chan Settings, 4)
	path := filepath.Join(dir, ConfigFileName)
	w, err := NewWatcher(path, func(s Settings) { changes <- s })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start()

	require.NoError(t, Save(Settings{DefaultPermissionMode: "plan"}))

	select {
	case got := <-changes:
		assert.Equal(t, "plan", got.DefaultPermissionMode)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := withTempConfigDir(t)
	require.NoError(t, Save(Settings{}))

	changes := make(chan Settings, 4)
	path := filepath.Join(dir, ConfigFileName)
	w, err := NewWatcher(path, func(s Settings) { changes <- s })
	require.NoError(t, err)
	defer w.Stop()
	go w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	select {
	case <-changes:
		t.Fatal("unexpected reload for unrelated file")
	case <-time.After(400 * time.Millisecond):
	}
}
