package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, AgentpostDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)
	assert.False(t, m.IsInitialized())

	_, err := m.Load()
	assert.ErrorIs(t, err, ErrNotInitialized)

	cfg := DefaultConfig()
	cfg.Agents["alice"] = Agent{Name: "Alice", Session: "alice-main", Role: "lead"}
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.IsInitialized())

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSize, loaded.Inbox.MaxSize)
	assert.Equal(t, DefaultTTL, loaded.Inbox.DefaultTTL.Std())
	assert.Equal(t, DefaultEscalateAfter, loaded.Inbox.EscalateAfter.Std())
	assert.Equal(t, DriverSQLite, loaded.Storage.Driver)
	assert.Equal(t, "alice-main", loaded.Agents["alice"].Session)
	assert.True(t, loaded.Notify.IsEnabled())
}

func TestManager_LoadPartialKeepsDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFile, `
version: "1.0"
inbox:
  maxSize: 5
  remindAfter: 0s
notify:
  enabled: false
`)

	cfg, err := NewManager(root).Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Inbox.MaxSize)
	assert.Equal(t, DefaultTTL, cfg.Inbox.DefaultTTL.Std())
	assert.Equal(t, time.Duration(0), cfg.Inbox.RemindAfter.Std())
	assert.False(t, cfg.Notify.IsEnabled())
	assert.Equal(t, TransportStdio, cfg.MCP.Transport.Type)
}

func TestManager_LoadTOML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFileTOML, `
version = "1.0"

[inbox]
maxSize = 10
escalateAfter = "5m"

[inbox.keywords]
urgent = ["pager"]

[storage]
driver = "memory"

[agents.bob]
name = "Bob"
`)

	m := NewManager(root)
	assert.Equal(t, filepath.Join(root, AgentpostDir, ConfigFileTOML), m.GetConfigPath())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Inbox.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Inbox.EscalateAfter.Std())
	assert.Equal(t, []string{"pager"}, cfg.Inbox.Keywords["urgent"])
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "Bob", cfg.Agents["bob"].Name)
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty document", content: "", wantErr: false},
		{name: "minimal", content: "version: \"1.0\"\n", wantErr: false},
		{name: "unknown top-level key", content: "project: x\n", wantErr: true},
		{name: "bad driver", content: "storage:\n  driver: postgres\n", wantErr: true},
		{name: "bad duration", content: "inbox:\n  defaultTTL: three days\n", wantErr: true},
		{name: "zero max size", content: "inbox:\n  maxSize: 0\n", wantErr: true},
		{name: "unknown keyword category", content: "inbox:\n  keywords:\n    spam: [x]\n", wantErr: true},
		{name: "bad agent id", content: "agents:\n  \"-bad\": {}\n", wantErr: true},
		{name: "http transport", content: "mcp:\n  transport:\n    type: http\n    http:\n      port: 9000\n", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, ValidateConfig(cfg))

	cfg.MCP.Transport = TransportConfig{Type: TransportHTTP, HTTP: HTTPConfig{Auth: AuthConfig{Type: "bearer"}}}
	assert.Error(t, ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Notify.Format = "{{ .Subject"
	assert.Error(t, ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.Inbox.DefaultTTL = Duration(-time.Second)
	assert.Error(t, ValidateConfig(cfg))

	assert.Error(t, ValidateConfig(nil))
}

func TestManager_Update(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	err := m.Update(context.Background(), func(*Config) error { return nil })
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, m.Save(DefaultConfig()))
	require.NoError(t, m.Update(context.Background(), func(cfg *Config) error {
		cfg.Agents["carol"] = Agent{Role: "reviewer"}
		return nil
	}))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "reviewer", cfg.Agents["carol"].Role)

	err = m.Update(context.Background(), func(cfg *Config) error {
		cfg.Agents["not valid!"] = Agent{}
		return nil
	})
	assert.Error(t, err)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFile, "version: \"1.0\"\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(nested))

	found, err := FindProjectRoot()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_ResolvePath(t *testing.T) {
	m := NewManager("/proj")
	assert.Equal(t, filepath.Join("/proj", AgentpostDir, "agentpost.db"), m.ResolvePath("agentpost.db"))
	assert.Equal(t, "/var/db/x.db", m.ResolvePath("/var/db/x.db"))
	assert.Equal(t, "", m.ResolvePath(""))
}
