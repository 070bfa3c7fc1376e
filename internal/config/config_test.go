package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp-memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 16, cfg.MaxConnections)
	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, "audit.jsonl", filepath.Base(cfg.AuditFile))
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
listen_addr: "127.0.0.1:8765"
workers: 8
audit_enabled: true
audit_file: /tmp/mcp-audit.jsonl
output: yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:8765", cfg.ListenAddr)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize, "unset keys keep defaults")
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, "/tmp/mcp-audit.jsonl", cfg.AuditFile)
	assert.Equal(t, "yaml", cfg.Output)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "workers: 8\n")
	t.Setenv("MCP_MEMORY_WORKERS", "2")
	t.Setenv("MCP_MEMORY_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
log_level: loud
workers: 0
output: xml
listen_addr: "not an address"
`)
	_, err := Load(path)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "workers")
	assert.Contains(t, msg, "output")
	assert.Contains(t, msg, "listen_addr")
}

func TestValidateReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	cfg.QueueSize = 100000
	cfg.AuditEnabled = true
	cfg.AuditFile = ""

	errs := cfg.Validate()
	require.Len(t, errs, 3)

	joined := make([]string, 0, len(errs))
	for _, e := range errs {
		joined = append(joined, e.Error())
	}
	all := strings.Join(joined, "\n")
	assert.Contains(t, all, `log_format "xml" must be one of: console, json`)
	assert.Contains(t, all, "queue_size must be at most 4096")
	assert.Contains(t, all, "audit_file is required when audit_enabled is true")
}

func TestGetDataDir(t *testing.T) {
	dir := GetDataDir()
	assert.NotEmpty(t, dir)
	assert.Equal(t, AppName, filepath.Base(dir))
}
