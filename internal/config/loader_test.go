package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupConfigDir points HOME at a temp dir and returns the allowed config dir.
func setupConfigDir(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "signald")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupConfigDir(t)
	path := writeConfig(t, dir, `server:
  http_port: 9300
  shutdown_timeout: 5s
llm:
  provider: openai
  api_key: sk-test-123
pipeline:
  auto_link: true
  cluster_threshold: 0.7
notifications:
  min_severity: high
  cooldown_minutes: 15
queue:
  driver: nats
  workers: 8
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey.Value())
	assert.True(t, cfg.Pipeline.AutoLink)
	assert.InDelta(t, 0.7, cfg.Pipeline.ClusterThreshold, 1e-9)
	assert.Equal(t, "high", cfg.Notifications.MinSeverity)
	assert.Equal(t, 15, cfg.Notifications.CooldownMinutes)
	assert.Equal(t, "nats", cfg.Queue.Driver)
	assert.Equal(t, 8, cfg.Queue.Workers)

	// untouched values keep their defaults
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.True(t, cfg.Notifications.DuplicateSuppression)
	assert.Equal(t, "signald.signals.process", cfg.Queue.Subject)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupConfigDir(t)
	path := writeConfig(t, dir, `server:
  http_port: 9300
observability:
  service_name: yaml-service
`, 0600)

	t.Setenv("SIGNALD_SERVER_HTTP_PORT", "7777")
	t.Setenv("SIGNALD_OBSERVABILITY_SERVICE_NAME", "env-service")
	t.Setenv("SIGNALD_WEBHOOK_GITHUB_SECRET", "whsec")
	t.Setenv("SIGNALD_PIPELINE_AUTO_LINK", "true")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "env-service", cfg.Observability.ServiceName)
	assert.Equal(t, "whsec", cfg.Webhook.GitHubSecret.Value())
	assert.True(t, cfg.Pipeline.AutoLink)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupConfigDir(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Queue.Driver, cfg.Queue.Driver)
	assert.False(t, strings.HasPrefix(cfg.Storage.Path, "~"), "home should be expanded")
}

func TestLoadWithFile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		wantErr string
	}{
		{"invalid yaml", "server:\n  http_port: [\n", 0600, "failed to load config file"},
		{"invalid port", "server:\n  http_port: 70000\n", 0600, "invalid server port"},
		{"unknown provider", "embeddings:\n  provider: word2vec\n", 0600, "unsupported embeddings provider"},
		{"bad severity", "notifications:\n  min_severity: urgent\n", 0600, "min_severity"},
		{"threshold out of range", "pipeline:\n  duplicate_threshold: 1.5\n", 0600, "duplicate_threshold"},
		{"world readable", "server:\n  http_port: 9300\n", 0644, "insecure config file permissions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm == 0644 && runtime.GOOS == "windows" {
				t.Skip("permission model differs on windows")
			}
			dir := setupConfigDir(t)
			path := writeConfig(t, dir, tt.content, tt.perm)

			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFile_ReadOnlyPermissionsAccepted(t *testing.T) {
	dir := setupConfigDir(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9300\n", 0400)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Server.Port)
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupConfigDir(t)
	big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, big, 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupConfigDir(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"allowed dir", filepath.Join(dir, "config.yaml"), false},
		{"etc dir", "/etc/signald/config.yaml", false},
		{"outside", filepath.Join(t.TempDir(), "config.yaml"), true},
		{"traversal", filepath.Join(dir, "..", "..", "..", "config.yaml"), true},
		{"sibling prefix", dir + "-evil/config.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SIGNALD_SERVER_HTTP_PORT", "server.http_port"},
		{"SIGNALD_LLM_API_KEY", "llm.api_key"},
		{"SIGNALD_QUEUE_DRIVER", "queue.driver"},
		{"SIGNALD_NOTIFICATIONS_COOLDOWN_MINUTES", "notifications.cooldown_minutes"},
		{"SIGNALD_STANDALONE", "standalone"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.in), tt.in)
	}
}
