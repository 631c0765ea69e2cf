package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "identity:\n  team_domain: acme\n  audience: aud-123\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, "https://api.github.com/", cfg.GitHub.BaseURL)
	assert.Equal(t, "Codeflare-App", cfg.GitHub.UserAgent)
	assert.Equal(t, 5*time.Minute, cfg.Identity.KeysTTL)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "https://acme.cloudflareaccess.com/cdn-cgi/access/certs", cfg.Identity.KeySetURL())
	assert.Zero(t, cfg.Server.RequestTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 15s
github:
  base_url: http://127.0.0.1:1234
identity:
  certs_url: http://127.0.0.1:1234/certs
  audience: aud-123
  keys_ttl: 0s
storage:
  driver: bolt
  path: /tmp/sessions.bolt
`)
	t.Setenv("CODEFLARE_LOG_LEVEL", "debug")
	t.Setenv("CODEFLARE_SERVER_HOST", "127.0.0.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.ServerAddress())
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "http://127.0.0.1:1234/", cfg.GitHub.BaseURL, "base url gains a trailing slash")
	assert.Equal(t, "http://127.0.0.1:1234/certs", cfg.Identity.KeySetURL())
	assert.Equal(t, "aud-123", cfg.Identity.Audience)
	assert.Zero(t, cfg.Identity.KeysTTL)
	assert.Equal(t, "bolt", cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing identity",
			cfg:     Config{Storage: StorageConfig{Driver: "sqlite", Path: "x.db"}},
			wantErr: "identity",
		},
		{
			name: "missing audience",
			cfg: Config{
				Identity: IdentityConfig{TeamDomain: "acme"},
				Storage:  StorageConfig{Driver: "sqlite", Path: "x.db"},
			},
			wantErr: "identity audience",
		},
		{
			name: "unknown driver",
			cfg: Config{
				Identity: IdentityConfig{TeamDomain: "acme", Audience: "aud"},
				Storage:  StorageConfig{Driver: "postgres", Path: "x"},
			},
			wantErr: "unsupported storage driver",
		},
		{
			name: "missing path",
			cfg: Config{
				Identity: IdentityConfig{TeamDomain: "acme", Audience: "aud"},
				Storage:  StorageConfig{Driver: "bolt"},
			},
			wantErr: "storage path",
		},
		{
			name: "ok",
			cfg: Config{
				Identity: IdentityConfig{CertsURL: "http://localhost/certs", Audience: "aud"},
				Storage:  StorageConfig{Driver: "sqlite", Path: "x.db"},
				GitHub:   GitHubConfig{BaseURL: "https://api.github.com/"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
