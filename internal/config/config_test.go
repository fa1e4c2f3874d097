package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphcms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GRAPHCMS_UPLOAD_SECRET", "s")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.Server.Listen)
	require.Equal(t, "/graphql", cfg.Server.Path)
	require.Equal(t, 30*time.Second, cfg.Server.Timeout)
	require.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	require.Equal(t, "bolt", cfg.Storage.Driver)
	require.Equal(t, filepath.Join("data", "search.db"), cfg.Storage.SearchPath)
	require.Equal(t, "cms-files", cfg.Objects.Bucket)
	require.Equal(t, 30*time.Minute, cfg.Upload.Expiry)
	require.Equal(t, int64(50), cfg.Upload.SizeTolerance)
	require.Equal(t, "admin", cfg.Auth.AdminUsername)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "graphcms", cfg.Tracing.Service)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("CMS_SECRET", "from-env")
	path := write(t, `
server:
  listen: ":9000"
  timeout: 5s
  cors:
    allowed_origins: ["http://a.test"]
storage:
  driver: memory
  path: /var/lib/cms
objects:
  driver: memory
upload:
  secret: ${CMS_SECRET}
logging:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Listen)
	require.Equal(t, 5*time.Second, cfg.Server.Timeout)
	require.Equal(t, []string{"http://a.test"}, cfg.Server.CORS.AllowedOrigins)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, filepath.Join("/var/lib/cms", "search.db"), cfg.Storage.SearchPath)
	require.Equal(t, "from-env", cfg.Upload.Secret)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverrides(t *testing.T) {
	path := write(t, "server:\n  listen: \":9000\"\nobjects:\n  driver: memory\n")
	t.Setenv("GRAPHCMS_LISTEN", ":7000")
	t.Setenv("GRAPHCMS_STORAGE_DRIVER", "memory")
	t.Setenv("GRAPHCMS_ADMIN_PASSWORD", "pw")
	t.Setenv("GRAPHCMS_METRICS_ENABLED", "true")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Listen)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, "pw", cfg.Auth.AdminPassword)
	require.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"storage driver": "storage:\n  driver: mongo\nobjects:\n  driver: memory\n",
		"objects driver": "objects:\n  driver: s3\n",
		"upload secret":  "objects:\n  driver: nats\n",
		"log format":     "objects:\n  driver: memory\nlogging:\n  format: xml\n",
		"server path":    "objects:\n  driver: memory\nserver:\n  path: graphql\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, body))
			require.Error(t, err)
		})
	}
}

func TestParseError(t *testing.T) {
	_, err := Load(write(t, "server: [\n"))
	require.ErrorContains(t, err, "parse config")
}

func TestDefaultNeedsSecretForNATS(t *testing.T) {
	cfg := Default()
	require.Equal(t, "nats", cfg.Objects.Driver)
	require.Error(t, validate(cfg))
	cfg.Upload.Secret = "s"
	require.NoError(t, validate(cfg))
}
