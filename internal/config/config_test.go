package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd/internal/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "catalogd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "db:\n  path: ./x.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "./x.db", c.DB.Path)
	assert.Equal(t, 10003, c.Server.Port)
	assert.Equal(t, "127.0.0.1", c.Server.Bind)
	assert.Equal(t, uint32(1<<20), c.Server.MaxFrameBytes)
	assert.Equal(t, uint32(32<<20), c.Server.MaxImageBytes)
	assert.Equal(t, 128, c.Worker.QueueDepth)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, auth.DefaultArgon2Params(), c.Argon2)
	assert.Equal(t, "127.0.0.1:10003", c.Addr())
}

func TestLoadWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadFullFile(t *testing.T) {
	c, err := Load(writeConfig(t, `
log:
  level: debug
  file: server.log
server:
  bind: 0.0.0.0
  port: 7000
  max_frame_bytes: 4096
  idle_timeout: 90s
db:
  path: /var/lib/catalogd/catalog.db
  new_database: true
images:
  root: /srv/images
worker:
  queue_depth: 8
  snapshot_dir: /var/backups/catalogd
argon2:
  memory_kib: 1024
  iterations: 2
  parallelism: 1
  salt_len: 16
  key_len: 32
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "server.log", c.Log.File)
	assert.Equal(t, "0.0.0.0:7000", c.Addr())
	assert.Equal(t, uint32(4096), c.Server.MaxFrameBytes)
	assert.Equal(t, 90*time.Second, c.Server.IdleTimeout)
	assert.True(t, c.DB.NewDatabase)
	assert.Equal(t, "/srv/images", c.Images.Root)
	assert.Equal(t, 8, c.Worker.QueueDepth)
	assert.Equal(t, uint32(2), c.Argon2.Iterations)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"port":        "server:\n  port: 70000\n",
		"level":       "log:\n  level: loud\n",
		"queue":       "worker:\n  queue_depth: -1\n",
		"frame":       "server:\n  max_frame_bytes: 10\n",
		"argon2":      "argon2:\n  memory_kib: 1024\n",
		"not yaml":    "server: [",
		"negative to": "server:\n  idle_timeout: -1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseFlagsOverrideFile(t *testing.T) {
	p := writeConfig(t, "server:\n  port: 7000\n  bind: 0.0.0.0\ndb:\n  path: file.db\n")

	c, err := Parse([]string{"--config", p, "--port", "7001", "--db", "flag.db", "--quiet", "--new-database", "--repair"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 7001, c.Server.Port)
	assert.Equal(t, "0.0.0.0", c.Server.Bind)
	assert.Equal(t, "flag.db", c.DB.Path)
	assert.Equal(t, "error", c.Log.Level)
	assert.True(t, c.DB.NewDatabase)
	assert.True(t, c.DB.RepairOrphans)
}

func TestParseRestore(t *testing.T) {
	c, err := Parse([]string{"--restore", "nightly.snap"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "nightly.snap", c.DB.RestoreFrom)

	_, err = Parse([]string{"--restore", "nightly.snap", "--new-database"}, io.Discard)
	assert.Error(t, err)
}

func TestParseRejectsBadFlags(t *testing.T) {
	_, err := Parse([]string{"--port", "0"}, io.Discard)
	assert.Error(t, err)

	_, err = Parse([]string{"--no-such-flag"}, io.Discard)
	assert.Error(t, err)
}
