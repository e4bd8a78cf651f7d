package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "contact", cfg.ContactDB)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 10000, cfg.MessageCap)
	assert.Equal(t, 5, cfg.ValidateSample)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "127.0.0.1:5030", cfg.HTTPAddr)
	assert.True(t, cfg.Watch)
	assert.Empty(t, cfg.MessageDBs)
	assert.NoError(t, cfg.Validate(false))
	assert.Error(t, cfg.Validate(true))
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wxchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /data/wx
message_dbs:
  - message_0
  - message_1
batch_size: 200
self_id: wxid_me
`), 0o644))
	t.Setenv("WXCHAT_MESSAGE_CAP", "500")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 4, "")
	flags.String("http-addr", "", "")
	require.NoError(t, flags.Parse([]string{"--workers=2", "--http-addr=:8080"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "/data/wx", cfg.DataDir)
	assert.Equal(t, []string{"message_0", "message_1"}, cfg.MessageDBs)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, 500, cfg.MessageCap)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "wxid_me", cfg.GetSelfID())
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadMessageDBsFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WXCHAT_MESSAGE_DBS", "message_0, ,message_3")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"message_0", "message_3"}, cfg.MessageDBs)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestGetMessageDBsAuto(t *testing.T) {
	cfg := &Config{ContactDB: "contact"}
	got := cfg.GetMessageDBs([]string{"contact", "message_1", "MSG0", "message_0", "media_0", "msg", "session", "message_fts"})
	assert.Equal(t, []string{"MSG0", "message_0", "message_1", "msg"}, got)

	cfg.MessageDBs = []string{"custom"}
	assert.Equal(t, []string{"custom"}, cfg.GetMessageDBs([]string{"message_0"}))
}

func TestValidate(t *testing.T) {
	cfg := &Config{DataDir: "/x", ContactDB: "contact", BatchSize: 1, MessageCap: 1, ValidateSample: 1, ActivitySample: 1, Workers: 0}
	assert.Error(t, cfg.Validate(true))
	cfg.Workers = 1
	assert.NoError(t, cfg.Validate(true))
	cfg.ContactDB = ""
	assert.Error(t, cfg.Validate(true))
}
