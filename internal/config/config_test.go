package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/internal/config"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENCLOUD_CLIENT_ID", "3141592653589793")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, uint64(3141592653589793), cfg.ClientID)
	require.Equal(t, "http://localhost:8080/callback", cfg.RedirectURI)
	require.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
	require.Equal(t, oauthapp.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 10*time.Minute, cfg.FlowTTL)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "allow-empty", cfg.ResourcePolicy)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
	require.Empty(t, cfg.RedisAddr)
	require.Empty(t, cfg.BoltPath)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"OPENCLOUD_CLIENT_ID=42\n"+
			"OPENCLOUD_CLIENT_SECRET=from-file\n"+
			"OPENCLOUD_SCOPES=openid universe-messaging-service:publish\n"+
			"OPENCLOUD_RESOURCE_POLICY=require-grant\n"+
			"OPENCLOUD_FLOW_TTL=5m\n",
	), 0o600))

	// The process environment wins over the file.
	t.Setenv("OPENCLOUD_CLIENT_SECRET", "from-env")
	for _, k := range []string{"OPENCLOUD_CLIENT_ID", "OPENCLOUD_SCOPES", "OPENCLOUD_RESOURCE_POLICY", "OPENCLOUD_FLOW_TTL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(42), cfg.ClientID)
	require.Equal(t, "from-env", cfg.ClientSecret)
	require.Equal(t, []string{"openid", "universe-messaging-service:publish"}, cfg.Scopes)
	require.Equal(t, 5*time.Minute, cfg.FlowTTL)

	app, err := cfg.NewApp(zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, uint64(42), app.ClientID())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing env file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
	})

	t.Run("missing client id", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("OPENCLOUD_CLIENT_ID", "")
		_, err := config.Load()
		require.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("unparsable value", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("OPENCLOUD_CLIENT_ID", "not-a-number")
		_, err := config.Load()
		require.ErrorContains(t, err, "parse env")
	})

	t.Run("unknown resource policy", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("OPENCLOUD_CLIENT_ID", "1")
		t.Setenv("OPENCLOUD_RESOURCE_POLICY", "sometimes")
		_, err := config.Load()
		require.ErrorContains(t, err, "invalid configuration")
	})
}
