package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoku-app/MERIDIA/config"
	"github.com/yoku-app/MERIDIA/localauth"
)

func TestProvidersAreSorted(t *testing.T) {
	c := config.DefaultConfig()
	c.Auth.Social = map[string]localauth.ClientConfig{"microsoft": {}, "github": {}, "google": {}}
	assert.Equal(t, []string{"github", "google", "microsoft"}, providers(c))
	assert.Empty(t, providers(config.DefaultConfig()))
}

func TestInitThenMigrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yoku.yaml")
	t.Setenv("YOKU_DATABASE", filepath.Join(dir, "data", "yoku.db"))
	t.Setenv("YOKU_AUTH_MODE", config.AuthLocal)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "--config", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.AuthLocal, loaded.Auth.Mode)

	rootCmd.SetArgs([]string{"migrate", "--config", path})
	require.NoError(t, rootCmd.Execute())
	rootCmd.SetArgs([]string{"purge", "--config", path})
	require.NoError(t, rootCmd.Execute())
}
