package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	for _, n := range All() {
		require.NoError(t, v.BindEnv(n.Key(), n.Env()))
	}
	return v
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkgInstaller.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"), 0o644))

	t.Setenv("PKG_INSTALLER_SCRIPT", path)
	l := NewLocator(newSource(t))

	d, err := l.Resolve(PackageInstaller)
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Name: PackageInstaller, Path: path}, d)
}

func TestResolveUnset(t *testing.T) {
	t.Setenv("GIT_UTILS_SCRIPT", "")
	l := NewLocator(newSource(t))

	_, err := l.Resolve(GitUtils)
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "GIT_UTILS_SCRIPT")
}

func TestResolveDanglingPath(t *testing.T) {
	t.Setenv("KAFKA_UTILS_SCRIPT", filepath.Join(t.TempDir(), "missing.sh"))
	l := NewLocator(newSource(t))

	_, err := l.Resolve(BrokerUtils)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveDirectory(t *testing.T) {
	t.Setenv("KAFKA_UTILS_SCRIPT", t.TempDir())
	l := NewLocator(newSource(t))

	_, err := l.Resolve(BrokerUtils)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolveUnknownName(t *testing.T) {
	l := NewLocator(newSource(t))

	_, err := l.Resolve(Name(42))
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolvePicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.sh")
	second := filepath.Join(dir, "b.sh")
	for _, p := range []string{first, second} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	l := NewLocator(newSource(t))

	t.Setenv("GIT_UTILS_SCRIPT", first)
	d, err := l.Resolve(GitUtils)
	require.NoError(t, err)
	assert.Equal(t, first, d.Path)

	t.Setenv("GIT_UTILS_SCRIPT", second)
	d, err = l.Resolve(GitUtils)
	require.NoError(t, err)
	assert.Equal(t, second, d.Path)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "pkgInstaller.sh", PackageInstaller.String())
	assert.Equal(t, "git_utils.sh", GitUtils.String())
	assert.Equal(t, "kafka_utils.sh", BrokerUtils.String())
	assert.Equal(t, "scripts.broker_utils", BrokerUtils.Key())
	assert.Equal(t, "script(9)", Name(9).String())
}
