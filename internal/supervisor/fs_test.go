package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/mc-ondemand/internal/config"
)

func TestBaseline_ListsExistingEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.jar"), []byte("x"), 0o644))

	names, err := Baseline(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"existing.jar"}, names)
}

func TestReplaySymlinks_CreatesLinksExceptWorld(t *testing.T) {
	workDir := t.TempDir()
	persistentDir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(persistentDir, "world"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(persistentDir, "whitelist.json"), []byte("[]"), 0o644))

	require.NoError(t, ReplaySymlinks(workDir, persistentDir))

	_, err := os.Lstat(filepath.Join(workDir, "world"))
	assert.True(t, os.IsNotExist(err), "world must not be replayed")

	info, err := os.Lstat(filepath.Join(workDir, "whitelist.json"))
	require.NoError(t, err)
	assert.True(t, info.Mode()&os.ModeSymlink != 0)
}

func TestReplaySymlinks_MissingPersistentDirIsNotFatal(t *testing.T) {
	workDir := t.TempDir()
	err := ReplaySymlinks(workDir, filepath.Join(workDir, "does-not-exist"))
	assert.NoError(t, err)
}

func TestReplaySymlinks_PreExistingEntrySkippedNotFatal(t *testing.T) {
	workDir := t.TempDir()
	persistentDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(persistentDir, "banned-players.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "banned-players.json"), []byte("already here"), 0o644))

	err := ReplaySymlinks(workDir, persistentDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(workDir, "banned-players.json"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
}

func TestEnsureEULA_CreatesWhenAccepted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureEULA(dir, true))

	data, err := os.ReadFile(filepath.Join(dir, eulaFileName))
	require.NoError(t, err)
	assert.Equal(t, "eula=true\n", string(data))
}

func TestEnsureEULA_SkippedWhenNotAccepted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureEULA(dir, false))

	_, err := os.Stat(filepath.Join(dir, eulaFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureEULA_DoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, eulaFileName)
	require.NoError(t, os.WriteFile(path, []byte("eula=false\n"), 0o644))

	require.NoError(t, EnsureEULA(dir, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "eula=false\n", string(data))
}

func TestWriteServerProperties_IncludesRuntimeKeysAndSkipsIfPresent(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.MOTD = "test server"

	require.NoError(t, WriteServerProperties(dir, cfg))

	path := filepath.Join(dir, serverPropertiesFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "motd=test server")
	assert.Contains(t, string(data), "rcon.password=M1n3cr@ft")

	require.NoError(t, os.WriteFile(path, []byte("untouched"), 0o644))
	require.NoError(t, WriteServerProperties(dir, cfg))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "untouched", string(data))
}

func TestEvict_MovesNewEntriesAndRemovesSymlinks(t *testing.T) {
	workDir := t.TempDir()
	persistentDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(workDir, "fabric-server-launcher.jar"), []byte("jar"), 0o644))
	baseline, err := Baseline(workDir)
	require.NoError(t, err)

	require.NoError(t, os.Symlink(filepath.Join(persistentDir, "whitelist.json"), filepath.Join(workDir, "whitelist.json")))
	require.NoError(t, os.Mkdir(filepath.Join(workDir, "world"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "world", "level.dat"), []byte("d"), 0o644))

	require.NoError(t, Evict(workDir, persistentDir, baseline))

	_, err = os.Lstat(filepath.Join(workDir, "whitelist.json"))
	assert.True(t, os.IsNotExist(err), "symlink must be removed from workDir")

	_, err = os.Stat(filepath.Join(workDir, "world"))
	assert.True(t, os.IsNotExist(err), "newly created world dir must be moved out")

	info, err := os.Stat(filepath.Join(persistentDir, "world", "level.dat"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	_, err = os.Stat(filepath.Join(workDir, "fabric-server-launcher.jar"))
	assert.NoError(t, err, "baseline entries must stay put")
}

func TestWriteErrorLog_NoopWhenNothingToReport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteErrorLog(dir, nil, nil))

	_, err := os.Stat(filepath.Join(dir, errorLogFileName))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteErrorLog_WritesStderrAndExitStatus(t *testing.T) {
	dir := t.TempDir()
	exitErr := errors.New("exit status 1")

	require.NoError(t, WriteErrorLog(dir, []byte("java.lang.OutOfMemoryError\n"), exitErr))

	data, err := os.ReadFile(filepath.Join(dir, errorLogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "OutOfMemoryError")
	assert.Contains(t, string(data), "exit status 1")
}
