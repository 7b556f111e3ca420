package handoff

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/phase"
	"github.com/bedrock-install/bedrock/pkg/testutil"
)

func TestEnterTarget_InvokesChrootWithInstalledBinary(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	exe := testutil.NewFakeExecutor()

	require.NoError(t, EnterTarget(rc, exe, "/mnt/bedrock", "install", "phase2"))

	require.Len(t, exe.Calls, 1)
	assert.Equal(t, "arch-chroot", exe.Calls[0].Command)
	assert.Equal(t, []string{"/mnt/bedrock", TargetBinaryPath, "install", "phase2"}, exe.Calls[0].Args)
}

func TestCopyToTarget_ReadsConfigFromGivenPath(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	dir := t.TempDir()
	configPath := testutil.CreateTestFile(t, dir, "custom/install.env", "BEDROCK_HOSTNAME=forge\n", 0600)
	targetRoot := filepath.Join(dir, "target")

	require.NoError(t, CopyToTarget(rc, targetRoot, configPath))

	installed := filepath.Join(targetRoot, install_config.DefaultPath)
	assert.Equal(t, "BEDROCK_HOSTNAME=forge\n", testutil.ReadFile(t, installed))
	assert.FileExists(t, filepath.Join(targetRoot, TargetBinaryPath))
}

func TestPersistForReboot_ReplicatesGivenMarkerDir(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	dir := t.TempDir()
	markerDir := filepath.Join(dir, "custom-markers")
	markers := phase.NewFileMarkerStore(markerDir)
	require.NoError(t, markers.Set(phase.Partition))
	require.NoError(t, markers.Set(phase.Encrypt))

	targetRoot := filepath.Join(dir, "target")
	require.NoError(t, PersistForReboot(rc, targetRoot, markerDir))

	replica := phase.NewFileMarkerStore(filepath.Join(targetRoot, phase.DefaultMarkerDir))
	done, err := replica.IsSet(phase.Partition)
	require.NoError(t, err)
	assert.True(t, done)
	done, err = replica.IsSet(phase.Encrypt)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPersistForReboot_MissingMarkerDirIsNotAnError(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	dir := t.TempDir()

	require.NoError(t, PersistForReboot(rc, filepath.Join(dir, "target"), filepath.Join(dir, "never-created")))
}

func TestCopyFile_CreatesParentsAndPreservesContent(t *testing.T) {
	dir := t.TempDir()
	src := testutil.CreateTestFile(t, dir, "src/install.env", "BEDROCK_HOSTNAME=forge\n", 0600)

	dst := filepath.Join(dir, "target/var/lib/bedrock/install.env")
	require.NoError(t, copyFile(src, dst, 0600))
	assert.Equal(t, "BEDROCK_HOSTNAME=forge\n", testutil.ReadFile(t, dst))
}

func TestCopyFile_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := testutil.CreateTestFile(t, dir, "a", "new content", 0644)
	dst := testutil.CreateTestFile(t, dir, "b", "old content that is longer", 0644)

	require.NoError(t, copyFile(src, dst, 0644))
	assert.Equal(t, "new content", testutil.ReadFile(t, dst))
}
