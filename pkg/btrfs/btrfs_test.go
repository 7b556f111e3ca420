package btrfs

import (
	"strings"
	"testing"

	"github.com/bedrock-install/bedrock/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootSubvolumes_MountCreateUnmount(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	exe := testutil.NewFakeExecutor()

	err := CreateRootSubvolumes(rc, exe, "/dev/vg_system/root", []string{"@", "@home", "@snapshots"})
	require.NoError(t, err)

	lines := exe.CommandLines()
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "mount /dev/vg_system/root "))
	assert.Contains(t, lines[1], "btrfs subvolume create")
	assert.Contains(t, lines[1], "/@")
	assert.Contains(t, lines[2], "/@home")
	assert.Contains(t, lines[3], "/@snapshots")
	assert.True(t, strings.HasPrefix(lines[4], "umount "))
}

func TestCreateRootSubvolumes_UnmountsOnFailure(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	exe := testutil.NewFakeExecutor()
	exe.Respond("btrfs subvolume create", "ERROR: cannot create subvolume", assert.AnError)

	err := CreateRootSubvolumes(rc, exe, "/dev/vg_system/root", []string{"@"})
	require.Error(t, err)

	// The scratch mount must still be released after a failed create.
	assert.Equal(t, 1, exe.CallCount("umount"))
}
