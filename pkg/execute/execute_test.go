package execute

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunExecutesNothing(t *testing.T) {
	exe := &CommandExecutor{DryRun: true}

	out, err := exe.Run(context.Background(), Options{
		Command: "wipefs",
		Args:    []string{"-a", "/dev/vda"},
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPerInvocationDryRun(t *testing.T) {
	exe := NewCommandExecutor()

	_, err := exe.Run(context.Background(), Options{
		Command: "sgdisk",
		Args:    []string{"--zap-all", "/dev/vda"},
		DryRun:  true,
	})
	require.NoError(t, err)
}

func TestRun_RealCommandCapture(t *testing.T) {
	exe := NewCommandExecutor()

	out, err := Capture(context.Background(), exe, "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRun_FailurePreservesOutput(t *testing.T) {
	exe := NewCommandExecutor()

	out, err := exe.Run(context.Background(), Options{
		Command: "sh",
		Args:    []string{"-c", "echo device busy >&2; exit 1"},
		Capture: true,
	})
	require.Error(t, err)
	assert.Contains(t, out, "device busy")
}

func TestRun_StdinFedVerbatim(t *testing.T) {
	exe := NewCommandExecutor()

	out, err := exe.Run(context.Background(), Options{
		Command: "cat",
		Args:    []string{"-"},
		Stdin:   "secret-passphrase",
		Capture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "secret-passphrase", out)
}

func TestLookPath(t *testing.T) {
	assert.True(t, LookPath("sh"))
	assert.False(t, LookPath("definitely-not-a-real-tool-9f2c"))
}

func TestBuildCommandString(t *testing.T) {
	assert.Equal(t, "lsblk", buildCommandString("lsblk"))
	assert.Equal(t, "lsblk -bdno SIZE /dev/vda", buildCommandString("lsblk", "-bdno", "SIZE", "/dev/vda"))
}
