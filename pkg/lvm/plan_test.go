package lvm

import (
	"testing"

	"github.com/bedrock-install/bedrock/pkg/testutil"
	"github.com/bedrock-install/bedrock/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanVolumes(t *testing.T) {
	vg := &topology.VolumeGroup{Name: "vg_system"}

	tests := []struct {
		name      string
		volumes   []*topology.LogicalVolume
		wantError string
	}{
		{
			name: "fixed then remaining is fine",
			volumes: []*topology.LogicalVolume{
				{VG: vg, Name: "swap", Size: "8G"},
				{VG: vg, Name: "root", Remaining: true},
			},
		},
		{
			name: "remaining before last fails fast",
			volumes: []*topology.LogicalVolume{
				{VG: vg, Name: "root", Remaining: true},
				{VG: vg, Name: "swap", Size: "8G"},
			},
			wantError: "not the last volume",
		},
		{
			name: "volume without any sizing fails",
			volumes: []*topology.LogicalVolume{
				{VG: vg, Name: "swap"},
			},
			wantError: "neither a fixed size",
		},
		{
			name: "single remaining volume is fine",
			volumes: []*topology.LogicalVolume{
				{VG: vg, Name: "data", Remaining: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PlanVolumes(tt.volumes)
			if tt.wantError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantError)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckMirrorCandidates(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)

	t.Run("sizes within tolerance", func(t *testing.T) {
		exe := testutil.NewFakeExecutor()
		exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata0", "1000000000000", nil)
		exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata1", "999000000000", nil)

		err := CheckMirrorCandidates(rc, exe, []string{"/dev/mapper/cryptdata0", "/dev/mapper/cryptdata1"})
		require.NoError(t, err)
	})

	t.Run("size mismatch beyond tolerance", func(t *testing.T) {
		exe := testutil.NewFakeExecutor()
		exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata0", "1000000000000", nil)
		exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata1", "500000000000", nil)

		err := CheckMirrorCandidates(rc, exe, []string{"/dev/mapper/cryptdata0", "/dev/mapper/cryptdata1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "differ in size beyond tolerance")
	})

	t.Run("wrong member count", func(t *testing.T) {
		exe := testutil.NewFakeExecutor()
		err := CheckMirrorCandidates(rc, exe, []string{"/dev/mapper/cryptdata0"})
		require.Error(t, err)
		assert.Empty(t, exe.Calls, "no probing before the count check")
	})
}

func TestCreateLogicalVolume_Arguments(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)

	t.Run("fixed size", func(t *testing.T) {
		exe := testutil.NewFakeExecutor()
		vg := &topology.VolumeGroup{Name: "vg_system"}
		err := CreateLogicalVolume(rc, exe, &topology.LogicalVolume{VG: vg, Name: "swap", Size: "8G"})
		require.NoError(t, err)
		require.Len(t, exe.Calls, 1)
		assert.Equal(t, []string{"-y", "-n", "swap", "-L", "8G", "vg_system"}, exe.Calls[0].Args)
	})

	t.Run("remaining space on mirror", func(t *testing.T) {
		exe := testutil.NewFakeExecutor()
		vg := &topology.VolumeGroup{Name: "vg_data", Mirrored: true}
		err := CreateLogicalVolume(rc, exe, &topology.LogicalVolume{VG: vg, Name: "data", Remaining: true})
		require.NoError(t, err)
		require.Len(t, exe.Calls, 1)
		assert.Equal(t,
			[]string{"-y", "-n", "data", "-l", "100%FREE", "--type", "raid1", "-m", "1", "vg_data"},
			exe.Calls[0].Args)
	})
}
