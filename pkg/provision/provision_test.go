package provision

import (
	"strings"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/bedrock-install/bedrock/pkg/phase"
	"github.com/bedrock-install/bedrock/pkg/testutil"
	"github.com/bedrock-install/bedrock/pkg/topology"
)

func testProvisioner(t *testing.T) (*Provisioner, *testutil.FakeExecutor, *bedrock_io.RuntimeContext) {
	t.Helper()

	cfg := install_config.DefaultConfig()
	cfg.PrimaryDisk = "/dev/vda"
	cfg.AuxDisks = []string{"/dev/vdb", "/dev/vdc"}
	cfg.Hostname = "testhost"
	cfg.Username = "tester"

	r := topology.NewResolver()
	topo, err := r.Resolve(cfg, map[string]topology.SuffixStyle{
		"/dev/vda": topology.SuffixBare,
		"/dev/vdb": topology.SuffixBare,
		"/dev/vdc": topology.SuffixBare,
	})
	require.NoError(t, err)

	exe := testutil.NewFakeExecutor()
	p := &Provisioner{
		Cfg:        cfg,
		Topo:       topo,
		Exe:        exe,
		Markers:    phase.NewMemoryMarkerStore(),
		Prompter:   &interaction.Scripted{},
		Passphrase: "hunter2-but-longer",
	}
	return p, exe, testutil.TestRuntimeContext(t)
}

func TestCompletedPhaseRunsNoCommands(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	require.NoError(t, p.Markers.Set(phase.Partition))

	runner := phase.NewRunner(p.Markers)
	status, err := runner.Run(rc, p.Stage1Specs()[0])

	require.NoError(t, err)
	assert.Equal(t, phase.AlreadyCompleted, status)
	assert.Empty(t, exe.Calls, "a completed phase must execute zero destructive operations")
}

func TestPartition_OrderedCreation(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	require.NoError(t, p.runPartition(rc))

	lines := exe.CommandLines()

	// Every disk is wiped before any partition exists.
	assert.Equal(t, 3, exe.CallCount("wipefs -a"))
	assert.Equal(t, 3, exe.CallCount("sgdisk --zap-all"))

	indexOf := func(prefix string) int {
		for i, line := range lines {
			if strings.HasPrefix(line, prefix) {
				return i
			}
		}
		t.Fatalf("no invocation matches %q in %v", prefix, lines)
		return -1
	}

	efi := indexOf("sgdisk --new 1:0:+512M")
	boot := indexOf("sgdisk --new 2:0:+1G")
	root := indexOf("sgdisk --new 3:0:0")
	probe := indexOf("partprobe /dev/vda")
	assert.Less(t, efi, boot, "EFI partition must be created first")
	assert.Less(t, boot, root, "boot partition must precede the container partition")
	assert.Less(t, root, probe, "partprobe runs after the table is complete")

	// Auxiliary disks carry a single spanning partition each.
	assert.Equal(t, 1, exe.CallCount("sgdisk --new 1:0:0 --typecode 1:8309 --change-name 1:data /dev/vdb"))
	assert.Equal(t, 1, exe.CallCount("sgdisk --new 1:0:0 --typecode 1:8309 --change-name 1:data /dev/vdc"))
}

func TestEncrypt_OpensAllContainers(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	require.NoError(t, p.runEncrypt(rc))

	assert.Equal(t, 3, exe.CallCount("cryptsetup luksFormat"))
	assert.Equal(t, 1, exe.CallCount("cryptsetup open --key-file - /dev/vda3 cryptroot"))
	assert.Equal(t, 1, exe.CallCount("cryptsetup open --key-file - /dev/vdb1 cryptdata0"))
	assert.Equal(t, 1, exe.CallCount("cryptsetup open --key-file - /dev/vdc1 cryptdata1"))
	assert.Equal(t, 0, exe.CallCount("cryptsetup close"))

	// The passphrase travels on stdin, never as an argument.
	for _, call := range exe.Calls {
		for _, arg := range call.Args {
			assert.NotEqual(t, p.Passphrase, arg)
		}
	}
}

func TestEncrypt_UnwindsOnMidSequenceFailure(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("cryptsetup open --key-file - /dev/vdb1", "Device /dev/vdb1 is busy", cerr.New("exit status 5"))

	err := p.runEncrypt(rc)
	require.Error(t, err)

	// The root container was opened before the failure and must be
	// closed again; the second data container is never touched.
	assert.Equal(t, 1, exe.CallCount("cryptsetup close cryptroot"))
	assert.Equal(t, 0, exe.CallCount("cryptsetup open --key-file - /dev/vdc1"))
}

func TestVolumeManage_SizeMismatchFailsBeforeAnyGroup(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata0", "1000204886016\n", nil)
	exe.Respond("lsblk -bdno SIZE /dev/mapper/cryptdata1", "800166076416\n", nil)

	err := p.runVolumeManage(rc)
	require.Error(t, err)

	assert.Equal(t, 0, exe.CallCount("pvcreate"))
	assert.Equal(t, 0, exe.CallCount("vgcreate"))
	assert.Equal(t, 0, exe.CallCount("lvcreate"))
}

func TestVolumeManage_BuildsBothGroups(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("lsblk -bdno SIZE", "1000204886016\n", nil)

	require.NoError(t, p.runVolumeManage(rc))

	assert.Equal(t, 3, exe.CallCount("pvcreate"))
	assert.Equal(t, 1, exe.CallCount("vgcreate -y vg_system /dev/mapper/cryptroot"))
	assert.Equal(t, 1, exe.CallCount("vgcreate -y vg_data /dev/mapper/cryptdata0 /dev/mapper/cryptdata1"))
	assert.Equal(t, 1, exe.CallCount("lvcreate -y -n swap -L 8G vg_system"))
	assert.Equal(t, 1, exe.CallCount("lvcreate -y -n root -l 100%FREE vg_system"))

	// The data volume is a raid1 mirror across the two containers.
	mirror := 0
	for _, line := range exe.CommandLines() {
		if strings.HasPrefix(line, "lvcreate") && strings.Contains(line, "--type raid1") &&
			strings.Contains(line, "vg_data") {
			mirror++
		}
	}
	assert.Equal(t, 1, mirror)
}

func TestVolumeManage_NoAuxDisksSkipsDataGroup(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	p.Cfg.AuxDisks = nil
	r := topology.NewResolver()
	topo, err := r.Resolve(p.Cfg, map[string]topology.SuffixStyle{"/dev/vda": topology.SuffixBare})
	require.NoError(t, err)
	p.Topo = topo

	require.NoError(t, p.runVolumeManage(rc))
	assert.Equal(t, 0, exe.CallCount("vgcreate vg_data"))
	assert.Equal(t, 0, exe.CallCount("lsblk"))
}

func TestVolumeManage_ResumesOverExistingVolumes(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("lsblk -bdno SIZE", "1000204886016\n", nil)

	// Leftovers of a run that died at the root lvcreate.
	exe.Respond("pvcreate -y /dev/mapper/cryptroot",
		"  Physical volume '/dev/mapper/cryptroot' is already in volume group 'vg_system'\n",
		cerr.New("exit status 5"))
	exe.Respond("vgcreate -y vg_system",
		"  A volume group called vg_system already exists.\n",
		cerr.New("exit status 3"))
	exe.Respond("lvcreate -y -n swap",
		"  Logical Volume \"swap\" already exists in volume group \"vg_system\"\n",
		cerr.New("exit status 5"))

	require.NoError(t, p.runVolumeManage(rc))

	// The interrupted run's remaining work still happens.
	assert.Equal(t, 1, exe.CallCount("lvcreate -y -n root -l 100%FREE vg_system"))
	assert.Equal(t, 1, exe.CallCount("vgcreate -y vg_data /dev/mapper/cryptdata0 /dev/mapper/cryptdata1"))
}

func TestVolumeManage_UnrelatedCreateFailureIsFatal(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("lsblk -bdno SIZE", "1000204886016\n", nil)
	exe.Respond("vgcreate -y vg_system",
		"  /dev/mapper/cryptroot: device is busy\n", cerr.New("exit status 5"))

	require.Error(t, p.runVolumeManage(rc))
	assert.Equal(t, 0, exe.CallCount("lvcreate"))
}

func TestEnsureUser_ToleratesExistingUser(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("useradd", "useradd: user 'tester' already exists\n", cerr.New("exit status 9"))

	require.NoError(t, p.ensureUser(rc))
	assert.Equal(t, 1, exe.CallCount("useradd -m -G wheel -s /bin/bash tester"))
}

func TestEnsureUser_OtherFailureIsFatal(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	exe.Respond("useradd", "useradd: cannot lock /etc/passwd; try again later.\n", cerr.New("exit status 1"))

	require.Error(t, p.ensureUser(rc))
}

func TestFilesystem_FormatsEveryDevice(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	require.NoError(t, p.runFilesystem(rc))

	assert.Equal(t, 1, exe.CallCount("mkfs.vfat -F 32 -n EFI /dev/vda1"))
	assert.Equal(t, 1, exe.CallCount("mkfs.ext4 -F -L boot /dev/vda2"))
	assert.Equal(t, 1, exe.CallCount("mkfs.btrfs"))
	assert.Equal(t, 1, exe.CallCount("mkswap /dev/vg_system/swap"))
	assert.Equal(t, 1, exe.CallCount("mkfs.ext4 -F -L data /dev/vg_data/data"))
	assert.Equal(t, 3, exe.CallCount("btrfs subvolume create"))
}

func TestMount_SwapFailureIsSoft(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	p.Cfg.TargetRoot = t.TempDir()
	exe.Respond("swapon", "swapon: /dev/vg_system/swap: read swap header failed", cerr.New("exit status 255"))

	require.NoError(t, p.runMount(rc))
	assert.Equal(t, 1, exe.CallCount("swapon"))
}

func TestMount_RootSubvolumeFirst(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	p.Cfg.TargetRoot = t.TempDir()
	require.NoError(t, p.runMount(rc))

	lines := exe.CommandLines()
	var mounts []string
	for _, line := range lines {
		if strings.HasPrefix(line, "mount") {
			mounts = append(mounts, line)
		}
	}
	require.NotEmpty(t, mounts)
	assert.Contains(t, mounts[0], "subvol=@")
	assert.Contains(t, mounts[0], p.Cfg.TargetRoot)

	joined := strings.Join(mounts, "\n")
	assert.Contains(t, joined, "subvol=@home")
	assert.Contains(t, joined, "subvol=@snapshots")
	assert.Contains(t, joined, "/dev/vg_data/data")
}

func TestStage1Specs_ChainPredecessorMarkers(t *testing.T) {
	p, _, rc := testProvisioner(t)
	runner := phase.NewRunner(p.Markers)

	// Encrypt without the partition marker must refuse before any body.
	specs := p.Stage1Specs()
	_, err := runner.Run(rc, specs[1])
	require.Error(t, err)
}

func TestStage1_FreshDisksEndToEnd(t *testing.T) {
	p, exe, rc := testProvisioner(t)
	p.Cfg.TargetRoot = t.TempDir()
	exe.Respond("lsblk -bdno SIZE", "1000204886016\n", nil)

	// Tool and device preconditions probe the live machine; this test
	// exercises the bodies and the marker contract.
	specs := p.Stage1Specs()
	for i := range specs {
		specs[i].Preconditions = nil
	}

	runner := phase.NewRunner(p.Markers)
	for _, spec := range specs {
		status, err := runner.Run(rc, spec)
		require.NoError(t, err, "phase %s", spec.Phase)
		assert.Equal(t, phase.Completed, status, "phase %s", spec.Phase)
	}

	for _, ph := range []phase.Phase{
		phase.Partition, phase.Encrypt, phase.VolumeManage,
		phase.Filesystem, phase.Mount, phase.BaseInstall,
	} {
		done, err := p.Markers.IsSet(ph)
		require.NoError(t, err)
		assert.True(t, done, "marker for %s", ph)
	}

	joined := strings.Join(exe.CommandLines(), "\n")
	for _, needle := range []string{
		"mount -o rw,noatime,compress=zstd,subvol=@ /dev/vg_system/root " + p.Cfg.TargetRoot,
		p.Cfg.TargetRoot + "/boot",
		p.Cfg.TargetRoot + "/boot/efi",
		"subvol=@home",
		"subvol=@snapshots",
		"swapon /dev/vg_system/swap",
		"pacstrap -K " + p.Cfg.TargetRoot,
	} {
		assert.Contains(t, joined, needle)
	}

	// Re-running the whole stage performs nothing further.
	before := len(exe.Calls)
	for _, spec := range specs {
		status, err := runner.Run(rc, spec)
		require.NoError(t, err)
		assert.Equal(t, phase.AlreadyCompleted, status)
	}
	assert.Equal(t, before, len(exe.Calls))
}
