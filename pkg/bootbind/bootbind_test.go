package bootbind

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/testutil"
	"github.com/bedrock-install/bedrock/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "3f2a9c1e-7b4d-4e2a-9c8f-1d6b5a4e3f2a"

func testInputs(name, generator string) (*install_config.Config, *topology.Topology, Inputs) {
	cfg := install_config.DefaultConfig()
	cfg.PrimaryDisk = "/dev/nvme0n1"
	cfg.AuxDisks = []string{"/dev/sda", "/dev/sdb"}
	cfg.RootContainer = name
	cfg.Hostname = "forge"
	cfg.Username = "smith"
	cfg.Generator = generator

	r := topology.NewResolver()
	topo, err := r.Resolve(cfg, map[string]topology.SuffixStyle{"/dev/nvme0n1": topology.SuffixP})
	if err != nil {
		panic(err)
	}

	in := Inputs{
		Binding: Binding{
			ContainerName: name,
			ContainerUUID: testUUID,
			Generator:     generator,
			RootDevice:    topo.RootLV.Path(),
			RootSubvolume: "@",
		},
		BootUUID: "aaaa-bbbb",
		EFIUUID:  "CCCC-DDDD",
		DataContainers: []ContainerRef{
			{Name: "cryptdata0", UUID: "1111"},
			{Name: "cryptdata1", UUID: "2222"},
		},
	}
	return cfg, topo, in
}

func TestRender_Reproducible(t *testing.T) {
	cfg, topo, in := testInputs("cryptroot", "mkinitcpio")

	first := Render(cfg, topo, in)
	second := Render(cfg, topo, in)

	for i, a := range first.All() {
		b := second.All()[i]
		assert.Equal(t, a.Path, b.Path)
		assert.Equal(t, a.Content, b.Content, "artifact %s must be byte-identical across renders", a.Path)
	}
}

func TestRender_ConventionConsistency(t *testing.T) {
	for _, generator := range []string{"mkinitcpio", "dracut"} {
		t.Run(generator, func(t *testing.T) {
			for chosen, other := range map[string]string{
				"cryptroot":  "crypt_root",
				"crypt_root": "cryptroot",
			} {
				cfg, topo, in := testInputs(chosen, generator)
				set := Render(cfg, topo, in)

				for _, artifact := range []Artifact{set.Crypttab, set.InitramfsConf, set.BootloaderConf} {
					assert.Contains(t, artifact.Content, chosen,
						"%s must reference the chosen convention", artifact.Path)
					assert.NotContains(t, artifact.Content, other,
						"%s must not reference the other convention", artifact.Path)
				}
			}
		})
	}
}

func TestRender_FstabCoversFullMountTree(t *testing.T) {
	cfg, topo, in := testInputs("cryptroot", "mkinitcpio")
	set := Render(cfg, topo, in)

	fstab := set.Fstab.Content
	for _, needle := range []string{
		"/dev/vg_system/root\t/\t",
		"subvol=@home",
		"subvol=@snapshots",
		"UUID=aaaa-bbbb\t/boot\t",
		"UUID=CCCC-DDDD\t/boot/efi\t",
		"/dev/vg_system/swap\tnone\tswap",
		"/dev/vg_data/data\t/srv/data\t",
	} {
		assert.Contains(t, fstab, needle)
	}
}

func TestBinding_KernelCmdlineRoundTrip(t *testing.T) {
	b := Binding{
		ContainerName: "cryptroot",
		ContainerUUID: testUUID,
		RootDevice:    "/dev/vg_system/root",
		RootSubvolume: "@",
	}
	cmdline := b.KernelCmdline()
	assert.Equal(t, "cryptroot", ParseCmdlineContainerName(cmdline))
}

func TestParseCmdlineContainerName_LegacyForm(t *testing.T) {
	cmdline := "cryptdevice=UUID=" + testUUID + ":crypt_root root=/dev/vg_system/root rw"
	assert.Equal(t, "crypt_root", ParseCmdlineContainerName(cmdline))

	assert.Equal(t, "", ParseCmdlineContainerName("root=/dev/sda2 rw"))
}

func TestParseCrypttabName(t *testing.T) {
	content := "# comment\ncryptroot\tUUID=" + testUUID + "\tnone\tluks,discard\n"
	assert.Equal(t, "cryptroot", ParseCrypttabName(content, testUUID))
	assert.Equal(t, "", ParseCrypttabName(content, "other-uuid"))
}

func TestParseGrubCmdline(t *testing.T) {
	_, _, in := testInputs("cryptroot", "mkinitcpio")
	set := renderBootloaderConf(in)
	cmdline := ParseGrubCmdline(set.Content)
	assert.Equal(t, in.Binding.KernelCmdline(), cmdline)
}

func TestWriteAll_InstallsUnderRoot(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	cfg, topo, in := testInputs("cryptroot", "dracut")
	set := Render(cfg, topo, in)

	root := t.TempDir()
	require.NoError(t, WriteAll(rc, root, set))

	for _, artifact := range set.All() {
		content := testutil.ReadFile(t, filepath.Join(root, artifact.Path))
		assert.Equal(t, artifact.Content, content)
	}

	// No staging leftovers.
	for _, artifact := range set.All() {
		testutil.AssertFileNotExists(t, filepath.Join(root, artifact.Path+".bedrock-new"))
	}
}

func TestWriteAll_SecondRunOverwrites(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	cfg, topo, in := testInputs("crypt_root", "mkinitcpio")
	root := t.TempDir()

	require.NoError(t, WriteAll(rc, root, Render(cfg, topo, in)))

	in.Binding.ContainerName = "cryptroot"
	cfg.RootContainer = "cryptroot"
	require.NoError(t, WriteAll(rc, root, Render(cfg, topo, in)))

	for _, artifact := range []string{"/etc/crypttab", "/etc/crypttab.initramfs", "/etc/default/grub"} {
		content := testutil.ReadFile(t, filepath.Join(root, artifact))
		assert.NotContains(t, content, "crypt_root", "%s must reference only the chosen convention", artifact)
	}
}

func TestWriteAll_StagingFailureLeavesTargetsUntouched(t *testing.T) {
	rc := testutil.TestRuntimeContext(t)
	cfg, topo, in := testInputs("cryptroot", "mkinitcpio")
	set := Render(cfg, topo, in)

	root := t.TempDir()
	require.NoError(t, WriteAll(rc, root, set))
	original := testutil.ReadFile(t, filepath.Join(root, "/etc/fstab"))

	// Block the dracut conf directory with a plain file so staging the
	// initramfs artifact fails before any rename happens.
	in.Binding.Generator = "dracut"
	set = Render(cfg, topo, in)
	testutil.CreateTestFile(t, root, "etc/dracut.conf.d", "not a directory", 0644)

	require.Error(t, WriteAll(rc, root, set))

	// The fstab that was committed before must be unchanged: staging
	// failures abort before any rename.
	assert.Equal(t, original, testutil.ReadFile(t, filepath.Join(root, "/etc/fstab")))
}

func TestRender_GeneratorSelectsInitramfsArtifact(t *testing.T) {
	cfg, topo, in := testInputs("cryptroot", "mkinitcpio")
	set := Render(cfg, topo, in)
	assert.Equal(t, "/etc/crypttab.initramfs", set.InitramfsConf.Path)

	in.Binding.Generator = "dracut"
	set = Render(cfg, topo, in)
	assert.Equal(t, "/etc/dracut.conf.d/90-bedrock.conf", set.InitramfsConf.Path)
	assert.Contains(t, set.InitramfsConf.Content, "rd.luks.name="+testUUID+"=cryptroot")
	assert.Contains(t, strings.ToLower(set.InitramfsConf.Content), "lvm")
}
