// pkg/bootbind/artifacts.go

package bootbind

import (
	"fmt"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/topology"
)

// Artifact is one generated plain-text system file. Content is fully
// determined by its inputs: rendering twice with identical inputs must
// produce byte-identical output.
type Artifact struct {
	Path    string
	Content string
}

// ContainerRef names one encrypted container for the unlock table.
type ContainerRef struct {
	Name string
	UUID string
}

// Inputs collects everything artifact rendering needs, so Render stays a
// pure function and callers do all the probing.
type Inputs struct {
	Binding Binding
	// BootUUID and EFIUUID identify the plain boot partitions in fstab.
	BootUUID string
	EFIUUID  string
	// DataContainers are the auxiliary containers for the unlock table,
	// in carve order.
	DataContainers []ContainerRef
}

// ArtifactSet is the full set of boot-relevant generated files. The
// container-unlock table, the initramfs configuration, and the
// boot-loader configuration must never disagree about the container
// name; fstab rides along because it is regenerated from the same model.
type ArtifactSet struct {
	Fstab          Artifact
	Crypttab       Artifact
	InitramfsConf  Artifact
	BootloaderConf Artifact
}

// All returns the artifacts in a fixed write order.
func (s *ArtifactSet) All() []Artifact {
	return []Artifact{s.Fstab, s.Crypttab, s.InitramfsConf, s.BootloaderConf}
}

// Render produces the complete artifact set for a configuration,
// topology, and binding.
func Render(cfg *install_config.Config, topo *topology.Topology, in Inputs) *ArtifactSet {
	return &ArtifactSet{
		Fstab:          renderFstab(cfg, topo, in),
		Crypttab:       renderCrypttab(in),
		InitramfsConf:  renderInitramfsConf(in),
		BootloaderConf: renderBootloaderConf(in),
	}
}

func renderFstab(cfg *install_config.Config, topo *topology.Topology, in Inputs) Artifact {
	var b strings.Builder
	b.WriteString("# /etc/fstab: static file system information.\n")
	b.WriteString("# <file system> <mount point> <type> <options> <dump> <pass>\n")

	root := topo.RootLV.Path()
	for _, sv := range topo.Subvolumes {
		fmt.Fprintf(&b, "%s\t%s\tbtrfs\trw,noatime,compress=zstd,subvol=%s\t0\t0\n",
			root, sv.MountPoint, sv.Name)
	}
	fmt.Fprintf(&b, "UUID=%s\t/boot\text4\trw,relatime\t0\t2\n", in.BootUUID)
	fmt.Fprintf(&b, "UUID=%s\t/boot/efi\tvfat\trw,relatime,umask=0077\t0\t2\n", in.EFIUUID)
	fmt.Fprintf(&b, "%s\tnone\tswap\tdefaults\t0\t0\n", topo.SwapLV.Path())
	if topo.DataLV != nil {
		fmt.Fprintf(&b, "%s\t/srv/data\text4\trw,noatime\t0\t2\n", topo.DataLV.Path())
	}

	return Artifact{Path: "/etc/fstab", Content: b.String()}
}

func renderCrypttab(in Inputs) Artifact {
	var b strings.Builder
	b.WriteString("# <name> <device> <password> <options>\n")
	fmt.Fprintf(&b, "%s\tUUID=%s\tnone\tluks,discard\n", in.Binding.ContainerName, in.Binding.ContainerUUID)
	for _, c := range in.DataContainers {
		fmt.Fprintf(&b, "%s\tUUID=%s\tnone\tluks,discard\n", c.Name, c.UUID)
	}
	return Artifact{Path: "/etc/crypttab", Content: b.String()}
}

func renderInitramfsConf(in Inputs) Artifact {
	switch in.Binding.Generator {
	case "dracut":
		var b strings.Builder
		b.WriteString("# Generated by bedrock; regenerate with bedrock, do not edit.\n")
		b.WriteString("add_dracutmodules+=\" crypt lvm btrfs \"\n")
		fmt.Fprintf(&b, "kernel_cmdline+=\" rd.luks.name=%s=%s \"\n",
			in.Binding.ContainerUUID, in.Binding.ContainerName)
		return Artifact{Path: "/etc/dracut.conf.d/90-bedrock.conf", Content: b.String()}
	default:
		// The sd-encrypt hook reads its unlock table from
		// crypttab.initramfs; the hook list itself is static and lives
		// in mkinitcpio.conf.
		content := fmt.Sprintf("# Generated by bedrock; regenerate with bedrock, do not edit.\n%s\tUUID=%s\tnone\tluks,discard\n",
			in.Binding.ContainerName, in.Binding.ContainerUUID)
		return Artifact{Path: "/etc/crypttab.initramfs", Content: content}
	}
}

func renderBootloaderConf(in Inputs) Artifact {
	var b strings.Builder
	b.WriteString("# Generated by bedrock; regenerate with bedrock, do not edit.\n")
	b.WriteString("GRUB_DEFAULT=0\n")
	b.WriteString("GRUB_TIMEOUT=5\n")
	b.WriteString("GRUB_DISTRIBUTOR=\"Bedrock\"\n")
	fmt.Fprintf(&b, "GRUB_CMDLINE_LINUX=%q\n", in.Binding.KernelCmdline())
	b.WriteString("GRUB_ENABLE_CRYPTODISK=y\n")
	b.WriteString("GRUB_PRELOAD_MODULES=\"part_gpt cryptodisk luks2 lvm\"\n")
	return Artifact{Path: "/etc/default/grub", Content: b.String()}
}

// MkinitcpioConf is the static generator configuration installed once at
// in-target-configure time. The name binding deliberately does not live
// here; it lives in the artifacts RegenerateAll manages.
const MkinitcpioConf = `# Generated by bedrock; regenerate with bedrock, do not edit.
MODULES=(btrfs)
BINARIES=()
FILES=()
HOOKS=(base systemd autodetect modconf kms keyboard sd-vconsole block sd-encrypt lvm2 filesystems fsck)
`
