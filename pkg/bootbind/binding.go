// pkg/bootbind/binding.go

package bootbind

import (
	"fmt"
	"regexp"
	"strings"
)

// Binding is the tuple that must stay mutually consistent for the machine
// to boot: the encrypted container's mapper name, its UUID, the initramfs
// generator, and the root device the kernel command line points at. It is
// created at in-target-configure time and mutated only by the recovery
// reconstructor; any change rewrites all dependent artifacts as a set.
type Binding struct {
	ContainerName string
	ContainerUUID string
	// Generator is mkinitcpio or dracut.
	Generator string
	// RootDevice is the activated root logical volume path.
	RootDevice string
	// RootSubvolume is the btrfs subvolume mounted as /.
	RootSubvolume string
}

// KernelCmdline is the boot-loader command-line fragment. Both supported
// generators understand the rd.luks.name= form, so the same fragment
// serves either choice.
func (b Binding) KernelCmdline() string {
	return fmt.Sprintf("rd.luks.name=%s=%s root=%s rootflags=subvol=%s rw",
		b.ContainerUUID, b.ContainerName, b.RootDevice, b.RootSubvolume)
}

var (
	rdLuksNameRe  = regexp.MustCompile(`rd\.luks\.name=[0-9a-fA-F-]+=(\S+)`)
	cryptdeviceRe = regexp.MustCompile(`cryptdevice=[^:\s]+:([^:\s]+)`)
)

// ParseCmdlineContainerName extracts the container name a kernel command
// line references. Both the rd.luks.name= form and the legacy
// cryptdevice= form are recognized, since the mismatch this system
// repairs typically involves an older install.
func ParseCmdlineContainerName(cmdline string) string {
	if m := rdLuksNameRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	if m := cryptdeviceRe.FindStringSubmatch(cmdline); m != nil {
		return m[1]
	}
	return ""
}

// ParseCrypttabName returns the mapper name a crypttab-style table binds
// to the given container UUID, or "" when the UUID is not present.
func ParseCrypttabName(content, uuid string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.EqualFold(fields[1], "UUID="+uuid) {
			return fields[0]
		}
	}
	return ""
}

// ParseGrubCmdline extracts the GRUB_CMDLINE_LINUX value from a GRUB
// defaults file.
func ParseGrubCmdline(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, "GRUB_CMDLINE_LINUX="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}
