// pkg/install_config/config.go

package install_config

import (
	"fmt"
	"strings"
)

// Config is the flat installer configuration. It is collected once,
// persisted before any phase runs, and read-only thereafter within a
// single installation attempt. Once a phase has consumed a name to create
// an on-disk artifact (an opened container, a volume group) that name is
// durably bound and must not change without explicit reconciliation.
type Config struct {
	// PrimaryDisk carries the system: EFI, boot, and the root container.
	PrimaryDisk string
	// AuxDisks are mirrored data disks; exactly two when set.
	AuxDisks []string

	EFISize  string
	BootSize string
	SwapSize string

	// RootContainer is the mapper name the root encrypted container is
	// opened under; its spelling is part of the BootBinding identity.
	RootContainer  string
	DataContainers []string

	SystemVG string
	DataVG   string

	Hostname string
	Username string
	Locale   string
	Timezone string

	// Generator selects the initramfs generator: mkinitcpio or dracut.
	Generator string

	// TargetRoot is where the new system is assembled and entered.
	TargetRoot string
}

// DefaultConfig returns the defaults the guided run starts from.
func DefaultConfig() *Config {
	return &Config{
		EFISize:        "512M",
		BootSize:       "1G",
		SwapSize:       "8G",
		RootContainer:  "cryptroot",
		DataContainers: []string{"cryptdata0", "cryptdata1"},
		SystemVG:       "vg_system",
		DataVG:         "vg_data",
		Locale:         "en_US.UTF-8",
		Timezone:       "UTC",
		Generator:      "mkinitcpio",
		TargetRoot:     "/mnt/bedrock",
	}
}

// Validate checks internal consistency before anything is persisted.
func (c *Config) Validate() error {
	if c.PrimaryDisk == "" {
		return fmt.Errorf("primary disk is required")
	}
	if len(c.AuxDisks) != 0 && len(c.AuxDisks) != 2 {
		return fmt.Errorf("auxiliary disks must be exactly two (mirrored), got %d", len(c.AuxDisks))
	}
	if len(c.AuxDisks) == 2 && len(c.DataContainers) != 2 {
		return fmt.Errorf("two data container names required for two auxiliary disks")
	}
	if c.RootContainer == "" {
		return fmt.Errorf("root container name is required")
	}
	if c.SystemVG == "" {
		return fmt.Errorf("system volume group name is required")
	}
	if c.Generator != "mkinitcpio" && c.Generator != "dracut" {
		return fmt.Errorf("unsupported initramfs generator %q", c.Generator)
	}
	if c.TargetRoot == "" {
		return fmt.Errorf("target root is required")
	}
	seen := make(map[string]bool)
	for _, disk := range append([]string{c.PrimaryDisk}, c.AuxDisks...) {
		if seen[disk] {
			return fmt.Errorf("disk %s listed twice", disk)
		}
		seen[disk] = true
	}
	return nil
}

// HasDataMirror reports whether the mirrored auxiliary volume group is
// part of this installation.
func (c *Config) HasDataMirror() bool {
	return len(c.AuxDisks) == 2
}

// Summary renders the configuration for the operator confirmation step.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "primary disk:     %s\n", c.PrimaryDisk)
	if c.HasDataMirror() {
		fmt.Fprintf(&b, "auxiliary disks:  %s (mirrored)\n", strings.Join(c.AuxDisks, ", "))
	} else {
		fmt.Fprintf(&b, "auxiliary disks:  none\n")
	}
	fmt.Fprintf(&b, "EFI / boot / swap: %s / %s / %s\n", c.EFISize, c.BootSize, c.SwapSize)
	fmt.Fprintf(&b, "root container:   %s -> %s\n", c.RootContainer, c.SystemVG)
	if c.HasDataMirror() {
		fmt.Fprintf(&b, "data containers:  %s -> %s\n", strings.Join(c.DataContainers, ", "), c.DataVG)
	}
	fmt.Fprintf(&b, "host / user:      %s / %s\n", c.Hostname, c.Username)
	fmt.Fprintf(&b, "locale / tz:      %s / %s\n", c.Locale, c.Timezone)
	fmt.Fprintf(&b, "initramfs:        %s\n", c.Generator)
	fmt.Fprintf(&b, "target root:      %s\n", c.TargetRoot)
	return b.String()
}
