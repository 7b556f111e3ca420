// pkg/topology/model.go

package topology

import (
	"fmt"
	"path/filepath"
)

// Package topology models the storage stack as a directed acyclic
// layering: disk -> partition -> encrypted container -> volume group ->
// logical volume -> filesystem/subvolume -> mountpoint. Each node owns a
// device path and a human-assigned name; a child node is only valid while
// its parent exists and is open (containers) or active (volume groups).

// PartitionRole says what a partition carries.
type PartitionRole string

const (
	RoleEFI  PartitionRole = "efi"
	RoleBoot PartitionRole = "boot"
	RoleLUKS PartitionRole = "luks"
)

// Partition is one numbered partition of a disk.
type Partition struct {
	Disk   string
	Number int
	Path   string
	Role   PartitionRole
	// Size is a tool-facing size string ("512M"); empty means the
	// remaining space on the disk, legal only for the last partition.
	Size string
}

// EncryptedContainer is a block-encryption layer over a partition. The
// mapper name is part of its identity: the name used to open it must
// match the name referenced by every consumer (crypttab, boot loader
// command line). A mismatch there is the single most common failure this
// system detects and repairs.
type EncryptedContainer struct {
	Partition *Partition
	Name      string
}

// MapperPath is the decrypted virtual block device once opened.
func (c *EncryptedContainer) MapperPath() string {
	return filepath.Join("/dev/mapper", c.Name)
}

// VolumeGroup pools one or more opened containers.
type VolumeGroup struct {
	Name       string
	Containers []*EncryptedContainer
	// Mirrored marks the auxiliary group whose logical volumes are
	// created as raid1 across its two members.
	Mirrored bool
}

// LogicalVolume is one carved volume of a group. Remaining ("consume all
// remaining space") has defined meaning only for the last volume carved
// from its group.
type LogicalVolume struct {
	VG        *VolumeGroup
	Name      string
	Size      string
	Remaining bool
}

// Path is the activated device path of the volume.
func (lv *LogicalVolume) Path() string {
	return filepath.Join("/dev", lv.VG.Name, lv.Name)
}

// Subvolume is a named, independently mountable namespace within the
// root filesystem.
type Subvolume struct {
	Name       string
	MountPoint string
}

// Mountpoint is one assembled mount under the target root.
type Mountpoint struct {
	Source  string
	Target  string
	FSType  string
	Options string
}

// Topology is the full resolved storage stack of one installation.
type Topology struct {
	PrimaryDisk string
	AuxDisks    []string

	EFI  *Partition
	Boot *Partition

	RootContainer  *EncryptedContainer
	DataContainers []*EncryptedContainer

	SystemVG *VolumeGroup
	DataVG   *VolumeGroup

	SwapLV *LogicalVolume
	RootLV *LogicalVolume
	DataLV *LogicalVolume

	Subvolumes []Subvolume
}

// Partitions returns every partition node across all disks.
func (t *Topology) Partitions() []*Partition {
	parts := []*Partition{}
	if t.EFI != nil {
		parts = append(parts, t.EFI)
	}
	if t.Boot != nil {
		parts = append(parts, t.Boot)
	}
	if t.RootContainer != nil {
		parts = append(parts, t.RootContainer.Partition)
	}
	for _, c := range t.DataContainers {
		parts = append(parts, c.Partition)
	}
	return parts
}

// Containers returns every encrypted container, primary store first.
func (t *Topology) Containers() []*EncryptedContainer {
	containers := []*EncryptedContainer{}
	if t.RootContainer != nil {
		containers = append(containers, t.RootContainer)
	}
	containers = append(containers, t.DataContainers...)
	return containers
}

// checkSiblingPaths enforces that no two nodes claim the same device path.
func (t *Topology) checkSiblingPaths() error {
	seen := make(map[string]string)
	claim := func(path, node string) error {
		if path == "" {
			return fmt.Errorf("node %s has no device path", node)
		}
		if prior, ok := seen[path]; ok {
			return fmt.Errorf("nodes %s and %s both claim device path %s", prior, node, path)
		}
		seen[path] = node
		return nil
	}

	for _, part := range t.Partitions() {
		if err := claim(part.Path, fmt.Sprintf("partition %d of %s", part.Number, part.Disk)); err != nil {
			return err
		}
	}
	for _, c := range t.Containers() {
		if err := claim(c.MapperPath(), "container "+c.Name); err != nil {
			return err
		}
	}
	return nil
}
