// pkg/topology/resolver.go

package topology

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// SuffixStyle is the partition-numbering scheme appended to a disk path.
// Which one is correct depends on the underlying device class, not on the
// disk's name, so it is detected by existence probing where partitions
// already exist.
type SuffixStyle int

const (
	// SuffixBare appends the number directly (/dev/sda1).
	SuffixBare SuffixStyle = iota
	// SuffixP inserts a "p" separator (/dev/nvme0n1p1).
	SuffixP
)

func (s SuffixStyle) String() string {
	if s == SuffixP {
		return "p-separated"
	}
	return "bare"
}

// PartitionPath applies a suffix style to a disk path.
func PartitionPath(disk string, number int, style SuffixStyle) string {
	if style == SuffixP {
		return fmt.Sprintf("%sp%d", disk, number)
	}
	return fmt.Sprintf("%s%d", disk, number)
}

// ExistsFunc reports whether a device path exists on the live system.
// Production uses os.Stat; tests substitute a map lookup.
type ExistsFunc func(path string) bool

// DeviceExists is the production ExistsFunc.
func DeviceExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FilesystemUUID reads the UUID blkid reports for a block device. The
// result may be empty when the device carries no recognized signature;
// callers that require one check for it.
func FilesystemUUID(rc *bedrock_io.RuntimeContext, exe execute.Executor, device string) (string, error) {
	out, err := execute.Capture(rc.Ctx, exe, "blkid", "-s", "UUID", "-o", "value", device)
	if err != nil {
		return "", cerr.Wrapf(err, "read UUID of %s", device)
	}
	return out, nil
}

// DetectSuffixStyle probes for partition 1 under both schemes. Both
// matching is DeviceAmbiguous and requires operator disambiguation;
// neither matching means the disk has no partitions to probe.
func DetectSuffixStyle(disk string, exists ExistsFunc) (SuffixStyle, error) {
	bare := PartitionPath(disk, 1, SuffixBare)
	sep := PartitionPath(disk, 1, SuffixP)

	bareExists := exists(bare)
	sepExists := exists(sep)

	switch {
	case bareExists && sepExists:
		return SuffixBare, &bedrock_err.DeviceAmbiguous{
			Device:     disk,
			Candidates: []string{bare, sep},
		}
	case sepExists:
		return SuffixP, nil
	case bareExists:
		return SuffixBare, nil
	default:
		return SuffixBare, &bedrock_err.DeviceNotFound{
			Node:   "first partition of " + disk,
			Device: bare + " or " + sep,
		}
	}
}

// Resolver derives concrete device paths from configuration naming
// conventions without probing hardware; Validate then checks the derived
// paths against the live system before any destructive operation.
type Resolver struct {
	Exists ExistsFunc
}

func NewResolver() *Resolver {
	return &Resolver{Exists: DeviceExists}
}

// Layout of the primary disk: EFI is partition 1, boot partition 2, the
// root container partition 3 taking the remaining space. Auxiliary disks
// carry a single container partition each.
const (
	efiPartition  = 1
	bootPartition = 2
	luksPartition = 3
	auxPartition  = 1
)

// Resolve builds the expected topology for a configuration, applying the
// given suffix style per disk (primary first, auxiliaries following).
func (r *Resolver) Resolve(cfg *install_config.Config, styles map[string]SuffixStyle) (*Topology, error) {
	style := func(disk string) SuffixStyle {
		return styles[disk]
	}

	t := &Topology{
		PrimaryDisk: cfg.PrimaryDisk,
		AuxDisks:    append([]string{}, cfg.AuxDisks...),
	}

	t.EFI = &Partition{
		Disk:   cfg.PrimaryDisk,
		Number: efiPartition,
		Path:   PartitionPath(cfg.PrimaryDisk, efiPartition, style(cfg.PrimaryDisk)),
		Role:   RoleEFI,
		Size:   cfg.EFISize,
	}
	t.Boot = &Partition{
		Disk:   cfg.PrimaryDisk,
		Number: bootPartition,
		Path:   PartitionPath(cfg.PrimaryDisk, bootPartition, style(cfg.PrimaryDisk)),
		Role:   RoleBoot,
		Size:   cfg.BootSize,
	}
	t.RootContainer = &EncryptedContainer{
		Name: cfg.RootContainer,
		Partition: &Partition{
			Disk:   cfg.PrimaryDisk,
			Number: luksPartition,
			Path:   PartitionPath(cfg.PrimaryDisk, luksPartition, style(cfg.PrimaryDisk)),
			Role:   RoleLUKS,
		},
	}

	for i, disk := range cfg.AuxDisks {
		t.DataContainers = append(t.DataContainers, &EncryptedContainer{
			Name: cfg.DataContainers[i],
			Partition: &Partition{
				Disk:   disk,
				Number: auxPartition,
				Path:   PartitionPath(disk, auxPartition, style(disk)),
				Role:   RoleLUKS,
			},
		})
	}

	t.SystemVG = &VolumeGroup{
		Name:       cfg.SystemVG,
		Containers: []*EncryptedContainer{t.RootContainer},
	}
	t.SwapLV = &LogicalVolume{VG: t.SystemVG, Name: "swap", Size: cfg.SwapSize}
	t.RootLV = &LogicalVolume{VG: t.SystemVG, Name: "root", Remaining: true}

	if cfg.HasDataMirror() {
		t.DataVG = &VolumeGroup{
			Name:       cfg.DataVG,
			Containers: t.DataContainers,
			Mirrored:   true,
		}
		t.DataLV = &LogicalVolume{VG: t.DataVG, Name: "data", Remaining: true}
	}

	t.Subvolumes = []Subvolume{
		{Name: "@", MountPoint: "/"},
		{Name: "@home", MountPoint: "/home"},
		{Name: "@snapshots", MountPoint: "/.snapshots"},
	}

	if err := t.checkSiblingPaths(); err != nil {
		return nil, err
	}
	return t, nil
}

// DetectStyles probes the suffix style of every disk in the
// configuration. An ambiguous probe goes to the operator when a prompter
// is available and is fatal otherwise.
func (r *Resolver) DetectStyles(cfg *install_config.Config, prompter interaction.Prompter) (map[string]SuffixStyle, error) {
	styles := make(map[string]SuffixStyle)
	for _, disk := range append([]string{cfg.PrimaryDisk}, cfg.AuxDisks...) {
		style, err := DetectSuffixStyle(disk, r.Exists)
		if err != nil {
			var ambiguous *bedrock_err.DeviceAmbiguous
			if !cerr.As(err, &ambiguous) || prompter == nil {
				return nil, err
			}
			style, err = disambiguateStyle(prompter, disk, ambiguous.Candidates)
			if err != nil {
				return nil, err
			}
		}
		styles[disk] = style
	}
	return styles, nil
}

// ValidateDisks checks that every configured disk exists before any
// destructive operation.
func (r *Resolver) ValidateDisks(rc *bedrock_io.RuntimeContext, cfg *install_config.Config) error {
	log := otelzap.Ctx(rc.Ctx)
	for _, disk := range append([]string{cfg.PrimaryDisk}, cfg.AuxDisks...) {
		if !r.Exists(disk) {
			return &bedrock_err.DeviceNotFound{Node: "disk", Device: disk}
		}
		log.Debug("Disk present", zap.String("disk", disk))
	}
	return nil
}

// ValidatePartitions checks that every derived partition path exists.
func (r *Resolver) ValidatePartitions(rc *bedrock_io.RuntimeContext, t *Topology) error {
	log := otelzap.Ctx(rc.Ctx)
	for _, part := range t.Partitions() {
		if !r.Exists(part.Path) {
			return &bedrock_err.DeviceNotFound{
				Node:   fmt.Sprintf("partition %d of %s", part.Number, part.Disk),
				Device: part.Path,
			}
		}
	}
	log.Debug("All partitions present", zap.Int("count", len(t.Partitions())))
	return nil
}

// GuessSuffixStyle predicts the suffix style for a disk that has no
// partitions to probe yet. The kernel inserts a "p" separator when the
// disk name itself ends in a digit (nvme0n1, mmcblk0), so a fresh disk's
// style is determined by its name alone.
func GuessSuffixStyle(disk string) SuffixStyle {
	base := filepath.Base(disk)
	if base == "" {
		return SuffixBare
	}
	last := base[len(base)-1]
	if last >= '0' && last <= '9' {
		return SuffixP
	}
	return SuffixBare
}

// DetectOrGuessStyles probes where partitions exist and falls back to the
// name heuristic where they do not, so it works both on a disk about to
// be partitioned and on one being resumed mid-install. When both schemes
// probe true the operator picks the real first partition; guessing here
// risks partitioning the wrong node.
func (r *Resolver) DetectOrGuessStyles(cfg *install_config.Config, prompter interaction.Prompter) (map[string]SuffixStyle, error) {
	styles := make(map[string]SuffixStyle)
	for _, disk := range append([]string{cfg.PrimaryDisk}, cfg.AuxDisks...) {
		style, err := DetectSuffixStyle(disk, r.Exists)
		if err != nil {
			var notFound *bedrock_err.DeviceNotFound
			var ambiguous *bedrock_err.DeviceAmbiguous
			switch {
			case cerr.As(err, &notFound):
				style = GuessSuffixStyle(disk)
			case cerr.As(err, &ambiguous) && prompter != nil:
				style, err = disambiguateStyle(prompter, disk, ambiguous.Candidates)
				if err != nil {
					return nil, err
				}
			default:
				return nil, err
			}
		}
		styles[disk] = style
	}
	return styles, nil
}

// disambiguateStyle asks the operator which probed node really is the
// first partition of disk and maps the answer back to a suffix style.
func disambiguateStyle(prompter interaction.Prompter, disk string, candidates []string) (SuffixStyle, error) {
	question := fmt.Sprintf("Both partition naming schemes exist for %s; which is its first partition?", disk)
	choice, err := prompter.Select(question, candidates)
	if err != nil {
		return SuffixBare, cerr.Wrapf(err, "disambiguate partition naming for %s", disk)
	}
	if choice == PartitionPath(disk, 1, SuffixP) {
		return SuffixP, nil
	}
	return SuffixBare, nil
}
