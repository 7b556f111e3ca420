// pkg/provision/filesystem.go

package provision

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/btrfs"
	"github.com/bedrock-install/bedrock/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Filesystem labels. The root label is what users see in lsblk output;
// nothing boots off labels, the boot binding uses UUIDs and mapper names.
const (
	labelEFI  = "EFI"
	labelBoot = "boot"
	labelRoot = "bedrock"
	labelData = "data"
)

// runFilesystem formats every block device of the topology and carves the
// btrfs subvolume layout into the root filesystem.
func (p *Provisioner) runFilesystem(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	log.Info("Formatting EFI system partition", zap.String("device", p.Topo.EFI.Path))
	if err := execute.RunSimple(rc.Ctx, p.Exe, "mkfs.vfat", "-F", "32", "-n", labelEFI, p.Topo.EFI.Path); err != nil {
		return cerr.Wrapf(err, "format EFI partition %s", p.Topo.EFI.Path)
	}

	log.Info("Formatting boot partition", zap.String("device", p.Topo.Boot.Path))
	if err := execute.RunSimple(rc.Ctx, p.Exe, "mkfs.ext4", "-F", "-L", labelBoot, p.Topo.Boot.Path); err != nil {
		return cerr.Wrapf(err, "format boot partition %s", p.Topo.Boot.Path)
	}

	root := p.Topo.RootLV.Path()
	if err := btrfs.Mkfs(rc, p.Exe, root, labelRoot); err != nil {
		return cerr.Wrapf(err, "format root volume %s", root)
	}

	names := make([]string, 0, len(p.Topo.Subvolumes))
	for _, sv := range p.Topo.Subvolumes {
		names = append(names, sv.Name)
	}
	if err := btrfs.CreateRootSubvolumes(rc, p.Exe, root, names); err != nil {
		return cerr.Wrap(err, "create root subvolumes")
	}

	swap := p.Topo.SwapLV.Path()
	if err := execute.RunSimple(rc.Ctx, p.Exe, "mkswap", swap); err != nil {
		return cerr.Wrapf(err, "initialize swap on %s", swap)
	}

	if p.Topo.DataLV != nil {
		data := p.Topo.DataLV.Path()
		log.Info("Formatting data volume", zap.String("device", data))
		if err := execute.RunSimple(rc.Ctx, p.Exe, "mkfs.ext4", "-F", "-L", labelData, data); err != nil {
			return cerr.Wrapf(err, "format data volume %s", data)
		}
	}

	return nil
}
