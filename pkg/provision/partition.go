// pkg/provision/partition.go

package provision

import (
	"fmt"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// GPT type codes for the partitions bedrock creates.
const (
	typeEFI  = "ef00"
	typeBoot = "8300"
	typeLUKS = "8309"
)

// runPartition wipes every target disk and writes the partition tables:
// the primary disk gets EFI, boot, and the root container partition; each
// auxiliary disk gets a single container partition spanning the disk.
func (p *Provisioner) runPartition(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	disks := append([]string{p.Cfg.PrimaryDisk}, p.Cfg.AuxDisks...)
	for _, disk := range disks {
		log.Info("Wiping disk signatures", zap.String("disk", disk))
		if err := execute.RunSimple(rc.Ctx, p.Exe, "wipefs", "-a", disk); err != nil {
			return cerr.Wrapf(err, "wipe %s", disk)
		}
		if err := execute.RunSimple(rc.Ctx, p.Exe, "sgdisk", "--zap-all", disk); err != nil {
			return cerr.Wrapf(err, "clear partition table on %s", disk)
		}
	}

	log.Info("Partitioning primary disk",
		zap.String("disk", p.Cfg.PrimaryDisk),
		zap.String("efi_size", p.Cfg.EFISize),
		zap.String("boot_size", p.Cfg.BootSize))
	if err := p.createPrimaryPartitions(rc); err != nil {
		return err
	}

	for _, disk := range p.Cfg.AuxDisks {
		log.Info("Partitioning auxiliary disk", zap.String("disk", disk))
		err := execute.RunSimple(rc.Ctx, p.Exe, "sgdisk",
			"--new", "1:0:0",
			"--typecode", "1:"+typeLUKS,
			"--change-name", "1:data",
			disk)
		if err != nil {
			return cerr.Wrapf(err, "partition auxiliary disk %s", disk)
		}
	}

	for _, disk := range disks {
		if err := execute.RunSimple(rc.Ctx, p.Exe, "partprobe", disk); err != nil {
			return cerr.Wrapf(err, "reread partition table on %s", disk)
		}
	}
	// Soft: settling is best effort, the resolver re-probes paths anyway.
	if err := execute.RunSimple(rc.Ctx, p.Exe, "udevadm", "settle"); err != nil {
		log.Warn("udevadm settle failed, continuing", zap.Error(err))
	}

	return nil
}

// createPrimaryPartitions lays out the primary disk in ascending order so
// partition numbers match the topology the resolver expects.
func (p *Provisioner) createPrimaryPartitions(rc *bedrock_io.RuntimeContext) error {
	steps := []struct {
		part *topology.Partition
		code string
		name string
	}{
		{p.Topo.EFI, typeEFI, "EFI"},
		{p.Topo.Boot, typeBoot, "boot"},
		{p.Topo.RootContainer.Partition, typeLUKS, "system"},
	}

	for _, s := range steps {
		size := s.part.Size
		endSector := "+" + size
		if size == "" {
			// Remaining space: sgdisk end sector 0.
			endSector = "0"
		}
		err := execute.RunSimple(rc.Ctx, p.Exe, "sgdisk",
			"--new", fmt.Sprintf("%d:0:%s", s.part.Number, endSector),
			"--typecode", fmt.Sprintf("%d:%s", s.part.Number, s.code),
			"--change-name", fmt.Sprintf("%d:%s", s.part.Number, s.name),
			p.Cfg.PrimaryDisk)
		if err != nil {
			return cerr.Wrapf(err, "create partition %d (%s) on %s",
				s.part.Number, s.name, p.Cfg.PrimaryDisk)
		}
	}
	return nil
}
