// pkg/provision/volumes.go

package provision

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/lvm"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// runVolumeManage builds the LVM layer on top of the opened containers:
// the system group with swap and root, and when auxiliary disks are
// configured, the mirrored data group. The mirror candidates' sizes are
// validated before any group exists, so a size mismatch costs nothing.
func (p *Provisioner) runVolumeManage(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	if p.Topo.DataVG != nil {
		members := make([]string, 0, len(p.Topo.DataContainers))
		for _, c := range p.Topo.DataContainers {
			members = append(members, c.MapperPath())
		}
		if err := lvm.CheckMirrorCandidates(rc, p.Exe, members); err != nil {
			return cerr.Wrap(err, "validate mirror members")
		}
	}

	if err := p.createGroup(rc, p.Topo.SystemVG, []*topology.LogicalVolume{
		p.Topo.SwapLV, p.Topo.RootLV,
	}); err != nil {
		return err
	}

	if p.Topo.DataVG != nil {
		if err := p.createGroup(rc, p.Topo.DataVG, []*topology.LogicalVolume{
			p.Topo.DataLV,
		}); err != nil {
			return err
		}
	}

	log.Info("Volume layer assembled",
		zap.String("system_vg", p.Topo.SystemVG.Name),
		zap.Bool("data_mirror", p.Topo.DataVG != nil))
	return nil
}

func (p *Provisioner) createGroup(rc *bedrock_io.RuntimeContext, vg *topology.VolumeGroup, volumes []*topology.LogicalVolume) error {
	if err := lvm.PlanVolumes(volumes); err != nil {
		return cerr.Wrapf(err, "plan volumes for %s", vg.Name)
	}

	for _, c := range vg.Containers {
		if err := lvm.CreatePhysicalVolume(rc, p.Exe, c.MapperPath()); err != nil {
			return cerr.Wrapf(err, "initialize physical volume %s", c.MapperPath())
		}
	}
	if err := lvm.CreateVolumeGroup(rc, p.Exe, vg); err != nil {
		return cerr.Wrapf(err, "create volume group %s", vg.Name)
	}
	for _, lv := range volumes {
		if err := lvm.CreateLogicalVolume(rc, p.Exe, lv); err != nil {
			return cerr.Wrapf(err, "create logical volume %s/%s", vg.Name, lv.Name)
		}
	}
	return nil
}
