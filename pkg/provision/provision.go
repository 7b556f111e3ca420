// pkg/provision/provision.go

package provision

import (
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/bedrock-install/bedrock/pkg/phase"
	"github.com/bedrock-install/bedrock/pkg/topology"
)

// Package provision holds one body per installation phase. Bodies are
// destructive and assume a clean slate: the phase runner's marker contract
// guarantees a body never executes twice for the same machine lifecycle,
// so bodies do not re-check for their own prior effects except where an
// effect is observably ambient (an already-mounted target tree).

// Provisioner bundles everything the phase bodies need. It is assembled
// once per command invocation from the persisted configuration.
type Provisioner struct {
	Cfg  *install_config.Config
	Topo *topology.Topology
	Exe  execute.Executor

	Markers  phase.MarkerStore
	Prompter interaction.Prompter

	// Passphrase unlocks every encrypted container of this install. It is
	// collected once at the start of a run and never persisted.
	Passphrase string
}

// Stage1Specs returns the phases that run from the live provisioning
// environment, in order. Each phase requires its predecessor's marker so
// a partial run resumes exactly where it stopped.
func (p *Provisioner) Stage1Specs() []phase.Spec {
	return []phase.Spec{
		{
			Phase: phase.Partition,
			Preconditions: []phase.Precondition{
				phase.RequireTool("wipefs"),
				phase.RequireTool("sgdisk"),
				phase.RequireTool("partprobe"),
				phase.RequireDevice(p.Cfg.PrimaryDisk),
			},
			Body: p.runPartition,
		},
		{
			Phase: phase.Encrypt,
			Preconditions: []phase.Precondition{
				phase.RequireTool("cryptsetup"),
				phase.RequirePhase(p.Markers, phase.Partition),
			},
			Body: p.runEncrypt,
		},
		{
			Phase: phase.VolumeManage,
			Preconditions: []phase.Precondition{
				phase.RequireTool("pvcreate"),
				phase.RequireTool("vgcreate"),
				phase.RequireTool("lvcreate"),
				phase.RequirePhase(p.Markers, phase.Encrypt),
			},
			Body: p.runVolumeManage,
		},
		{
			Phase: phase.Filesystem,
			Preconditions: []phase.Precondition{
				phase.RequireTool("mkfs.vfat"),
				phase.RequireTool("mkfs.ext4"),
				phase.RequireTool("mkfs.btrfs"),
				phase.RequireTool("mkswap"),
				phase.RequirePhase(p.Markers, phase.VolumeManage),
			},
			Body: p.runFilesystem,
		},
		{
			Phase: phase.Mount,
			Preconditions: []phase.Precondition{
				phase.RequireTool("mount"),
				phase.RequirePhase(p.Markers, phase.Filesystem),
			},
			Body: p.runMount,
		},
		{
			Phase: phase.BaseInstall,
			Preconditions: []phase.Precondition{
				phase.RequireTool("pacstrap"),
				phase.RequirePhase(p.Markers, phase.Mount),
			},
			Body: p.runBaseInstall,
		},
	}
}

// Stage2Spec is the phase that runs inside the target root after the
// chroot handoff. Its predecessor marker travels into the target with
// handoff.PersistForReboot, so the ordering check still holds there.
func (p *Provisioner) Stage2Spec() phase.Spec {
	return phase.Spec{
		Phase: phase.InTargetConfigure,
		Preconditions: []phase.Precondition{
			phase.RequirePhase(p.Markers, phase.BaseInstall),
		},
		Body: p.runInTargetConfigure,
	}
}

// PostRebootSpec is the finalization phase run after the first boot into
// the installed system.
func (p *Provisioner) PostRebootSpec() phase.Spec {
	return phase.Spec{
		Phase: phase.PostReboot,
		Preconditions: []phase.Precondition{
			phase.RequireTool("btrfs"),
			phase.RequirePhase(p.Markers, phase.InTargetConfigure),
		},
		Body: p.runPostReboot,
	}
}
