// pkg/recovery/recovery.go

// Package recovery rebuilds a bootable state for an installed system
// whose boot artifacts have drifted out of agreement, typically a
// container opened under one mapper name while crypttab, the initramfs,
// or GRUB reference another. It deliberately uses no phase markers:
// every step probes the live system for its own prior effects, so the
// reconstructor can be re-run from any intermediate wreckage.
package recovery

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/bedrock-install/bedrock/pkg/luks"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// NamingConventions are the mapper names observed in the wild for the
// root container of this layout. The whole point of recovery is that
// different tools historically picked different spellings.
var NamingConventions = []string{"cryptroot", "crypt_root"}

// State accumulates what the steps learn about the system. A later step
// only reads fields an earlier step wrote.
type State struct {
	Cfg    *install_config.Config
	Styles map[string]topology.SuffixStyle
	Topo   *topology.Topology

	// ContainerName is the convention the root container is (or will be)
	// opened under; every regenerated artifact references it.
	ContainerName string
	Generator     string

	// Mismatches lists artifacts that referenced a different name than
	// ContainerName before regeneration.
	Mismatches []string
}

// Reconstructor drives the recovery steps in order.
type Reconstructor struct {
	Exe      execute.Executor
	Prompter interaction.Prompter
	Resolver *topology.Resolver

	// TargetRoot is where the installed system gets mounted for repair.
	TargetRoot string

	// ConfigStore supplies the persisted install configuration when one
	// survived; detection fills the gaps when it did not.
	ConfigStore *install_config.Store

	// MapperOpen probes whether a mapper name is currently open.
	MapperOpen func(name string) bool
}

func NewReconstructor(exe execute.Executor, prompter interaction.Prompter) *Reconstructor {
	return &Reconstructor{
		Exe:         exe,
		Prompter:    prompter,
		Resolver:    topology.NewResolver(),
		TargetRoot:  "/mnt/bedrock",
		ConfigStore: install_config.NewStore(install_config.DefaultPath),
		MapperOpen:  luks.IsOpen,
	}
}

type step struct {
	name string
	run  func(rc *bedrock_io.RuntimeContext, st *State) error
}

func (r *Reconstructor) steps() []step {
	return []step{
		{"detect-disks", r.detectDisks},
		{"detect-partitions", r.detectPartitions},
		{"disambiguate-naming", r.disambiguateNaming},
		{"open-container", r.openContainer},
		{"activate-volume-groups", r.activateVolumeGroups},
		{"mount-topology", r.mountTopology},
		{"select-initramfs-generator", r.selectGenerator},
		{"regenerate-boot-artifacts", r.regenerateArtifacts},
		{"finish", r.finish},
	}
}

// Run executes every recovery step in order and stops at the first
// failure. Steps are individually re-entrant, so a failed run can simply
// be started again after the operator fixes the reported problem.
func (r *Reconstructor) Run(rc *bedrock_io.RuntimeContext) (*State, error) {
	log := otelzap.Ctx(rc.Ctx)
	st := &State{}

	for _, s := range r.steps() {
		log.Info("Recovery step", zap.String("step", s.name))
		if err := s.run(rc, st); err != nil {
			return st, cerr.Wrapf(err, "recovery step %s", s.name)
		}
	}
	return st, nil
}
