// pkg/recovery/steps.go

package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/bootbind"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/luks"
	"github.com/bedrock-install/bedrock/pkg/lvm"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// detectDisks loads the surviving configuration when there is one and
// reconciles its disks against what lsblk actually reports.
func (r *Reconstructor) detectDisks(rc *bedrock_io.RuntimeContext, st *State) error {
	log := otelzap.Ctx(rc.Ctx)

	cfg, err := r.ConfigStore.Load(rc)
	if err != nil {
		var missing *bedrock_err.ConfigurationMissing
		if !cerr.As(err, &missing) {
			return err
		}
		log.Info("No persisted configuration, recovering from detection alone")
		cfg = defaultRecoveryConfig()
	}

	disks, err := listDisks(rc, r.Exe)
	if err != nil {
		return err
	}
	if len(disks) == 0 {
		return bedrock_err.NewUserError("no disks detected; nothing to recover")
	}

	if !contains(disks, cfg.PrimaryDisk) {
		choice, err := r.Prompter.Select("Select the disk holding the encrypted system", disks)
		if err != nil {
			return err
		}
		cfg.PrimaryDisk = choice
	}

	kept := cfg.AuxDisks[:0]
	for _, disk := range cfg.AuxDisks {
		if contains(disks, disk) {
			kept = append(kept, disk)
		} else {
			log.Warn("Configured auxiliary disk not present, skipping",
				zap.String("disk", disk))
		}
	}
	cfg.AuxDisks = kept

	st.Cfg = cfg
	log.Info("Disks detected",
		zap.String("primary", cfg.PrimaryDisk),
		zap.Strings("aux", cfg.AuxDisks))
	return nil
}

// defaultRecoveryConfig is the layout assumed when no configuration
// survived: system disk only, no data mirror.
func defaultRecoveryConfig() *install_config.Config {
	cfg := install_config.DefaultConfig()
	cfg.PrimaryDisk = ""
	cfg.AuxDisks = nil
	return cfg
}

// detectPartitions probes each disk's partition naming style and resolves
// the expected topology against the devices that actually exist.
func (r *Reconstructor) detectPartitions(rc *bedrock_io.RuntimeContext, st *State) error {
	styles, err := r.Resolver.DetectStyles(st.Cfg, r.Prompter)
	if err != nil {
		return err
	}
	topo, err := r.Resolver.Resolve(st.Cfg, styles)
	if err != nil {
		return err
	}
	if err := r.Resolver.ValidatePartitions(rc, topo); err != nil {
		return err
	}
	st.Styles = styles
	st.Topo = topo
	return nil
}

// disambiguateNaming decides which mapper name owns the root container.
// An already-open mapper wins outright; otherwise the operator chooses.
func (r *Reconstructor) disambiguateNaming(rc *bedrock_io.RuntimeContext, st *State) error {
	log := otelzap.Ctx(rc.Ctx)

	candidates := NamingConventions
	if !contains(candidates, st.Cfg.RootContainer) {
		candidates = append([]string{st.Cfg.RootContainer}, candidates...)
	}

	var open []string
	for _, name := range candidates {
		if r.MapperOpen(name) {
			open = append(open, name)
		}
	}

	switch len(open) {
	case 1:
		st.ContainerName = open[0]
		log.Info("Adopting already-open container name",
			zap.String("name", st.ContainerName))
	case 0:
		choice, err := r.Prompter.Select("No container is open; which name should it be opened under?", candidates)
		if err != nil {
			return err
		}
		st.ContainerName = choice
	default:
		return &bedrock_err.DeviceAmbiguous{
			Device:     st.Topo.RootContainer.Partition.Path,
			Candidates: open,
		}
	}

	st.Cfg.RootContainer = st.ContainerName
	st.Topo.RootContainer.Name = st.ContainerName
	return nil
}

// openContainer unlocks the root container if it is not open already.
func (r *Reconstructor) openContainer(rc *bedrock_io.RuntimeContext, st *State) error {
	if r.MapperOpen(st.ContainerName) {
		return nil
	}
	passphrase, err := r.Prompter.Secret(fmt.Sprintf("Passphrase for %s", st.Topo.RootContainer.Partition.Path))
	if err != nil {
		return err
	}
	return luks.Open(rc, r.Exe, st.Topo.RootContainer.Partition.Path, st.ContainerName, passphrase)
}

// activateVolumeGroups brings the system group online; vgchange -ay is
// idempotent, so no prior-state probing is needed here. The data group is
// best effort: a degraded mirror must not block boot repair.
func (r *Reconstructor) activateVolumeGroups(rc *bedrock_io.RuntimeContext, st *State) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := lvm.ActivateVolumeGroup(rc, r.Exe, st.Cfg.SystemVG); err != nil {
		return err
	}
	if st.Cfg.HasDataMirror() {
		if err := lvm.ActivateVolumeGroup(rc, r.Exe, st.Cfg.DataVG); err != nil {
			log.Warn("Failed to activate data group, continuing without it",
				zap.String("vg", st.Cfg.DataVG),
				zap.Error(err))
		}
	}
	return nil
}

// mountTopology mounts the installed system under TargetRoot. An /etc
// inside the target means a prior run (or the operator) already mounted
// it; partial trees are the operator's to clean up.
func (r *Reconstructor) mountTopology(rc *bedrock_io.RuntimeContext, st *State) error {
	log := otelzap.Ctx(rc.Ctx)

	if _, err := os.Stat(filepath.Join(r.TargetRoot, "etc")); err == nil {
		log.Info("Target already mounted, skipping", zap.String("target", r.TargetRoot))
		return nil
	}
	if err := os.MkdirAll(r.TargetRoot, 0755); err != nil {
		return cerr.Wrapf(err, "create mountpoint %s", r.TargetRoot)
	}

	root := st.Topo.RootLV.Path()
	if err := execute.RunSimple(rc.Ctx, r.Exe, "mount", "-o", "subvol=@", root, r.TargetRoot); err != nil {
		return cerr.Wrapf(err, "mount root subvolume from %s", root)
	}
	if err := execute.RunSimple(rc.Ctx, r.Exe, "mount", st.Topo.Boot.Path, filepath.Join(r.TargetRoot, "boot")); err != nil {
		return cerr.Wrap(err, "mount boot")
	}
	if err := execute.RunSimple(rc.Ctx, r.Exe, "mount", st.Topo.EFI.Path, filepath.Join(r.TargetRoot, "boot/efi")); err != nil {
		return cerr.Wrap(err, "mount EFI partition")
	}
	return nil
}

// selectGenerator works out which initramfs generator the installed
// system uses by probing for the tools inside the target.
func (r *Reconstructor) selectGenerator(rc *bedrock_io.RuntimeContext, st *State) error {
	var present []string
	for _, gen := range []string{"mkinitcpio", "dracut"} {
		if _, err := os.Stat(filepath.Join(r.TargetRoot, "usr/bin", gen)); err == nil {
			present = append(present, gen)
		}
	}

	switch len(present) {
	case 1:
		st.Generator = present[0]
	case 0:
		return bedrock_err.NewUserError(
			"neither mkinitcpio nor dracut found under %s; is the system mounted?", r.TargetRoot)
	default:
		choice, err := r.Prompter.Select("Multiple initramfs generators installed; which one boots this system?", present)
		if err != nil {
			return err
		}
		st.Generator = choice
	}

	st.Cfg.Generator = st.Generator
	return nil
}

// regenerateArtifacts compares what the installed artifacts reference
// against the name the container is opened under, reports every mismatch,
// and rewrites the full artifact set in one commit after confirmation.
func (r *Reconstructor) regenerateArtifacts(rc *bedrock_io.RuntimeContext, st *State) error {
	log := otelzap.Ctx(rc.Ctx)

	uuid, err := luks.UUID(rc, r.Exe, st.Topo.RootContainer.Partition.Path)
	if err != nil {
		return err
	}
	bootUUID, err := topology.FilesystemUUID(rc, r.Exe, st.Topo.Boot.Path)
	if err != nil {
		return cerr.Wrap(err, "read boot filesystem UUID")
	}
	efiUUID, err := topology.FilesystemUUID(rc, r.Exe, st.Topo.EFI.Path)
	if err != nil {
		return cerr.Wrap(err, "read EFI filesystem UUID")
	}

	st.Mismatches = r.findMismatches(rc, st, uuid)
	if len(st.Mismatches) > 0 {
		question := fmt.Sprintf(
			"%d boot artifact(s) reference a different container name; regenerate all of them as %q?",
			len(st.Mismatches), st.ContainerName)
		if !r.Prompter.Confirm(question, true) {
			return &bedrock_err.NamingMismatch{
				OpenedAs:   st.ContainerName,
				Referenced: strings.Join(st.Mismatches, ", "),
				Artifact:   "boot artifacts",
			}
		}
	}

	in := bootbind.Inputs{
		Binding: bootbind.Binding{
			ContainerName: st.ContainerName,
			ContainerUUID: uuid,
			Generator:     st.Generator,
			RootDevice:    st.Topo.RootLV.Path(),
			RootSubvolume: "@",
		},
		BootUUID: bootUUID,
		EFIUUID:  efiUUID,
	}
	for _, c := range st.Topo.DataContainers {
		dataUUID, err := luks.UUID(rc, r.Exe, c.Partition.Path)
		if err != nil {
			log.Warn("Skipping data container with unreadable UUID",
				zap.String("name", c.Name),
				zap.Error(err))
			continue
		}
		in.DataContainers = append(in.DataContainers, bootbind.ContainerRef{Name: c.Name, UUID: dataUUID})
	}

	set := bootbind.Render(st.Cfg, st.Topo, in)
	if err := bootbind.WriteAll(rc, r.TargetRoot, set); err != nil {
		return err
	}

	if err := execute.RunSimple(rc.Ctx, r.Exe, "arch-chroot", append([]string{r.TargetRoot}, initramfsCommand(st.Generator)...)...); err != nil {
		return cerr.Wrap(err, "rebuild initramfs in target")
	}
	if err := execute.RunSimple(rc.Ctx, r.Exe, "arch-chroot", r.TargetRoot,
		"grub-mkconfig", "-o", "/boot/grub/grub.cfg"); err != nil {
		return cerr.Wrap(err, "regenerate boot loader configuration in target")
	}
	return nil
}

// findMismatches parses each existing artifact under the target and
// returns a description of every one that names a different container.
// A missing artifact is not a mismatch; it simply gets regenerated.
func (r *Reconstructor) findMismatches(rc *bedrock_io.RuntimeContext, st *State, uuid string) []string {
	log := otelzap.Ctx(rc.Ctx)
	var mismatches []string

	record := func(artifact, referenced string) {
		if referenced == "" || referenced == st.ContainerName {
			return
		}
		log.Warn("Boot artifact references a different container name",
			zap.String("artifact", artifact),
			zap.String("opened_as", st.ContainerName),
			zap.String("referenced", referenced))
		mismatches = append(mismatches, fmt.Sprintf("%s references %q", artifact, referenced))
	}

	if content, err := os.ReadFile(filepath.Join(r.TargetRoot, "etc/crypttab")); err == nil {
		record("/etc/crypttab", bootbind.ParseCrypttabName(string(content), uuid))
	}
	if content, err := os.ReadFile(filepath.Join(r.TargetRoot, "etc/crypttab.initramfs")); err == nil {
		record("/etc/crypttab.initramfs", bootbind.ParseCrypttabName(string(content), uuid))
	}
	if content, err := os.ReadFile(filepath.Join(r.TargetRoot, "etc/default/grub")); err == nil {
		cmdline := bootbind.ParseGrubCmdline(string(content))
		record("/etc/default/grub", bootbind.ParseCmdlineContainerName(cmdline))
	}
	return mismatches
}

func (r *Reconstructor) finish(rc *bedrock_io.RuntimeContext, st *State) error {
	otelzap.Ctx(rc.Ctx).Info("Recovery complete",
		zap.String("container", st.ContainerName),
		zap.String("generator", st.Generator),
		zap.Int("repaired_mismatches", len(st.Mismatches)))
	return nil
}

func initramfsCommand(generator string) []string {
	if generator == "dracut" {
		return []string{"dracut", "--regenerate-all", "--force"}
	}
	return []string{"mkinitcpio", "-P"}
}

// listDisks asks lsblk for whole disks, ignoring loop and optical
// devices.
func listDisks(rc *bedrock_io.RuntimeContext, exe execute.Executor) ([]string, error) {
	out, err := execute.Capture(rc.Ctx, exe, "lsblk", "-dno", "NAME,TYPE")
	if err != nil {
		return nil, cerr.Wrap(err, "enumerate disks")
	}

	var disks []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[1] != "disk" {
			continue
		}
		disks = append(disks, "/dev/"+fields[0])
	}
	return disks, nil
}

func contains(list []string, needle string) bool {
	for _, item := range list {
		if item == needle {
			return true
		}
	}
	return false
}
