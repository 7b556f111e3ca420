// pkg/provision/mount.go

package provision

import (
	"os"
	"path/filepath"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const btrfsMountOptions = "rw,noatime,compress=zstd"

// runMount assembles the target tree under Cfg.TargetRoot: the root
// subvolume first so every other mountpoint has a parent, then boot, EFI,
// the remaining subvolumes, the data volume, swap, and finally the
// pseudo-filesystems the in-target phase needs.
func (p *Provisioner) runMount(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)
	target := p.Cfg.TargetRoot
	root := p.Topo.RootLV.Path()

	if err := os.MkdirAll(target, 0755); err != nil {
		return cerr.Wrapf(err, "create target root %s", target)
	}

	log.Info("Mounting target tree", zap.String("target", target))
	if err := p.mount(rc, root, target, btrfsMountOptions+",subvol=@"); err != nil {
		return err
	}

	if err := p.mountAt(rc, p.Topo.Boot.Path, filepath.Join(target, "boot"), ""); err != nil {
		return err
	}
	if err := p.mountAt(rc, p.Topo.EFI.Path, filepath.Join(target, "boot/efi"), ""); err != nil {
		return err
	}

	for _, sv := range p.Topo.Subvolumes {
		if sv.MountPoint == "/" {
			continue
		}
		where := filepath.Join(target, sv.MountPoint)
		if err := p.mountAt(rc, root, where, btrfsMountOptions+",subvol="+sv.Name); err != nil {
			return err
		}
	}

	if p.Topo.DataLV != nil {
		if err := p.mountAt(rc, p.Topo.DataLV.Path(), filepath.Join(target, "srv/data"), ""); err != nil {
			return err
		}
	}

	// Swap is a comfort, not a dependency of the install. Soft failure.
	if err := execute.RunSimple(rc.Ctx, p.Exe, "swapon", p.Topo.SwapLV.Path()); err != nil {
		log.Warn("Failed to enable swap, continuing",
			zap.String("device", p.Topo.SwapLV.Path()),
			zap.Error(err))
	}

	return MountPseudoFilesystems(rc, p.Exe, target)
}

// MountPseudoFilesystems binds the live kernel interfaces into the target
// so tools run inside it behave. arch-chroot does this itself; this is
// for in-target work that bypasses it (initramfs builds during recovery).
func MountPseudoFilesystems(rc *bedrock_io.RuntimeContext, exe execute.Executor, target string) error {
	binds := []struct {
		args []string
		dest string
	}{
		{[]string{"-t", "proc", "proc"}, "proc"},
		{[]string{"-t", "sysfs", "sys"}, "sys"},
		{[]string{"--bind", "/dev"}, "dev"},
		{[]string{"-t", "tmpfs", "run"}, "run"},
	}
	for _, b := range binds {
		dest := filepath.Join(target, b.dest)
		if err := os.MkdirAll(dest, 0755); err != nil {
			return cerr.Wrapf(err, "create %s", dest)
		}
		args := append(append([]string{}, b.args...), dest)
		if err := execute.RunSimple(rc.Ctx, exe, "mount", args...); err != nil {
			return cerr.Wrapf(err, "mount %s", dest)
		}
	}
	return nil
}

func (p *Provisioner) mount(rc *bedrock_io.RuntimeContext, source, target, options string) error {
	args := []string{}
	if options != "" {
		args = append(args, "-o", options)
	}
	args = append(args, source, target)
	if err := execute.RunSimple(rc.Ctx, p.Exe, "mount", args...); err != nil {
		return cerr.Wrapf(err, "mount %s at %s", source, target)
	}
	return nil
}

func (p *Provisioner) mountAt(rc *bedrock_io.RuntimeContext, source, target, options string) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return cerr.Wrapf(err, "create mountpoint %s", target)
	}
	return p.mount(rc, source, target, options)
}
