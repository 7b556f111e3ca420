// pkg/provision/baseinstall.go

package provision

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// basePackages is the package set every install gets. The initramfs
// generator is appended from the configuration.
var basePackages = []string{
	"base", "linux", "linux-firmware",
	"lvm2", "cryptsetup", "btrfs-progs", "e2fsprogs", "dosfstools",
	"grub", "efibootmgr",
	"networkmanager", "sudo", "vim",
}

// runBaseInstall populates the mounted target with the base system. This
// is the longest phase by far; the invocation carries no timeout and its
// output streams through at debug level.
func (p *Provisioner) runBaseInstall(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	packages := append(append([]string{}, basePackages...), p.Cfg.Generator)
	log.Info("Installing base system",
		zap.String("target", p.Cfg.TargetRoot),
		zap.Int("packages", len(packages)))

	args := append([]string{"-K", p.Cfg.TargetRoot}, packages...)
	if _, err := p.Exe.Run(rc.Ctx, execute.Options{
		Command: "pacstrap",
		Args:    args,
	}); err != nil {
		return cerr.Wrap(err, "install base system")
	}

	log.Info("Base system installed", zap.String("target", p.Cfg.TargetRoot))
	return nil
}
