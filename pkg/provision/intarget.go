// pkg/provision/intarget.go

package provision

import (
	"fmt"
	"os"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/bootbind"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/luks"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// runInTargetConfigure runs inside the target root after the chroot
// handoff, so every path below is relative to the installed system. It
// finishes what pacstrap started: identity, users, the initramfs, and the
// boot binding that lets the encrypted root actually come up.
func (p *Provisioner) runInTargetConfigure(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := p.configureIdentity(rc); err != nil {
		return err
	}
	if err := p.configureUsers(rc); err != nil {
		return err
	}
	if err := p.writeBootArtifacts(rc); err != nil {
		return err
	}
	if err := p.buildInitramfs(rc); err != nil {
		return err
	}
	if err := p.installBootloader(rc); err != nil {
		return err
	}

	// Network comes up on first boot; failure here is not worth a rerun
	// of the whole phase.
	if err := execute.RunSimple(rc.Ctx, p.Exe, "systemctl", "enable", "NetworkManager"); err != nil {
		log.Warn("Failed to enable NetworkManager", zap.Error(err))
	}

	log.Info("Target configuration complete",
		zap.String("hostname", p.Cfg.Hostname))
	return nil
}

func (p *Provisioner) configureIdentity(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	zone := "/usr/share/zoneinfo/" + p.Cfg.Timezone
	if err := execute.RunSimple(rc.Ctx, p.Exe, "ln", "-sf", zone, "/etc/localtime"); err != nil {
		return cerr.Wrapf(err, "set timezone %s", p.Cfg.Timezone)
	}
	if err := execute.RunSimple(rc.Ctx, p.Exe, "hwclock", "--systohc"); err != nil {
		log.Warn("Failed to sync hardware clock", zap.Error(err))
	}

	localeGen := fmt.Sprintf("%s UTF-8\n", p.Cfg.Locale)
	if err := os.WriteFile("/etc/locale.gen", []byte(localeGen), 0644); err != nil {
		return cerr.Wrap(err, "write locale.gen")
	}
	if err := execute.RunSimple(rc.Ctx, p.Exe, "locale-gen"); err != nil {
		return cerr.Wrap(err, "generate locales")
	}
	localeConf := fmt.Sprintf("LANG=%s\n", p.Cfg.Locale)
	if err := os.WriteFile("/etc/locale.conf", []byte(localeConf), 0644); err != nil {
		return cerr.Wrap(err, "write locale.conf")
	}

	if err := os.WriteFile("/etc/hostname", []byte(p.Cfg.Hostname+"\n"), 0644); err != nil {
		return cerr.Wrap(err, "write hostname")
	}
	hosts := fmt.Sprintf("127.0.0.1\tlocalhost\n::1\t\tlocalhost\n127.0.1.1\t%s\n", p.Cfg.Hostname)
	if err := os.WriteFile("/etc/hosts", []byte(hosts), 0644); err != nil {
		return cerr.Wrap(err, "write hosts file")
	}
	return nil
}

// ensureUser creates the administrative user, treating a user left over
// from an interrupted earlier run as success so the phase can re-run.
func (p *Provisioner) ensureUser(rc *bedrock_io.RuntimeContext) error {
	out, err := p.Exe.Run(rc.Ctx, execute.Options{
		Command: "useradd",
		Args:    []string{"-m", "-G", "wheel", "-s", "/bin/bash", p.Cfg.Username},
		Capture: true,
	})
	if err != nil {
		if strings.Contains(out, "already exists") {
			otelzap.Ctx(rc.Ctx).Info("User already exists", zap.String("user", p.Cfg.Username))
			return nil
		}
		return cerr.Wrapf(err, "create user %s", p.Cfg.Username)
	}
	return nil
}

func (p *Provisioner) configureUsers(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := p.ensureUser(rc); err != nil {
		return err
	}

	password, err := p.Prompter.Secret(fmt.Sprintf("Password for %s", p.Cfg.Username))
	if err != nil {
		return cerr.Wrap(err, "read user password")
	}
	if _, err := p.Exe.Run(rc.Ctx, execute.Options{
		Command: "chpasswd",
		Stdin:   fmt.Sprintf("%s:%s\n", p.Cfg.Username, password),
	}); err != nil {
		return cerr.Wrapf(err, "set password for %s", p.Cfg.Username)
	}

	sudoers := "%wheel ALL=(ALL:ALL) ALL\n"
	if err := os.WriteFile("/etc/sudoers.d/10-wheel", []byte(sudoers), 0440); err != nil {
		return cerr.Wrap(err, "write sudoers drop-in")
	}

	// The live environment's root password does not carry over; lock
	// root and rely on wheel.
	if err := execute.RunSimple(rc.Ctx, p.Exe, "passwd", "--lock", "root"); err != nil {
		log.Warn("Failed to lock root account", zap.Error(err))
	}
	return nil
}

// writeBootArtifacts reads the container UUIDs off the real devices and
// renders the full artifact set in one all-or-nothing commit. The mapper
// name used here is the same Config field every earlier phase consumed,
// which is what keeps crypttab, the initramfs, and GRUB agreeing.
func (p *Provisioner) writeBootArtifacts(rc *bedrock_io.RuntimeContext) error {
	rootUUID, err := luks.UUID(rc, p.Exe, p.Topo.RootContainer.Partition.Path)
	if err != nil {
		return cerr.Wrap(err, "read root container UUID")
	}
	bootUUID, err := topology.FilesystemUUID(rc, p.Exe, p.Topo.Boot.Path)
	if err != nil {
		return cerr.Wrap(err, "read boot filesystem UUID")
	}
	efiUUID, err := topology.FilesystemUUID(rc, p.Exe, p.Topo.EFI.Path)
	if err != nil {
		return cerr.Wrap(err, "read EFI filesystem UUID")
	}

	in := bootbind.Inputs{
		Binding: bootbind.Binding{
			ContainerName: p.Cfg.RootContainer,
			ContainerUUID: rootUUID,
			Generator:     p.Cfg.Generator,
			RootDevice:    p.Topo.RootLV.Path(),
			RootSubvolume: "@",
		},
		BootUUID: bootUUID,
		EFIUUID:  efiUUID,
	}
	for _, c := range p.Topo.DataContainers {
		uuid, err := luks.UUID(rc, p.Exe, c.Partition.Path)
		if err != nil {
			return cerr.Wrapf(err, "read container UUID for %s", c.Name)
		}
		in.DataContainers = append(in.DataContainers, bootbind.ContainerRef{
			Name: c.Name,
			UUID: uuid,
		})
	}

	if p.Cfg.Generator == "mkinitcpio" {
		if err := os.WriteFile("/etc/mkinitcpio.conf", []byte(bootbind.MkinitcpioConf), 0644); err != nil {
			return cerr.Wrap(err, "write mkinitcpio.conf")
		}
	}

	set := bootbind.Render(p.Cfg, p.Topo, in)
	return bootbind.WriteAll(rc, "/", set)
}

func (p *Provisioner) buildInitramfs(rc *bedrock_io.RuntimeContext) error {
	switch p.Cfg.Generator {
	case "dracut":
		if err := execute.RunSimple(rc.Ctx, p.Exe, "dracut", "--regenerate-all", "--force"); err != nil {
			return cerr.Wrap(err, "build initramfs with dracut")
		}
	default:
		if err := execute.RunSimple(rc.Ctx, p.Exe, "mkinitcpio", "-P"); err != nil {
			return cerr.Wrap(err, "build initramfs with mkinitcpio")
		}
	}
	return nil
}

func (p *Provisioner) installBootloader(rc *bedrock_io.RuntimeContext) error {
	if err := execute.RunSimple(rc.Ctx, p.Exe, "grub-install",
		"--target=x86_64-efi",
		"--efi-directory=/boot/efi",
		"--bootloader-id=bedrock"); err != nil {
		return cerr.Wrap(err, "install boot loader")
	}
	if err := execute.RunSimple(rc.Ctx, p.Exe, "grub-mkconfig", "-o", "/boot/grub/grub.cfg"); err != nil {
		return cerr.Wrap(err, "generate boot loader configuration")
	}
	return nil
}
