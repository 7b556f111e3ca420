// pkg/handoff/handoff.go

// Package handoff carries execution context across the two environment
// boundaries of an install: the chroot into the mounted target, and the
// reboot into the installed system. The provisioning environment owns
// nothing durable; everything a later stage needs must be copied into the
// target before the boundary is crossed.
package handoff

import (
	"io"
	"os"
	"path/filepath"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/phase"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TargetBinaryPath is where the running binary is installed inside the
// target so the in-target and post-reboot phases can find it.
const TargetBinaryPath = "/usr/local/sbin/bedrock"

// CopyToTarget installs the running binary and the persisted
// configuration into the target root. After this, the target is
// self-sufficient: the chroot stage and the post-reboot stage read the
// same configuration the provisioning stage wrote. configPath is where
// this stage persisted it, which need not be the default location; the
// in-target copy always lands at the default path, because that is where
// a fresh invocation inside the target looks.
func CopyToTarget(rc *bedrock_io.RuntimeContext, targetRoot, configPath string) error {
	log := otelzap.Ctx(rc.Ctx)

	self, err := os.Executable()
	if err != nil {
		return cerr.Wrap(err, "locate running binary")
	}
	dest := filepath.Join(targetRoot, TargetBinaryPath)
	if err := copyFile(self, dest, 0755); err != nil {
		return cerr.Wrapf(err, "install binary into target at %s", dest)
	}

	configDest := filepath.Join(targetRoot, install_config.DefaultPath)
	if err := copyFile(configPath, configDest, 0600); err != nil {
		return cerr.Wrapf(err, "copy configuration %s into target", configPath)
	}

	log.Info("Execution context copied into target",
		zap.String("target", targetRoot),
		zap.String("binary", dest))
	return nil
}

// PersistForReboot replicates the phase markers from markerDir into the
// target so the post-reboot phase still sees its predecessors as
// complete. The in-target replica lands at the default marker directory
// regardless of where this stage kept its own.
func PersistForReboot(rc *bedrock_io.RuntimeContext, targetRoot, markerDir string) error {
	log := otelzap.Ctx(rc.Ctx)

	src := markerDir
	dst := filepath.Join(targetRoot, phase.DefaultMarkerDir)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return cerr.Wrapf(err, "create marker directory in target")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cerr.Wrap(err, "read marker directory")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), 0644); err != nil {
			return cerr.Wrapf(err, "replicate marker %s", entry.Name())
		}
	}

	log.Info("Phase markers persisted into target",
		zap.String("target", targetRoot),
		zap.Int("markers", len(entries)))
	return nil
}

// EnterTarget re-invokes bedrock inside the target root via arch-chroot.
// The child process sees the target as / and runs the given subcommand
// with the copied binary and configuration.
func EnterTarget(rc *bedrock_io.RuntimeContext, exe execute.Executor, targetRoot string, args ...string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Entering target root",
		zap.String("target", targetRoot),
		zap.Strings("command", args))

	chrootArgs := append([]string{targetRoot, TargetBinaryPath}, args...)
	if _, err := exe.Run(rc.Ctx, execute.Options{
		Command: "arch-chroot",
		Args:    chrootArgs,
	}); err != nil {
		return cerr.Wrap(err, "run phase inside target")
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
