// pkg/btrfs/btrfs.go

package btrfs

import (
	"os"
	"path/filepath"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Mkfs formats a block device as btrfs.
func Mkfs(rc *bedrock_io.RuntimeContext, exe execute.Executor, device, label string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Formatting btrfs filesystem",
		zap.String("device", device),
		zap.String("label", label))

	args := []string{"-f"}
	if label != "" {
		args = append(args, "-L", label)
	}
	args = append(args, device)

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "mkfs.btrfs",
		Args:    args,
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "mkfs.btrfs "+device, "mkfs.btrfs", out)
	}
	return nil
}

// CreateSubvolume creates one named subvolume at path; the filesystem
// holding path must be mounted.
func CreateSubvolume(rc *bedrock_io.RuntimeContext, exe execute.Executor, path string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Creating btrfs subvolume", zap.String("path", path))

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "create", path},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "subvolume-create "+path, "btrfs subvolume create", out)
	}
	return nil
}

// CreateRootSubvolumes mounts a freshly formatted device at a scratch
// point, creates the named subvolumes inside it, and unmounts again.
// Subvolume creation requires the filesystem to be mounted, which is why
// this is a two-step dance rather than part of Mkfs.
func CreateRootSubvolumes(rc *bedrock_io.RuntimeContext, exe execute.Executor, device string, names []string) error {
	log := otelzap.Ctx(rc.Ctx)

	scratch, err := os.MkdirTemp("", "bedrock-subvol-")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(scratch) }()

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "mount",
		Args:    []string{device, scratch},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "scratch-mount "+device, "mount", out)
	}

	var subvolErr error
	for _, name := range names {
		if subvolErr = CreateSubvolume(rc, exe, filepath.Join(scratch, name)); subvolErr != nil {
			break
		}
	}

	out, umountErr := exe.Run(rc.Ctx, execute.Options{
		Command: "umount",
		Args:    []string{scratch},
		Capture: true,
	})
	if subvolErr != nil {
		return subvolErr
	}
	if umountErr != nil {
		return bedrock_err.WrapStep(umountErr, "scratch-umount "+device, "umount", out)
	}

	log.Info("Root subvolumes created",
		zap.String("device", device),
		zap.Strings("subvolumes", names))
	return nil
}

// CreateSnapshot records a read-only snapshot of a mounted subvolume.
func CreateSnapshot(rc *bedrock_io.RuntimeContext, exe execute.Executor, source, destination string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Creating btrfs snapshot",
		zap.String("source", source),
		zap.String("destination", destination))

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "snapshot", "-r", source, destination},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "snapshot "+source, "btrfs subvolume snapshot", out)
	}
	return nil
}
