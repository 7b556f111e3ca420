// pkg/luks/luks.go

package luks

import (
	"os"
	"path/filepath"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Package luks wraps cryptsetup for encrypted container lifecycle. The
// cryptographic implementation itself is cryptsetup's problem; bedrock
// only cares that a container's mapper name stays consistent between the
// open call and every boot artifact that references it.

// Explicit cipher and key-derivation parameters, passed on every format
// so the result does not depend on cryptsetup compile-time defaults.
var formatArgs = []string{
	"--batch-mode",
	"--type", "luks2",
	"--cipher", "aes-xts-plain64",
	"--key-size", "512",
	"--pbkdf", "argon2id",
}

// Format initializes a partition as an encrypted container.
func Format(rc *bedrock_io.RuntimeContext, exe execute.Executor, device, passphrase string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Formatting encrypted container",
		zap.String("device", device))

	args := append([]string{"luksFormat"}, formatArgs...)
	args = append(args, device, "-")

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "cryptsetup",
		Args:    args,
		Stdin:   passphrase,
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "luks-format "+device, "cryptsetup luksFormat", out)
	}
	return nil
}

// Open maps a formatted container under its bound name. The name becomes
// durably bound to the artifact from this point on.
func Open(rc *bedrock_io.RuntimeContext, exe execute.Executor, device, name, passphrase string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Opening encrypted container",
		zap.String("device", device),
		zap.String("name", name))

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "cryptsetup",
		Args:    []string{"open", "--key-file", "-", device, name},
		Stdin:   passphrase,
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "luks-open "+name, "cryptsetup open", out)
	}
	return nil
}

// Close unmaps an opened container.
func Close(rc *bedrock_io.RuntimeContext, exe execute.Executor, name string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Closing encrypted container", zap.String("name", name))

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "cryptsetup",
		Args:    []string{"close", name},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "luks-close "+name, "cryptsetup close", out)
	}
	return nil
}

// IsOpen reports whether a container is currently mapped.
func IsOpen(name string) bool {
	_, err := os.Stat(filepath.Join("/dev/mapper", name))
	return err == nil
}

// UUID returns the container UUID of a formatted device, as referenced
// by the boot loader command line.
func UUID(rc *bedrock_io.RuntimeContext, exe execute.Executor, device string) (string, error) {
	out, err := topology.FilesystemUUID(rc, exe, device)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", cerr.Newf("device %s has no UUID; is it formatted?", device)
	}
	return out, nil
}
