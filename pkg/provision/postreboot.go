// pkg/provision/postreboot.go

package provision

import (
	"os"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/btrfs"
	"github.com/bedrock-install/bedrock/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const baselineSnapshot = "/.snapshots/pristine"

// runPostReboot finalizes after the first boot into the installed system:
// a read-only baseline snapshot of the pristine root, swap pressure
// tuning, and periodic trim for the SSD-backed volumes.
func (p *Provisioner) runPostReboot(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	if _, err := os.Stat(baselineSnapshot); err == nil {
		log.Info("Baseline snapshot already present", zap.String("path", baselineSnapshot))
	} else {
		if err := btrfs.CreateSnapshot(rc, p.Exe, "/", baselineSnapshot); err != nil {
			return cerr.Wrap(err, "create baseline snapshot")
		}
		log.Info("Baseline snapshot created", zap.String("path", baselineSnapshot))
	}

	sysctl := "vm.swappiness=10\n"
	if err := os.WriteFile("/etc/sysctl.d/99-bedrock.conf", []byte(sysctl), 0644); err != nil {
		return cerr.Wrap(err, "write sysctl drop-in")
	}

	if err := execute.RunSimple(rc.Ctx, p.Exe, "systemctl", "enable", "--now", "fstrim.timer"); err != nil {
		log.Warn("Failed to enable periodic trim", zap.Error(err))
	}

	log.Info("Installation finalized")
	return nil
}
