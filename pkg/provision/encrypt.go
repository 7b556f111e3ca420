// pkg/provision/encrypt.go

package provision

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/luks"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// runEncrypt formats and opens every encrypted container: the root
// container first, then the auxiliary data containers. A mid-sequence
// failure unwinds by closing every container opened so far, so the phase
// never leaves a half-assembled mapper ready for a partial re-run.
func (p *Provisioner) runEncrypt(rc *bedrock_io.RuntimeContext) error {
	log := otelzap.Ctx(rc.Ctx)

	var opened []*topology.EncryptedContainer
	unwind := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			if closeErr := luks.Close(rc, p.Exe, opened[i].Name); closeErr != nil {
				log.Warn("Failed to close container during unwind",
					zap.String("name", opened[i].Name),
					zap.Error(closeErr))
			}
		}
	}

	for _, c := range p.Topo.Containers() {
		log.Info("Creating encrypted container",
			zap.String("device", c.Partition.Path),
			zap.String("name", c.Name))

		if err := luks.Format(rc, p.Exe, c.Partition.Path, p.Passphrase); err != nil {
			unwind()
			return cerr.Wrapf(err, "format container on %s", c.Partition.Path)
		}
		if err := luks.Open(rc, p.Exe, c.Partition.Path, c.Name, p.Passphrase); err != nil {
			unwind()
			return cerr.Wrapf(err, "open container %s", c.Name)
		}
		opened = append(opened, c)
	}

	return nil
}
