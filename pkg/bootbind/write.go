// pkg/bootbind/write.go

package bootbind

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// WriteAll installs a rendered artifact set under root, all-or-nothing.
// Every artifact is staged as a temporary file first, so nothing visible
// changes while any render or staging problem is still possible; the
// renames then commit one by one. If a rename fails partway the result
// names exactly which artifacts were updated and which are now stale —
// a partial update changes the boot failure's symptom without fixing its
// cause, so the report matters more than the rollback.
func WriteAll(rc *bedrock_io.RuntimeContext, root string, set *ArtifactSet) error {
	log := otelzap.Ctx(rc.Ctx)
	artifacts := set.All()

	staged := make([]string, len(artifacts))
	for i, artifact := range artifacts {
		target := filepath.Join(root, artifact.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			cleanupStaged(staged[:i])
			return cerr.Wrapf(err, "create parent directory for %s", target)
		}
		tmp := target + ".bedrock-new"
		if err := os.WriteFile(tmp, []byte(artifact.Content), 0644); err != nil {
			cleanupStaged(staged[:i])
			return cerr.Wrapf(err, "stage %s", target)
		}
		staged[i] = tmp
	}

	var updated, stale []string
	var result *multierror.Error
	for i, artifact := range artifacts {
		target := filepath.Join(root, artifact.Path)
		if result == nil {
			if err := os.Rename(staged[i], target); err != nil {
				result = multierror.Append(result, cerr.Wrapf(err, "commit %s", target))
				stale = append(stale, artifact.Path)
				continue
			}
			updated = append(updated, artifact.Path)
		} else {
			_ = os.Remove(staged[i])
			stale = append(stale, artifact.Path)
		}
	}

	if result != nil {
		result = multierror.Append(result, cerr.Newf(
			"boot artifacts now inconsistent: %s updated but %s stale; re-run regeneration before rebooting",
			strings.Join(updated, ", "), strings.Join(stale, ", ")))
		return result.ErrorOrNil()
	}

	log.Info("Boot artifacts regenerated",
		zap.Strings("artifacts", updated),
		zap.String("root", root))
	return nil
}

func cleanupStaged(paths []string) {
	for _, path := range paths {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}
