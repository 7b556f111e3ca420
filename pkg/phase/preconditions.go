// pkg/phase/preconditions.go

package phase

import (
	"fmt"
	"os"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
)

// RequireTool checks that a named external tool is on PATH.
func RequireTool(name string) Precondition {
	return Precondition{
		Description: fmt.Sprintf("tool %s available", name),
		Check: func(_ *bedrock_io.RuntimeContext) error {
			if !execute.LookPath(name) {
				return fmt.Errorf("%s not found on PATH", name)
			}
			return nil
		},
	}
}

// RequireDevice checks that a device path exists on the live system.
func RequireDevice(path string) Precondition {
	return Precondition{
		Description: fmt.Sprintf("device %s present", path),
		Check: func(_ *bedrock_io.RuntimeContext) error {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("device %s: %w", path, err)
			}
			return nil
		},
	}
}

// RequirePhase checks that an earlier phase has recorded completion.
func RequirePhase(markers MarkerStore, p Phase) Precondition {
	return Precondition{
		Description: fmt.Sprintf("phase %s completed", p),
		Check: func(_ *bedrock_io.RuntimeContext) error {
			done, err := markers.IsSet(p)
			if err != nil {
				return err
			}
			if !done {
				return fmt.Errorf("phase %s has not completed", p)
			}
			return nil
		},
	}
}
