// pkg/bedrock_err/errors.go

package bedrock_err

import (
	"fmt"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// Package bedrock_err carries the error taxonomy of the installer core.
// Load-bearing failures abort the current phase immediately and leave its
// marker unset; the failing step's identity and the external tool's
// diagnostic output are surfaced verbatim so the operator can decide
// whether a re-run is safe.

// PreconditionUnmet reports a missing device or tool before any mutation
// has been attempted.
type PreconditionUnmet struct {
	Phase string
	What  string
}

func (e *PreconditionUnmet) Error() string {
	return fmt.Sprintf("precondition unmet for phase %s: %s", e.Phase, e.What)
}

// OperationFailed reports an external tool returning failure mid-body.
// Output preserves the tool's diagnostics verbatim.
type OperationFailed struct {
	Step    string
	Command string
	Output  string
	Cause   error
}

func (e *OperationFailed) Error() string {
	msg := fmt.Sprintf("step %q failed running %s", e.Step, e.Command)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *OperationFailed) Unwrap() error { return e.Cause }

// ConfigurationMissing is fatal: no phase may invent configuration values.
type ConfigurationMissing struct {
	Path string
}

func (e *ConfigurationMissing) Error() string {
	return fmt.Sprintf("installer configuration not found at %s: run configuration collection first", e.Path)
}

// DeviceNotFound is fatal; provisioning cannot proceed against a device
// that does not exist on the live system.
type DeviceNotFound struct {
	Node   string
	Device string
}

func (e *DeviceNotFound) Error() string {
	return fmt.Sprintf("device for %s not found: %s", e.Node, e.Device)
}

// DeviceAmbiguous requires operator disambiguation; guessing risks data
// loss on the wrong device.
type DeviceAmbiguous struct {
	Device     string
	Candidates []string
}

func (e *DeviceAmbiguous) Error() string {
	return fmt.Sprintf("device %s is ambiguous between %s", e.Device, strings.Join(e.Candidates, ", "))
}

// NamingMismatch reports the container name used to open an encrypted
// container disagreeing with the name referenced by a boot artifact.
type NamingMismatch struct {
	OpenedAs   string
	Referenced string
	Artifact   string
}

func (e *NamingMismatch) Error() string {
	return fmt.Sprintf("container opened as %q but %s references %q", e.OpenedAs, e.Artifact, e.Referenced)
}

// WrapStep attaches the failing step's identity to an external tool error.
func WrapStep(err error, step, command, output string) error {
	if err == nil {
		return nil
	}
	return cerr.WithStack(&OperationFailed{Step: step, Command: command, Output: output, Cause: err})
}
