// pkg/bedrock_cli/privilege.go

package bedrock_cli

import (
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// RequireRoot is a PersistentPreRunE for commands that operate on block
// devices. Checking up front produces one clear message instead of a
// cascade of permission errors from the first external tool.
func RequireRoot(cmd *cobra.Command, args []string) error {
	if unix.Geteuid() != 0 {
		return bedrock_err.NewUserError("%s must run as root", cmd.CommandPath())
	}
	return nil
}
