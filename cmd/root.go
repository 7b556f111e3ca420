// cmd/root.go

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bedrock-install/bedrock/cmd/install"
	recovercmd "github.com/bedrock-install/bedrock/cmd/recover"
	"github.com/bedrock-install/bedrock/cmd/status"
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/logger"
)

// RootCmd is the base command for bedrock.
var RootCmd = &cobra.Command{
	Use:   "bedrock",
	Short: "Encrypted bare-metal provisioning",
	Long: `Bedrock provisions a machine with full-disk encryption, LVM-managed
volumes, and a btrfs root, then keeps the boot artifacts that unlock it
in agreement. Install phases are resumable: a completed phase is never
repeated, so a crashed or interrupted run continues where it stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// RegisterCommands attaches every subcommand to the root.
func RegisterCommands() {
	RootCmd.AddCommand(
		install.InstallCmd,
		recovercmd.RecoverCmd,
		status.StatusCmd,
	)
}

// Execute runs the CLI and exits with a code classified by error type:
// expected operator mistakes exit 0 after their warning has been logged,
// anything internal exits 1.
func Execute() {
	RegisterCommands()

	if err := RootCmd.Execute(); err != nil {
		_ = logger.Sync()
		os.Exit(bedrock_err.GetExitCode(err))
	}
}
