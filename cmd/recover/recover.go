// cmd/recover/recover.go

package recover

import (
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/bedrock-install/bedrock/pkg/bedrock_cli"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/bedrock-install/bedrock/pkg/recovery"
)

var targetRoot string

// RecoverCmd reconstructs a bootable state for an installed system.
var RecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Repair an unbootable encrypted installation",
	Long: `Detects the installed storage topology from a rescue environment,
opens the encrypted root container, mounts the system, and regenerates
every boot artifact so crypttab, the initramfs, and the boot loader all
reference the same container name. Safe to re-run from any point; each
step detects what is already done.`,
	PersistentPreRunE: bedrock_cli.RequireRoot,
	RunE:              bedrock_cli.Wrap(runRecover),
}

func init() {
	RecoverCmd.Flags().StringVar(&targetRoot, "target", "/mnt/bedrock",
		"where to mount the installed system for repair")
}

func runRecover(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	log := otelzap.Ctx(rc.Ctx)

	rec := recovery.NewReconstructor(execute.NewCommandExecutor(), interaction.NewTerminalPrompter())
	rec.TargetRoot = targetRoot

	st, err := rec.Run(rc)
	if err != nil {
		return err
	}

	log.Info("System recovered",
		zap.String("container", st.ContainerName),
		zap.String("generator", st.Generator),
		zap.Int("repaired_mismatches", len(st.Mismatches)))
	return nil
}
