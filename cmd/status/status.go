// cmd/status/status.go

package status

import (
	"fmt"

	"github.com/spf13/cobra"
	cerr "github.com/cockroachdb/errors"

	"github.com/bedrock-install/bedrock/pkg/bedrock_cli"
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/phase"
)

var (
	configPath string
	markerDir  string
)

// StatusCmd reports installation progress.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installation phase progress and configuration",
	RunE:  bedrock_cli.Wrap(runStatus),
}

func init() {
	StatusCmd.Flags().StringVar(&configPath, "config", install_config.DefaultPath,
		"path of the persisted installation configuration")
	StatusCmd.Flags().StringVar(&markerDir, "marker-dir", phase.DefaultMarkerDir,
		"directory holding phase completion markers")
}

func runStatus(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	store := install_config.NewStore(configPath)
	cfg, err := store.Load(rc)
	if err != nil {
		var missing *bedrock_err.ConfigurationMissing
		if cerr.As(err, &missing) {
			fmt.Fprintln(cmd.OutOrStdout(), "No installation configured.")
			return nil
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cfg.Summary())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Phases:")

	markers := phase.NewFileMarkerStore(markerDir)
	for _, p := range phase.Order() {
		done, err := markers.IsSet(p)
		if err != nil {
			return err
		}
		state := "pending"
		if done {
			state = "completed"
		}
		fmt.Fprintf(out, "  %-22s %s\n", p.String(), state)
	}
	return nil
}
