// cmd/install/install.go

package install

import (
	"github.com/spf13/cobra"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/bedrock-install/bedrock/pkg/bedrock_cli"
	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/handoff"
	"github.com/bedrock-install/bedrock/pkg/install_config"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/bedrock-install/bedrock/pkg/phase"
	"github.com/bedrock-install/bedrock/pkg/provision"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
)

var (
	configPath string
	markerDir  string
	dryRun     bool
	fresh      bool
)

// InstallCmd groups the installation stages.
var InstallCmd = &cobra.Command{
	Use:               "install",
	Short:             "Run the installation phases",
	PersistentPreRunE: bedrock_cli.RequireRoot,
	Long: `Runs the installation in stages. phase1 partitions, encrypts, and
assembles storage, then installs the base system into the mounted
target. phase2 runs inside the target root and binds the boot chain to
the encrypted container. finalize runs once after the first boot into
the installed system. all chains phase1 and phase2 in a single guided
run.`,
}

var phase1Cmd = &cobra.Command{
	Use:   "phase1",
	Short: "Partition, encrypt, assemble storage, and install the base system",
	RunE:  bedrock_cli.Wrap(runPhase1),
}

var phase2Cmd = &cobra.Command{
	Use:   "phase2",
	Short: "Configure the installed system from inside the target root",
	RunE:  bedrock_cli.Wrap(runPhase2),
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Finalize after the first boot into the installed system",
	RunE:  bedrock_cli.Wrap(runFinalize),
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run phase1 and phase2 in one guided pass",
	RunE:  bedrock_cli.Wrap(runAll),
}

func init() {
	InstallCmd.PersistentFlags().StringVar(&configPath, "config", install_config.DefaultPath,
		"path of the persisted installation configuration")
	InstallCmd.PersistentFlags().StringVar(&markerDir, "marker-dir", phase.DefaultMarkerDir,
		"directory holding phase completion markers")
	InstallCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"log every external command without executing anything")
	phase1Cmd.Flags().BoolVar(&fresh, "fresh", false,
		"start a new installation attempt, clearing all completion markers")
	allCmd.Flags().BoolVar(&fresh, "fresh", false,
		"start a new installation attempt, clearing all completion markers")

	InstallCmd.AddCommand(phase1Cmd, phase2Cmd, finalizeCmd, allCmd)
}

// assemble builds the provisioner for this invocation: configuration
// loaded or collected, topology resolved, markers opened.
func assemble(rc *bedrock_io.RuntimeContext, prompter interaction.Prompter) (*provision.Provisioner, *phase.Runner, error) {
	log := otelzap.Ctx(rc.Ctx)

	exe := execute.NewCommandExecutor()
	exe.DryRun = dryRun

	store := install_config.NewStore(configPath)
	cfg, err := store.Load(rc)
	if err != nil {
		var missing *bedrock_err.ConfigurationMissing
		if !cerr.As(err, &missing) {
			return nil, nil, err
		}
		log.Info("No persisted configuration, collecting interactively")
		cfg, err = install_config.CollectInteractive(rc, prompter, install_config.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		if err := store.Save(rc, cfg); err != nil {
			return nil, nil, err
		}
	}

	resolver := topology.NewResolver()
	styles, err := resolver.DetectOrGuessStyles(cfg, prompter)
	if err != nil {
		return nil, nil, err
	}
	topo, err := resolver.Resolve(cfg, styles)
	if err != nil {
		return nil, nil, err
	}

	markers := phase.NewFileMarkerStore(markerDir)
	p := &provision.Provisioner{
		Cfg:      cfg,
		Topo:     topo,
		Exe:      exe,
		Markers:  markers,
		Prompter: prompter,
	}
	return p, phase.NewRunner(markers), nil
}

// collectPassphrase asks twice and verifies. Only needed while the
// encrypt phase is still ahead.
func collectPassphrase(p *provision.Provisioner) error {
	done, err := p.Markers.IsSet(phase.Encrypt)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	first, err := p.Prompter.Secret("Disk encryption passphrase")
	if err != nil {
		return err
	}
	second, err := p.Prompter.Secret("Confirm passphrase")
	if err != nil {
		return err
	}
	if first != second {
		return bedrock_err.NewUserError("passphrases do not match")
	}
	if len(first) < 8 {
		return bedrock_err.NewUserError("passphrase must be at least 8 characters")
	}
	p.Passphrase = first
	return nil
}

func runPhase1(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	p, runner, err := assemble(rc, interaction.NewTerminalPrompter())
	if err != nil {
		return err
	}
	return executePhase1(rc, p, runner)
}

func executePhase1(rc *bedrock_io.RuntimeContext, p *provision.Provisioner, runner *phase.Runner) error {
	log := otelzap.Ctx(rc.Ctx)

	if fresh {
		if !p.Prompter.Confirm("Clear all completion markers and start over? Completed phases will run again.", false) {
			return bedrock_err.NewUserError("aborted")
		}
		if err := p.Markers.Reset(); err != nil {
			return cerr.Wrap(err, "reset completion markers")
		}
		log.Info("Completion markers cleared for a fresh attempt")
	}

	if err := collectPassphrase(p); err != nil {
		return err
	}

	for _, spec := range p.Stage1Specs() {
		status, err := runner.Run(rc, spec)
		if err != nil {
			return err
		}
		log.Info("Phase finished",
			zap.String("phase", spec.Phase.String()),
			zap.String("status", status.String()))
	}

	if err := handoff.CopyToTarget(rc, p.Cfg.TargetRoot, configPath); err != nil {
		return err
	}
	if err := handoff.PersistForReboot(rc, p.Cfg.TargetRoot, markerDir); err != nil {
		return err
	}

	log.Info("Stage 1 complete; run phase2 inside the target",
		zap.String("target", p.Cfg.TargetRoot))
	return nil
}

func runPhase2(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	p, runner, err := assemble(rc, interaction.NewTerminalPrompter())
	if err != nil {
		return err
	}

	status, err := runner.Run(rc, p.Stage2Spec())
	if err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("Phase finished",
		zap.String("phase", phase.InTargetConfigure.String()),
		zap.String("status", status.String()))
	return nil
}

func runFinalize(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	p, runner, err := assemble(rc, interaction.NewTerminalPrompter())
	if err != nil {
		return err
	}

	status, err := runner.Run(rc, p.PostRebootSpec())
	if err != nil {
		return err
	}
	otelzap.Ctx(rc.Ctx).Info("Phase finished",
		zap.String("phase", phase.PostReboot.String()),
		zap.String("status", status.String()))
	return nil
}

func runAll(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	log := otelzap.Ctx(rc.Ctx)
	prompter := interaction.NewTerminalPrompter()

	p, runner, err := assemble(rc, prompter)
	if err != nil {
		return err
	}
	if err := executePhase1(rc, p, runner); err != nil {
		return err
	}

	if err := handoff.EnterTarget(rc, p.Exe, p.Cfg.TargetRoot, "install", "phase2"); err != nil {
		return err
	}

	log.Info("Installation staged; reboot into the new system and run `bedrock install finalize`")
	return nil
}
