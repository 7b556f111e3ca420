// pkg/execute/execute.go

package execute

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Package execute is the command-execution boundary: every destructive
// storage operation is issued here as an invocation of a named external
// tool with fixed arguments. Callers decide per step whether a failure is
// fatal or soft; this package only reports, never retries.

// Options describes a single external tool invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Stdin is fed to the tool verbatim (passphrases, sfdisk scripts).
	Stdin string
	// Capture returns combined output to the caller instead of discarding it.
	Capture bool
	DryRun  bool
	// Timeout of zero means no deadline; package synchronization and
	// initramfs builds legitimately run for a long time.
	Timeout time.Duration
}

// Executor runs external tools. Phase bodies accept this interface so
// tests can substitute a recording fake and assert that a completed phase
// performs zero destructive operations on re-run.
type Executor interface {
	Run(ctx context.Context, opts Options) (string, error)
}

// CommandExecutor is the real Executor backed by os/exec.
type CommandExecutor struct {
	// DryRun logs every invocation without executing anything.
	DryRun bool
}

func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

func (e *CommandExecutor) Run(ctx context.Context, opts Options) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cmdStr := buildCommandString(opts.Command, opts.Args...)
	log := otelzap.Ctx(ctx)

	ctx, span := telemetry.Start(ctx, "execute.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")),
	)

	if opts.DryRun || e.DryRun {
		log.Info("Dry run, command not executed", zap.String("command", cmdStr))
		return "", nil
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	log.Debug("Executing command", zap.String("command", cmdStr))

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()

	if err != nil {
		summary := bedrock_err.ExtractSummary(output, 2)
		span.RecordError(err)
		log.Error("Command failed",
			zap.String("command", cmdStr),
			zap.String("summary", summary),
			zap.Error(err),
		)
		return output, cerr.Wrapf(err, "%s failed", opts.Command)
	}

	log.Debug("Command succeeded", zap.String("command", cmdStr))
	if opts.Capture {
		return output, nil
	}
	return "", nil
}

// RunSimple executes a tool through the given executor and discards output.
func RunSimple(ctx context.Context, exe Executor, command string, args ...string) error {
	_, err := exe.Run(ctx, Options{Command: command, Args: args})
	return err
}

// Capture executes a tool and returns its trimmed combined output.
func Capture(ctx context.Context, exe Executor, command string, args ...string) (string, error) {
	out, err := exe.Run(ctx, Options{Command: command, Args: args, Capture: true})
	return strings.TrimSpace(out), err
}

// LookPath reports whether a named tool is available, for precondition
// checks before any destructive work starts.
func LookPath(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func buildCommandString(command string, args ...string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
