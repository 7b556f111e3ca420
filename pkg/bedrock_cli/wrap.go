// pkg/bedrock_cli/wrap.go

package bedrock_cli

import (
	"context"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/logger"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// Wrap adapts a bedrock command function to cobra's RunE, adding runtime
// context construction, panic recovery, and outcome logging. Every
// command goes through here so failures are classified the same way:
// operator mistakes exit quietly, everything else carries a stack.
func Wrap(fn func(rc *bedrock_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitFallback()

		rc := bedrock_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		if err := fn(rc, cmd, args); err != nil {
			if bedrock_err.IsExpectedUserError(err) {
				return err
			}
			return cerr.WithStack(err)
		}
		return nil
	}
}
