// pkg/testutil/context.go

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"go.uber.org/zap/zaptest"
)

// TestRuntimeContext builds a RuntimeContext with a test logger and a
// noop telemetry span, cancelled automatically when the test ends.
func TestRuntimeContext(t *testing.T) *bedrock_io.RuntimeContext {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rc := bedrock_io.NewContext(ctx, t.Name())
	rc.Log = zaptest.NewLogger(t)
	rc.Timestamp = time.Now()
	return rc
}
