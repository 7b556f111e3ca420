// pkg/testutil/executor.go

package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bedrock-install/bedrock/pkg/execute"
)

// FakeExecutor records every invocation and answers from canned responses,
// so phase-body tests can assert exactly which destructive operations ran.
type FakeExecutor struct {
	mu sync.Mutex

	// Calls holds every invocation in order.
	Calls []execute.Options

	// Responses maps a command-line prefix to its canned result. The first
	// matching prefix wins; unmatched invocations succeed with no output.
	Responses map[string]FakeResponse
}

type FakeResponse struct {
	Output string
	Err    error
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{Responses: make(map[string]FakeResponse)}
}

func (f *FakeExecutor) Run(_ context.Context, opts execute.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, opts)

	line := commandLine(opts)
	for prefix, resp := range f.Responses {
		if strings.HasPrefix(line, prefix) {
			return resp.Output, resp.Err
		}
	}
	return "", nil
}

// Respond registers a canned response for invocations starting with prefix.
func (f *FakeExecutor) Respond(prefix, output string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[prefix] = FakeResponse{Output: output, Err: err}
}

// CommandLines returns every recorded invocation as a flat command line.
func (f *FakeExecutor) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, len(f.Calls))
	for i, call := range f.Calls {
		lines[i] = commandLine(call)
	}
	return lines
}

// CallCount returns how many recorded invocations start with prefix.
func (f *FakeExecutor) CallCount(prefix string) int {
	count := 0
	for _, line := range f.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}

func commandLine(opts execute.Options) string {
	if len(opts.Args) == 0 {
		return opts.Command
	}
	return fmt.Sprintf("%s %s", opts.Command, strings.Join(opts.Args, " "))
}
