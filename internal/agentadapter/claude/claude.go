// Package claude implements the agentadapter.Adapter for Claude Code.
package claude

import (
	"strings"

	"github.com/shepherdjerred/clauderon/internal/agentadapter"
)

const name = "claude"

// Adapter builds argv for the claude CLI and classifies its output.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return name }

// StartCommand mirrors claude's headless stream-json flag surface:
// --model, --image (repeated), --session-id / --resume, and
// --dangerously-skip-permissions, with the prompt as the final
// positional argument.
func (Adapter) StartCommand(opts agentadapter.StartOptions) []string {
	argv := []string{"claude"}

	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	for _, img := range opts.Images {
		argv = append(argv, "--image", img)
	}
	if opts.SessionID != "" {
		argv = append(argv, "--resume", "--session-id", opts.SessionID)
	}
	if opts.DangerousSkipChecks {
		argv = append(argv, "--dangerously-skip-permissions")
	}

	if opts.Prompt != "" {
		argv = append(argv, opts.Prompt)
	}
	return argv
}

var permissionMarkers = []string{
	"Do you want to proceed?",
	"Allow this tool to run?",
}

func (Adapter) DetectState(outputTail string) agentadapter.WorkingState {
	for _, marker := range permissionMarkers {
		if strings.Contains(outputTail, marker) {
			return agentadapter.StateWorking
		}
	}
	return agentadapter.ClassifyTail(outputTail)
}
