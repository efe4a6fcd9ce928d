// Package codex implements the agentadapter.Adapter for Codex.
package codex

import (
	"github.com/shepherdjerred/clauderon/internal/agentadapter"
)

const name = "codex"

// Adapter builds argv for the codex CLI and classifies its output.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return name }

// StartCommand mirrors codex's `exec --json` headless surface.
// --dangerously-skip-permissions maps to codex's --full-auto, and
// resume takes a positional session id rather than a flag.
func (Adapter) StartCommand(opts agentadapter.StartOptions) []string {
	argv := []string{"codex", "exec", "--json"}

	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	for _, img := range opts.Images {
		argv = append(argv, "--image", img)
	}
	if opts.DangerousSkipChecks {
		argv = append(argv, "--full-auto")
	}
	if opts.SessionID != "" {
		argv = append(argv, "resume", opts.SessionID)
	}

	if opts.Prompt != "" {
		argv = append(argv, opts.Prompt)
	}
	return argv
}

func (Adapter) DetectState(outputTail string) agentadapter.WorkingState {
	return agentadapter.ClassifyTail(outputTail)
}
