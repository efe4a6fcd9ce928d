// Package gemini implements the agentadapter.Adapter for the Gemini CLI.
package gemini

import (
	"github.com/shepherdjerred/clauderon/internal/agentadapter"
)

const name = "gemini"

// Adapter builds argv for the gemini CLI and classifies its output.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return name }

// StartCommand mirrors gemini's flag surface: --model, --yolo for
// dangerous-skip-checks, and -p for the prompt. Gemini has no
// session-resume flag; SessionID is ignored.
func (Adapter) StartCommand(opts agentadapter.StartOptions) []string {
	argv := []string{"gemini"}

	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	if opts.DangerousSkipChecks {
		argv = append(argv, "--yolo")
	}
	if opts.Prompt != "" {
		argv = append(argv, "-p", opts.Prompt)
	}
	return argv
}

func (Adapter) DetectState(outputTail string) agentadapter.WorkingState {
	return agentadapter.ClassifyTail(outputTail)
}
