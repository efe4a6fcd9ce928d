// Package agentadapter builds the argv used to launch an AI coding agent
// CLI and classifies its terminal output into a coarse working state.
// Each concrete agent (claude, codex, gemini) gets its own adapter behind
// a shared Adapter interface; the Session Manager only ever depends on
// the interface.
package agentadapter

// WorkingState is the coarse signal derived from recent terminal output.
type WorkingState string

const (
	StateWorking WorkingState = "working"
	StateIdle    WorkingState = "idle"
	StateUnknown WorkingState = "unknown"
)

// StartOptions parameterizes argv construction. Prompt is always the
// final positional argument when non-empty.
type StartOptions struct {
	Prompt              string
	Images              []string
	DangerousSkipChecks bool
	SessionID           string // empty = new session, non-empty = resume
	Model               string
}

// Adapter encodes one agent CLI's flag syntax and output heuristics.
type Adapter interface {
	// Name identifies the agent, matching sessionmgr.AgentType.
	Name() string
	// StartCommand builds the argv to launch the agent binary with opts.
	StartCommand(opts StartOptions) []string
	// DetectState classifies the tail of the agent's terminal output.
	DetectState(outputTail string) WorkingState
}

// ByName returns the adapter for agent, or (nil, false) if unknown.
func ByName(agent string, adapters ...Adapter) (Adapter, bool) {
	for _, a := range adapters {
		if a.Name() == agent {
			return a, true
		}
	}
	return nil, false
}
