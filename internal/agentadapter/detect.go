package agentadapter

import "strings"

// idlePromptMarkers are substrings common across agent CLIs' interactive
// prompts; any adapter can delegate to DetectIdlePrompt for the shared
// part of its heuristic and layer agent-specific markers on top.
var idlePromptMarkers = []string{
	"Human:",
	"> ",
	"? for shortcuts",
}

var workingMarkers = []string{
	"Thinking",
	"Running",
	"esc to interrupt",
}

// DetectIdlePrompt is the shared heuristic: true when the tail of output
// looks like the CLI is waiting at an interactive prompt rather than
// mid-turn. Agents with additional idle markers should check those first
// and fall back to this helper.
func DetectIdlePrompt(outputTail string) bool {
	for _, marker := range idlePromptMarkers {
		if strings.Contains(outputTail, marker) {
			return true
		}
	}
	return false
}

// DetectWorking is the shared heuristic for an in-progress turn.
func DetectWorking(outputTail string) bool {
	for _, marker := range workingMarkers {
		if strings.Contains(outputTail, marker) {
			return true
		}
	}
	return false
}

// ClassifyTail applies the shared heuristics in the priority order every
// adapter in this package uses: working markers win over idle markers,
// since a CLI often echoes its own prompt string while still rendering a
// tool call.
func ClassifyTail(outputTail string) WorkingState {
	switch {
	case DetectWorking(outputTail):
		return StateWorking
	case DetectIdlePrompt(outputTail):
		return StateIdle
	default:
		return StateUnknown
	}
}
