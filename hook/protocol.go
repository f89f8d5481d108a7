// Package hook implements the pre-tool interjection hook: before every
// tool call the host makes, it consults the active triad's process
// knowledge and either stays silent, injects guidance, or blocks the
// call. It is the only component allowed to block the host, and only by
// exiting with code 2.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
)

// Exit codes. The hook never uses any other code: errors degrade to
// ExitAllow so a broken hook cannot wedge the host.
const (
	ExitAllow = 0
	ExitBlock = 2
)

// Actions a decision can take.
const (
	ActionNoop   = "noop"
	ActionInject = "inject"
	ActionBlock  = "block"
)

// Input is the host's pre-tool payload on stdin.
type Input struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Cwd       string         `json:"cwd,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// FilePath extracts the file path the tool call touches, if any.
func (in *Input) FilePath() string {
	for _, key := range []string{"file_path", "path", "notebook_path"} {
		if v, ok := in.ToolInput[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Command extracts a Bash tool's command line, if any.
func (in *Input) Command() string {
	if v, ok := in.ToolInput["command"].(string); ok {
		return v
	}
	return ""
}

// ReadInput decodes the hook payload from a reader.
func ReadInput(r io.Reader) (*Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode hook input: %w", err)
	}
	if in.ToolName == "" {
		return nil, fmt.Errorf("hook input missing tool_name")
	}
	return &in, nil
}

// Outcome is the hook's verdict for one tool call.
type Outcome struct {
	Action string `json:"action"`
	// Context is the additionalContext JSON payload for injections.
	Context string `json:"context,omitempty"`
	// Message is the stderr interjection for blocks.
	Message string `json:"message,omitempty"`
	// MatchedNodeIDs names the knowledge nodes behind the decision.
	MatchedNodeIDs []string `json:"matched_node_ids,omitempty"`
	// Triad is the graph the matches came from.
	Triad string `json:"triad,omitempty"`
}

// ExitCode maps the outcome onto the hook protocol.
func (o Outcome) ExitCode() int {
	if o.Action == ActionBlock {
		return ExitBlock
	}
	return ExitAllow
}

// InjectionPayload renders the stdout JSON for an inject outcome.
func (o Outcome) InjectionPayload() (string, error) {
	data, err := json.Marshal(map[string]string{"additionalContext": o.Context})
	if err != nil {
		return "", fmt.Errorf("encode injection payload: %w", err)
	}
	return string(data), nil
}
