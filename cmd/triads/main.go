// Package main provides the triads binary entry point.
// Triads is an agent-orchestration runtime: it routes prompts to agent
// triads, enforces workflow ordering, and maintains per-triad knowledge
// graphs consulted before risky tool calls.
package main

import (
	"fmt"
	"os"
	"runtime"

	// Register LLM providers via init()
	_ "github.com/triadworks/triads/llm/providers"

	"github.com/triadworks/triads/commands"
)

const Version = "0.1.0"

func main() {
	// Add panic recovery. Exit 2 is reserved for the hook protocol's
	// block decision, so a crash must not use it.
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(1)
		}
	}()

	if err := commands.NewRootCommand(Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
