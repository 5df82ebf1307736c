package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/nexuscore/agentrt/internal/subagent"
)

// subagentRunnerFlag is the hidden subcommand name used to re-exec this
// binary as a sub-agent worker process.
const subagentRunnerFlag = "__run-subagent"

// selfExecRunner returns a subagent.RunnerFunc that re-executes the current
// binary with the hidden runner subcommand, passing the task on the command
// line. Running sub-agents as separate OS processes (rather than goroutines)
// means a hung or runaway sub-agent can never take the parent process down
// with it.
func selfExecRunner() subagent.RunnerFunc {
	return func(ctx context.Context, sa *subagent.SubAgent) (*exec.Cmd, error) {
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		cmd := exec.CommandContext(ctx, self, subagentRunnerFlag, "--task", sa.Task, "--name", sa.Name)
		cmd.Env = os.Environ()
		return cmd, nil
	}
}
