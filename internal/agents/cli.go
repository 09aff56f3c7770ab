package agents

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// CLIInvoker runs cli-kind agents as subprocesses. The prompt travels
// as the final argv element; stdout is the review text.
type CLIInvoker struct{}

func (CLIInvoker) Invoke(ctx context.Context, agent Agent, prompt string) (string, error) {
	if len(agent.Command) == 0 {
		return "", &NotFoundError{Agent: agent.Name}
	}
	bin := agent.Command[0]
	if _, err := exec.LookPath(bin); err != nil {
		return "", &NotFoundError{Agent: agent.Name}
	}

	start := time.Now()
	args := append(append([]string(nil), agent.Command[1:]...), prompt)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", &TimeoutError{Agent: agent.Name, After: time.Since(start).Round(time.Millisecond)}
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", &ResponseError{Agent: agent.Name, Detail: detail}
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", &ResponseError{Agent: agent.Name, Detail: "empty response"}
	}
	return out, nil
}
