package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIInvoker_Success(t *testing.T) {
	agent := Agent{Name: "echo", Kind: KindCLI, Command: []string{"sh", "-c", "echo reviewed"}}

	out, err := CLIInvoker{}.Invoke(context.Background(), agent, "ignored prompt")
	require.NoError(t, err)
	assert.Equal(t, "reviewed", out)
}

func TestCLIInvoker_MissingBinary(t *testing.T) {
	agent := Agent{Name: "ghost", Kind: KindCLI, Command: []string{"definitely-not-installed-anywhere"}}

	_, err := CLIInvoker{}.Invoke(context.Background(), agent, "p")
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "ghost", notFound.Agent)
}

func TestCLIInvoker_NonZeroExit(t *testing.T) {
	agent := Agent{Name: "broken", Kind: KindCLI, Command: []string{"sh", "-c", "echo bad >&2; exit 3"}}

	_, err := CLIInvoker{}.Invoke(context.Background(), agent, "p")
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Contains(t, respErr.Detail, "bad")
}

func TestCLIInvoker_EmptyOutput(t *testing.T) {
	agent := Agent{Name: "silent", Kind: KindCLI, Command: []string{"true"}}

	_, err := CLIInvoker{}.Invoke(context.Background(), agent, "p")
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Contains(t, respErr.Detail, "empty response")
}

func TestCLIInvoker_Timeout(t *testing.T) {
	agent := Agent{Name: "slow", Kind: KindCLI, Command: []string{"sh", "-c", "sleep 5"}}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := CLIInvoker{}.Invoke(ctx, agent, "p")
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "slow", timeoutErr.Agent)
}

func TestCLIInvoker_EmptyCommand(t *testing.T) {
	_, err := CLIInvoker{}.Invoke(context.Background(), Agent{Name: "blank", Kind: KindCLI}, "p")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
