package agents

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError means the agent is unknown or its binary is not
// installed. Never retried.
type NotFoundError struct {
	Agent string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %s", e.Agent)
}

// TimeoutError means one invocation exceeded its deadline.
type TimeoutError struct {
	Agent string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent %s timed out after %s", e.Agent, e.After)
}

// ResponseError means the agent ran but produced an unusable result:
// non-zero exit, empty output, or an API failure.
type ResponseError struct {
	Agent  string
	Detail string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("agent %s: %s", e.Agent, e.Detail)
}

// Retryable reports whether an invocation error is worth another
// attempt. Missing agents are permanent; timeouts and bad responses are
// transient.
func Retryable(err error) bool {
	var timeoutErr *TimeoutError
	var responseErr *ResponseError
	return errors.As(err, &timeoutErr) || errors.As(err, &responseErr)
}
