package router

import (
	"context"
	"fmt"
)

// EchoAgent is the built-in stand-in for the LLM collaborator: it
// acknowledges the input verbatim. Real deployments swap in an
// implementation that calls a model backend.
type EchoAgent struct {
	// Name prefixes every reply.
	Name string
}

// Respond implements Agent.
func (a *EchoAgent) Respond(_ context.Context, _ string, text string) (string, error) {
	name := a.Name
	if name == "" {
		name = "nakedclaw"
	}
	return fmt.Sprintf("[%s] %s", name, text), nil
}
