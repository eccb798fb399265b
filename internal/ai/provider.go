package ai

import "context"

// Request is one call to the generative text service. When Schema is set the
// provider asks for a structured reply conforming to it; SchemaName labels
// the schema for the API.
type Request struct {
	System     string
	Prompt     string
	SchemaName string
	Schema     map[string]any
}

// Provider sends prompts to a generative text service and returns its raw
// reply. The reply is untrusted and non-deterministic; callers must parse it
// defensively and never execute it.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}
