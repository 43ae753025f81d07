// Package provider abstracts the chat-completion backend used by the
// correction supervisor and the assist engine.
package provider

import "context"

// Provider issues chat completions. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Complete returns the whole completion for the prompt pair.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Stream delivers the completion incrementally, invoking onToken for
	// each content fragment as it arrives.
	Stream(ctx context.Context, systemPrompt, userPrompt string, onToken func(string)) error
}
