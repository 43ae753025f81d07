// Package mock provides a canned chat-completion provider for running the
// engine without API credentials. Completions are deterministic per prompt
// shape and streaming delivers them word by word with a small delay, which
// is enough to exercise debounce, cancellation, and consumer plumbing.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultResponses cycle when no scripted response is set.
var DefaultResponses = []string{
	"The team agreed to ship the rollout behind a feature flag next week.",
	"Latency regressed after the cache change; the fix is to pin the pool size.",
	"Yes, the migration is backwards compatible with the previous schema.",
}

// Provider implements provider.Provider with scripted responses.
type Provider struct {
	mu        sync.Mutex
	scripted  []string
	next      int
	tokenGap  time.Duration
	completes int
	streams   int
}

// New creates a mock provider cycling through the default responses.
func New() *Provider {
	return &Provider{tokenGap: 20 * time.Millisecond}
}

// Script replaces the response list. The provider cycles through it.
func (p *Provider) Script(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripted = responses
	p.next = 0
}

// SetTokenGap adjusts the simulated per-token delay.
func (p *Provider) SetTokenGap(gap time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenGap = gap
}

// Completes returns how many Complete calls were served.
func (p *Provider) Completes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completes
}

// Streams returns how many Stream calls were served.
func (p *Provider) Streams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams
}

func (p *Provider) nextResponse() string {
	responses := p.scripted
	if len(responses) == 0 {
		responses = DefaultResponses
	}
	resp := responses[p.next%len(responses)]
	p.next++
	return resp
}

// Complete returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completes++
	return p.nextResponse(), nil
}

// Stream delivers the next scripted response one word at a time.
func (p *Provider) Stream(ctx context.Context, systemPrompt, userPrompt string, onToken func(string)) error {
	p.mu.Lock()
	p.streams++
	resp := p.nextResponse()
	gap := p.tokenGap
	p.mu.Unlock()

	words := strings.Fields(resp)
	for i, word := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := word
		if i < len(words)-1 {
			token += " "
		}
		onToken(token)
		if gap > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap):
			}
		}
	}
	return nil
}
