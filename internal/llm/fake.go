package llm

import (
	"context"
	"sync"
)

// Fake returns a fixed reply. It advertises only the capabilities it was
// built with, which makes it a stand-in for generic free-text clients.
type Fake struct {
	mu      sync.Mutex
	reply   string
	caps    Capability
	prompts []string
}

// NewFake creates a Fake answering every call with reply.
func NewFake(reply string, caps Capability) *Fake {
	return &Fake{reply: reply, caps: caps}
}

func (f *Fake) Capabilities() Capability { return f.caps }

func (f *Fake) Call(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, nil
}

// Prompts returns every prompt received so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
