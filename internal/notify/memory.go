package notify

import (
	"context"
	"sync"
)

// InMemory records sent messages for test assertions. FailWith forces the next
// sends to fail so the no-throw contract can be exercised.
type InMemory struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

// NewInMemory returns an empty recording gateway.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (g *InMemory) Send(ctx context.Context, msg Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	g.messages = append(g.messages, msg)
	return nil
}

// Messages returns a snapshot of everything sent so far.
func (g *InMemory) Messages() []Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	snapshot := make([]Message, len(g.messages))
	copy(snapshot, g.messages)
	return snapshot
}

// ByKind filters the sent messages by kind.
func (g *InMemory) ByKind(kind Kind) []Message {
	matched := make([]Message, 0)
	for _, msg := range g.Messages() {
		if msg.Kind == kind {
			matched = append(matched, msg)
		}
	}
	return matched
}

// Reset discards everything recorded so far.
func (g *InMemory) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = nil
}

// FailWith makes subsequent sends return err; pass nil to restore delivery.
func (g *InMemory) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}
