package editsession

import (
	"sync"

	"go.uber.org/zap"

	"jobboard/api/internal/richtext"
)

// EditRequest is raised when the user clicks Edit on a table.
type EditRequest struct {
	Markup string
	Node   richtext.NodeRef
}

// Bridge carries edit requests from embedded tables to the form. It has at
// most one subscriber and delivers synchronously, in the order raised.
type Bridge struct {
	mu      sync.Mutex
	handler func(EditRequest)
	gen     uint64
	log     *zap.Logger
}

func NewBridge(log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{log: log}
}

// Subscribe installs h, replacing any previous subscriber. The returned func
// removes h if it is still installed.
func (b *Bridge) Subscribe(h func(EditRequest)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
	b.gen++
	gen := b.gen
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.handler = nil
		}
	}
}

// Raise delivers req and reports whether anyone was listening.
func (b *Bridge) Raise(req EditRequest) bool {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		b.log.Warn("table edit request dropped: no subscriber")
		return false
	}
	h(req)
	return true
}
