package richtext

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// RenderMode selects between the stored form of the document and the form
// shown inside the editor, which carries edit affordances.
type RenderMode int

const (
	RenderStored RenderMode = iota
	RenderEditing
)

// Embed is a custom atomic content type registered with the editor.
type Embed interface {
	Name() string
	// Create builds the unit for value. The returned unit's Kind and Embed
	// fields are set by the editor.
	Create(value string) (Unit, error)
	// Value returns exactly the value the unit was created with.
	Value(u Unit) string
	Render(b *strings.Builder, u Unit, mode RenderMode)
	// Recognize reports whether a top-level block of stored markup is an
	// instance of this embed and returns its value.
	Recognize(b Block) (string, bool)
	// Activate handles a click on the unit's edit affordance.
	Activate(node NodeRef, u Unit)
}

var ErrUnknownEmbed = errors.New("unknown embed type")

// Registry maps embed names to their implementations.
type Registry struct {
	mu     sync.RWMutex
	embeds map[string]Embed
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{embeds: make(map[string]Embed)}
}

// Register adds or replaces an embed type.
func (r *Registry) Register(e Embed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.embeds[e.Name()]; !exists {
		r.order = append(r.order, e.Name())
	}
	r.embeds[e.Name()] = e
}

func (r *Registry) Lookup(name string) (Embed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embeds[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownEmbed, name)
	}
	return e, nil
}

// recognize tries embeds in registration order.
func (r *Registry) recognize(b Block) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if value, ok := r.embeds[name].Recognize(b); ok {
			return name, value, true
		}
	}
	return "", "", false
}
