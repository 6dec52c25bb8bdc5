package adapter

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Registry resolves adapter names to factories. Built-ins (openai,
// anthropic) are registered at construction; user adapters are added
// explicitly by whoever loaded them — the core never imports by path.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in adapters registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register("openai", func() (Adapter, error) {
		key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, &UnavailableError{Name: "openai", Hint: "set OPENAI_API_KEY"}
		}
		return NewOpenAIAdapter(key, os.Getenv("OPENAI_BASE_URL")), nil
	})

	r.Register("anthropic", func() (Adapter, error) {
		key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, &UnavailableError{Name: "anthropic", Hint: "set ANTHROPIC_API_KEY"}
		}
		return NewAnthropicAdapter(key, os.Getenv("ANTHROPIC_BASE_URL")), nil
	})

	return r
}

// Register adds or replaces a named adapter factory.
func (r *Registry) Register(name string, f Factory) {
	if r == nil || f == nil {
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[name] = f
}

// Factory returns the factory for a named adapter.
func (r *Registry) Factory(name string) (Factory, error) {
	if r == nil || r.factories == nil {
		return nil, &UnavailableError{Name: name, Hint: "no adapters registered"}
	}
	key := strings.ToLower(strings.TrimSpace(name))
	f, ok := r.factories[key]
	if !ok {
		return nil, &UnavailableError{
			Name: name,
			Hint: fmt.Sprintf("known adapters: %s", strings.Join(r.Names(), ", ")),
		}
	}
	return f, nil
}

// New constructs a fresh adapter by name.
func (r *Registry) New(name string) (Adapter, error) {
	f, err := r.Factory(name)
	if err != nil {
		return nil, err
	}
	return f()
}

// Names lists registered adapter names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
