package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/sec-tools/iac-sentinel/pkg/store/cache"
)

// Config carries everything a backend factory may need. Fields irrelevant to
// a given backend are ignored.
type Config struct {
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	Temperature   float64

	BedrockModelID string
	AWSRegion      string

	Cache cache.Cache
}

// Factory is a function type that creates a FixPlanProvider from a config
type Factory func(ctx context.Context, cfg Config) (FixPlanProvider, error)

// Registry manages AI backend factories
type Registry interface {
	// Register adds a new backend factory
	Register(name string, factory Factory) error
	// Create instantiates a provider for the specified backend using the provided config
	Create(ctx context.Context, name string, cfg Config) (FixPlanProvider, error)
	// ListProviders returns a list of registered backends
	ListProviders() []string
}

type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty provider registry
func NewRegistry() Registry {
	return &registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry creates a registry with every built-in backend registered.
func DefaultRegistry() Registry {
	r := NewRegistry()
	_ = r.Register("openai", func(_ context.Context, cfg Config) (FixPlanProvider, error) {
		return NewOpenAI(cfg)
	})
	_ = r.Register("bedrock", NewBedrock)
	_ = r.Register("fake", func(_ context.Context, _ Config) (FixPlanProvider, error) {
		return NewFake(), nil
	})
	return r
}

func (r *registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("backend name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend %q is already registered", name)
	}

	r.factories[name] = factory
	return nil
}

func (r *registry) Create(ctx context.Context, name string, cfg Config) (FixPlanProvider, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("backend %q is not registered", name)
	}

	return factory(ctx, cfg)
}

func (r *registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
