package pipeline

import (
	"sort"
	"sync"

	"github.com/vnykmshr/flowpipe/pkg/logging"
)

// Factory creates engines and builders and keeps a name to stage registry so
// definitions can reference shared stage instances by name.
type Factory struct {
	opts []Option
	log  Logger

	mu     sync.RWMutex
	stages map[string]Stage
}

// NewFactory creates a factory. opts are applied to every engine it creates.
func NewFactory(opts ...Option) *Factory {
	o := buildOptions(opts)
	return &Factory{
		opts:   opts,
		log:    o.logger,
		stages: make(map[string]Stage),
	}
}

// Create returns a new engine with no stages.
func (f *Factory) Create(config Config) (Pipeline, error) {
	return New(config, f.opts...)
}

// CreateBuilder returns a builder whose Build applies the factory options.
func (f *Factory) CreateBuilder() *Builder {
	b := NewBuilder()
	b.opts = f.opts
	return b
}

// RegisterStage stores stage under name. An existing entry is overwritten with a warning.
func (f *Factory) RegisterStage(name string, stage Stage) {
	f.mu.Lock()
	_, exists := f.stages[name]
	f.stages[name] = stage
	f.mu.Unlock()

	if exists {
		f.log.Warn("overwriting registered stage", map[string]interface{}{
			logging.FieldStage: name,
		})
	}
}

// GetRegisteredStage returns the stage registered under name.
func (f *Factory) GetRegisteredStage(name string) (Stage, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.stages[name]
	return s, ok
}

// RegisteredStages returns the registered names in sorted order.
func (f *Factory) RegisteredStages() []string {
	f.mu.RLock()
	names := make([]string, 0, len(f.stages))
	for name := range f.stages {
		names = append(names, name)
	}
	f.mu.RUnlock()

	sort.Strings(names)
	return names
}

// CreateFromStages builds an engine from registered stage names. Every name
// is resolved before the engine is created; an unknown name returns
// *UnknownStageError.
func (f *Factory) CreateFromStages(config Config, names ...string) (Pipeline, error) {
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		s, ok := f.GetRegisteredStage(name)
		if !ok {
			return nil, &UnknownStageError{Name: name}
		}
		stages = append(stages, s)
	}

	p, err := f.Create(config)
	if err != nil {
		return nil, err
	}
	for _, s := range stages {
		p.AddStage(s)
	}
	return p, nil
}
