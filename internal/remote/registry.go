// Package remote holds the models that expose remote methods, the gate that
// authorizes each invocation and the dispatcher that runs them.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/faucetdb/tokengate/internal/model"
)

var (
	ErrModelNotFound  = errors.New("model not found")
	ErrMethodNotFound = errors.New("method not found")
	ErrDuplicateModel = errors.New("model already registered")
)

// Args are the named arguments of a remote call.
type Args map[string]interface{}

// HandlerFunc implements a remote method.
type HandlerFunc func(ctx context.Context, args Args) (interface{}, error)

// Method is a remotely invocable operation on a model. Aliases are alternate
// names that resolve to the same method; ACL rules naming an alias apply to
// the method too.
type Method struct {
	Name        string
	Aliases     []string
	AccessType  model.AccessType
	Description string
	Handler     HandlerFunc
}

// Names returns the method name followed by its aliases.
func (m *Method) Names() []string {
	return append([]string{m.Name}, m.Aliases...)
}

// Model is a named resource with settings and remote methods. Settings are
// fixed once the model is registered.
type Model struct {
	Name     string
	Settings model.ModelSettings

	methods []*Method
	byName  map[string]*Method
}

// NewModel creates a model with no methods.
func NewModel(name string, settings model.ModelSettings) *Model {
	return &Model{Name: name, Settings: settings, byName: make(map[string]*Method)}
}

// Expose adds a method. It panics if the name or an alias is already taken,
// since that is a programming error caught at startup.
func (m *Model) Expose(meth Method) *Model {
	if meth.AccessType == "" {
		meth.AccessType = model.AccessExecute
	}
	mp := &meth
	for _, n := range mp.Names() {
		if _, exists := m.byName[n]; exists {
			panic(fmt.Sprintf("remote: %s.%s already exposed", m.Name, n))
		}
		m.byName[n] = mp
	}
	m.methods = append(m.methods, mp)
	return m
}

// Method returns the method with this name or alias.
func (m *Model) Method(name string) (*Method, error) {
	if meth, ok := m.byName[name]; ok {
		return meth, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, m.Name, name)
}

// Methods returns the exposed methods in registration order.
func (m *Model) Methods() []*Method {
	return m.methods
}

// Registry is the set of models served by the application.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register adds a model.
func (r *Registry) Register(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name)
	}
	r.models[m.Name] = m
	return nil
}

// Model returns a registered model by name.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// Models returns every registered model sorted by name.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
