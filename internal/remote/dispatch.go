package remote

import (
	"context"
	"fmt"
	"strings"
)

// Call is a remote invocation addressed as "model.method".
type Call struct {
	Method string
	Args   Args
}

// ParseMethod splits "model.method" into its parts.
func ParseMethod(s string) (modelName, method string, err error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%w: %q is not of the form model.method", ErrMethodNotFound, s)
	}
	return s[:i], s[i+1:], nil
}

// Dispatcher routes calls to model methods after the gate allows them.
type Dispatcher struct {
	registry *Registry
	gate     *Gate
}

func NewDispatcher(registry *Registry, gate *Gate) *Dispatcher {
	return &Dispatcher{registry: registry, gate: gate}
}

// Registry returns the registry the dispatcher routes to.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke runs call with the caller attached to ctx. The method never runs
// when the gate denies the call.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (interface{}, error) {
	modelName, method, err := ParseMethod(call.Method)
	if err != nil {
		return nil, err
	}
	return d.InvokeMethod(ctx, modelName, method, call.Args)
}

// InvokeMethod is Invoke with the model and method already split.
func (d *Dispatcher) InvokeMethod(ctx context.Context, modelName, method string, args Args) (interface{}, error) {
	m, err := d.registry.Model(modelName)
	if err != nil {
		return nil, err
	}
	meth, err := m.Method(method)
	if err != nil {
		return nil, err
	}
	if err := d.gate.Authorize(ctx, m, meth); err != nil {
		return nil, err
	}
	if args == nil {
		args = Args{}
	}
	return meth.Handler(ctx, args)
}
