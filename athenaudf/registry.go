// SPDX-License-Identifier: Apache-2.0

package athenaudf

import (
	"fmt"
	"sort"
)

// Registry maps method names to registered functions. It is built once at
// startup and treated as immutable while serving; Lookup is then safe for
// concurrent use.
type Registry struct {
	fns map[string]*Function
}

// NewRegistry builds a registry from the given functions. Registering two
// functions under the same name panics, like a duplicate flag registration.
func NewRegistry(fns ...*Function) *Registry {
	r := &Registry{fns: make(map[string]*Function, len(fns))}
	for _, f := range fns {
		r.Register(f)
	}
	return r
}

// Register adds a function to the registry. It must not be called once the
// registry is serving requests.
func (r *Registry) Register(f *Function) {
	if _, ok := r.fns[f.name]; ok {
		panic(fmt.Sprintf("athenaudf: method %q registered twice", f.name))
	}
	r.fns[f.name] = f
}

// Lookup resolves a method name. A miss is an UnknownFunction error listing
// the available methods.
func (r *Registry) Lookup(name string) (*Function, error) {
	f, ok := r.fns[name]
	if !ok {
		return nil, udfErrorf(KindUnknownFunction, name, -1,
			"unknown method: '%s'. Available methods: %v", name, r.methodNames())
	}
	return f, nil
}

// Functions returns all registered functions sorted by name.
func (r *Registry) Functions() []*Function {
	out := make([]*Function, 0, len(r.fns))
	for _, f := range r.fns {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Registry) methodNames() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FunctionDescription is the introspection record for one registered method.
type FunctionDescription struct {
	Name      string   `json:"name"`
	Params    []string `json:"params"`
	Return    string   `json:"return"`
	Signature string   `json:"signature"`
}

// Describe returns introspection records for all registered methods, sorted
// by name.
func (r *Registry) Describe() []FunctionDescription {
	fns := r.Functions()
	out := make([]FunctionDescription, len(fns))
	for i, f := range fns {
		params := make([]string, f.sig.Arity())
		for j, p := range f.sig.Params {
			params[j] = p.String()
		}
		out[i] = FunctionDescription{
			Name:      f.name,
			Params:    params,
			Return:    f.sig.Return.String(),
			Signature: f.sig.String(),
		}
	}
	return out
}
