package action

import (
	"maps"
	"sort"

	"github.com/inboxforge/triage-engine/internal/core"
)

// Descriptor is one registered action type.
type Descriptor struct {
	Name     string
	Defaults map[string]any
}

// BuildParams merges policy-supplied params over the action defaults.
// The result is a fresh map per call.
func (d Descriptor) BuildParams(policyParams map[string]any) map[string]any {
	params := maps.Clone(d.Defaults)
	if params == nil {
		params = map[string]any{}
	}
	maps.Copy(params, policyParams)
	return params
}

// Registry is the fixed table of action types the engine can propose,
// built once at startup. There is no dynamic registration; a policy
// naming anything else fails at load.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry builds the standard table.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Descriptor)}
	for _, d := range []Descriptor{
		{Name: core.ActionArchive},
		{Name: core.ActionQuarantine, Defaults: map[string]any{"notify": true}},
		{Name: core.ActionUnsubscribe, Defaults: map[string]any{"method": "list_header"}},
		{Name: core.ActionLabel},
	} {
		r.byName[d.Name] = d
	}
	return r
}

// Lookup resolves an action type by name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names lists the registered action types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
