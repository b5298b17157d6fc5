package encoders

import "slices"

// Registry is the ordered, immutable set of encoders confirmed working.
// Passthrough is always present and always last.
type Registry struct {
	encoders []Encoder
	index    map[string]int
}

// NewRegistry builds a registry from probe output, keeping the given order
// and dropping duplicates.
func NewRegistry(working []string) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, name := range working {
		if name == Passthrough {
			continue
		}
		r.add(Resolve(name))
	}
	r.add(Resolve(Passthrough))
	return r
}

func (r *Registry) add(e Encoder) {
	if _, dup := r.index[e.Name]; dup || e.Name == "" {
		return
	}
	r.index[e.Name] = len(r.encoders)
	r.encoders = append(r.encoders, e)
}

// Lookup returns the resolved encoder for name if it is registered.
func (r *Registry) Lookup(name string) (Encoder, bool) {
	i, ok := r.index[name]
	if !ok {
		return Encoder{}, false
	}
	return r.encoders[i], true
}

// Encoders returns the registered encoders in order.
func (r *Registry) Encoders() []Encoder {
	return slices.Clone(r.encoders)
}

// Names returns the registered identifiers in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.encoders))
	for i, e := range r.encoders {
		names[i] = e.Name
	}
	return names
}

// ByFamily returns the registered encoders belonging to f.
func (r *Registry) ByFamily(f Family) []Encoder {
	var out []Encoder
	for _, e := range r.encoders {
		if e.Family == f {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of registered encoders, passthrough included.
func (r *Registry) Len() int {
	return len(r.encoders)
}
