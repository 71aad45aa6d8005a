package lang

import "maps"

// Scope is one level of a variable scope chain.
//
// Loop iterations and comprehensions evaluate in a child scope. A binding
// made in the child is discarded with it, unless the name already existed
// further up the chain, in which case the outer binding is updated.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope returns a root scope holding a copy of vars.
func NewScope(vars map[string]any) *Scope {
	s := &Scope{vars: make(map[string]any, len(vars))}
	maps.Copy(s.vars, vars)

	return s
}

// Child returns a new empty scope chained to s.
func (s *Scope) Child() *Scope {
	return &Scope{vars: make(map[string]any), parent: s}
}

// Lookup finds name in the nearest scope that binds it.
func (s *Scope) Lookup(name string) (any, bool) {
	for c := s; c != nil; c = c.parent {
		if v, ok := c.vars[name]; ok {
			return v, true
		}
	}

	return nil, false
}

// Assign updates the nearest existing binding of name, or binds it in s.
func (s *Scope) Assign(name string, value any) {
	for c := s; c != nil; c = c.parent {
		if _, ok := c.vars[name]; ok {
			c.vars[name] = value

			return
		}
	}

	s.vars[name] = value
}

// Define binds name in s, shadowing any outer binding.
func (s *Scope) Define(name string, value any) {
	s.vars[name] = value
}

// Delete removes the nearest binding of name and reports whether one existed.
func (s *Scope) Delete(name string) bool {
	for c := s; c != nil; c = c.parent {
		if _, ok := c.vars[name]; ok {
			delete(c.vars, name)

			return true
		}
	}

	return false
}

// Snapshot flattens the chain into a new map; inner bindings win.
func (s *Scope) Snapshot() map[string]any {
	var chain []*Scope
	for c := s; c != nil; c = c.parent {
		chain = append(chain, c)
	}

	out := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(out, chain[i].vars)
	}

	return out
}
