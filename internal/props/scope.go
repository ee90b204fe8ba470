package props

import "sync"

// Scope is an insertion-ordered, case-sensitive key/value store. Lookups
// never mutate; Set/Merge are the only writers.
type Scope struct {
	mu     sync.RWMutex
	name   string
	keys   []string
	values map[string]Value
}

func NewScope(name string) *Scope {
	return &Scope{
		name:   name,
		values: make(map[string]Value),
	}
}

// NewScopeFrom builds a scope from a plain map. Map iteration order is not
// stable, so callers that care about ordering should use Set.
func NewScopeFrom(name string, m map[string]string) *Scope {
	s := NewScope(name)
	for k, v := range m {
		s.Set(k, StringValue(v))
	}
	return s
}

func (s *Scope) Name() string { return s.name }

func (s *Scope) Set(key string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// SetIfAbsent stores v only when key has no value yet and reports whether it
// did.
func (s *Scope) SetIfAbsent(key string, v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false
	}
	s.keys = append(s.keys, key)
	s.values[key] = v
	return true
}

func (s *Scope) Get(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Scope) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// First returns the value of the first key present, in the order given.
func (s *Scope) First(keys ...string) (string, Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v, ok := s.values[k]; ok {
			return k, v, true
		}
	}
	return "", Value{}, false
}

// Keys returns the keys in insertion order.
func (s *Scope) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys...)
}

func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Merge copies every entry of other into s. When overwrite is false,
// existing keys in s are kept.
func (s *Scope) Merge(other *Scope, overwrite bool) int {
	if other == nil {
		return 0
	}
	n := 0
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		if overwrite {
			s.Set(k, v)
			n++
		} else if s.SetIfAbsent(k, v) {
			n++
		}
	}
	return n
}
