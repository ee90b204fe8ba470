package props

import "strings"

// NormalizeKey prefixes key with name+"." unless key already contains it.
func NormalizeKey(name, key string) string {
	if key == "" {
		return ""
	}
	if name == "" || strings.Contains(key, name+".") {
		return key
	}
	return name + "." + key
}

// NormalizeKeys applies NormalizeKey to every key.
func NormalizeKeys(name string, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = NormalizeKey(name, k)
	}
	return out
}

// Cascade answers "effective value of property X for server Name". Lookups
// stop at the first level holding any of the candidate keys:
//
//  1. Local, keys as given
//  2. Local, keys normalized with Name
//  3. Global, keys normalized with Name
//  4. Global, keys as given
type Cascade struct {
	Name   string
	Local  *Scope
	Global *Scope
}

// Lookup returns the resolved value and the key that matched.
func (c Cascade) Lookup(keys ...string) (Value, string, bool) {
	norm := NormalizeKeys(c.Name, keys)
	levels := []struct {
		scope *Scope
		keys  []string
	}{
		{c.Local, keys},
		{c.Local, norm},
		{c.Global, norm},
		{c.Global, keys},
	}
	for _, lvl := range levels {
		if lvl.scope == nil {
			continue
		}
		if k, v, ok := lvl.scope.First(lvl.keys...); ok {
			return v, k, true
		}
	}
	return Value{}, "", false
}

func (c Cascade) Has(keys ...string) bool {
	_, _, ok := c.Lookup(keys...)
	return ok
}

func (c Cascade) String(key, dft string) string { return c.StringOf([]string{key}, dft) }

func (c Cascade) StringOf(keys []string, dft string) string {
	if v, _, ok := c.Lookup(keys...); ok {
		return v.String()
	}
	return dft
}

func (c Cascade) Int(key string, dft int) int { return c.IntOf([]string{key}, dft) }

func (c Cascade) IntOf(keys []string, dft int) int {
	if v, _, ok := c.Lookup(keys...); ok {
		if n, ok := v.Int(); ok {
			return n
		}
	}
	return dft
}

func (c Cascade) Int64(key string, dft int64) int64 { return c.Int64Of([]string{key}, dft) }

func (c Cascade) Int64Of(keys []string, dft int64) int64 {
	if v, _, ok := c.Lookup(keys...); ok {
		if n, ok := v.Int64(); ok {
			return n
		}
	}
	return dft
}

func (c Cascade) Float64(key string, dft float64) float64 { return c.Float64Of([]string{key}, dft) }

func (c Cascade) Float64Of(keys []string, dft float64) float64 {
	if v, _, ok := c.Lookup(keys...); ok {
		if f, ok := v.Float64(); ok {
			return f
		}
	}
	return dft
}

func (c Cascade) Bool(key string, dft bool) bool { return c.BoolOf([]string{key}, dft) }

func (c Cascade) BoolOf(keys []string, dft bool) bool {
	if v, _, ok := c.Lookup(keys...); ok {
		if b, ok := v.Bool(); ok {
			return b
		}
	}
	return dft
}

func (c Cascade) Strings(key string, dft []string) []string { return c.StringsOf([]string{key}, dft) }

func (c Cascade) StringsOf(keys []string, dft []string) []string {
	if v, _, ok := c.Lookup(keys...); ok {
		return v.Strings()
	}
	return dft
}
