package models

import (
	"sort"
	"strings"
)

// Param is one resolved (name, value) pair of a Configuration
type Param struct {
	Name  string
	Value Value
}

// Configuration is an immutable assignment of concrete values to a
// candidate's hyper-parameters. Parameters are kept sorted by name so the
// canonical key is independent of declaration order.
type Configuration struct {
	params []Param
	key    string
}

// NewConfiguration builds a configuration from a name → value map
func NewConfiguration(values map[string]Value) Configuration {
	params := make([]Param, 0, len(values))
	for name, v := range values {
		params = append(params, Param{Name: name, Value: v})
	}
	return newConfiguration(params)
}

// ConfigurationFromParams builds a configuration from pairs. A later pair
// with the same name replaces an earlier one.
func ConfigurationFromParams(pairs ...Param) Configuration {
	seen := make(map[string]int, len(pairs))
	params := make([]Param, 0, len(pairs))
	for _, p := range pairs {
		if idx, ok := seen[p.Name]; ok {
			params[idx] = p
			continue
		}
		seen[p.Name] = len(params)
		params = append(params, p)
	}
	return newConfiguration(params)
}

// keyEscaper escapes the characters that separate configuration and job
// key fields
var keyEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, "=", `\=`, "|", `\|`)

func newConfiguration(params []Param) Configuration {
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = keyEscaper.Replace(p.Name) + "=" + keyEscaper.Replace(p.Value.String())
	}
	return Configuration{params: params, key: strings.Join(parts, ";")}
}

// Key returns the canonical identity of the configuration
func (c Configuration) Key() string { return c.key }

func (c Configuration) String() string { return c.key }

// Len returns the number of parameters
func (c Configuration) Len() int { return len(c.params) }

// Get looks up a parameter value by name
func (c Configuration) Get(name string) (Value, bool) {
	i := sort.Search(len(c.params), func(i int) bool { return c.params[i].Name >= name })
	if i < len(c.params) && c.params[i].Name == name {
		return c.params[i].Value, true
	}
	return Value{}, false
}

// Has reports whether name is assigned
func (c Configuration) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Params returns a copy of the parameters in name order
func (c Configuration) Params() []Param {
	out := make([]Param, len(c.params))
	copy(out, c.params)
	return out
}

// Names returns the parameter names in sorted order
func (c Configuration) Names() []string {
	names := make([]string, len(c.params))
	for i, p := range c.params {
		names[i] = p.Name
	}
	return names
}

// Map returns the configuration as plain Go values
func (c Configuration) Map() map[string]any {
	out := make(map[string]any, len(c.params))
	for _, p := range c.params {
		out[p.Name] = p.Value.Interface()
	}
	return out
}

// Equal compares canonical keys
func (c Configuration) Equal(o Configuration) bool { return c.key == o.key }

// Missing returns the names in required that are not assigned
func (c Configuration) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !c.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
