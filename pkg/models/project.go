// Package models contains the data types shared by the session layer,
// the remote client and the rendering surfaces.
package models

import (
	"maps"
	"slices"
)

// ProjectSummary identifies a project known to the remote service.
type ProjectSummary struct {
	ID   string `json:"project_id"`
	Name string `json:"name"`
}

// FileMap maps a "/"-separated relative path to the file content.
// It is replaced wholesale on every generation response.
type FileMap map[string]string

// Clone returns a shallow copy of the map. A nil map clones to nil.
func (m FileMap) Clone() FileMap {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Has reports whether path is a key of the map.
func (m FileMap) Has(path string) bool {
	_, ok := m[path]
	return ok
}

// Keys returns the paths in byte order.
func (m FileMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LLMOptions maps a provider name to the models it offers.
type LLMOptions map[string][]string

// Default picks the provider/model pair used when the caller names none.
// The preferred pair wins when offered, then the first provider in name
// order and its first model.
func (o LLMOptions) Default(preferredProvider, preferredModel string) (provider, model string) {
	if offered, ok := o[preferredProvider]; ok {
		if slices.Contains(offered, preferredModel) || len(offered) == 0 {
			return preferredProvider, preferredModel
		}
		return preferredProvider, offered[0]
	}
	if len(o) == 0 {
		return preferredProvider, preferredModel
	}
	providers := make([]string, 0, len(o))
	for p := range o {
		providers = append(providers, p)
	}
	slices.Sort(providers)
	provider = providers[0]
	if ms := o[provider]; len(ms) > 0 {
		model = ms[0]
	}
	return provider, model
}
