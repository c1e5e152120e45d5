// ABOUTME: Model selection against the configured model list
// ABOUTME: Accepts exact ids, provider-prefixed ids, and fuzzy abbreviations

package config

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ModelSpec is a resolved model choice.
type ModelSpec struct {
	Provider string
	Model    string
}

func (m ModelSpec) String() string {
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + ":" + m.Model
}

// ParseModelSpec splits "provider:model" into its parts. Input without a
// colon is a bare model id.
func ParseModelSpec(input string) ModelSpec {
	provider, model, ok := strings.Cut(input, ":")
	if !ok {
		return ModelSpec{Model: input}
	}
	return ModelSpec{Provider: provider, Model: model}
}

// ResolveModel picks the model for input from the settings. An empty input
// selects the configured default. Otherwise an exact match in Models wins,
// then a provider-prefixed id is taken as given, then the best fuzzy match
// among Models. When no model list is configured the input is used as is.
func (s *Settings) ResolveModel(input string) (ModelSpec, error) {
	if input == "" {
		input = s.Model
	}
	if input == "" {
		return ModelSpec{}, fmt.Errorf("no model selected: set model in %s or pass --model", configFileName)
	}

	withProvider := func(spec ModelSpec) ModelSpec {
		if spec.Provider == "" {
			spec.Provider = s.Provider
		}
		return spec
	}

	for _, m := range s.Models {
		if m == input {
			return withProvider(ParseModelSpec(m)), nil
		}
	}
	if strings.Contains(input, ":") || len(s.Models) == 0 {
		return withProvider(ParseModelSpec(input)), nil
	}

	matches := fuzzy.Find(input, s.Models)
	if len(matches) == 0 {
		return ModelSpec{}, fmt.Errorf("unknown model %q (configured: %s)", input, strings.Join(s.Models, ", "))
	}
	return withProvider(ParseModelSpec(matches[0].Str)), nil
}
