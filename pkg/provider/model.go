package provider

import "strings"

// ParseModel splits a litellm-style model identifier into its provider prefix
// and bare model name. Both "ollama:qwen3-30b" and "ollama/qwen3-30b" forms
// are accepted. When no separator is present the provider is empty and the
// whole string is the model.
//
// The split is purely lexical: "llama3:8b" parses as provider "llama3",
// which the registry will reject as unknown and fall back to treating the
// full string as a model name.
func ParseModel(model string) (provider, name string) {
	model = strings.TrimSpace(model)
	if i := strings.IndexAny(model, ":/"); i > 0 {
		return model[:i], model[i+1:]
	}
	return "", model
}
