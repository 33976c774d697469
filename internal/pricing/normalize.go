package pricing

import "strings"

var knownProviderPrefixes = []string{"openai/", "anthropic/", "google/", "azure/", "aws/", "cohere/", "mistral/"}

var stripSuffixes = []string{"-latest", "-preview", "-stable"}

// NormalizeModelName lowercases model, strips known provider prefixes, and
// strips -latest/-preview/-stable or dated (-20xx-) suffixes. It is a
// best-effort fallback used only when an exact match against a pricing
// table's model_name is absent; Resolve always tries the raw name first so
// this never overrides a more specific exact match (spec §12 feature 1).
func NormalizeModelName(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range knownProviderPrefixes {
		model = strings.TrimPrefix(model, prefix)
	}
	return stripVersionSuffix(model)
}

func stripVersionSuffix(model string) string {
	for _, suffix := range stripSuffixes {
		if idx := strings.LastIndex(model, suffix); idx > 0 {
			return model[:idx]
		}
	}
	for i := len(model) - 1; i >= 0; i-- {
		if model[i] == '-' && i+4 < len(model) && model[i+1:i+3] == "20" {
			return model[:i]
		}
	}
	return model
}
