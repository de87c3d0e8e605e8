package plugin

// MergeSettings overlays per-plugin overrides from platform configuration
// onto the descriptor's default settings. Neither input is mutated.
//
// Descriptor defaults may wrap a value as {default: X} to document it; the
// wrapper is unwrapped here so factories always see the plain value.
func MergeSettings(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))

	for k, v := range defaults {
		merged[k] = unwrapDefault(v)
	}
	for k, v := range overrides {
		merged[k] = v
	}

	return merged
}

// unwrapDefault converts a {default: X} map into X. Any other shape passes
// through unchanged.
func unwrapDefault(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	if inner, ok := m["default"]; ok {
		return inner
	}
	return v
}
