package models

// HookState is the data a custom resource handler carries across poll
// invocations of one logical operation. It travels inside the re-invocation
// event, so the caller owns its persistence.
type HookState map[string]string

// Get returns the value stored under key, or "" when absent
func (s HookState) Get(key string) string {
	if s == nil {
		return ""
	}
	return s[key]
}

// Clone returns an independent copy of the state
func (s HookState) Clone() HookState {
	out := make(HookState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Data converts the state into a custom resource response data map
func (s HookState) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
