package engine

// ValidationError reports rejected feedback input (e.g. a real-result
// multiplier below 1.0). State is never mutated when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConfigError reports a rejected configuration update. The prior
// configuration is left intact when one is returned.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}
