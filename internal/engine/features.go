package engine

// FeatureVector is a named numeric signal snapshot. Keys are dotted
// identifiers ("malware.signature_hits", "anomaly.cpu_spike") produced
// by telemetry collectors upstream of the engine.
type FeatureVector map[string]float64

// Get returns the value for a feature, or 0 if the feature is absent.
func (v FeatureVector) Get(name string) float64 {
	return v[name]
}

// Clone returns a shallow copy so decisions can hold an immutable snapshot.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
