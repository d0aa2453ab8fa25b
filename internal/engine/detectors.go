package engine

// Detector is a builtin high-signal check that is always active
// regardless of caller configuration. If Compute is nil the detector
// reads Feature directly from the vector.
type Detector struct {
	Tripwire    string
	Feature     string
	Threshold   float64
	Description string
	Compute     func(FeatureVector) float64
}

// Evaluate derives the detector's value for one feature snapshot.
// Total over any vector: missing features read 0.
func (d Detector) Evaluate(features FeatureVector) float64 {
	if d.Compute != nil {
		return d.Compute(features)
	}
	return features.Get(d.Feature)
}

// ratio builds a compute func dividing one feature by another, with the
// denominator floored at 1 so an empty window can never divide by zero.
func ratio(numerator, denominator string, scale float64) func(FeatureVector) float64 {
	return func(features FeatureVector) float64 {
		denom := features.Get(denominator)
		if denom < 1 {
			denom = 1
		}
		return features.Get(numerator) / denom * scale
	}
}

// BuiltinDetectors returns the fixed day-zero detector catalog. The
// returned slice is freshly allocated; the rule engine treats it as
// read-only after construction.
func BuiltinDetectors() []Detector {
	return []Detector{
		{
			Tripwire:    "malware.signature_hits",
			Feature:     "malware.signature_hits",
			Threshold:   1.0,
			Description: "ClamAV signature hit detected",
		},
		{
			Tripwire:    "malware.yara_hits",
			Feature:     "malware.yara_hits",
			Threshold:   0.5,
			Description: "YARA rule matched on protected path",
		},
		{
			Tripwire:    "malware.unsigned_binaries",
			Feature:     "malware.unsigned_binaries",
			Threshold:   1.0,
			Description: "Unsigned binary executed from writable path",
		},
		{
			Tripwire:    "malware.setuid_change",
			Feature:     "malware.setuid_change",
			Threshold:   1.0,
			Description: "Unexpected setuid change detected",
		},
		{
			Tripwire:    "fim.aide_deviation",
			Feature:     "fim.aide_deviation",
			Threshold:   1.0,
			Description: "File integrity drift beyond baseline",
		},
		{
			Tripwire:    "intrusion.ssh_bruteforce",
			Feature:     "intrusion.ssh_bruteforce",
			Threshold:   0.5,
			Description: "SSH brute-force heuristic triggered",
		},
		{
			Tripwire:    "ddos.syn_rate",
			Feature:     "ddos.syn_rate",
			Threshold:   100.0,
			Description: "SYN flood signature detected",
		},
		{
			Tripwire:    "ddos.udp_flood",
			Feature:     "ddos.udp_flood",
			Threshold:   50.0,
			Description: "UDP flood signature detected",
		},
		{
			Tripwire:    "http.error_rate",
			Feature:     "http.error_rate",
			Threshold:   0.2,
			Description: "HTTP error rate spike",
		},
		{
			Tripwire:    "http.user_agent_anomaly",
			Feature:     "http.user_agent_anomaly",
			Threshold:   0.3,
			Description: "Suspicious HTTP user-agent profile",
		},
		{
			Tripwire:    "exfil.long_lived_outbound",
			Feature:     "exfil.long_lived_outbound",
			Threshold:   40.0,
			Description: "Potential data exfiltration via long-lived outbound",
		},
		{
			Tripwire:    "exfil.dns_tunnel_score",
			Feature:     "exfil.dns_tunnel_score",
			Threshold:   0.5,
			Description: "DNS tunneling heuristics exceeded",
		},
		{
			Tripwire:    "wireguard.anomaly",
			Feature:     "wireguard.anomaly",
			Threshold:   0.5,
			Description: "Admin traffic attempted outside WireGuard tunnel",
		},
		{
			Tripwire:    "services.restarts",
			Feature:     "services.restarts",
			Threshold:   3.0,
			Description: "Critical service restarted repeatedly",
		},
		{
			Tripwire:    "auth.failures_ratio",
			Feature:     "auth.failures",
			Threshold:   50.0,
			Description: "Authentication failure baseline exceeded",
			Compute:     ratio("auth.failures", "events.auth_logs", 10.0),
		},
	}
}
