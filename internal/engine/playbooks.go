package engine

// DefaultPlaybooks returns the remediation step library keyed by
// tripwire. Steps are ordered; operators see them verbatim alongside a
// decision. Entries without a matching hit are simply never surfaced.
func DefaultPlaybooks() map[string][]string {
	return map[string][]string{
		"malware.signature_hits": {
			"Kill offending process",
			"Quarantine binary with chattr +i",
			"Isolate host WireGuard peer",
			"Snapshot evidence bundle",
		},
		"malware.yara_hits": {
			"Kill offending process",
			"Quarantine binary with chattr +i",
			"Schedule full disk sweep",
		},
		"malware.unsigned_binaries": {
			"Suspend process",
			"Mark binary for manual review",
			"Enable heightened telemetry",
		},
		"malware.setuid_change": {
			"Revert setuid bits",
			"Trigger forensic capture",
			"Notify security operations",
		},
		"fim.aide_deviation": {
			"Run targeted AIDE recheck",
			"Seal tampered file via chattr +i",
			"Snapshot filesystem metadata",
		},
		"intrusion.ssh_bruteforce": {
			"Enable SSH tarpitting",
			"Ban offending IP via nftables",
			"Escalate to phone approval challenge",
		},
		"ddos.syn_rate": {
			"Deploy SYN cookie profile",
			"Raise XDP drop rate",
			"Flip admin endpoints to WireGuard-only",
		},
		"ddos.udp_flood": {
			"Enable UDP drop profile",
			"Notify upstream partner",
			"Throttle rate limits",
		},
		"http.error_rate": {
			"Apply WAF mitigation rules",
			"Block abusive fingerprint",
			"Serve cached responses",
		},
		"http.user_agent_anomaly": {
			"Challenge suspicious sessions",
			"Enable strict bot detection",
		},
		"exfil.dns_tunnel_score": {
			"Block suspicious domains",
			"Force WireGuard-only egress",
			"Alert human operator",
		},
		"exfil.long_lived_outbound": {
			"Cut non-approved egress",
			"Capture packet trace",
			"Notify compliance channel",
		},
		"packages.outdated_critical": {
			"Stage security updates",
			"Notify patch management",
		},
		"services.restarts": {
			"Pin service state",
			"Escalate to service owner",
		},
	}
}
