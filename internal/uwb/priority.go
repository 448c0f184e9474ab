package uwb

// Default priority bands (spec §4.8). A caller-supplied non-default value
// in open params locks priority (priorityOverride); otherwise stackPriority
// is recomputed on fg/bg transitions and before start.
const (
	PriorityAliro           uint8 = 80
	PriorityCcc             uint8 = 80
	PrioritySystemApp       uint8 = 70
	PriorityFg              uint8 = 60
	PriorityDefaultSentinel uint8 = 50
	PriorityBg              uint8 = 40
)

// computeStackPriority recomputes the effective priority band for a session
// that does not have priorityOverride set (spec §4.7, §4.8).
func computeStackPriority(protocol Protocol, link AttributionLink, foreground bool, policy PolicyOracle) uint8 {
	if override, ok := policy.DefaultSessionPriorityOverride(protocol); ok {
		return override
	}
	switch protocol {
	case ProtocolAliro:
		return PriorityAliro
	case ProtocolCcc:
		return PriorityCcc
	}
	if link.Privileged {
		return PrioritySystemApp
	}
	if foreground {
		return PriorityFg
	}
	return PriorityBg
}
