package lifecycle

// EffectType is a side-effecting instruction emitted by a decision. Effects
// are applied by the caller; the machine itself never touches the outside
// world.
type EffectType string

const (
	EffectAdmitToQueue      EffectType = "admit_to_queue"
	EffectNotifyFailure     EffectType = "notify_failure"
	EffectNotifyPermitReady EffectType = "notify_permit_ready"
	EffectAlert             EffectType = "alert"
)

type AlertSeverity string

const (
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

type Effect struct {
	Type     EffectType
	Severity AlertSeverity
	Reason   string
}

func alertEffect(severity AlertSeverity, reason string) Effect {
	return Effect{Type: EffectAlert, Severity: severity, Reason: reason}
}
