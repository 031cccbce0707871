package retry

import (
	"context"
	"fmt"

	"likevault/internal/services"
)

// AlertKind identifies one of the three escalation events.
type AlertKind string

const (
	AlertWarning  AlertKind = "warning"
	AlertFinal    AlertKind = "final"
	AlertRecovery AlertKind = "recovery"
)

// alertErrorLimit bounds the error excerpt embedded in alert text.
const alertErrorLimit = 100

// Alert describes an escalation event.
type Alert struct {
	Kind       AlertKind
	Subject    string
	Attempt    int
	MaxRetries int
	Err        error
}

// Text renders the alert for a human reader.
func (a Alert) Text() string {
	switch a.Kind {
	case AlertWarning:
		return fmt.Sprintf("⚠️ %s is struggling after %d attempts: %s", a.Subject, a.Attempt, services.Truncate(a.Err, alertErrorLimit))
	case AlertFinal:
		return fmt.Sprintf("❌ %s exhausted all %d attempts: %s", a.Subject, a.MaxRetries, services.Truncate(a.Err, alertErrorLimit))
	case AlertRecovery:
		return fmt.Sprintf("✅ %s recovered after %d attempts", a.Subject, a.Attempt)
	default:
		return a.Subject
	}
}

// Title returns a short headline used by sinks that support one.
func (a Alert) Title() string {
	switch a.Kind {
	case AlertWarning:
		return "likevault retry warning"
	case AlertFinal:
		return "likevault retry exhausted"
	case AlertRecovery:
		return "likevault recovered"
	default:
		return "likevault"
	}
}

// AlertFunc receives escalation events. It must not block for long.
type AlertFunc func(ctx context.Context, alert Alert)
