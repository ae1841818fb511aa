/*
notify.go - Notification eligibility (pure)

Decides whether a reminder is due today for an installment. The actual
message formatting and delivery belong to the external notifier; this
component returns a decision and never sends anything.
*/
package ledger

// DueType classifies today against the installment's due date.
type DueType string

const (
	DueNone     DueType = ""          // nothing to send today
	DueReminder DueType = "REMINDER"  // approaching due date
	DueToday    DueType = "DUE_TODAY" // due date is today
	DueOverdue  DueType = "OVERDUE"   // past due date
)

// DuePolicy is owned by the external notification collaborator: it
// decides which calendar offsets from the due date warrant a dispatch.
type DuePolicy interface {
	Classify(dueDate, today Date) DueType
}

// DefaultDuePolicy sends a reminder ReminderDays before the due date,
// a due-today notice on the day, and an overdue notice after it while
// the installment is still unpaid.
type DefaultDuePolicy struct {
	ReminderDays int
}

func (p DefaultDuePolicy) Classify(dueDate, today Date) DueType {
	days := p.ReminderDays
	if days <= 0 {
		days = 3
	}
	switch {
	case today.Equal(dueDate):
		return DueToday
	case today.After(dueDate):
		return DueOverdue
	case today.DaysUntil(dueDate) <= days:
		return DueReminder
	default:
		return DueNone
	}
}

// NotificationDecision is what the dispatcher consumes. Reason is only
// set when Eligible is false.
type NotificationDecision struct {
	Eligible  bool
	DueType   DueType
	Recipient string
	Reason    string
}

// Eligibility decides whether the installment warrants a dispatch
// today. Eligible requires: the effective notification switch on, a
// non-none due type, and a reachable recipient contact.
//
// The installment's override, when present, wins over the contract
// flag; settled and agreement-suspended installments never notify.
func Eligibility(contract *Contract, inst *Installment, today Date, policy DuePolicy) NotificationDecision {
	enabled := contract.Notify.Enabled
	if inst.NotificationOverride != nil {
		enabled = *inst.NotificationOverride
	}
	if !enabled {
		return NotificationDecision{Reason: "notifications disabled"}
	}

	if inst.Status == StatusPagada || inst.Status == StatusEnAcuerdo {
		return NotificationDecision{Reason: "installment settled or under agreement"}
	}

	dueType := policy.Classify(inst.DueDate, today)
	if dueType == DueNone {
		return NotificationDecision{Reason: "no notification due today"}
	}

	recipient := contract.Tenant.Email
	if recipient == "" {
		recipient = contract.Tenant.WhatsApp
	}
	if recipient == "" {
		return NotificationDecision{DueType: dueType, Reason: "no recipient contact"}
	}

	return NotificationDecision{Eligible: true, DueType: dueType, Recipient: recipient}
}
