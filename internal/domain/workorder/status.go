package workorder

// Status represents the lifecycle status of a work order
type Status string

const (
	StatusOpen      Status = "open"      // Posted by a lab, waiting for a technician
	StatusClaimed   Status = "claimed"   // Assigned to the claiming technician
	StatusCompleted Status = "completed" // Work finished by the assignee
	StatusCanceled  Status = "canceled"  // Withdrawn by the lab manager
)

// transitions lists every allowed edge of the state machine.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusClaimed, StatusCanceled},
	StatusClaimed:   {StatusOpen, StatusCompleted, StatusCanceled},
	StatusCompleted: {},
	StatusCanceled:  {},
}

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no transition leaves this status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// RequiresAssignee reports whether a work order in this status must have an
// assigned technician.
func (s Status) RequiresAssignee() bool {
	return s == StatusClaimed || s == StatusCompleted
}

// Urgency ranks how soon a lab needs the work done
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IsValid checks if the urgency is a valid Urgency
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}
