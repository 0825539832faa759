package rules

// Transition enumerates the lifecycle operations subject to the state
// machine. Every legal (status, transition) pair is listed in one table so
// the machine is enumerable and testable away from persistence.
type Transition string

const (
	TransitionUpdate   Transition = "update"
	TransitionActivate Transition = "activate"
	TransitionArchive  Transition = "archive"
	TransitionRestore  Transition = "restore"
	TransitionRollback Transition = "rollback"
	TransitionDelete   Transition = "delete"
)

var allowedTransitions = map[RuleStatus]map[Transition]bool{
	StatusDraft: {
		TransitionUpdate:   true,
		TransitionActivate: true,
		TransitionArchive:  true,
		TransitionRollback: true,
		TransitionDelete:   true,
	},
	StatusActive: {
		TransitionArchive: true,
	},
	StatusArchived: {
		TransitionRestore:  true,
		TransitionRollback: true,
		TransitionDelete:   true,
	},
}

// CanTransition consults the transition table.
func CanTransition(from RuleStatus, t Transition) bool {
	return allowedTransitions[from][t]
}

// ensureTransition returns the typed error the API surfaces for an illegal
// move.
func ensureTransition(from RuleStatus, t Transition) error {
	if !CanTransition(from, t) {
		return &InvalidTransitionError{Current: from, Transition: t}
	}
	return nil
}

// transitionTarget maps a lifecycle operation onto the status it produces.
// Update keeps the current status.
func transitionTarget(current RuleStatus, t Transition) RuleStatus {
	switch t {
	case TransitionActivate:
		return StatusActive
	case TransitionArchive:
		return StatusArchived
	case TransitionRestore, TransitionRollback:
		return StatusDraft
	default:
		return current
	}
}
