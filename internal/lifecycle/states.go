package lifecycle

import (
	"fmt"

	"github.com/mr1hm/go-panic-alerts/internal/models"
)

// Action is a requested lifecycle transition.
type Action string

const (
	ActionTake    Action = "take"
	ActionEnRoute Action = "en_route"
	ActionResolve Action = "resolve"
	ActionExpire  Action = "expire" // sweeper only, never exposed to callers
)

// TransitionError reports a lifecycle request that violates the state
// machine. The alert record is left untouched.
type TransitionError struct {
	From   models.AlertState
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: action %q not allowed from state %q", e.Action, e.From)
}

// nextState validates an action against the transition graph:
//
//	available -> taken -> en_route -> resolved
//	available|taken|en_route -> expired
//
// resolved and expired are terminal.
func nextState(from models.AlertState, action Action) (models.AlertState, error) {
	switch action {
	case ActionTake:
		if from == models.AlertStateAvailable {
			return models.AlertStateTaken, nil
		}
	case ActionEnRoute:
		if from == models.AlertStateTaken {
			return models.AlertStateEnRoute, nil
		}
	case ActionResolve:
		if from == models.AlertStateEnRoute {
			return models.AlertStateResolved, nil
		}
	case ActionExpire:
		if from.IsOpen() {
			return models.AlertStateExpired, nil
		}
	}
	return "", &TransitionError{From: from, Action: action}
}
