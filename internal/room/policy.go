package room

import "fmt"

// Action is something an actor wants to do with a room.
type Action string

const (
	// ActionRead covers fetching the room, its messages and joining it live.
	ActionRead Action = "read"
	// ActionWrite covers posting into the room.
	ActionWrite Action = "write"
	// ActionManage covers renaming, changing visibility, editing the
	// allow-list and, when enforced, deleting.
	ActionManage Action = "manage"
)

// Decide returns nil when actorID may perform action on r. An empty
// actorID is an anonymous caller. Failures are ErrAuthRequired or
// ErrForbidden.
func Decide(r *Room, actorID string, action Action) error {
	switch action {
	case ActionManage:
		if actorID == "" {
			return ErrAuthRequired
		}
		if actorID == r.OwnerID {
			return nil
		}
		return ErrForbidden

	case ActionRead, ActionWrite:
		if r.Visibility == Public {
			if action == ActionRead || actorID != "" {
				return nil
			}
			return ErrAuthRequired
		}
		if actorID == "" {
			return ErrAuthRequired
		}
		if r.Allows(actorID) {
			return nil
		}
		return ErrForbidden

	default:
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
}
