package domain

// Lifecycle is the persistence state of a User.
type Lifecycle string

const (
	LifecycleUnsaved     Lifecycle = "unsaved"
	LifecycleActive      Lifecycle = "active"
	LifecycleSoftDeleted Lifecycle = "soft_deleted"
	LifecyclePurged      Lifecycle = "purged"
)

var transitions = map[Lifecycle]map[Lifecycle]struct{}{
	LifecycleUnsaved: {
		LifecycleActive: {},
	},
	LifecycleActive: {
		LifecycleSoftDeleted: {},
		LifecyclePurged:      {},
	},
	LifecycleSoftDeleted: {
		LifecycleActive: {},
		LifecyclePurged: {},
	},
}

// CanTransition reports whether a user may move from one state to another.
// Purged is terminal.
func CanTransition(from, to Lifecycle) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
