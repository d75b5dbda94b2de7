package domain

// Role of the person acting on a workflow.
type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
)

// Actor is the identity a workflow operation is performed as. It is always
// passed explicitly; nothing in the engine reads ambient session state.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanActOn reports whether the actor may mutate work on t.
// Unassigned tasks are open to any worker; managers may act on anything.
func (a Actor) CanActOn(t *Task) bool {
	if a.Role == RoleManager {
		return true
	}
	return t.AssignedTo == "" || t.AssignedTo == a.ID
}
