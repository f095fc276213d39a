package link

import "path/filepath"

// State describes what currently occupies a destination path.
type State int

const (
	// StateAbsent means nothing exists at the destination.
	StateAbsent State = iota
	// StateLinked means the destination is a link to the expected source.
	StateLinked
	// StateOtherLink means the destination is a link to something else.
	StateOtherLink
	// StateFile means the destination is a regular file or other non-directory.
	StateFile
	// StateDirectory means the destination is a directory.
	StateDirectory
	// StateBlocked means a parent of the destination exists and is not a directory.
	StateBlocked
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateLinked:
		return "linked"
	case StateOtherLink:
		return "other-link"
	case StateFile:
		return "file"
	case StateDirectory:
		return "directory"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Entry is one source file and the observed state of its destination.
type Entry struct {
	// Rel is the path relative to both roots.
	Rel    string
	Source string
	Dest   string
	State  State
	// Target is the current link target when State is StateOtherLink.
	Target string
}

// ActionKind is what Apply does for one entry.
type ActionKind int

const (
	// ActionNone leaves the destination alone.
	ActionNone ActionKind = iota
	// ActionCreate creates missing parents and the link.
	ActionCreate
	// ActionBackup moves the existing destination into the backup
	// directory, then creates the link.
	ActionBackup
)

// Action is a single planned change.
type Action struct {
	Kind   ActionKind
	Source string
	Dest   string
	Backup string
}

// Plan is the full set of changes for one synchronization.
type Plan struct {
	Actions   []Action
	Conflicts []string
}

// Pending reports whether applying the plan would change anything.
func (p Plan) Pending() bool {
	for _, a := range p.Actions {
		if a.Kind != ActionNone {
			return true
		}
	}
	return false
}

// Decide chooses the action for a single entry. A non-empty backupDir turns
// replaceable conflicts into backups; a blocked parent is always a conflict.
func Decide(e Entry, backupDir string) (Action, bool) {
	action := Action{Source: e.Source, Dest: e.Dest}
	switch e.State {
	case StateAbsent:
		action.Kind = ActionCreate
	case StateLinked:
		action.Kind = ActionNone
	case StateOtherLink, StateFile, StateDirectory:
		if backupDir == "" {
			return action, true
		}
		action.Kind = ActionBackup
		action.Backup = filepath.Join(backupDir, e.Rel)
	default:
		return action, true
	}
	return action, false
}

// BuildPlan decides an action for every entry and collects conflicts.
func BuildPlan(entries []Entry, backupDir string) Plan {
	var plan Plan
	for _, e := range entries {
		action, conflict := Decide(e, backupDir)
		if conflict {
			plan.Conflicts = append(plan.Conflicts, e.Dest)
			continue
		}
		plan.Actions = append(plan.Actions, action)
	}
	return plan
}
