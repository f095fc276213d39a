package git

import "strings"

// UpdateAction is what to do with one local branch after a fetch.
type UpdateAction int

const (
	// UpdateNone means the branch already matches its upstream.
	UpdateNone UpdateAction = iota
	// UpdateCreate creates the local branch at the upstream tip.
	UpdateCreate
	// UpdateFastForward moves the branch forward to the upstream tip.
	UpdateFastForward
	// UpdateAhead means the branch has local commits the upstream lacks.
	UpdateAhead
	// UpdateDiverged means neither side contains the other.
	UpdateDiverged
)

// String returns the string representation of the action.
func (a UpdateAction) String() string {
	switch a {
	case UpdateNone:
		return "up-to-date"
	case UpdateCreate:
		return "create"
	case UpdateFastForward:
		return "fast-forward"
	case UpdateAhead:
		return "ahead"
	case UpdateDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// RefPair is the local and upstream commit of a branch with their ancestry.
type RefPair struct {
	Local  string
	Remote string
	// LocalInRemote is true when Local is an ancestor of Remote.
	LocalInRemote bool
	// RemoteInLocal is true when Remote is an ancestor of Local.
	RemoteInLocal bool
}

// DecideUpdate chooses the update for a branch. Only UpdateCreate and
// UpdateFastForward move refs.
func DecideUpdate(p RefPair) UpdateAction {
	switch {
	case p.Local == "":
		return UpdateCreate
	case p.Local == p.Remote:
		return UpdateNone
	case p.LocalInRemote:
		return UpdateFastForward
	case p.RemoteInLocal:
		return UpdateAhead
	default:
		return UpdateDiverged
	}
}

// Branch is a local branch with its configured upstream.
type Branch struct {
	Name string
	// Upstream is the full remote-tracking ref, empty when none is configured.
	Upstream string
	// Gone is true when the upstream ref no longer exists.
	Gone bool
}

// branchFormat is the for-each-ref format parsed by parseBranches.
const branchFormat = "%(refname:short)%09%(upstream)%09%(upstream:track)"

func parseBranches(out string) []Branch {
	var branches []Branch
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		b := Branch{Name: fields[0]}
		if len(fields) > 1 {
			b.Upstream = fields[1]
		}
		if len(fields) > 2 {
			b.Gone = strings.Contains(fields[2], "gone")
		}
		branches = append(branches, b)
	}
	return branches
}

// SelectPrunable returns the branches whose upstream on remote is gone. The
// current branch and branches without an upstream are never selected.
func SelectPrunable(branches []Branch, current, remote string) []string {
	prefix := "refs/remotes/" + remote + "/"
	var prunable []string
	for _, b := range branches {
		if b.Name == current || b.Upstream == "" || !b.Gone {
			continue
		}
		if !strings.HasPrefix(b.Upstream, prefix) {
			continue
		}
		prunable = append(prunable, b.Name)
	}
	return prunable
}
