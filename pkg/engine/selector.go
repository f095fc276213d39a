package engine

import "fmt"

// Select filters defs into a TaskSet.
//
// A non-empty include list narrows the candidates to the named tasks;
// otherwise every task with auto-run enabled is a candidate. The exclude
// list always wins. Ids in either list that match no task are ignored.
// With opts.Bootstrap, bootstrap tasks bypass both lists and go to the
// bootstrap phase in definition order; without it they are ordinary tasks.
func Select(defs []TaskDefinition, opts RunOptions) (TaskSet, error) {
	if err := validateDefinitions(defs); err != nil {
		return TaskSet{}, err
	}

	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	var set TaskSet
	for _, def := range defs {
		if opts.Bootstrap && def.Bootstrap {
			set.Bootstrap = append(set.Bootstrap, def)
			continue
		}
		if exclude[def.ID] {
			continue
		}
		if len(include) > 0 {
			if !include[def.ID] {
				continue
			}
		} else if !def.AutoRuns() {
			continue
		}
		set.Parallel = append(set.Parallel, def)
	}
	return set, nil
}

// ApplyBootstrapOrder marks the tasks named in ids as bootstrap tasks and
// moves them to the front, in the order listed. Every id must name a task.
func ApplyBootstrapOrder(defs []TaskDefinition, ids []string) ([]TaskDefinition, error) {
	if len(ids) == 0 {
		return defs, nil
	}

	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.ID] = i
	}

	ordered := make([]TaskDefinition, 0, len(defs))
	placed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if placed[id] {
			continue
		}
		i, ok := index[id]
		if !ok {
			return nil, NewConfigError(fmt.Sprintf("bootstrap task %q does not exist", id), nil).
				WithCode(ErrCodeUnknownTaskReference).
				WithTask(id)
		}
		def := defs[i]
		def.Bootstrap = true
		ordered = append(ordered, def)
		placed[id] = true
	}
	for _, def := range defs {
		if !placed[def.ID] {
			ordered = append(ordered, def)
		}
	}
	return ordered, nil
}

func validateDefinitions(defs []TaskDefinition) error {
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if def.ID == "" {
			return NewConfigError("task id is required", nil)
		}
		if seen[def.ID] {
			return NewConfigError(fmt.Sprintf("duplicate task id %q", def.ID), nil).WithTask(def.ID)
		}
		seen[def.ID] = true
		if def.Operation == nil {
			return NewConfigError("task has no operation", nil).WithTask(def.ID)
		}
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
