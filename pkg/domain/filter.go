package domain

// RunFilter selects runs by their current state and metadata. Within a
// field the listed values match any-of; Tags is the exception and
// requires the run to carry every listed tag. A zero filter matches
// everything.
type RunFilter struct {
	FlowIDs    []string
	FlowRunIDs []string
	StateTypes []StateType
	StateNames []string
	Tags       []string
}

// Matches reports whether the run satisfies every populated criterion.
func (f RunFilter) Matches(r *Run) bool {
	if len(f.FlowIDs) > 0 && !containsString(f.FlowIDs, r.FlowID) {
		return false
	}
	if len(f.FlowRunIDs) > 0 && !containsString(f.FlowRunIDs, r.FlowRunID) {
		return false
	}
	if len(f.StateTypes) > 0 {
		found := false
		for _, t := range f.StateTypes {
			if r.State.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.StateNames) > 0 && !containsString(f.StateNames, r.State.Name) {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(r.Tags, tag) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
