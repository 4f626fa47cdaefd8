package catalog

import (
	"fmt"

	"github.com/flowdhq/flowd/pkg/domain"
)

// Validator validates flow structures beyond what the codec enforces
type Validator struct{}

// NewValidator creates a new flow validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a flow structure
func (v *Validator) Validate(f *domain.Flow) error {
	if f == nil {
		return domain.NewValidationError("flow", "flow is nil")
	}

	if err := f.Validate(); err != nil {
		return err
	}

	if err := v.checkSlugs(f); err != nil {
		return err
	}

	return v.checkAcyclic(f)
}

// checkSlugs rejects two tasks sharing a slug. Slugs are the stable
// names task runs are keyed by, so a collision would make task runs
// ambiguous.
func (v *Validator) checkSlugs(f *domain.Flow) error {
	seen := make(map[string]string, len(f.Tasks))
	for id, t := range f.Tasks {
		if other, ok := seen[t.Slug]; ok {
			return domain.NewValidationError("flow.tasks",
				fmt.Sprintf("slug %q is used by tasks %s and %s", t.Slug, other, id))
		}
		seen[t.Slug] = id
	}
	return nil
}

// checkAcyclic runs Kahn's algorithm over the edge set. A flow whose
// dependencies cannot be topologically ordered can never run to
// completion.
func (v *Validator) checkAcyclic(f *domain.Flow) error {
	indegree := make(map[string]int, len(f.Tasks))
	for id := range f.Tasks {
		indegree[id] = 0
	}

	downstream := make(map[string][]string, len(f.Tasks))
	for _, e := range f.Edges {
		downstream[e.Upstream.ID] = append(downstream[e.Upstream.ID], e.Downstream.ID)
		indegree[e.Downstream.ID]++
	}

	queue := make([]string, 0, len(f.Tasks))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	ordered := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered++
		for _, next := range downstream[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if ordered != len(f.Tasks) {
		return domain.NewValidationError("flow.edges", "flow contains a dependency cycle")
	}
	return nil
}
