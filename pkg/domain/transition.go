package domain

// Verdict is a rule's judgement on a proposed transition.
type Verdict int

const (
	// VerdictAbstain defers the decision to the next rule in the policy.
	VerdictAbstain Verdict = iota
	// VerdictAllow accepts the transition and stops evaluation.
	VerdictAllow
	// VerdictReject refuses the transition and stops evaluation.
	VerdictReject
)

// Rule judges a single proposed transition. Current is nil for the
// run's initial state.
type Rule interface {
	Evaluate(current *StateType, proposed StateType, force bool) Verdict
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(current *StateType, proposed StateType, force bool) Verdict

// Evaluate implements Rule.
func (f RuleFunc) Evaluate(current *StateType, proposed StateType, force bool) Verdict {
	return f(current, proposed, force)
}

// Policy is an ordered rule list consulted on every state change. Rules
// run in order; the first non-abstaining verdict wins. A policy where
// every rule abstains allows the transition.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from the given rules, evaluated in order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// Evaluate runs the policy against a proposed transition.
func (p *Policy) Evaluate(current *StateType, proposed StateType, force bool) Verdict {
	for _, r := range p.rules {
		if v := r.Evaluate(current, proposed, force); v != VerdictAbstain {
			return v
		}
	}
	return VerdictAllow
}

// Allows reports whether the policy accepts the transition.
func (p *Policy) Allows(current *StateType, proposed StateType, force bool) bool {
	return p.Evaluate(current, proposed, force) == VerdictAllow
}

// ForceOverride allows any forced transition regardless of later rules.
func ForceOverride() Rule {
	return RuleFunc(func(current *StateType, proposed StateType, force bool) Verdict {
		if force {
			return VerdictAllow
		}
		return VerdictAbstain
	})
}

// TerminalLock rejects transitions out of terminal states.
func TerminalLock() Rule {
	return RuleFunc(func(current *StateType, proposed StateType, force bool) Verdict {
		if current != nil && current.Terminal() {
			return VerdictReject
		}
		return VerdictAbstain
	})
}

// AllowRemaining allows everything that reaches it. Placed last it
// makes the policy's default explicit.
func AllowRemaining() Rule {
	return RuleFunc(func(current *StateType, proposed StateType, force bool) Verdict {
		return VerdictAllow
	})
}

// DefaultPolicy returns the standard transition policy: forced
// transitions always pass, terminal states otherwise lock the run, and
// everything else is allowed.
func DefaultPolicy() *Policy {
	return NewPolicy(ForceOverride(), TerminalLock(), AllowRemaining())
}
