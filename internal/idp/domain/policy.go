package domain

import "slices"

// Flow names the protocol an authentication runs under.
type Flow string

const (
	FlowOAuth Flow = "oauth"
	FlowCIBA  Flow = "ciba"
)

// PolicyConditions select the requests a policy applies to. An empty list
// matches anything.
type PolicyConditions struct {
	Flows     []Flow   `yaml:"flows"`
	ClientIDs []string `yaml:"client_ids"`
	ACRValues []string `yaml:"acr_values"`
	Scopes    []string `yaml:"scopes"`
}

func anyOf(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, v := range have {
		if slices.Contains(want, v) {
			return true
		}
	}
	return false
}

// Matches reports whether every non-empty condition holds.
func (c PolicyConditions) Matches(flow Flow, clientID string, acrValues, scopes []string) bool {
	if len(c.Flows) > 0 && !slices.Contains(c.Flows, flow) {
		return false
	}
	if len(c.ClientIDs) > 0 && !slices.Contains(c.ClientIDs, clientID) {
		return false
	}
	return anyOf(c.ACRValues, acrValues) && anyOf(c.Scopes, scopes)
}

// StepDefinition configures one authentication method of a policy.
type StepDefinition struct {
	Method string `yaml:"method"`
	Order  int    `yaml:"order"`
	// Next is the method to offer after this one succeeds.
	Next string `yaml:"next"`
	// MaxAttempts bounds failed verifications for challenge based methods.
	MaxAttempts int `yaml:"max_attempts"`
}

// Counter kinds used by ResultCondition.
const (
	ConditionSuccessCount = "success_count"
	ConditionFailureCount = "failure_count"
)

// ResultCondition is a threshold on one method's interaction counters.
type ResultCondition struct {
	Method string `yaml:"method"`
	Type   string `yaml:"type"`
	Value  int    `yaml:"value"`
}

// ResultConditions hold when any of the AnyOf groups holds; a group holds
// when all its conditions do.
type ResultConditions struct {
	AnyOf [][]ResultCondition `yaml:"any_of"`
}

func (c ResultConditions) IsEmpty() bool { return len(c.AnyOf) == 0 }

// AuthenticationPolicy decides which methods a transaction offers and how
// interaction results resolve it.
type AuthenticationPolicy struct {
	ID                string           `yaml:"id"`
	Priority          int              `yaml:"priority"`
	Conditions        PolicyConditions `yaml:"conditions"`
	AvailableMethods  []string         `yaml:"available_methods"`
	ACRValue          string           `yaml:"acr"`
	StepDefinitions   []StepDefinition `yaml:"step_definitions"`
	SuccessConditions ResultConditions `yaml:"success_conditions"`
	FailureConditions ResultConditions `yaml:"failure_conditions"`
	LockConditions    ResultConditions `yaml:"lock_conditions"`
}

// Step returns the step definition for method.
func (p AuthenticationPolicy) Step(method string) (StepDefinition, bool) {
	i := slices.IndexFunc(p.StepDefinitions, func(s StepDefinition) bool { return s.Method == method })
	if i < 0 {
		return StepDefinition{}, false
	}
	return p.StepDefinitions[i], true
}

// Allows reports whether method is offered by the policy. A policy with no
// available methods offers all of them.
func (p AuthenticationPolicy) Allows(method string) bool {
	return len(p.AvailableMethods) == 0 || slices.Contains(p.AvailableMethods, method)
}

// SelectPolicy returns the first policy, by ascending priority then
// declaration order, whose conditions match.
func SelectPolicy(policies []AuthenticationPolicy, flow Flow, clientID string, acrValues, scopes []string) (AuthenticationPolicy, bool) {
	ordered := slices.Clone(policies)
	slices.SortStableFunc(ordered, func(a, b AuthenticationPolicy) int { return a.Priority - b.Priority })
	for _, p := range ordered {
		if p.Conditions.Matches(flow, clientID, acrValues, scopes) {
			return p, true
		}
	}
	return AuthenticationPolicy{}, false
}
