// Package lint describes the diagnostic rules the checker can emit and
// which of them a run has enabled. Selection is presentation-side only: the
// engine always computes every diagnostic, so cached results stay valid when
// the selection changes.
package lint

import (
	"fmt"
	"sort"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/infer"
)

// Severity ranks a diagnostic for presentation.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Rule is a diagnostic category the engine emits.
type Rule struct {
	ID          string
	Severity    Severity
	Description string
}

// Registry is the set of known rules, keyed by id.
type Registry struct {
	rules map[string]Rule
}

// DefaultRegistry returns the built-in rule set.
func DefaultRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	for _, rule := range []Rule{
		{infer.RuleUnresolvedReference, SeverityError, "a name is used but never defined"},
		{infer.RuleUnresolvedImport, SeverityError, "an imported module or member cannot be found"},
		{infer.RulePossiblyUnbound, SeverityWarning, "a name may be unbound on some paths"},
		{infer.RuleInvalidBase, SeverityError, "a class base is not a class"},
		{infer.RuleInconsistentMRO, SeverityError, "no consistent method resolution order exists"},
		{infer.RuleIncompatibleSlots, SeverityError, "base classes have conflicting __slots__ layouts"},
	} {
		r.rules[rule.ID] = rule
	}
	return r
}

// Lookup returns the rule for an id.
func (r *Registry) Lookup(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// Rules returns every registered rule, sorted by id.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Selection filters and re-ranks diagnostics for one run.
type Selection struct {
	registry *Registry
	disabled map[string]bool
	severity map[string]Severity
}

// NewSelection starts from the registry with every rule enabled at its
// default severity.
func NewSelection(registry *Registry) *Selection {
	return &Selection{
		registry: registry,
		disabled: make(map[string]bool),
		severity: make(map[string]Severity),
	}
}

// Disable turns a rule off. Unknown ids are an error so typos in config
// surface instead of silently matching nothing.
func (s *Selection) Disable(id string) error {
	if _, ok := s.registry.Lookup(id); !ok {
		return fmt.Errorf("unknown rule %q", id)
	}
	s.disabled[id] = true
	return nil
}

// Override changes a rule's severity for this run.
func (s *Selection) Override(id string, sev Severity) error {
	if _, ok := s.registry.Lookup(id); !ok {
		return fmt.Errorf("unknown rule %q", id)
	}
	s.severity[id] = sev
	return nil
}

// Enabled reports whether a rule's diagnostics should be shown.
func (s *Selection) Enabled(id string) bool {
	return !s.disabled[id]
}

// SeverityOf returns the effective severity for a rule.
func (s *Selection) SeverityOf(id string) Severity {
	if sev, ok := s.severity[id]; ok {
		return sev
	}
	if rule, ok := s.registry.Lookup(id); ok {
		return rule.Severity
	}
	return SeverityWarning
}

// Filter drops diagnostics from disabled rules and suppressed sites.
// Suppressed diagnostics stay in the engine's result so the cache sees a
// stable value; they only disappear here.
func (s *Selection) Filter(diags []diag.Diagnostic) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, len(diags))
	for _, d := range diags {
		if d.Suppressed || !s.Enabled(d.Rule) {
			continue
		}
		out = append(out, d)
	}
	return out
}
