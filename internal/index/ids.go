package index

// Arena handles. Scopes, bindings, expressions, and predicates reference
// each other by small per-file integers instead of pointers, so the index is
// trivially shareable across snapshots: copy the handle, not the graph.
// IDs start at 1; zero is the absent reference.

// ScopeID identifies a scope in the index arena.
type ScopeID uint32

// NoScopeID marks the absence of a scope reference.
const NoScopeID ScopeID = 0

// IsValid reports whether the ID refers to an allocated scope.
func (id ScopeID) IsValid() bool { return id != NoScopeID }

// BindingID identifies a binding in the index arena.
type BindingID uint32

// NoBindingID marks the absence of a binding reference.
const NoBindingID BindingID = 0

// IsValid reports whether the ID refers to an allocated binding.
func (id BindingID) IsValid() bool { return id != NoBindingID }

// ExprID identifies an expression in the index arena. One syntactic
// expression has exactly one ExprID, shared by the predicate model and the
// inference engine.
type ExprID uint32

// NoExprID marks the absence of an expression reference.
const NoExprID ExprID = 0

// IsValid reports whether the ID refers to an allocated expression.
func (id ExprID) IsValid() bool { return id != NoExprID }

// PredicateID identifies a predicate in the per-scope insertion-ordered
// arena. Predicates are not deduplicated: identity is arena position, not
// content, because the same syntactic test can mean different things at
// different points in a scope.
type PredicateID uint32

// NoPredicateID marks the absence of a predicate reference.
const NoPredicateID PredicateID = 0

// IsValid reports whether the ID refers to an allocated predicate.
func (id PredicateID) IsValid() bool { return id != NoPredicateID }

// UseID identifies a recorded name use.
type UseID uint32

// NoUseID marks the absence of a use reference.
const NoUseID UseID = 0

// IsValid reports whether the ID refers to a recorded use.
func (id UseID) IsValid() bool { return id != NoUseID }
