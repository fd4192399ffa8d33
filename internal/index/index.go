// Package index builds the per-file semantic index: a scope tree with
// ordered symbol tables, arenas of bindings, expressions, and predicates,
// and a map from every name use to its live bindings and active predicates.
// The index is produced by a single depth-first walk of the parsed module
// and is immutable once published for a file revision.
package index

import (
	"maps"
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/taproot/internal/source"
)

// ScopeKind classifies a lexical scope.
type ScopeKind uint8

const (
	ScopeModule ScopeKind = iota
	ScopeClass
	ScopeFunction
	ScopeLambda
	ScopeComprehension
)

var scopeKindNames = [...]string{
	ScopeModule:        "module",
	ScopeClass:         "class",
	ScopeFunction:      "function",
	ScopeLambda:        "lambda",
	ScopeComprehension: "comprehension",
}

func (k ScopeKind) String() string { return scopeKindNames[k] }

// Symbol is one name in a scope's symbol table with every binding recorded
// for it, in declaration order.
type Symbol struct {
	Name     string
	Bindings []BindingID
}

// Scope is a node in the lexical scope tree. Its symbol table preserves
// declaration order, which narrowing depends on.
type Scope struct {
	ID     ScopeID
	Kind   ScopeKind
	Parent ScopeID
	Span   source.Span

	names   []string
	symbols map[string]int // name -> index into ordered
	ordered []Symbol
}

// Symbol returns the symbol entry for name, if declared in this scope.
func (s *Scope) Symbol(name string) (*Symbol, bool) {
	i, ok := s.symbols[name]
	if !ok {
		return nil, false
	}
	return &s.ordered[i], true
}

// Symbols returns the scope's symbols in declaration order.
func (s *Scope) Symbols() []Symbol {
	return s.ordered
}

// BindingKind classifies the construct that introduced a binding.
type BindingKind uint8

const (
	BindAssignment BindingKind = iota
	BindAnnotated
	BindAugmented
	BindFunctionDef
	BindClassDef
	BindImport
	BindParameter
	BindForTarget
	BindWithItem
	BindExceptHandler
	BindComprehensionVar
	BindPatternCapture
	BindWalrus
	BindGlobal
)

var bindingKindNames = [...]string{
	BindAssignment:       "assignment",
	BindAnnotated:        "annotated-assignment",
	BindAugmented:        "augmented-assignment",
	BindFunctionDef:      "function-def",
	BindClassDef:         "class-def",
	BindImport:           "import",
	BindParameter:        "parameter",
	BindForTarget:        "for-target",
	BindWithItem:         "with-item",
	BindExceptHandler:    "except-handler",
	BindComprehensionVar: "comprehension-var",
	BindPatternCapture:   "pattern-capture",
	BindWalrus:           "walrus",
	BindGlobal:           "global",
}

func (k BindingKind) String() string { return bindingKindNames[k] }

// Binding associates a name with the statement that gave it a value.
type Binding struct {
	ID    BindingID
	Name  string
	Kind  BindingKind
	Scope ScopeID
	Span  source.Span // the bound name's span

	// Value and Annotation are the assigned/annotated expressions, when the
	// introducing construct has them.
	Value      ExprID
	Annotation ExprID

	// Predicates active when the binding was recorded. Branch membership is
	// implicit here: a binding made under a conditional carries that
	// branch's predicates.
	Predicates []PredicateID

	// Branches are tokens for the control branches the binding was recorded
	// under: loop and try/except bodies, which gate reachability without
	// carrying a predicate. A later use is definitely bound only when the
	// binding's branch path prefixes the use's.
	Branches []uint32

	// PossiblyUnbound marks bindings recorded on a conditional path:
	// reachable on some but not all paths to a later use.
	PossiblyUnbound bool
}

// Expression is an arena-indexed reference to an AST subexpression. The
// node pointer stays valid as long as the index's parsed module does; the
// index never outlives its file revision.
type Expression struct {
	ID    ExprID
	Scope ScopeID
	Span  source.Span
	Node  *sitter.Node
}

// PatternKind is the closed set of match-pattern shapes the predicate model
// understands. Unsupported degrades to "no narrowing", never an error.
type PatternKind uint8

const (
	PatternSingleton PatternKind = iota // None / True / False
	PatternValue                        // literal or dotted-name value match
	PatternOr                           // self-similar list of sub-kinds
	PatternClass                        // class pattern, subject + optional guard
	PatternUnsupported
)

var patternKindNames = [...]string{
	PatternSingleton:   "singleton",
	PatternValue:       "value",
	PatternOr:          "or",
	PatternClass:       "class",
	PatternUnsupported: "unsupported",
}

func (k PatternKind) String() string { return patternKindNames[k] }

// Pattern is a structural match pattern. Or patterns keep their sub-kinds as
// a nested list, not a pre-flattened union, so narrowing can short-circuit
// on first match the way runtime match does.
type Pattern struct {
	Kind    PatternKind
	Subject ExprID // the match subject expression
	Class   ExprID // PatternClass: the class expression
	Value   ExprID // PatternValue / PatternSingleton: the matched value
	Subs    []*Pattern
	Guard   ExprID // optional case guard
}

// PredicateNode is the test a predicate records: either a Boolean test
// expression or a match pattern. Exactly one side is set.
type PredicateNode struct {
	Expr    ExprID
	Pattern *Pattern
}

// Predicate is a recorded Boolean test or pattern match, tagged with branch
// polarity. Identity is insertion position in the arena, never content.
type Predicate struct {
	ID         PredicateID
	Scope      ScopeID
	Node       PredicateNode
	IsPositive bool
}

// Use records one load of a name: which bindings are live for it and which
// predicates are active on the path from binding to use.
type Use struct {
	ID    UseID
	Name  string
	Expr  ExprID
	Scope ScopeID

	// Bindings live at the use, oldest first. Empty when the name resolved
	// to nothing in the scope chain (including builtins).
	Bindings []BindingID

	// Predicates active at the use site, in insertion order. Narrowing
	// applies these positionally; it is not dataflow-complete.
	Predicates []PredicateID

	// PossiblyUnbound is set when the name is bound on some but not all
	// paths reaching the use.
	PossiblyUnbound bool

	// Builtin is set when the name resolved to the builtin namespace.
	Builtin bool
}

// ClassDef records a class declaration for the inference engine: its binding,
// body scope, and explicit base expressions in declaration order.
type ClassDef struct {
	Binding BindingID
	Name    string
	Scope   ScopeID // the class body scope
	Bases   []ExprID
	Span    source.Span
}

// Import records what an import binding brings into scope.
type Import struct {
	Binding BindingID
	Module  string // the imported module path
	Name    string // the member name for from-imports, "" for module imports
}

// SemanticIndex is the product of one index build for one file revision.
// It is replaced wholesale, never patched.
type SemanticIndex struct {
	scopes     []Scope
	bindings   []Binding
	exprs      []Expression
	predicates []Predicate
	uses       []Use

	exprBySpan map[source.Span]ExprID
	useByExpr  map[ExprID]UseID

	classes  []ClassDef
	imports  map[BindingID]Import
	classByB map[BindingID]int
}

// Equal structurally compares two indexes: scopes, symbol tables, bindings,
// predicates, uses, classes, and imports by value, expressions by span and
// scope. Node pointers are excluded; reparses allocate fresh trees, and two
// builds over tree-identical parses must compare equal so invalidation stops
// here when nothing semantic moved.
func (ix *SemanticIndex) Equal(other any) bool {
	o, ok := other.(*SemanticIndex)
	if !ok {
		return false
	}
	if ix == nil || o == nil {
		return ix == o
	}
	return slices.EqualFunc(ix.scopes, o.scopes, scopesEqual) &&
		slices.EqualFunc(ix.bindings, o.bindings, bindingsEqual) &&
		slices.EqualFunc(ix.exprs, o.exprs, exprsEqual) &&
		slices.EqualFunc(ix.predicates, o.predicates, predicatesEqual) &&
		slices.EqualFunc(ix.uses, o.uses, usesEqual) &&
		slices.EqualFunc(ix.classes, o.classes, classesEqual) &&
		maps.Equal(ix.imports, o.imports)
}

func scopesEqual(a, b Scope) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.Parent != b.Parent || a.Span != b.Span {
		return false
	}
	return slices.EqualFunc(a.ordered, b.ordered, func(x, y Symbol) bool {
		return x.Name == y.Name && slices.Equal(x.Bindings, y.Bindings)
	})
}

func bindingsEqual(a, b Binding) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Kind == b.Kind &&
		a.Scope == b.Scope && a.Span == b.Span &&
		a.Value == b.Value && a.Annotation == b.Annotation &&
		slices.Equal(a.Predicates, b.Predicates) &&
		slices.Equal(a.Branches, b.Branches) &&
		a.PossiblyUnbound == b.PossiblyUnbound
}

func exprsEqual(a, b Expression) bool {
	return a.ID == b.ID && a.Scope == b.Scope && a.Span == b.Span
}

func predicatesEqual(a, b Predicate) bool {
	return a.ID == b.ID && a.Scope == b.Scope && a.IsPositive == b.IsPositive &&
		a.Node.Expr == b.Node.Expr && patternsEqual(a.Node.Pattern, b.Node.Pattern)
}

func patternsEqual(a, b *Pattern) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.Subject == b.Subject && a.Class == b.Class &&
		a.Value == b.Value && a.Guard == b.Guard &&
		slices.EqualFunc(a.Subs, b.Subs, patternsEqual)
}

func usesEqual(a, b Use) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Expr == b.Expr &&
		a.Scope == b.Scope &&
		slices.Equal(a.Bindings, b.Bindings) &&
		slices.Equal(a.Predicates, b.Predicates) &&
		a.PossiblyUnbound == b.PossiblyUnbound &&
		a.Builtin == b.Builtin
}

func classesEqual(a, b ClassDef) bool {
	return a.Binding == b.Binding && a.Name == b.Name && a.Scope == b.Scope &&
		a.Span == b.Span && slices.Equal(a.Bases, b.Bases)
}

// ModuleScope returns the root scope's ID.
func (ix *SemanticIndex) ModuleScope() ScopeID {
	return ScopeID(1)
}

// Scope resolves a scope handle. Invalid handles return nil.
func (ix *SemanticIndex) Scope(id ScopeID) *Scope {
	if !id.IsValid() || int(id) > len(ix.scopes) {
		return nil
	}
	return &ix.scopes[id-1]
}

// Scopes returns every scope in creation order.
func (ix *SemanticIndex) Scopes() []Scope {
	return ix.scopes
}

// Binding resolves a binding handle.
func (ix *SemanticIndex) Binding(id BindingID) *Binding {
	if !id.IsValid() || int(id) > len(ix.bindings) {
		return nil
	}
	return &ix.bindings[id-1]
}

// Bindings returns every binding in creation order.
func (ix *SemanticIndex) Bindings() []Binding {
	return ix.bindings
}

// Expr resolves an expression handle.
func (ix *SemanticIndex) Expr(id ExprID) *Expression {
	if !id.IsValid() || int(id) > len(ix.exprs) {
		return nil
	}
	return &ix.exprs[id-1]
}

// Exprs returns the expression arena in insertion order.
func (ix *SemanticIndex) Exprs() []Expression {
	return ix.exprs
}

// ExprAt returns the expression registered for a byte span, if any.
func (ix *SemanticIndex) ExprAt(span source.Span) (ExprID, bool) {
	id, ok := ix.exprBySpan[span]
	return id, ok
}

// Predicate resolves a predicate handle.
func (ix *SemanticIndex) Predicate(id PredicateID) *Predicate {
	if !id.IsValid() || int(id) > len(ix.predicates) {
		return nil
	}
	return &ix.predicates[id-1]
}

// Predicates returns the full predicate arena in insertion order.
func (ix *SemanticIndex) Predicates() []Predicate {
	return ix.predicates
}

// Use resolves a use handle.
func (ix *SemanticIndex) Use(id UseID) *Use {
	if !id.IsValid() || int(id) > len(ix.uses) {
		return nil
	}
	return &ix.uses[id-1]
}

// Uses returns every recorded use in visit order.
func (ix *SemanticIndex) Uses() []Use {
	return ix.uses
}

// UseOf returns the use recorded for an expression, if the expression is a
// name load.
func (ix *SemanticIndex) UseOf(expr ExprID) (*Use, bool) {
	id, ok := ix.useByExpr[expr]
	if !ok {
		return nil, false
	}
	return ix.Use(id), true
}

// Classes returns every class definition in declaration order.
func (ix *SemanticIndex) Classes() []ClassDef {
	return ix.classes
}

// ClassByBinding returns the class definition introduced by a binding.
func (ix *SemanticIndex) ClassByBinding(id BindingID) (*ClassDef, bool) {
	i, ok := ix.classByB[id]
	if !ok {
		return nil, false
	}
	return &ix.classes[i], true
}

// ImportOf returns the import record for a binding, if the binding came from
// an import statement.
func (ix *SemanticIndex) ImportOf(id BindingID) (Import, bool) {
	imp, ok := ix.imports[id]
	return imp, ok
}

// arena append helpers

func (ix *SemanticIndex) newScope(kind ScopeKind, parent ScopeID, span source.Span) ScopeID {
	id := ScopeID(len(ix.scopes) + 1)
	ix.scopes = append(ix.scopes, Scope{
		ID:      id,
		Kind:    kind,
		Parent:  parent,
		Span:    span,
		symbols: make(map[string]int),
	})
	return id
}

func (ix *SemanticIndex) newBinding(b Binding) BindingID {
	id := BindingID(len(ix.bindings) + 1)
	b.ID = id
	ix.bindings = append(ix.bindings, b)

	sc := ix.Scope(b.Scope)
	i, ok := sc.symbols[b.Name]
	if !ok {
		i = len(sc.ordered)
		sc.symbols[b.Name] = i
		sc.names = append(sc.names, b.Name)
		sc.ordered = append(sc.ordered, Symbol{Name: b.Name})
	}
	sc.ordered[i].Bindings = append(sc.ordered[i].Bindings, id)
	return id
}

func (ix *SemanticIndex) newExpr(scope ScopeID, node *sitter.Node) ExprID {
	span := source.NodeSpan(node)
	if id, ok := ix.exprBySpan[span]; ok {
		return id
	}
	id := ExprID(len(ix.exprs) + 1)
	ix.exprs = append(ix.exprs, Expression{ID: id, Scope: scope, Span: span, Node: node})
	ix.exprBySpan[span] = id
	return id
}

func (ix *SemanticIndex) newPredicate(scope ScopeID, node PredicateNode, positive bool) PredicateID {
	id := PredicateID(len(ix.predicates) + 1)
	ix.predicates = append(ix.predicates, Predicate{ID: id, Scope: scope, Node: node, IsPositive: positive})
	return id
}

func (ix *SemanticIndex) newUse(u Use) UseID {
	id := UseID(len(ix.uses) + 1)
	u.ID = id
	ix.uses = append(ix.uses, u)
	ix.useByExpr[u.Expr] = id
	return id
}
