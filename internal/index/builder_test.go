package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/taproot/internal/source"
)

func buildSource(t *testing.T, src string) *SemanticIndex {
	t.Helper()
	parsed, err := source.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return Build(parsed)
}

func moduleUse(t *testing.T, ix *SemanticIndex, name string) *Use {
	t.Helper()
	var found *Use
	for i := range ix.Uses() {
		u := &ix.Uses()[i]
		if u.Name == name {
			found = u
		}
	}
	require.NotNil(t, found, "no use of %q recorded", name)
	return found
}

// =============================================================================
// Scopes and symbols
// =============================================================================

func TestBuild_ModuleScopeSymbolOrder(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "b = 1\na = 2\nb = 3\n")

	sc := ix.Scope(ix.ModuleScope())
	require.NotNil(t, sc)
	assert.Equal(t, ScopeModule, sc.Kind)

	syms := sc.Symbols()
	require.Len(t, syms, 2)
	assert.Equal(t, "b", syms[0].Name, "declaration order, not alphabetical")
	assert.Equal(t, "a", syms[1].Name)
	assert.Len(t, syms[0].Bindings, 2)
	assert.Len(t, syms[1].Bindings, 1)
}

func TestBuild_FunctionScopeAndParameters(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "def f(a, b=1, *args, **kw):\n    c = a\n")

	var fn *Scope
	for i := range ix.Scopes() {
		if ix.Scopes()[i].Kind == ScopeFunction {
			fn = &ix.Scopes()[i]
		}
	}
	require.NotNil(t, fn)
	assert.Equal(t, ix.ModuleScope(), fn.Parent)

	for _, name := range []string{"a", "b", "args", "kw", "c"} {
		_, ok := fn.Symbol(name)
		assert.True(t, ok, "expected %s in function scope", name)
	}
	sym, _ := fn.Symbol("a")
	b := ix.Binding(sym.Bindings[0])
	assert.Equal(t, BindParameter, b.Kind)
}

func TestBuild_ClassScopeInvisibleToNestedFunctions(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
class C:
    attr = 1
    def m(self):
        return attr
`)
	// The load of attr inside m must not see the class-body binding.
	u := moduleUse(t, ix, "attr")
	assert.Empty(t, u.Bindings)
	assert.False(t, u.Builtin)
}

func TestBuild_ClassDefRecordsBases(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "class A: pass\nclass B(A, metaclass=type): pass\n")

	classes := ix.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, "A", classes[0].Name)
	assert.Empty(t, classes[0].Bases)
	assert.Equal(t, "B", classes[1].Name)
	assert.Len(t, classes[1].Bases, 1, "metaclass keyword is not a base")

	def, ok := ix.ClassByBinding(classes[1].Binding)
	require.True(t, ok)
	assert.Equal(t, "B", def.Name)
}

// =============================================================================
// Name resolution
// =============================================================================

func TestBuild_UseResolvesToBuiltin(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "n = len([1])\n")
	u := moduleUse(t, ix, "len")
	assert.Empty(t, u.Bindings)
	assert.True(t, u.Builtin)
}

func TestBuild_UnresolvedUseHasNoBindings(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "x = missing\n")
	u := moduleUse(t, ix, "missing")
	assert.Empty(t, u.Bindings)
	assert.False(t, u.Builtin)
}

func TestBuild_UseSeesAllPriorBindingsOldestFirst(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "x = 1\nx = 2\ny = x\n")
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Bindings, 2)
	b0 := ix.Binding(u.Bindings[0])
	b1 := ix.Binding(u.Bindings[1])
	assert.Less(t, b0.Span.Start, b1.Span.Start)
}

func TestBuild_WalrusBindsInEnclosingScope(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if (n := 10) > 5:\n    y = n\n")
	sc := ix.Scope(ix.ModuleScope())
	sym, ok := sc.Symbol("n")
	require.True(t, ok)
	assert.Equal(t, BindWalrus, ix.Binding(sym.Bindings[0]).Kind)
}

// =============================================================================
// Possibly-unbound tracking
// =============================================================================

func TestBuild_ConditionalBindingIsPossiblyUnbound(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if cond:\n    x = 1\ny = x\n")
	u := moduleUse(t, ix, "x")
	require.NotEmpty(t, u.Bindings)
	assert.True(t, u.PossiblyUnbound)
}

func TestBuild_UnconditionalBindingIsDefinitelyBound(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "x = 1\ny = x\n")
	u := moduleUse(t, ix, "x")
	assert.False(t, u.PossiblyUnbound)
}

func TestBuild_LoopBindingIsPossiblyUnboundAfterLoop(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "for i in rng:\n    pass\nlast = i\n")
	u := moduleUse(t, ix, "i")
	require.NotEmpty(t, u.Bindings)
	assert.True(t, u.PossiblyUnbound)
}

func TestBuild_UseInsideOwnBranchIsDefinitelyBound(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if cond:\n    x = 1\n    y = x\n")
	u := moduleUse(t, ix, "x")
	assert.False(t, u.PossiblyUnbound, "binding and use share the branch path")
}

// =============================================================================
// Predicates
// =============================================================================

func TestBuild_IfConditionRecordsPredicate(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if x is None:\n    y = x\n")
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 1)
	p := ix.Predicate(u.Predicates[0])
	require.NotNil(t, p)
	assert.True(t, p.IsPositive)
	assert.True(t, p.Node.Expr.IsValid())
	assert.Nil(t, p.Node.Pattern)
}

func TestBuild_ElseSeesNegatedPredicate(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if x is None:\n    pass\nelse:\n    y = x\n")
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 1)
	assert.False(t, ix.Predicate(u.Predicates[0]).IsPositive)
}

func TestBuild_RepeatedConditionsAreDistinctPredicates(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
if x is None:
    a = x
if x is None:
    b = x
`)
	var ids []PredicateID
	for _, u := range ix.Uses() {
		if u.Name == "x" && len(u.Predicates) == 1 {
			ids = append(ids, u.Predicates[0])
		}
	}
	require.GreaterOrEqual(t, len(ids), 2)
	assert.NotEqual(t, ids[0], ids[len(ids)-1],
		"identity is arena position, not test content")
}

func TestBuild_PredicatesDoNotLeakToSiblings(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "if cond:\n    pass\ny = x\n")
	u := moduleUse(t, ix, "x")
	assert.Empty(t, u.Predicates)
}

func TestBuild_AssertPredicatePersistsToSuiteEnd(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "assert x is not None\ny = x\n")
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 1)
	assert.True(t, ix.Predicate(u.Predicates[0]).IsPositive)
}

func TestBuild_BooleanOperatorGuardsRightOperand(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "y = x and x.field\n")
	uses := []Use{}
	for _, u := range ix.Uses() {
		if u.Name == "x" {
			uses = append(uses, u)
		}
	}
	require.Len(t, uses, 2)
	assert.Empty(t, uses[0].Predicates)
	require.Len(t, uses[1].Predicates, 1)
	assert.True(t, ix.Predicate(uses[1].Predicates[0]).IsPositive)
}

// =============================================================================
// Match statements
// =============================================================================

func TestBuild_MatchSingletonPattern(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
match x:
    case None:
        y = x
`)
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 1)
	p := ix.Predicate(u.Predicates[0])
	require.NotNil(t, p.Node.Pattern)
	assert.Equal(t, PatternSingleton, p.Node.Pattern.Kind)
	assert.True(t, p.IsPositive)
}

func TestBuild_MatchClassPattern(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
match x:
    case Point():
        y = x
`)
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 1)
	pat := ix.Predicate(u.Predicates[0]).Node.Pattern
	require.NotNil(t, pat)
	assert.Equal(t, PatternClass, pat.Kind)
	assert.True(t, pat.Class.IsValid())
}

func TestBuild_LaterCasesSeeRuledOutPatterns(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
match x:
    case None:
        a = 1
    case True:
        y = x
`)
	u := moduleUse(t, ix, "x")
	require.Len(t, u.Predicates, 2)
	first := ix.Predicate(u.Predicates[0])
	second := ix.Predicate(u.Predicates[1])
	assert.False(t, first.IsPositive, "earlier case already failed to match")
	assert.True(t, second.IsPositive)
}

func TestBuild_MatchCaptureBindsName(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, `
match x:
    case other:
        y = other
`)
	sc := ix.Scope(ix.ModuleScope())
	sym, ok := sc.Symbol("other")
	require.True(t, ok)
	assert.Equal(t, BindPatternCapture, ix.Binding(sym.Bindings[0]).Kind)
}

// =============================================================================
// Imports
// =============================================================================

func TestBuild_ImportStatementBindsFirstComponent(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "import os.path\n")
	sc := ix.Scope(ix.ModuleScope())
	sym, ok := sc.Symbol("os")
	require.True(t, ok)

	b := ix.Binding(sym.Bindings[0])
	assert.Equal(t, BindImport, b.Kind)
	imp, ok := ix.ImportOf(b.ID)
	require.True(t, ok)
	assert.Equal(t, "os.path", imp.Module)
	assert.Empty(t, imp.Name)
}

func TestBuild_FromImportRecordsMember(t *testing.T) {
	t.Parallel()
	ix := buildSource(t, "from pkg.mod import thing as alias\n")
	sc := ix.Scope(ix.ModuleScope())
	sym, ok := sc.Symbol("alias")
	require.True(t, ok)

	imp, ok := ix.ImportOf(sym.Bindings[0])
	require.True(t, ok)
	assert.Equal(t, "pkg.mod", imp.Module)
	assert.Equal(t, "thing", imp.Name)
}

// =============================================================================
// Error recovery
// =============================================================================

func TestBuild_SyntaxErrorsStillProduceBindings(t *testing.T) {
	t.Parallel()
	parsed, err := source.Parse(context.Background(), []byte("x = 1\ndef broken(:\ny = 2\n"))
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Errors)

	ix := Build(parsed)
	sc := ix.Scope(ix.ModuleScope())
	_, ok := sc.Symbol("x")
	assert.True(t, ok)
}

// =============================================================================
// Structural equality
// =============================================================================

func TestSemanticIndex_EqualAcrossRebuilds(t *testing.T) {
	t.Parallel()
	src := "x = 1\nif x:\n    y = x\n"
	a := buildSource(t, src)
	b := buildSource(t, src)
	assert.True(t, a.Equal(b), "two builds of the same source are interchangeable")
}

func TestSemanticIndex_EqualIgnoresCommentEdits(t *testing.T) {
	t.Parallel()
	// Same-width comment edit: every span survives and comments are not
	// indexed, so the index is unchanged even though the parse is not.
	a := buildSource(t, "x = 1  # aa\ny = x\n")
	b := buildSource(t, "x = 1  # bb\ny = x\n")
	assert.True(t, a.Equal(b))
}

func TestSemanticIndex_EqualSeesSemanticChanges(t *testing.T) {
	t.Parallel()
	a := buildSource(t, "x = 1\ny = x\n")

	assert.False(t, a.Equal(buildSource(t, "z = 1\ny = z\n")), "renamed binding")
	assert.False(t, a.Equal(buildSource(t, "x = 1\ny = 2\n")), "use became a literal")
	assert.False(t, a.Equal(nil))
	assert.False(t, a.Equal("not an index"))
}
