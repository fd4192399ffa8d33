package infer

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/index"
	"github.com/jward/taproot/internal/source"
)

func inferSource(t *testing.T, src string, resolver Resolver) (*index.SemanticIndex, *Result) {
	t.Helper()
	parsed, err := source.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	ix := index.Build(parsed)
	return ix, File(parsed, ix, resolver, nil)
}

// bindingTypeOf returns the type of the last module-scope binding of name.
func bindingTypeOf(t *testing.T, ix *index.SemanticIndex, res *Result, name string) Type {
	t.Helper()
	sc := ix.Scope(ix.ModuleScope())
	sym, ok := sc.Symbol(name)
	require.True(t, ok, "no module binding for %q", name)
	return res.BindingType(sym.Bindings[len(sym.Bindings)-1])
}

// useTypesOf returns the narrowed type at every use of name, in visit order.
func useTypesOf(ix *index.SemanticIndex, res *Result, name string) []Type {
	var out []Type
	for _, u := range ix.Uses() {
		if u.Name == name {
			out = append(out, res.UseType(u.ID))
		}
	}
	return out
}

func rulesOf(diags []diag.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Rule
	}
	return out
}

// =============================================================================
// Literals and expressions
// =============================================================================

func TestFile_LiteralTypes(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
a = 1
b = "hi"
c = True
d = None
e = 1.5
f = 0x_FF
`, nil)

	assert.Equal(t, "Literal[1]", bindingTypeOf(t, ix, res, "a").String())
	assert.Equal(t, `Literal["hi"]`, bindingTypeOf(t, ix, res, "b").String())
	assert.Equal(t, "Literal[True]", bindingTypeOf(t, ix, res, "c").String())
	assert.Equal(t, "None", bindingTypeOf(t, ix, res, "d").String())
	assert.Equal(t, "float", bindingTypeOf(t, ix, res, "e").String())
	assert.Equal(t, "Literal[255]", bindingTypeOf(t, ix, res, "f").String())
}

func TestFile_TupleType(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, "t = (1, \"a\", None)\n", nil)
	assert.Equal(t, `tuple[Literal[1], Literal["a"], None]`, bindingTypeOf(t, ix, res, "t").String())
}

func TestFile_ArithmeticFolding(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
a = 2 + 3
b = 2 * 3 - 1
c = 7 / 2
d = -5
e = "x" + "y"
`, nil)

	assert.Equal(t, "Literal[5]", bindingTypeOf(t, ix, res, "a").String())
	assert.Equal(t, "Literal[5]", bindingTypeOf(t, ix, res, "b").String())
	assert.Equal(t, "float", bindingTypeOf(t, ix, res, "c").String(), "true division widens")
	assert.Equal(t, "Literal[-5]", bindingTypeOf(t, ix, res, "d").String())
	assert.Equal(t, "str", bindingTypeOf(t, ix, res, "e").String())
}

func TestFile_ContainerAndComparisonTypes(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
l = [1, 2]
d = {"k": 1}
s = {1, 2}
c = 1 < 2
n = not True
`, nil)

	assert.Equal(t, "list", bindingTypeOf(t, ix, res, "l").String())
	assert.Equal(t, "dict", bindingTypeOf(t, ix, res, "d").String())
	assert.Equal(t, "set", bindingTypeOf(t, ix, res, "s").String())
	assert.Equal(t, "bool", bindingTypeOf(t, ix, res, "c").String())
	assert.Equal(t, "Literal[False]", bindingTypeOf(t, ix, res, "n").String())
}

func TestFile_UseUnionsAllLiveBindings(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, "x = 1\nx = \"a\"\ny = x\n", nil)
	assert.Equal(t, `Literal[1] | Literal["a"]`, bindingTypeOf(t, ix, res, "y").String())
}

func TestFile_SelfReferentialAssignmentDegradesToUnknown(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, "x = x\n", nil)
	assert.Equal(t, KindUnknown, bindingTypeOf(t, ix, res, "x").Kind())
}

// =============================================================================
// Classes and instances
// =============================================================================

func TestFile_ClassLiteralAndInstance(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
class A:
    pass
a = A()
`, nil)

	cls := bindingTypeOf(t, ix, res, "A")
	require.Equal(t, KindClassLiteral, cls.Kind())
	assert.Equal(t, "type[A]", cls.String())
	assert.Equal(t, "A", bindingTypeOf(t, ix, res, "a").String())
}

func TestFile_MROLinearization(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
class A: pass
class B(A): pass
class C(B): pass
`, nil)

	cls := bindingTypeOf(t, ix, res, "C").(ClassLiteral)
	var names []string
	for _, m := range cls.Class.MRO() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"C", "B", "A", "object"}, names)
	assert.Empty(t, res.Diagnostics)
}

func TestFile_AttributeThroughMRO(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
class A:
    field = 1
class B(A):
    pass
b = B()
y = b.field
`, nil)

	assert.Equal(t, "Literal[1]", bindingTypeOf(t, ix, res, "y").String())
}

func TestFile_InconsistentMROReported(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, `
class A: pass
class B(A): pass
class C(A, B): pass
`, nil)

	assert.Equal(t, []string{RuleInconsistentMRO}, rulesOf(res.Diagnostics))
	assert.Contains(t, res.Diagnostics[0].Message, "class C")
}

func TestFile_InvalidBaseReported(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "class C(1):\n    pass\n", nil)

	require.Equal(t, []string{RuleInvalidBase}, rulesOf(res.Diagnostics))
	assert.Contains(t, res.Diagnostics[0].Message, "Literal[1]")
}

func TestFile_UnknownBaseIsSilentlyAbsorbed(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "class C(Missing):\n    pass\n", nil)

	// Missing gets its unresolved-reference; the class base itself stays quiet.
	assert.Equal(t, []string{RuleUnresolvedReference}, rulesOf(res.Diagnostics))
}

// =============================================================================
// Slots
// =============================================================================

func TestFile_IncompatibleSlotsOnePerOffendingBase(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, `
class A:
    __slots__ = ("a",)
class B:
    __slots__ = ("b",)
class C(A, B):
    pass
`, nil)

	require.Equal(t, []string{RuleIncompatibleSlots, RuleIncompatibleSlots}, rulesOf(res.Diagnostics))

	// Each base is reported against the solid base it conflicts with, never
	// against itself.
	assert.Contains(t, res.Diagnostics[0].Message, "class base A")
	assert.Contains(t, res.Diagnostics[0].Message, "solid base B")
	assert.Contains(t, res.Diagnostics[1].Message, "class base B")
	assert.Contains(t, res.Diagnostics[1].Message, "solid base A")
}

func TestFile_EmptySlotsAreCompatible(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, `
class A:
    __slots__ = ()
class B:
    __slots__ = ("b",)
class C(A, B):
    pass
`, nil)
	assert.Empty(t, res.Diagnostics, "an empty __slots__ adds no layout")
}

func TestFile_DynamicSlotsGiveNoGuarantee(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, `
class A:
    __slots__ = make_slots()
class B:
    __slots__ = ("b",)
class C(A, B):
    pass
`, nil)
	assert.Equal(t, []string{RuleUnresolvedReference}, rulesOf(res.Diagnostics),
		"computed __slots__ can not conflict")
}

func TestFile_SharedSolidBaseIsCompatible(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, `
class S:
    __slots__ = ("s",)
class A(S):
    pass
class B(S):
    pass
class C(A, B):
    pass
`, nil)
	assert.Empty(t, res.Diagnostics, "both sides share the same solid base")
}

// =============================================================================
// Diagnostics for name uses
// =============================================================================

func TestFile_UnresolvedReference(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "y = missing\n", nil)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, RuleUnresolvedReference, res.Diagnostics[0].Rule)
	assert.Equal(t, `name "missing" is not defined`, res.Diagnostics[0].Message)
}

func TestFile_UnknownIsAbsorptive(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "y = missing.attr.deeper + 1\n", nil)

	assert.Equal(t, []string{RuleUnresolvedReference}, rulesOf(res.Diagnostics),
		"one diagnostic at the root, none downstream")
}

func TestFile_PossiblyUnbound(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "if cond:\n    x = 1\ny = x\n", nil)

	assert.Contains(t, rulesOf(res.Diagnostics), RulePossiblyUnbound)

	var msg string
	for _, d := range res.Diagnostics {
		if d.Rule == RulePossiblyUnbound {
			msg = d.Message
		}
	}
	assert.Equal(t, `name "x" may be unbound`, msg)
}

func TestFile_BuiltinNamesResolve(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, "n = len\nr = repr([1])\n", nil)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "str", bindingTypeOf(t, ix, res, "r").String())
}

// =============================================================================
// Imports
// =============================================================================

type fakeResolver struct {
	members map[string]map[string]Type // module -> member -> type; "" = module itself
}

func (f *fakeResolver) ResolveImport(module, name string) (Type, bool) {
	mod, ok := f.members[module]
	if !ok {
		return nil, false
	}
	if name == "" {
		return Module{Name: module}, true
	}
	t, ok := mod[name]
	return t, ok
}

func TestFile_ResolvedImportMemberType(t *testing.T) {
	t.Parallel()
	r := &fakeResolver{members: map[string]map[string]Type{
		"pkg.mod": {"thing": LiteralInt{Value: 7}},
	}}
	ix, res := inferSource(t, "from pkg.mod import thing\ny = thing\n", r)

	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "Literal[7]", bindingTypeOf(t, ix, res, "y").String())
}

func TestFile_ModuleImportAndAttributeAccess(t *testing.T) {
	t.Parallel()
	r := &fakeResolver{members: map[string]map[string]Type{
		"mod": {"value": LiteralString{Value: "v"}},
	}}
	ix, res := inferSource(t, "import mod\ny = mod.value\n", r)

	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, `Literal["v"]`, bindingTypeOf(t, ix, res, "y").String())
}

func TestFile_UnresolvedImportReportedOnce(t *testing.T) {
	t.Parallel()
	_, res := inferSource(t, "from ghost import thing\na = thing\nb = thing\nc = thing.attr\n", nil)

	assert.Equal(t, []string{RuleUnresolvedImport}, rulesOf(res.Diagnostics))
	assert.Contains(t, res.Diagnostics[0].Message, "ghost.thing")
}

// =============================================================================
// Narrowing
// =============================================================================

func TestFile_NarrowIsinstance(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
def f(x):
    if isinstance(x, int):
        y = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.NotEmpty(t, types)
	assert.Equal(t, "int", types[len(types)-1].String())
}

func TestFile_NarrowIsinstanceTuple(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
def f(x):
    if isinstance(x, (int, str)):
        y = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.NotEmpty(t, types)
	assert.Equal(t, "int | str", types[len(types)-1].String())
}

func TestFile_NarrowIsNone(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
if cond:
    x = None
else:
    x = 1
if x is None:
    a = x
else:
    b = x
`, nil)

	types := useTypesOf(ix, res, "x")
	// uses: the test itself, then the two branch bodies
	require.Len(t, types, 3)
	assert.Equal(t, "None", types[1].String())
	assert.Equal(t, "Literal[1]", types[2].String())
}

func TestFile_NarrowTruthinessRemovesNone(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
if cond:
    x = None
else:
    x = "s"
if x:
    a = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.Len(t, types, 2)
	assert.Equal(t, `Literal["s"]`, types[1].String())
}

func TestFile_NarrowEqualityLiteral(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
if cond:
    x = 1
else:
    x = 2
if x == 1:
    a = x
else:
    b = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.Len(t, types, 3)
	assert.Equal(t, "Literal[1]", types[1].String())
	assert.Equal(t, "Literal[2]", types[2].String())
}

func TestFile_NarrowBooleanAnd(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
def f(x):
    if isinstance(x, int) and x == 3:
        y = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.NotEmpty(t, types)
	// the isinstance conjunct narrows; the equality against an already
	// narrowed instance is a no-op
	assert.Equal(t, "int", types[len(types)-1].String())
}

func TestFile_NarrowMatchClassPattern(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
class Point:
    pass

def f(x):
    match x:
        case Point():
            y = x
`, nil)

	types := useTypesOf(ix, res, "x")
	require.NotEmpty(t, types)
	assert.Equal(t, "Point", types[len(types)-1].String())
}

func TestFile_UninterpretableTestIsNoOp(t *testing.T) {
	t.Parallel()
	ix, res := inferSource(t, `
def f(x):
    if helper(x):
        y = x
`, nil)

	types := useTypesOf(ix, res, "x")
	// the guarded use keeps its widened type, no fault
	assert.Equal(t, KindUnknown, types[len(types)-1].Kind())
}

// =============================================================================
// Result equality (early cutoff)
// =============================================================================

func TestResult_EqualAcrossIdenticalRuns(t *testing.T) {
	t.Parallel()
	src := `
class A:
    pass
x = 1
if x == 1:
    y = A()
`
	_, a := inferSource(t, src, nil)
	_, b := inferSource(t, src, nil)
	assert.True(t, a.Equal(b), "separate runs over identical text must compare equal")
}

func TestResult_NotEqualWhenTypesDiffer(t *testing.T) {
	t.Parallel()
	_, a := inferSource(t, "x = 1\n", nil)
	_, b := inferSource(t, "x = 2\n", nil)
	assert.False(t, a.Equal(b))
}

// =============================================================================
// Union construction
// =============================================================================

func TestMakeUnion_FlattensAndDeduplicates(t *testing.T) {
	t.Parallel()
	u := MakeUnion(LiteralInt{Value: 1}, Union{Members: []Type{LiteralInt{Value: 1}, None{}}})
	assert.Equal(t, "Literal[1] | None", u.String())
}

func TestMakeUnion_SingleMemberCollapses(t *testing.T) {
	t.Parallel()
	u := MakeUnion(None{}, None{})
	assert.Equal(t, KindNone, u.Kind())
}

func TestMakeUnion_UnknownAbsorbs(t *testing.T) {
	t.Parallel()
	u := MakeUnion(LiteralInt{Value: 1}, Unknown{})
	assert.Equal(t, KindUnknown, u.Kind())
}

func TestFile_LogsInferenceSummary(t *testing.T) {
	t.Parallel()
	parsed, err := source.Parse(context.Background(), []byte("x = missing\n"))
	require.NoError(t, err)
	ix := index.Build(parsed)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	File(parsed, ix, nil, logger)

	assert.Contains(t, buf.String(), "file inferred")
	assert.Contains(t, buf.String(), "diagnostics=1")
}
