package infer

import (
	"log/slog"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/index"
	"github.com/jward/taproot/internal/source"
)

// Rule ids emitted by the engine.
const (
	RuleUnresolvedReference = "unresolved-reference"
	RuleUnresolvedImport    = "unresolved-import"
	RulePossiblyUnbound     = "possibly-unbound"
	RuleInvalidBase         = "invalid-base"
	RuleInconsistentMRO     = "inconsistent-mro"
	RuleIncompatibleSlots   = "incompatible-slots"
)

// Resolver resolves cross-file imports. name is empty for whole-module
// imports. Returning ok=false means the module (or member) is unknown; the
// engine degrades to Unknown with a single unresolved-import diagnostic at
// the import binding.
type Resolver interface {
	ResolveImport(module, name string) (Type, bool)
}

// Result is the inference product for one file revision. It is itself a
// cached query value: Equal implements the early-cutoff comparison.
type Result struct {
	Diagnostics []diag.Diagnostic

	bindings map[index.BindingID]Type
	exprs    map[index.ExprID]Type
	uses     map[index.UseID]Type
}

// BindingType returns the inferred type of a binding.
func (r *Result) BindingType(id index.BindingID) Type {
	if t, ok := r.bindings[id]; ok {
		return t
	}
	return Unknown{}
}

// ExprType returns the inferred type of an expression.
func (r *Result) ExprType(id index.ExprID) Type {
	if t, ok := r.exprs[id]; ok {
		return t
	}
	return Unknown{}
}

// UseType returns the narrowed type of a name at a specific use.
func (r *Result) UseType(id index.UseID) Type {
	if t, ok := r.uses[id]; ok {
		return t
	}
	return Unknown{}
}

// Equal implements structural comparison for early cutoff: a recomputation
// producing an equal result must not cascade invalidation.
func (r *Result) Equal(other any) bool {
	o, ok := other.(*Result)
	if !ok {
		return false
	}
	if len(r.Diagnostics) != len(o.Diagnostics) {
		return false
	}
	for i := range r.Diagnostics {
		if r.Diagnostics[i] != o.Diagnostics[i] {
			return false
		}
	}
	return typeMapsEqual(r.bindings, o.bindings) &&
		typeMapsEqual(r.exprs, o.exprs) &&
		typeMapsEqual(r.uses, o.uses)
}

func typeMapsEqual[K comparable](a, b map[K]Type) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

type baseRef struct {
	class *Class
	expr  index.ExprID
}

// Inferrer runs type inference over one file's semantic index.
type Inferrer struct {
	parsed   *source.ParsedModule
	ix       *index.SemanticIndex
	resolver Resolver
	logger   *slog.Logger

	builtinClasses map[string]*Class
	classes        map[index.BindingID]*Class
	classBases     map[*Class][]baseRef

	bindings    map[index.BindingID]Type
	bindingBusy map[index.BindingID]bool
	exprs       map[index.ExprID]Type
	exprBusy    map[index.ExprID]bool
	uses        map[index.UseID]Type

	importReported map[index.BindingID]bool
	diags          []diag.Diagnostic
}

// File infers types for every binding, expression, and use in the index and
// collects diagnostics. resolver may be nil, in which case every import is
// unresolved. Malformed Python never raises here; everything degrades to
// Unknown or a skipped narrowing.
func File(parsed *source.ParsedModule, ix *index.SemanticIndex, resolver Resolver, logger *slog.Logger) *Result {
	if logger == nil {
		logger = slog.Default()
	}
	inf := &Inferrer{
		parsed:         parsed,
		ix:             ix,
		resolver:       resolver,
		logger:         logger,
		builtinClasses: newBuiltinClasses(),
		classes:        make(map[index.BindingID]*Class),
		classBases:     make(map[*Class][]baseRef),
		bindings:       make(map[index.BindingID]Type),
		bindingBusy:    make(map[index.BindingID]bool),
		exprs:          make(map[index.ExprID]Type),
		exprBusy:       make(map[index.ExprID]bool),
		uses:           make(map[index.UseID]Type),
		importReported: make(map[index.BindingID]bool),
	}

	inf.buildClasses()
	inf.checkClasses()

	for _, b := range ix.Bindings() {
		inf.bindingType(b.ID)
	}
	for _, u := range ix.Uses() {
		inf.useType(u.ID)
	}
	for i := range ix.Exprs() {
		inf.exprType(index.ExprID(i + 1))
	}
	inf.diagnoseUses()

	diag.Sort(inf.diags)
	inf.logger.Debug("file inferred",
		"bindings", len(inf.bindings),
		"uses", len(inf.uses),
		"diagnostics", len(inf.diags))
	return &Result{
		Diagnostics: inf.diags,
		bindings:    inf.bindings,
		exprs:       inf.exprs,
		uses:        inf.uses,
	}
}

// classes

// buildClasses creates the class shells first so mutually-referential bases
// resolve, then resolves each explicit base expression.
func (inf *Inferrer) buildClasses() {
	for i := range inf.ix.Classes() {
		def := &inf.ix.Classes()[i]
		c := &Class{
			Name: def.Name,
			Span: def.Span,
			Def:  def,
		}
		c.Slots, c.SlotsNames = inf.slotsOf(def)
		inf.classes[def.Binding] = c
	}
	for _, def := range inf.ix.Classes() {
		c := inf.classes[def.Binding]
		for _, baseExpr := range def.Bases {
			baseType := inf.exprType(baseExpr)
			switch bt := baseType.(type) {
			case ClassLiteral:
				c.Bases = append(c.Bases, bt.Class)
				inf.classBases[c] = append(inf.classBases[c], baseRef{class: bt.Class, expr: baseExpr})
			case Unknown:
				// absorbed: an unresolvable base produces no further noise
			default:
				inf.report(RuleInvalidBase, inf.exprSpan(baseExpr),
					"invalid class base of type "+baseType.String())
			}
		}
	}
	// implicit object base for bases-less user classes
	object := inf.builtinClasses["object"]
	for _, c := range inf.classes {
		if len(c.Bases) == 0 {
			c.Bases = []*Class{object}
		}
	}
}

// checkClasses verifies each class's linearization and slot layout.
func (inf *Inferrer) checkClasses() {
	for _, def := range inf.ix.Classes() {
		c := inf.classes[def.Binding]
		if c.MROFailed() {
			inf.report(RuleInconsistentMRO, def.Span,
				"cannot determine a consistent method resolution order for class "+c.Name)
		}
		inf.checkSlots(c)
	}
}

// checkSlots walks each explicit base's MRO to its solid base, the first
// class declaring a concrete, non-empty __slots__. Two explicit bases with
// different solid bases cannot share an instance layout: one diagnostic per
// offending base, naming the first solid base it conflicts with.
func (inf *Inferrer) checkSlots(c *Class) {
	refs := inf.classBases[c]
	if len(refs) < 2 {
		return
	}
	type solidRef struct {
		ref   baseRef
		solid *Class
	}
	var solids []solidRef
	var first *Class
	distinct := 0
	for _, ref := range refs {
		sb := ref.class.SolidBase()
		if sb == nil {
			continue
		}
		solids = append(solids, solidRef{ref: ref, solid: sb})
		if first == nil {
			first = sb
			distinct = 1
		} else {
			seen := false
			for _, s := range solids[:len(solids)-1] {
				if s.solid.sameDecl(sb) {
					seen = true
					break
				}
			}
			if !seen {
				distinct++
			}
		}
	}
	if distinct < 2 {
		return
	}
	for _, s := range solids {
		// Name a solid base the offender actually conflicts with, never the
		// offender's own.
		conflict := first
		if s.solid.sameDecl(first) {
			for _, o := range solids {
				if !o.solid.sameDecl(s.solid) {
					conflict = o.solid
					break
				}
			}
		}
		inf.report(RuleIncompatibleSlots, inf.exprSpan(s.ref.expr),
			"class base "+s.ref.class.Name+" is incompatible with the solid base "+conflict.Name)
	}
}

// slotsOf inspects the class body's __slots__ binding, if any.
func (inf *Inferrer) slotsOf(def *index.ClassDef) (SlotsKind, []string) {
	scope := inf.ix.Scope(def.Scope)
	if scope == nil {
		return SlotsAbsent, nil
	}
	sym, ok := scope.Symbol("__slots__")
	if !ok || len(sym.Bindings) == 0 {
		return SlotsAbsent, nil
	}
	b := inf.ix.Binding(sym.Bindings[len(sym.Bindings)-1])
	if b == nil || !b.Value.IsValid() {
		return SlotsDynamic, nil
	}
	node := inf.exprNode(b.Value)
	if node == nil {
		return SlotsDynamic, nil
	}
	switch node.Type() {
	case "string", "concatenated_string":
		return SlotsNamed, []string{stringContent(inf.parsed.Text(node))}
	case "tuple", "list", "parenthesized_expression":
		var names []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			el := node.NamedChild(i)
			switch el.Type() {
			case "string":
				names = append(names, stringContent(inf.parsed.Text(el)))
			case "comment":
				// ignore
			default:
				// a computed element gives no layout guarantee
				return SlotsDynamic, nil
			}
		}
		if len(names) == 0 {
			return SlotsEmpty, nil
		}
		return SlotsNamed, names
	default:
		return SlotsDynamic, nil
	}
}

// bindings

func (inf *Inferrer) bindingType(id index.BindingID) Type {
	if t, ok := inf.bindings[id]; ok {
		return t
	}
	if inf.bindingBusy[id] {
		// self-referential declaration, e.g. x = x
		return Unknown{}
	}
	inf.bindingBusy[id] = true
	t := inf.computeBindingType(id)
	delete(inf.bindingBusy, id)
	inf.bindings[id] = t
	return t
}

func (inf *Inferrer) computeBindingType(id index.BindingID) Type {
	b := inf.ix.Binding(id)
	if b == nil {
		return Unknown{}
	}
	switch b.Kind {
	case index.BindClassDef:
		if c, ok := inf.classes[id]; ok {
			return ClassLiteral{Class: c}
		}
		return Unknown{}

	case index.BindFunctionDef:
		return Callable{Ret: Unknown{}}

	case index.BindImport:
		return inf.importType(b)

	case index.BindParameter, index.BindAnnotated:
		if b.Annotation.IsValid() {
			if t := inf.annotationType(b.Annotation); t.Kind() != KindUnknown {
				return t
			}
		}
		if b.Value.IsValid() {
			return inf.exprType(b.Value)
		}
		return Unknown{}

	case index.BindExceptHandler:
		return inf.handlerType(b.Value)

	default:
		if b.Value.IsValid() {
			return inf.exprType(b.Value)
		}
		return Unknown{}
	}
}

func (inf *Inferrer) importType(b *index.Binding) Type {
	imp, ok := inf.ix.ImportOf(b.ID)
	if !ok {
		return Unknown{}
	}
	if inf.resolver != nil {
		if t, ok := inf.resolver.ResolveImport(imp.Module, imp.Name); ok {
			return t
		}
	}
	// exactly one diagnostic per import binding; every downstream read
	// absorbs the Unknown silently
	if !inf.importReported[b.ID] {
		inf.importReported[b.ID] = true
		what := imp.Module
		if imp.Name != "" {
			what = imp.Module + "." + imp.Name
		}
		inf.report(RuleUnresolvedImport, b.Span, "cannot resolve import "+what)
	}
	return Unknown{}
}

// annotationType interprets an expression in annotation position.
func (inf *Inferrer) annotationType(id index.ExprID) Type {
	t := inf.exprType(id)
	switch at := t.(type) {
	case ClassLiteral:
		return Instance{Class: at.Class}
	case None:
		return None{}
	default:
		// string forward references and subscripted generics stay Unknown
		return Unknown{}
	}
}

// handlerType types an except-handler name from its exception expression.
func (inf *Inferrer) handlerType(id index.ExprID) Type {
	if !id.IsValid() {
		return Unknown{}
	}
	switch t := inf.exprType(id).(type) {
	case ClassLiteral:
		return Instance{Class: t.Class}
	case Tuple:
		members := make([]Type, 0, len(t.Elems))
		for _, el := range t.Elems {
			if cl, ok := el.(ClassLiteral); ok {
				members = append(members, Instance{Class: cl.Class})
			} else {
				members = append(members, Unknown{})
			}
		}
		return MakeUnion(members...)
	default:
		return Unknown{}
	}
}

// uses

func (inf *Inferrer) useType(id index.UseID) Type {
	if t, ok := inf.uses[id]; ok {
		return t
	}
	u := inf.ix.Use(id)
	if u == nil {
		return Unknown{}
	}
	var t Type = Unknown{}
	switch {
	case len(u.Bindings) > 0:
		members := make([]Type, 0, len(u.Bindings))
		for _, bid := range u.Bindings {
			members = append(members, inf.bindingType(bid))
		}
		t = inf.narrow(MakeUnion(members...), u)
	case u.Builtin:
		t = inf.builtinType(u.Name)
	}
	inf.uses[id] = t
	return t
}

func (inf *Inferrer) builtinType(name string) Type {
	if c, ok := inf.builtinClasses[name]; ok {
		return ClassLiteral{Class: c}
	}
	return Unknown{}
}

// diagnoseUses reports undefined and possibly-unbound names. One diagnostic
// per use site; reads through Unknown never add more.
func (inf *Inferrer) diagnoseUses() {
	for _, u := range inf.ix.Uses() {
		span := inf.exprSpan(u.Expr)
		switch {
		case len(u.Bindings) == 0 && !u.Builtin:
			inf.report(RuleUnresolvedReference, span, "name "+strconv.Quote(u.Name)+" is not defined")
		case u.PossiblyUnbound:
			inf.report(RulePossiblyUnbound, span, "name "+strconv.Quote(u.Name)+" may be unbound")
		}
	}
}

// expressions

func (inf *Inferrer) exprType(id index.ExprID) Type {
	if !id.IsValid() {
		return Unknown{}
	}
	if t, ok := inf.exprs[id]; ok {
		return t
	}
	if inf.exprBusy[id] {
		return Unknown{}
	}
	inf.exprBusy[id] = true
	t := inf.computeExprType(id)
	delete(inf.exprBusy, id)
	inf.exprs[id] = t
	return t
}

func (inf *Inferrer) computeExprType(id index.ExprID) Type {
	e := inf.ix.Expr(id)
	if e == nil || e.Node == nil {
		return Unknown{}
	}
	n := e.Node
	switch n.Type() {
	case "identifier":
		if u, ok := inf.ix.UseOf(id); ok {
			return inf.useType(u.ID)
		}
		return Unknown{}

	case "none":
		return None{}
	case "true":
		return LiteralBool{Value: true}
	case "false":
		return LiteralBool{Value: false}
	case "integer":
		if v, err := parsePyInt(inf.parsed.Text(n)); err == nil {
			return LiteralInt{Value: v}
		}
		return inf.instanceOf("int")
	case "float":
		return inf.instanceOf("float")
	case "string":
		return LiteralString{Value: stringContent(inf.parsed.Text(n))}
	case "concatenated_string":
		return inf.instanceOf("str")
	case "ellipsis":
		return Unknown{}

	case "tuple":
		var elems []Type
		for i := 0; i < int(n.NamedChildCount()); i++ {
			elems = append(elems, inf.nodeType(n.NamedChild(i)))
		}
		return Tuple{Elems: elems}
	case "list", "list_comprehension":
		return inf.instanceOf("list")
	case "dictionary", "dictionary_comprehension":
		return inf.instanceOf("dict")
	case "set", "set_comprehension":
		return inf.instanceOf("set")
	case "generator_expression":
		return Unknown{}

	case "call":
		return inf.callType(n)

	case "attribute":
		return inf.attributeType(n)

	case "binary_operator":
		return inf.binaryType(n)

	case "unary_operator":
		return inf.unaryType(n)

	case "comparison_operator":
		return inf.instanceOf("bool")

	case "not_operator":
		if arg := n.NamedChild(0); arg != nil {
			if lit, ok := inf.nodeType(arg).(LiteralBool); ok {
				return LiteralBool{Value: !lit.Value}
			}
		}
		return inf.instanceOf("bool")

	case "boolean_operator":
		left := inf.nodeType(n.ChildByFieldName("left"))
		right := inf.nodeType(n.ChildByFieldName("right"))
		return MakeUnion(left, right)

	case "conditional_expression":
		if n.NamedChildCount() == 3 {
			return MakeUnion(inf.nodeType(n.NamedChild(0)), inf.nodeType(n.NamedChild(2)))
		}
		return Unknown{}

	case "parenthesized_expression":
		return inf.nodeType(n.NamedChild(0))

	case "named_expression":
		return inf.nodeType(n.ChildByFieldName("value"))

	case "lambda":
		return Callable{Ret: Unknown{}}

	default:
		return Unknown{}
	}
}

// nodeType resolves a node to its registered expression's type.
func (inf *Inferrer) nodeType(n *sitter.Node) Type {
	if n == nil {
		return Unknown{}
	}
	if id, ok := inf.ix.ExprAt(source.NodeSpan(n)); ok {
		return inf.exprType(id)
	}
	return Unknown{}
}

func (inf *Inferrer) callType(n *sitter.Node) Type {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return Unknown{}
	}
	if fn.Type() == "identifier" {
		switch inf.parsed.Text(fn) {
		case "isinstance", "issubclass", "callable", "hasattr":
			return inf.instanceOf("bool")
		case "repr":
			return inf.instanceOf("str")
		}
	}
	switch ft := inf.nodeType(fn).(type) {
	case ClassLiteral:
		return Instance{Class: ft.Class}
	case Callable:
		return ft.Ret
	default:
		return Unknown{}
	}
}

func (inf *Inferrer) attributeType(n *sitter.Node) Type {
	obj := n.ChildByFieldName("object")
	attrNode := n.ChildByFieldName("attribute")
	if obj == nil || attrNode == nil {
		return Unknown{}
	}
	attr := inf.parsed.Text(attrNode)
	switch ot := inf.nodeType(obj).(type) {
	case Unknown:
		// absorptive: the original unresolved reference already carries
		// the only diagnostic
		return Unknown{}
	case Module:
		if inf.resolver != nil {
			if t, ok := inf.resolver.ResolveImport(ot.Name, attr); ok {
				return t
			}
		}
		return Unknown{}
	case Instance:
		return inf.classAttribute(ot.Class, attr)
	case ClassLiteral:
		return inf.classAttribute(ot.Class, attr)
	default:
		return Unknown{}
	}
}

// classAttribute looks the name up through the class's MRO.
func (inf *Inferrer) classAttribute(c *Class, name string) Type {
	for _, m := range c.MRO() {
		if m.Def == nil {
			continue
		}
		scope := inf.ix.Scope(m.Def.Scope)
		if scope == nil {
			continue
		}
		if sym, ok := scope.Symbol(name); ok && len(sym.Bindings) > 0 {
			return inf.bindingType(sym.Bindings[len(sym.Bindings)-1])
		}
	}
	return Unknown{}
}

func (inf *Inferrer) binaryType(n *sitter.Node) Type {
	left := inf.nodeType(n.ChildByFieldName("left"))
	right := inf.nodeType(n.ChildByFieldName("right"))
	if left.Kind() == KindUnknown || right.Kind() == KindUnknown {
		return Unknown{}
	}
	op := ""
	if opNode := n.ChildByFieldName("operator"); opNode != nil {
		op = inf.parsed.Text(opNode)
	}

	li, lInt := left.(LiteralInt)
	ri, rInt := right.(LiteralInt)
	if lInt && rInt {
		switch op {
		case "+":
			return LiteralInt{Value: li.Value + ri.Value}
		case "-":
			return LiteralInt{Value: li.Value - ri.Value}
		case "*":
			return LiteralInt{Value: li.Value * ri.Value}
		case "/":
			// true division widens even for literal operands
			return inf.instanceOf("float")
		}
		return inf.instanceOf("int")
	}
	if inf.isIntish(left) && inf.isIntish(right) {
		if op == "/" {
			return inf.instanceOf("float")
		}
		return inf.instanceOf("int")
	}
	if inf.isStrish(left) && inf.isStrish(right) && op == "+" {
		return inf.instanceOf("str")
	}
	if inf.isFloatish(left) && inf.isFloatish(right) {
		return inf.instanceOf("float")
	}
	return Unknown{}
}

func (inf *Inferrer) unaryType(n *sitter.Node) Type {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		if n.NamedChildCount() > 0 {
			arg = n.NamedChild(0)
		} else {
			return Unknown{}
		}
	}
	t := inf.nodeType(arg)
	if lit, ok := t.(LiteralInt); ok {
		return LiteralInt{Value: -lit.Value}
	}
	if inf.isIntish(t) {
		return inf.instanceOf("int")
	}
	if inf.isFloatish(t) {
		return inf.instanceOf("float")
	}
	return Unknown{}
}

func (inf *Inferrer) isIntish(t Type) bool {
	switch tt := t.(type) {
	case LiteralInt, LiteralBool:
		return true
	case Instance:
		return tt.Class.DescendsFrom(inf.builtinClasses["int"])
	}
	return false
}

func (inf *Inferrer) isStrish(t Type) bool {
	switch tt := t.(type) {
	case LiteralString:
		return true
	case Instance:
		return tt.Class.DescendsFrom(inf.builtinClasses["str"])
	}
	return false
}

func (inf *Inferrer) isFloatish(t Type) bool {
	if inf.isIntish(t) {
		return true
	}
	if tt, ok := t.(Instance); ok {
		return tt.Class.DescendsFrom(inf.builtinClasses["float"])
	}
	return false
}

func (inf *Inferrer) instanceOf(builtin string) Type {
	if c, ok := inf.builtinClasses[builtin]; ok {
		return Instance{Class: c}
	}
	return Unknown{}
}

// helpers

func (inf *Inferrer) report(rule string, span source.Span, message string) {
	inf.diags = append(inf.diags, diag.Diagnostic{Rule: rule, Message: message, Span: span})
}

func (inf *Inferrer) exprSpan(id index.ExprID) source.Span {
	if e := inf.ix.Expr(id); e != nil {
		return e.Span
	}
	return source.Span{}
}

func (inf *Inferrer) exprNode(id index.ExprID) *sitter.Node {
	if e := inf.ix.Expr(id); e != nil {
		return e.Node
	}
	return nil
}

// parsePyInt handles decimal, hex, octal, binary, and underscore separators.
func parsePyInt(text string) (int64, error) {
	clean := strings.ReplaceAll(text, "_", "")
	return strconv.ParseInt(clean, 0, 64)
}

// stringContent strips the quotes and prefixes off a string literal token.
func stringContent(text string) string {
	s := text
	for len(s) > 0 {
		c := s[0]
		if c == 'r' || c == 'R' || c == 'b' || c == 'B' || c == 'u' || c == 'U' || c == 'f' || c == 'F' {
			s = s[1:]
			continue
		}
		break
	}
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 2*len(quote) {
			return s[len(quote) : len(s)-len(quote)]
		}
	}
	return s
}
