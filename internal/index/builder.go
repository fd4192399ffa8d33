package index

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/taproot/internal/source"
)

// Build walks the parsed module depth-first once and produces its semantic
// index. Error-recovery constructs still receive scopes and bindings; they
// are simply typed Unknown downstream.
//
// Branch membership is implicit: every binding construct records the
// predicates and branch tokens active at its position, and predicates from a
// branch are discarded at branch end, never carried to siblings or enclosing
// scopes. Function and lambda bodies are walked after their enclosing scope
// completes, so names they use resolve against the scope's final state.
func Build(parsed *source.ParsedModule) *SemanticIndex {
	ix := &SemanticIndex{
		exprBySpan: make(map[source.Span]ExprID),
		useByExpr:  make(map[ExprID]UseID),
		imports:    make(map[BindingID]Import),
		classByB:   make(map[BindingID]int),
	}
	root := parsed.Root()
	b := &builder{
		parsed: parsed,
		ix:     ix,
	}
	b.scope = ix.newScope(ScopeModule, NoScopeID, source.NodeSpan(root))
	b.walkBlock(root)

	// Deferred function and lambda bodies; the queue may grow while
	// draining, for nested defs.
	for i := 0; i < len(b.deferred); i++ {
		b.walkDeferred(b.deferred[i])
	}
	return ix
}

type deferredBody struct {
	node  *sitter.Node // function_definition or lambda
	scope ScopeID
}

type builder struct {
	parsed *source.ParsedModule
	ix     *SemanticIndex

	scope     ScopeID
	preds     []PredicateID
	branches  []uint32
	branchSeq uint32

	deferred []deferredBody

	// names declared global/nonlocal, per scope
	globals   map[ScopeID]map[string]bool
	nonlocals map[ScopeID]map[string]bool
}

// statements

// walkBlock walks a suite. Assert predicates pushed inside the suite persist
// to its end and are dropped here, with everything else the suite pushed.
func (b *builder) walkBlock(block *sitter.Node) {
	if block == nil {
		return
	}
	save := len(b.preds)
	for i := 0; i < int(block.NamedChildCount()); i++ {
		b.walkStmt(block.NamedChild(i))
	}
	b.preds = b.preds[:save]
}

func (b *builder) walkStmt(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment":
		return

	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.walkStmt(n.NamedChild(i))
		}

	case "assignment":
		b.walkAssignment(n)

	case "augmented_assignment":
		right := n.ChildByFieldName("right")
		value := b.visitExpr(right)
		left := n.ChildByFieldName("left")
		if left != nil && left.Type() == "identifier" {
			// The target is read before it is written.
			b.visitExpr(left)
			b.bind(b.parsed.Text(left), BindAugmented, source.NodeSpan(left), value, NoExprID)
		} else {
			b.visitExpr(left)
		}

	case "named_expression":
		b.walkWalrus(n)

	case "function_definition":
		b.walkFunctionDef(n)

	case "class_definition":
		b.walkClassDef(n)

	case "decorated_definition":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "decorator" {
				for j := 0; j < int(child.NamedChildCount()); j++ {
					b.visitExpr(child.NamedChild(j))
				}
				continue
			}
			b.walkStmt(child)
		}

	case "if_statement":
		b.walkIf(n)

	case "while_statement":
		b.walkWhile(n)

	case "for_statement":
		b.walkFor(n)

	case "with_statement":
		b.walkWith(n)

	case "try_statement":
		b.walkTry(n)

	case "assert_statement":
		// The asserted condition holds for the remainder of the suite; the
		// predicate is dropped by walkBlock at suite end.
		if cond := n.NamedChild(0); cond != nil {
			id := b.visitExpr(cond)
			b.pushExprPredicate(id, true)
		}
		if msg := n.NamedChild(1); msg != nil {
			b.visitExpr(msg)
		}

	case "match_statement":
		b.walkMatch(n)

	case "import_statement":
		b.walkImport(n)

	case "import_from_statement":
		b.walkImportFrom(n)

	case "global_statement":
		b.declareNames(n, &b.globals)

	case "nonlocal_statement":
		b.declareNames(n, &b.nonlocals)

	case "return_statement", "raise_statement", "delete_statement", "print_statement", "exec_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.visitExpr(n.NamedChild(i))
		}

	case "pass_statement", "break_statement", "continue_statement":
		// no bindings, no uses

	case "block":
		b.walkBlock(n)

	case "ERROR":
		// Error recovery: constructs inside the region still get bindings
		// and scopes.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.walkStmt(n.NamedChild(i))
		}

	default:
		if isExpressionNode(n) {
			b.visitExpr(n)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.walkStmt(n.NamedChild(i))
		}
	}
}

func (b *builder) walkAssignment(n *sitter.Node) {
	var value, ann ExprID
	kind := BindAssignment
	if right := n.ChildByFieldName("right"); right != nil {
		value = b.visitExpr(right)
	}
	if typ := n.ChildByFieldName("type"); typ != nil {
		ann = b.visitExpr(typ)
		kind = BindAnnotated
	}
	b.bindTarget(n.ChildByFieldName("left"), kind, value, ann)
}

func (b *builder) walkWalrus(n *sitter.Node) ExprID {
	value := b.visitExpr(n.ChildByFieldName("value"))
	if name := n.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
		b.bind(b.parsed.Text(name), BindWalrus, source.NodeSpan(name), value, NoExprID)
	}
	return b.ix.newExpr(b.scope, n)
}

func (b *builder) walkFunctionDef(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	if name != nil {
		b.bind(b.parsed.Text(name), BindFunctionDef, source.NodeSpan(name), NoExprID, NoExprID)
	}
	// Parameter defaults, parameter annotations, and the return annotation
	// are evaluated at definition time in the enclosing scope.
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if v := p.ChildByFieldName("value"); v != nil {
				b.visitExpr(v)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				b.visitExpr(t)
			}
		}
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		b.visitExpr(ret)
	}

	scope := b.ix.newScope(ScopeFunction, b.scope, source.NodeSpan(n))
	b.deferred = append(b.deferred, deferredBody{node: n, scope: scope})
}

func (b *builder) walkClassDef(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	var bindingID BindingID
	if name != nil {
		bindingID = b.bind(b.parsed.Text(name), BindClassDef, source.NodeSpan(name), NoExprID, NoExprID)
	}

	var bases []ExprID
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for i := 0; i < int(sup.NamedChildCount()); i++ {
			arg := sup.NamedChild(i)
			if arg.Type() == "keyword_argument" {
				// metaclass= and friends are not bases
				if v := arg.ChildByFieldName("value"); v != nil {
					b.visitExpr(v)
				}
				continue
			}
			bases = append(bases, b.visitExpr(arg))
		}
	}

	// Class bodies execute immediately, unlike function bodies.
	outer := b.scope
	scope := b.ix.newScope(ScopeClass, outer, source.NodeSpan(n))
	b.scope = scope
	b.walkBlock(n.ChildByFieldName("body"))
	b.scope = outer

	if bindingID.IsValid() {
		b.ix.classByB[bindingID] = len(b.ix.classes)
		b.ix.classes = append(b.ix.classes, ClassDef{
			Binding: bindingID,
			Name:    b.parsed.Text(name),
			Scope:   scope,
			Bases:   bases,
			Span:    source.NodeSpan(n),
		})
	}
}

func (b *builder) walkIf(n *sitter.Node) {
	cond := b.visitExpr(n.ChildByFieldName("condition"))

	save := len(b.preds)
	b.pushExprPredicate(cond, true)
	b.walkBlock(n.ChildByFieldName("consequence"))
	b.preds = b.preds[:save]

	// Each alternative sees fresh negative predicates for every condition
	// ruled out before it. No deduplication: the same test at a different
	// position is a distinct predicate identity.
	negated := []ExprID{cond}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		alt := n.NamedChild(i)
		switch alt.Type() {
		case "elif_clause":
			save := len(b.preds)
			for _, neg := range negated {
				b.pushExprPredicate(neg, false)
			}
			elifCond := b.visitExpr(alt.ChildByFieldName("condition"))
			b.pushExprPredicate(elifCond, true)
			b.walkBlock(alt.ChildByFieldName("consequence"))
			b.preds = b.preds[:save]
			negated = append(negated, elifCond)
		case "else_clause":
			save := len(b.preds)
			for _, neg := range negated {
				b.pushExprPredicate(neg, false)
			}
			b.walkBlock(alt.ChildByFieldName("body"))
			b.preds = b.preds[:save]
		}
	}
}

func (b *builder) walkWhile(n *sitter.Node) {
	cond := b.visitExpr(n.ChildByFieldName("condition"))
	save := len(b.preds)
	b.pushExprPredicate(cond, true)
	b.enterBranch()
	b.walkBlock(n.ChildByFieldName("body"))
	b.exitBranch()
	b.preds = b.preds[:save]

	if alt := n.ChildByFieldName("alternative"); alt != nil {
		save := len(b.preds)
		b.pushExprPredicate(cond, false)
		b.walkBlock(alt.ChildByFieldName("body"))
		b.preds = b.preds[:save]
	}
}

func (b *builder) walkFor(n *sitter.Node) {
	b.visitExpr(n.ChildByFieldName("right"))
	b.enterBranch()
	b.bindTarget(n.ChildByFieldName("left"), BindForTarget, NoExprID, NoExprID)
	b.walkBlock(n.ChildByFieldName("body"))
	b.exitBranch()
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		b.walkBlock(alt.ChildByFieldName("body"))
	}
}

func (b *builder) walkWith(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "with_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			item := clause.NamedChild(j)
			value := item.ChildByFieldName("value")
			if value == nil {
				continue
			}
			if value.Type() == "as_pattern" {
				ctxExpr := b.visitExpr(value.ChildByFieldName("value"))
				if alias := aliasIdentifier(value); alias != nil {
					b.bind(b.parsed.Text(alias), BindWithItem, source.NodeSpan(alias), ctxExpr, NoExprID)
				}
			} else {
				b.visitExpr(value)
			}
		}
	}
	b.walkBlock(n.ChildByFieldName("body"))
}

func (b *builder) walkTry(n *sitter.Node) {
	// try/except bodies are walked per-branch like if: bindings inside are
	// reachable on some but not all paths.
	b.enterBranch()
	b.walkBlock(n.ChildByFieldName("body"))
	b.exitBranch()

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		switch clause.Type() {
		case "except_clause", "except_group_clause":
			b.enterBranch()
			b.walkExcept(clause)
			b.exitBranch()
		case "else_clause":
			b.enterBranch()
			b.walkBlock(clause.ChildByFieldName("body"))
			b.exitBranch()
		case "finally_clause":
			// finally always runs; its bindings are unconditional
			b.walkBlock(clause.ChildByFieldName("body"))
		}
	}
}

func (b *builder) walkExcept(clause *sitter.Node) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "block":
			b.walkBlock(child)
		case "as_pattern":
			typeExpr := b.visitExpr(child.ChildByFieldName("value"))
			if alias := aliasIdentifier(child); alias != nil {
				b.bind(b.parsed.Text(alias), BindExceptHandler, source.NodeSpan(alias), typeExpr, NoExprID)
			}
		case "identifier":
			// bare `except E, e:` legacy form or the handler name
			b.visitExpr(child)
		default:
			b.visitExpr(child)
		}
	}
}

func (b *builder) walkMatch(n *sitter.Node) {
	subjectNode := n.ChildByFieldName("subject")
	subject := b.visitExpr(subjectNode)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	var ruledOut []*Pattern
	for i := 0; i < int(body.NamedChildCount()); i++ {
		clause := body.NamedChild(i)
		if clause.Type() != "case_clause" {
			continue
		}
		b.walkCase(clause, subject, ruledOut, &ruledOut)
	}
}

func (b *builder) walkCase(clause *sitter.Node, subject ExprID, ruledOut []*Pattern, out *[]*Pattern) {
	save := len(b.preds)
	defer func() { b.preds = b.preds[:save] }()

	// Earlier cases failed to match by the time this body runs.
	for _, prior := range ruledOut {
		b.pushPatternPredicate(prior, false)
	}

	var alternatives []*Pattern
	var guard ExprID
	var consequence *sitter.Node
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "case_pattern":
			alternatives = append(alternatives, b.buildPattern(child, subject))
		case "guard", "if_clause":
			if g := child.NamedChild(0); g != nil {
				guard = b.visitExpr(g)
			}
		case "block":
			consequence = child
		}
	}

	pattern := &Pattern{Kind: PatternOr, Subject: subject, Subs: alternatives, Guard: guard}
	if len(alternatives) == 1 {
		single := *alternatives[0]
		single.Guard = guard
		pattern = &single
	}
	b.pushPatternPredicate(pattern, true)
	b.walkBlock(consequence)

	*out = append(*out, pattern)
}

// buildPattern maps a case_pattern subtree onto the closed PatternKind set.
// Anything the model does not understand becomes PatternUnsupported, which
// narrows nothing.
func (b *builder) buildPattern(n *sitter.Node, subject ExprID) *Pattern {
	if n == nil {
		return &Pattern{Kind: PatternUnsupported, Subject: subject}
	}
	switch n.Type() {
	case "case_pattern":
		if n.NamedChildCount() == 1 {
			return b.buildPattern(n.NamedChild(0), subject)
		}
		return &Pattern{Kind: PatternUnsupported, Subject: subject}

	case "none", "true", "false":
		return &Pattern{Kind: PatternSingleton, Subject: subject, Value: b.visitExpr(n)}

	case "integer", "float", "string", "concatenated_string":
		return &Pattern{Kind: PatternValue, Subject: subject, Value: b.visitExpr(n)}

	case "unary_operator":
		// negative literal value pattern
		return &Pattern{Kind: PatternValue, Subject: subject, Value: b.visitExpr(n)}

	case "dotted_name":
		if n.NamedChildCount() <= 1 {
			// A bare name is a capture: it matches anything and binds.
			if id := n.NamedChild(0); id != nil {
				b.bindCapture(id)
			}
			return &Pattern{Kind: PatternUnsupported, Subject: subject}
		}
		return &Pattern{Kind: PatternValue, Subject: subject, Value: b.visitExpr(n)}

	case "identifier":
		if b.parsed.Text(n) == "_" {
			return &Pattern{Kind: PatternUnsupported, Subject: subject}
		}
		b.bindCapture(n)
		return &Pattern{Kind: PatternUnsupported, Subject: subject}

	case "class_pattern":
		p := &Pattern{Kind: PatternClass, Subject: subject}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "identifier", "dotted_name", "attribute":
				if !p.Class.IsValid() {
					p.Class = b.visitExpr(child)
					continue
				}
				fallthrough
			default:
				// positional/keyword sub-patterns may capture
				b.collectCaptures(child)
			}
		}
		return p

	case "union_pattern":
		p := &Pattern{Kind: PatternOr, Subject: subject}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			p.Subs = append(p.Subs, b.buildPattern(n.NamedChild(i), subject))
		}
		return p

	case "as_pattern":
		inner := b.buildPattern(n.ChildByFieldName("value"), subject)
		if alias := aliasIdentifier(n); alias != nil {
			b.bindCapture(alias)
		}
		return inner

	default:
		b.collectCaptures(n)
		return &Pattern{Kind: PatternUnsupported, Subject: subject}
	}
}

func (b *builder) bindCapture(ident *sitter.Node) {
	b.bind(b.parsed.Text(ident), BindPatternCapture, source.NodeSpan(ident), NoExprID, NoExprID)
}

// collectCaptures binds capture identifiers inside unsupported or structural
// sub-patterns so the bound names still exist downstream.
func (b *builder) collectCaptures(n *sitter.Node) {
	switch n.Type() {
	case "identifier":
		if b.parsed.Text(n) != "_" {
			b.bindCapture(n)
		}
	case "dotted_name", "attribute", "integer", "float", "string", "none", "true", "false":
		// values, not captures
	case "as_pattern":
		if alias := aliasIdentifier(n); alias != nil {
			b.bindCapture(alias)
		}
		if v := n.ChildByFieldName("value"); v != nil {
			b.collectCaptures(v)
		}
	case "keyword_pattern":
		// keyword name is an attribute, the value side may capture
		if n.NamedChildCount() > 1 {
			b.collectCaptures(n.NamedChild(1))
		}
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.collectCaptures(n.NamedChild(i))
		}
	}
}

func (b *builder) walkImport(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			module := b.parsed.Text(child)
			// `import a.b` binds the first component
			first := child.NamedChild(0)
			if first == nil {
				continue
			}
			id := b.bind(b.parsed.Text(first), BindImport, source.NodeSpan(first), NoExprID, NoExprID)
			b.ix.imports[id] = Import{Binding: id, Module: module}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			id := b.bind(b.parsed.Text(alias), BindImport, source.NodeSpan(alias), NoExprID, NoExprID)
			b.ix.imports[id] = Import{Binding: id, Module: b.parsed.Text(name)}
		}
	}
}

func (b *builder) walkImportFrom(n *sitter.Node) {
	var module string
	if mod := n.ChildByFieldName("module_name"); mod != nil {
		module = b.parsed.Text(mod)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		// the module_name field also appears as a named child; skip it
		if mod := n.ChildByFieldName("module_name"); mod != nil && child.StartByte() == mod.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			name := b.parsed.Text(child)
			id := b.bind(name, BindImport, source.NodeSpan(child), NoExprID, NoExprID)
			b.ix.imports[id] = Import{Binding: id, Module: module, Name: name}
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			id := b.bind(b.parsed.Text(alias), BindImport, source.NodeSpan(alias), NoExprID, NoExprID)
			b.ix.imports[id] = Import{Binding: id, Module: module, Name: b.parsed.Text(name)}
		case "wildcard_import":
			// star imports contribute no nameable bindings
		}
	}
}

func (b *builder) declareNames(n *sitter.Node, m *map[ScopeID]map[string]bool) {
	if *m == nil {
		*m = make(map[ScopeID]map[string]bool)
	}
	if (*m)[b.scope] == nil {
		(*m)[b.scope] = make(map[string]bool)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" {
			(*m)[b.scope][b.parsed.Text(child)] = true
		}
	}
}

// targets and bindings

func (b *builder) bindTarget(n *sitter.Node, kind BindingKind, value, ann ExprID) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier":
		b.bind(b.parsed.Text(n), kind, source.NodeSpan(n), value, ann)
	case "tuple_pattern", "list_pattern", "pattern_list", "tuple", "list", "expression_list":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.bindTarget(n.NamedChild(i), kind, NoExprID, NoExprID)
		}
	case "list_splat_pattern", "parenthesized_expression":
		b.bindTarget(n.NamedChild(0), kind, NoExprID, NoExprID)
	case "attribute", "subscript":
		// not a name binding; the object side is a use
		b.visitExpr(n)
	default:
		b.visitExpr(n)
	}
}

func (b *builder) bind(name string, kind BindingKind, span source.Span, value, ann ExprID) BindingID {
	scope := b.scope
	if b.globals[b.scope][name] {
		scope = b.ix.ModuleScope()
		if kind != BindGlobal {
			kind = BindGlobal
		}
	} else if b.nonlocals[b.scope][name] {
		if enclosing := b.enclosingFunctionScope(); enclosing.IsValid() {
			scope = enclosing
		}
	}
	return b.ix.newBinding(Binding{
		Name:            name,
		Kind:            kind,
		Scope:           scope,
		Span:            span,
		Value:           value,
		Annotation:      ann,
		Predicates:      append([]PredicateID(nil), b.preds...),
		Branches:        append([]uint32(nil), b.branches...),
		PossiblyUnbound: len(b.preds) > 0 || len(b.branches) > 0,
	})
}

func (b *builder) enclosingFunctionScope() ScopeID {
	sc := b.ix.Scope(b.scope)
	for sc != nil && sc.Parent.IsValid() {
		sc = b.ix.Scope(sc.Parent)
		if sc.Kind == ScopeFunction {
			return sc.ID
		}
	}
	return NoScopeID
}

// expressions

func (b *builder) visitExpr(n *sitter.Node) ExprID {
	if n == nil {
		return NoExprID
	}
	switch n.Type() {
	case "identifier":
		id := b.ix.newExpr(b.scope, n)
		b.recordUse(n, id)
		return id

	case "boolean_operator":
		// `a and b` evaluates b only when a held; `a or b` only when it
		// did not. The left operand becomes a predicate over the right.
		left := b.visitExpr(n.ChildByFieldName("left"))
		positive := true
		if op := n.ChildByFieldName("operator"); op != nil && b.parsed.Text(op) == "or" {
			positive = false
		}
		save := len(b.preds)
		b.pushExprPredicate(left, positive)
		b.visitExpr(n.ChildByFieldName("right"))
		b.preds = b.preds[:save]
		return b.ix.newExpr(b.scope, n)

	case "named_expression":
		return b.walkWalrus(n)

	case "lambda":
		id := b.ix.newExpr(b.scope, n)
		if params := n.ChildByFieldName("parameters"); params != nil {
			for i := 0; i < int(params.NamedChildCount()); i++ {
				if v := params.NamedChild(i).ChildByFieldName("value"); v != nil {
					b.visitExpr(v)
				}
			}
		}
		scope := b.ix.newScope(ScopeLambda, b.scope, source.NodeSpan(n))
		b.deferred = append(b.deferred, deferredBody{node: n, scope: scope})
		return id

	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		return b.walkComprehension(n)

	case "conditional_expression":
		// value_if_true if cond else value_if_false
		if n.NamedChildCount() == 3 {
			cond := b.visitExpr(n.NamedChild(1))
			save := len(b.preds)
			b.pushExprPredicate(cond, true)
			b.visitExpr(n.NamedChild(0))
			b.preds = b.preds[:save]
			b.pushExprPredicate(cond, false)
			b.visitExpr(n.NamedChild(2))
			b.preds = b.preds[:save]
			return b.ix.newExpr(b.scope, n)
		}
		fallthrough

	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			b.visitExpr(child)
		}
		return b.ix.newExpr(b.scope, n)
	}
}

func (b *builder) walkComprehension(n *sitter.Node) ExprID {
	id := b.ix.newExpr(b.scope, n)
	outer := b.scope
	savePreds := len(b.preds)
	b.scope = b.ix.newScope(ScopeComprehension, outer, source.NodeSpan(n))

	// Clauses bind and filter before the element expression evaluates.
	var bodies []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "for_in_clause":
			b.visitExpr(child.ChildByFieldName("right"))
			b.bindTarget(child.ChildByFieldName("left"), BindComprehensionVar, NoExprID, NoExprID)
		case "if_clause":
			if cond := child.NamedChild(0); cond != nil {
				condID := b.visitExpr(cond)
				b.pushExprPredicate(condID, true)
			}
		default:
			bodies = append(bodies, child)
		}
	}
	for _, body := range bodies {
		b.visitExpr(body)
	}

	b.preds = b.preds[:savePreds]
	b.scope = outer
	return id
}

// recordUse resolves a name load against the scope chain and records which
// bindings are live and which predicates are active at this position.
func (b *builder) recordUse(n *sitter.Node, expr ExprID) {
	name := b.parsed.Text(n)
	bindings, builtin := b.resolve(name)

	use := Use{
		Name:       name,
		Expr:       expr,
		Scope:      b.scope,
		Bindings:   bindings,
		Predicates: append([]PredicateID(nil), b.preds...),
		Builtin:    builtin,
	}
	if len(bindings) > 0 {
		use.PossiblyUnbound = !b.anyDefinitelyBound(bindings)
	}
	b.ix.newUse(use)
}

// anyDefinitelyBound reports whether at least one live binding is
// unconditionally reachable at the current position: its branch path and
// predicate list are prefixes of the current ones.
func (b *builder) anyDefinitelyBound(bindings []BindingID) bool {
	for _, id := range bindings {
		bd := b.ix.Binding(id)
		if bd == nil {
			continue
		}
		if isPrefixU32(bd.Branches, b.branches) && isPrefixPred(bd.Predicates, b.preds) {
			return true
		}
	}
	return false
}

// resolve walks the lexical chain. Class scopes are invisible to nested
// scopes; only the class body itself sees its symbols.
func (b *builder) resolve(name string) ([]BindingID, bool) {
	first := true
	for sc := b.ix.Scope(b.scope); sc != nil; sc = b.ix.Scope(sc.Parent) {
		if !first && sc.Kind == ScopeClass {
			first = false
			continue
		}
		first = false
		if sym, ok := sc.Symbol(name); ok && len(sym.Bindings) > 0 {
			return append([]BindingID(nil), sym.Bindings...), false
		}
	}
	if pythonBuiltins[name] {
		return nil, true
	}
	return nil, false
}

// predicates and branches

func (b *builder) pushExprPredicate(expr ExprID, positive bool) {
	if !expr.IsValid() {
		return
	}
	id := b.ix.newPredicate(b.scope, PredicateNode{Expr: expr}, positive)
	b.preds = append(b.preds, id)
}

func (b *builder) pushPatternPredicate(p *Pattern, positive bool) {
	id := b.ix.newPredicate(b.scope, PredicateNode{Pattern: p}, positive)
	b.preds = append(b.preds, id)
}

func (b *builder) enterBranch() {
	b.branchSeq++
	b.branches = append(b.branches, b.branchSeq)
}

func (b *builder) exitBranch() {
	b.branches = b.branches[:len(b.branches)-1]
}

// deferred bodies

func (b *builder) walkDeferred(d deferredBody) {
	outerScope, outerPreds, outerBranches := b.scope, b.preds, b.branches
	b.scope = d.scope
	b.preds = nil
	b.branches = nil

	switch d.node.Type() {
	case "function_definition":
		b.bindParameters(d.node.ChildByFieldName("parameters"))
		b.walkBlock(d.node.ChildByFieldName("body"))
	case "lambda":
		b.bindParameters(d.node.ChildByFieldName("parameters"))
		b.visitExpr(d.node.ChildByFieldName("body"))
	}

	b.scope, b.preds, b.branches = outerScope, outerPreds, outerBranches
}

func (b *builder) bindParameters(params *sitter.Node) {
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			b.bind(b.parsed.Text(p), BindParameter, source.NodeSpan(p), NoExprID, NoExprID)
		case "typed_parameter":
			if id := firstIdentifier(p); id != nil {
				ann := NoExprID
				if t := p.ChildByFieldName("type"); t != nil {
					if existing, ok := b.ix.ExprAt(source.NodeSpan(t)); ok {
						ann = existing
					}
				}
				b.bind(b.parsed.Text(id), BindParameter, source.NodeSpan(id), NoExprID, ann)
			}
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				b.bind(b.parsed.Text(name), BindParameter, source.NodeSpan(name), NoExprID, NoExprID)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstIdentifier(p); id != nil {
				b.bind(b.parsed.Text(id), BindParameter, source.NodeSpan(id), NoExprID, NoExprID)
			}
		case "keyword_separator", "positional_separator":
			// marker tokens, nothing to bind
		}
	}
}

// helpers

func aliasIdentifier(asPattern *sitter.Node) *sitter.Node {
	alias := asPattern.ChildByFieldName("alias")
	if alias == nil {
		return nil
	}
	if alias.Type() == "identifier" {
		return alias
	}
	return firstIdentifier(alias)
}

func firstIdentifier(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "identifier" {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstIdentifier(n.NamedChild(i)); found != nil {
			return found
		}
	}
	return nil
}

func isExpressionNode(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "call", "attribute", "subscript", "binary_operator",
		"unary_operator", "not_operator", "boolean_operator",
		"comparison_operator", "conditional_expression", "lambda", "await",
		"string", "concatenated_string", "integer", "float", "true", "false",
		"none", "list", "tuple", "dictionary", "set", "parenthesized_expression",
		"list_comprehension", "set_comprehension", "dictionary_comprehension",
		"generator_expression", "named_expression", "ellipsis", "slice", "yield":
		return true
	}
	return false
}

func isPrefixPred(prefix, full []PredicateID) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

func isPrefixU32(prefix, full []uint32) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}
