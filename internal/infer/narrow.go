package infer

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/taproot/internal/index"
)

// narrow applies the use's active predicates to the widened type, in
// insertion order. Narrowing is best effort: any test it cannot interpret is
// a no-op, never an error.
func (inf *Inferrer) narrow(t Type, u *index.Use) Type {
	for _, pid := range u.Predicates {
		p := inf.ix.Predicate(pid)
		if p == nil {
			continue
		}
		switch {
		case p.Node.Expr.IsValid():
			t = inf.narrowByExpr(t, u.Name, inf.exprNode(p.Node.Expr), p.IsPositive)
		case p.Node.Pattern != nil:
			t = inf.narrowByPattern(t, u.Name, p.Node.Pattern, p.IsPositive)
		}
	}
	return t
}

func (inf *Inferrer) narrowByExpr(t Type, name string, node *sitter.Node, positive bool) Type {
	if node == nil {
		return t
	}
	switch node.Type() {
	case "identifier":
		// bare truthiness test
		if inf.parsed.Text(node) == name && positive {
			return removeNone(t)
		}
		return t

	case "not_operator":
		if arg := node.NamedChild(0); arg != nil {
			return inf.narrowByExpr(t, name, arg, !positive)
		}
		return t

	case "parenthesized_expression":
		return inf.narrowByExpr(t, name, node.NamedChild(0), positive)

	case "call":
		return inf.narrowByCall(t, name, node, positive)

	case "comparison_operator":
		return inf.narrowByComparison(t, name, node, positive)

	case "boolean_operator":
		op := ""
		if opNode := node.ChildByFieldName("operator"); opNode != nil {
			op = inf.parsed.Text(opNode)
		}
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		// `a and b` true means both are true; `a or b` false means both
		// are false. The mixed polarities prove nothing about one operand.
		if (op == "and" && positive) || (op == "or" && !positive) {
			t = inf.narrowByExpr(t, name, left, positive)
			t = inf.narrowByExpr(t, name, right, positive)
		}
		return t

	default:
		return t
	}
}

// narrowByCall handles isinstance tests; every other callable is opaque.
func (inf *Inferrer) narrowByCall(t Type, name string, node *sitter.Node, positive bool) Type {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || inf.parsed.Text(fn) != "isinstance" {
		return t
	}
	args := node.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() < 2 {
		return t
	}
	subject := args.NamedChild(0)
	if subject.Type() != "identifier" || inf.parsed.Text(subject) != name {
		return t
	}
	classes := inf.classArgument(args.NamedChild(1))
	if len(classes) == 0 {
		return t
	}
	if positive {
		members := make([]Type, 0, len(classes))
		for _, c := range classes {
			members = append(members, narrowToInstance(t, c))
		}
		return MakeUnion(members...)
	}
	for _, c := range classes {
		t = removeInstance(t, c)
	}
	return t
}

// classArgument resolves the second isinstance argument to concrete classes:
// a single class or a tuple of classes.
func (inf *Inferrer) classArgument(n *sitter.Node) []*Class {
	if n == nil {
		return nil
	}
	if n.Type() == "tuple" {
		var classes []*Class
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if cl, ok := inf.nodeType(n.NamedChild(i)).(ClassLiteral); ok {
				classes = append(classes, cl.Class)
			}
		}
		return classes
	}
	if cl, ok := inf.nodeType(n).(ClassLiteral); ok {
		return []*Class{cl.Class}
	}
	return nil
}

func (inf *Inferrer) narrowByComparison(t Type, name string, node *sitter.Node, positive bool) Type {
	// chained comparisons are left alone
	if node.NamedChildCount() != 2 {
		return t
	}
	left := node.NamedChild(0)
	right := node.NamedChild(1)
	op := comparisonOperator(inf, node)

	// normalize `None is x` / `1 == x` to name-on-the-left
	if right.Type() == "identifier" && inf.parsed.Text(right) == name {
		left, right = right, left
	}
	if left.Type() != "identifier" || inf.parsed.Text(left) != name {
		return t
	}

	switch op {
	case "is":
		if right.Type() == "none" {
			if positive {
				return None{}
			}
			return removeNone(t)
		}
	case "is not":
		if right.Type() == "none" {
			if positive {
				return removeNone(t)
			}
			return None{}
		}
	case "==":
		if lit, ok := literalOf(inf, right); ok {
			if positive {
				return narrowToLiteral(t, lit)
			}
			return removeLiteral(t, lit)
		}
	case "!=":
		if lit, ok := literalOf(inf, right); ok {
			if positive {
				return removeLiteral(t, lit)
			}
			return narrowToLiteral(t, lit)
		}
	}
	return t
}

// comparisonOperator gathers the operator tokens between the two operands,
// so `is not` and `not in` come back as one string.
func comparisonOperator(inf *Inferrer, node *sitter.Node) string {
	var parts []string
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if !c.IsNamed() {
			parts = append(parts, inf.parsed.Text(c))
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// literalOf extracts a comparable literal from a node, when it is one.
func literalOf(inf *Inferrer, n *sitter.Node) (Type, bool) {
	switch n.Type() {
	case "true":
		return LiteralBool{Value: true}, true
	case "false":
		return LiteralBool{Value: false}, true
	case "none":
		return None{}, true
	case "integer":
		if v, err := parsePyInt(inf.parsed.Text(n)); err == nil {
			return LiteralInt{Value: v}, true
		}
	case "string":
		return LiteralString{Value: stringContent(inf.parsed.Text(n))}, true
	case "unary_operator":
		if inner, ok := literalOf(inf, n.NamedChild(int(n.NamedChildCount())-1)); ok {
			if li, isInt := inner.(LiteralInt); isInt {
				return LiteralInt{Value: -li.Value}, true
			}
		}
	}
	return nil, false
}

// patterns

func (inf *Inferrer) narrowByPattern(t Type, name string, pat *index.Pattern, positive bool) Type {
	if pat == nil {
		return t
	}
	subject := inf.exprNode(pat.Subject)
	if subject == nil || subject.Type() != "identifier" || inf.parsed.Text(subject) != name {
		return t
	}
	return inf.applyPattern(t, pat, positive)
}

func (inf *Inferrer) applyPattern(t Type, pat *index.Pattern, positive bool) Type {
	switch pat.Kind {
	case index.PatternSingleton:
		node := inf.exprNode(pat.Value)
		if node == nil {
			return t
		}
		switch node.Type() {
		case "none":
			if positive {
				return None{}
			}
			return removeNone(t)
		case "true":
			if positive {
				return LiteralBool{Value: true}
			}
			return removeLiteral(t, LiteralBool{Value: true})
		case "false":
			if positive {
				return LiteralBool{Value: false}
			}
			return removeLiteral(t, LiteralBool{Value: false})
		}
		return t

	case index.PatternValue:
		node := inf.exprNode(pat.Value)
		if node == nil {
			return t
		}
		if lit, ok := literalOf(inf, node); ok {
			if positive {
				return narrowToLiteral(t, lit)
			}
			return removeLiteral(t, lit)
		}
		return t

	case index.PatternClass:
		cl, ok := inf.exprType(pat.Class).(ClassLiteral)
		if !ok {
			return t
		}
		if positive {
			return narrowToInstance(t, cl.Class)
		}
		return removeInstance(t, cl.Class)

	case index.PatternOr:
		if positive {
			// the subject matched one of the alternatives
			members := make([]Type, 0, len(pat.Subs))
			for _, sub := range pat.Subs {
				members = append(members, inf.applyPattern(t, sub, true))
			}
			return MakeUnion(members...)
		}
		for _, sub := range pat.Subs {
			t = inf.applyPattern(t, sub, false)
		}
		return t

	default:
		return t
	}
}

// lattice operations

// removeNone filters None out of a union. A bare None stays put: the test
// proved the branch dead, not a new type.
func removeNone(t Type) Type {
	u, ok := t.(Union)
	if !ok {
		return t
	}
	var kept []Type
	for _, m := range u.Members {
		if m.Kind() != KindNone {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 || len(kept) == len(u.Members) {
		return t
	}
	return MakeUnion(kept...)
}

// narrowToInstance intersects t with "is an instance of c".
func narrowToInstance(t Type, c *Class) Type {
	switch tt := t.(type) {
	case Unknown:
		return Instance{Class: c}
	case Instance:
		if tt.Class.DescendsFrom(c) {
			return t
		}
		if c.DescendsFrom(tt.Class) {
			return Instance{Class: c}
		}
		return Intersection{Pos: []Type{t, Instance{Class: c}}}
	case Union:
		var kept []Type
		for _, m := range tt.Members {
			n := narrowToInstance(m, c)
			if _, bad := n.(Intersection); bad {
				continue
			}
			kept = append(kept, n)
		}
		if len(kept) == 0 {
			return Instance{Class: c}
		}
		return MakeUnion(kept...)
	default:
		return Instance{Class: c}
	}
}

// removeInstance subtracts instances of c from a union; anything narrower
// than a union is left alone.
func removeInstance(t Type, c *Class) Type {
	u, ok := t.(Union)
	if !ok {
		return t
	}
	var kept []Type
	for _, m := range u.Members {
		if inst, isInst := m.(Instance); isInst && inst.Class.DescendsFrom(c) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 || len(kept) == len(u.Members) {
		return t
	}
	return MakeUnion(kept...)
}

// narrowToLiteral intersects t with an equality against a literal value.
func narrowToLiteral(t Type, lit Type) Type {
	switch tt := t.(type) {
	case Unknown:
		return lit
	case Union:
		for _, m := range tt.Members {
			if Equal(m, lit) {
				return lit
			}
		}
		return t
	default:
		if Equal(t, lit) {
			return lit
		}
		return t
	}
}

// removeLiteral drops an exact literal member from a union.
func removeLiteral(t Type, lit Type) Type {
	u, ok := t.(Union)
	if !ok {
		return t
	}
	var kept []Type
	for _, m := range u.Members {
		if Equal(m, lit) {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 || len(kept) == len(u.Members) {
		return t
	}
	return MakeUnion(kept...)
}
