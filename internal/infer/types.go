// Package infer assigns a type to every binding and expression of a file's
// semantic index, applies predicate narrowing along definition-to-use paths,
// resolves class hierarchies, and emits diagnostics. Unresolvable inputs
// degrade to Unknown, which absorbs across type operations so one bad import
// cannot cascade into many spurious errors.
package infer

import (
	"fmt"
	"strings"
)

// TypeKind enumerates the closed set of type variants. The engine needs
// exact-kind checks ("is this exactly Unknown?") and member enumeration,
// which the kind tag keeps cheap.
type TypeKind uint8

const (
	KindUnknown TypeKind = iota
	KindNone
	KindLiteralBool
	KindLiteralInt
	KindLiteralString
	KindTuple
	KindClassLiteral
	KindInstance
	KindUnion
	KindIntersection
	KindCallable
	KindModule
)

// Type is a structurally-compared type value. Implementations form a closed
// set; the engine switches exhaustively on Kind.
type Type interface {
	Kind() TypeKind
	String() string
}

// Unknown is the absorptive bottom of the gradual lattice: any operation on
// an Unknown operand is Unknown, without further diagnostics.
type Unknown struct{}

func (Unknown) Kind() TypeKind { return KindUnknown }
func (Unknown) String() string { return "Unknown" }

// None is the type of the None singleton.
type None struct{}

func (None) Kind() TypeKind { return KindNone }
func (None) String() string { return "None" }

// LiteralBool is a literal True/False type.
type LiteralBool struct{ Value bool }

func (LiteralBool) Kind() TypeKind { return KindLiteralBool }
func (t LiteralBool) String() string {
	if t.Value {
		return "Literal[True]"
	}
	return "Literal[False]"
}

// LiteralInt is a literal integer type.
type LiteralInt struct{ Value int64 }

func (LiteralInt) Kind() TypeKind   { return KindLiteralInt }
func (t LiteralInt) String() string { return fmt.Sprintf("Literal[%d]", t.Value) }

// LiteralString is a literal string type. Value is the unquoted content.
type LiteralString struct{ Value string }

func (LiteralString) Kind() TypeKind   { return KindLiteralString }
func (t LiteralString) String() string { return fmt.Sprintf("Literal[%q]", t.Value) }

// Tuple is a fixed-length heterogeneous tuple.
type Tuple struct{ Elems []Type }

func (Tuple) Kind() TypeKind { return KindTuple }
func (t Tuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "tuple[" + strings.Join(parts, ", ") + "]"
}

// ClassLiteral is the type of a class object itself.
type ClassLiteral struct{ Class *Class }

func (ClassLiteral) Kind() TypeKind   { return KindClassLiteral }
func (t ClassLiteral) String() string { return "type[" + t.Class.Name + "]" }

// Instance is an instance of a class.
type Instance struct{ Class *Class }

func (Instance) Kind() TypeKind   { return KindInstance }
func (t Instance) String() string { return t.Class.Name }

// Union is a set of alternatives. Member order is preserved for display;
// semantically the members are deduplicated by type identity, not text.
type Union struct{ Members []Type }

func (Union) Kind() TypeKind { return KindUnion }
func (t Union) String() string {
	parts := make([]string, len(t.Members))
	for i, m := range t.Members {
		parts[i] = m.String()
	}
	return strings.Join(parts, " | ")
}

// Intersection constrains a value by every positive member while excluding
// the negative ones.
type Intersection struct {
	Pos []Type
	Neg []Type
}

func (Intersection) Kind() TypeKind { return KindIntersection }
func (t Intersection) String() string {
	var parts []string
	for _, m := range t.Pos {
		parts = append(parts, m.String())
	}
	for _, m := range t.Neg {
		parts = append(parts, "~"+m.String())
	}
	return strings.Join(parts, " & ")
}

// Callable is a function type. Unannotated positions are Unknown.
type Callable struct {
	Params []Type
	Ret    Type
}

func (Callable) Kind() TypeKind { return KindCallable }
func (t Callable) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ") -> " + t.Ret.String()
}

// Module is the type of an imported module object.
type Module struct{ Name string }

func (Module) Kind() TypeKind   { return KindModule }
func (t Module) String() string { return "<module " + t.Name + ">" }

// Equal structurally compares two types. Classes compare by declaration
// identity (name plus defining span), so equality is stable across separate
// inference runs; the early-cutoff comparison depends on that.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch at := a.(type) {
	case Unknown, None:
		return true
	case LiteralBool:
		return at.Value == b.(LiteralBool).Value
	case LiteralInt:
		return at.Value == b.(LiteralInt).Value
	case LiteralString:
		return at.Value == b.(LiteralString).Value
	case Tuple:
		return typesEqual(at.Elems, b.(Tuple).Elems)
	case ClassLiteral:
		return at.Class.sameDecl(b.(ClassLiteral).Class)
	case Instance:
		return at.Class.sameDecl(b.(Instance).Class)
	case Union:
		return typesEqual(at.Members, b.(Union).Members)
	case Intersection:
		bt := b.(Intersection)
		return typesEqual(at.Pos, bt.Pos) && typesEqual(at.Neg, bt.Neg)
	case Callable:
		bt := b.(Callable)
		return typesEqual(at.Params, bt.Params) && Equal(at.Ret, bt.Ret)
	case Module:
		return at.Name == b.(Module).Name
	}
	return false
}

func typesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// MakeUnion forms a union from members: nested unions flatten, duplicates
// collapse by type identity, a single member stands alone, and Unknown
// absorbs the whole union.
func MakeUnion(members ...Type) Type {
	var flat []Type
	var add func(t Type)
	add = func(t Type) {
		if t == nil {
			return
		}
		if u, ok := t.(Union); ok {
			for _, m := range u.Members {
				add(m)
			}
			return
		}
		for _, existing := range flat {
			if Equal(existing, t) {
				return
			}
		}
		flat = append(flat, t)
	}
	for _, m := range members {
		add(m)
	}
	for _, m := range flat {
		if m.Kind() == KindUnknown {
			return Unknown{}
		}
	}
	switch len(flat) {
	case 0:
		return Unknown{}
	case 1:
		return flat[0]
	}
	return Union{Members: flat}
}
