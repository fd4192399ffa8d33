package infer

import (
	"github.com/jward/taproot/internal/index"
	"github.com/jward/taproot/internal/source"
)

// SlotsKind classifies a class's __slots__ declaration. Dynamic and
// unsupported values mean "no guarantee", never "assume empty", so they can
// not make a class solid and can not produce conflict diagnostics.
type SlotsKind uint8

const (
	SlotsAbsent SlotsKind = iota
	SlotsEmpty
	SlotsNamed
	SlotsDynamic
)

// Class is the inference engine's view of a class declaration, builtin or
// user-defined. Pointer identity holds within one inference run; structural
// identity (name + span) holds across runs.
type Class struct {
	Name    string
	Builtin bool
	Span    source.Span // zero for builtins

	Bases []*Class // resolved explicit bases, in declaration order

	Def *index.ClassDef // nil for builtins

	Slots      SlotsKind
	SlotsNames []string

	mro        []*Class
	mroDone    bool
	mroFailure bool
}

func (c *Class) sameDecl(other *Class) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.Name == other.Name && c.Builtin == other.Builtin && c.Span == other.Span
}

// DescendsFrom reports whether c's MRO includes ancestor.
func (c *Class) DescendsFrom(ancestor *Class) bool {
	for _, m := range c.MRO() {
		if m.sameDecl(ancestor) {
			return true
		}
	}
	return false
}

// MRO returns the C3 linearization of the class. An inconsistent hierarchy
// falls back to [c, object-chain-of-first-base]; the caller reports the
// failure exactly once via MROFailed.
func (c *Class) MRO() []*Class {
	if c.mroDone {
		return c.mro
	}
	c.mroDone = true
	mro, ok := c3Linearize(c)
	if !ok {
		c.mroFailure = true
		mro = []*Class{c}
		if len(c.Bases) > 0 {
			mro = append(mro, c.Bases[0].MRO()...)
		}
	}
	c.mro = mro
	return c.mro
}

// MROFailed reports whether linearization was inconsistent.
func (c *Class) MROFailed() bool {
	c.MRO()
	return c.mroFailure
}

// SolidBase returns the first class in c's MRO declaring a concrete,
// non-empty __slots__, or nil if none does.
func (c *Class) SolidBase() *Class {
	for _, m := range c.MRO() {
		if m.Slots == SlotsNamed && len(m.SlotsNames) > 0 {
			return m
		}
	}
	return nil
}

// c3Linearize computes the C3 MRO: c followed by the merge of its bases'
// linearizations and the base list itself.
func c3Linearize(c *Class) ([]*Class, bool) {
	seqs := make([][]*Class, 0, len(c.Bases)+1)
	for _, base := range c.Bases {
		if base == c {
			return nil, false
		}
		baseMRO := base.MRO()
		seqs = append(seqs, append([]*Class(nil), baseMRO...))
	}
	seqs = append(seqs, append([]*Class(nil), c.Bases...))

	result := []*Class{c}
	for {
		seqs = dropEmpty(seqs)
		if len(seqs) == 0 {
			return result, true
		}
		head := pickHead(seqs)
		if head == nil {
			return nil, false
		}
		result = append(result, head)
		for i := range seqs {
			if len(seqs[i]) > 0 && seqs[i][0].sameDecl(head) {
				seqs[i] = seqs[i][1:]
			}
		}
	}
}

// pickHead finds the first sequence head that appears in no other sequence's
// tail, per C3.
func pickHead(seqs [][]*Class) *Class {
	for _, seq := range seqs {
		head := seq[0]
		inTail := false
		for _, other := range seqs {
			for _, m := range other[1:] {
				if m.sameDecl(head) {
					inTail = true
					break
				}
			}
			if inTail {
				break
			}
		}
		if !inTail {
			return head
		}
	}
	return nil
}

func dropEmpty(seqs [][]*Class) [][]*Class {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// builtinClassNames lists the builtin classes the engine models, in
// dependency order: bases precede subclasses.
var builtinClassBases = [][2]string{
	{"object", ""},
	{"type", "object"},
	{"int", "object"},
	{"bool", "int"},
	{"float", "object"},
	{"str", "object"},
	{"bytes", "object"},
	{"bytearray", "object"},
	{"list", "object"},
	{"dict", "object"},
	{"set", "object"},
	{"frozenset", "object"},
	{"tuple", "object"},
	{"range", "object"},
	{"slice", "object"},
	{"property", "object"},
	{"staticmethod", "object"},
	{"classmethod", "object"},
	{"BaseException", "object"},
	{"Exception", "BaseException"},
	{"ArithmeticError", "Exception"},
	{"AssertionError", "Exception"},
	{"AttributeError", "Exception"},
	{"ImportError", "Exception"},
	{"LookupError", "Exception"},
	{"IndexError", "LookupError"},
	{"KeyError", "LookupError"},
	{"NameError", "Exception"},
	{"OSError", "Exception"},
	{"RuntimeError", "Exception"},
	{"StopIteration", "Exception"},
	{"TypeError", "Exception"},
	{"ValueError", "Exception"},
	{"ZeroDivisionError", "ArithmeticError"},
}

// newBuiltinClasses constructs the builtin class registry.
func newBuiltinClasses() map[string]*Class {
	classes := make(map[string]*Class, len(builtinClassBases))
	for _, entry := range builtinClassBases {
		c := &Class{Name: entry[0], Builtin: true}
		if entry[1] != "" {
			c.Bases = []*Class{classes[entry[1]]}
		}
		classes[entry[0]] = c
	}
	return classes
}
