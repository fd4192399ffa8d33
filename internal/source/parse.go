package source

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxError records one error-recovery region reported by the parser.
// Downstream layers tolerate a non-empty error list: constructs inside the
// region still receive scopes and bindings and simply infer as Unknown.
type SyntaxError struct {
	Span    Span
	Message string
}

// ParsedModule is the parser collaborator's output: the concrete syntax tree
// for one file revision plus its syntax-error list and line index. The tree
// is immutable once published and is replaced wholesale on the next revision.
type ParsedModule struct {
	Source []byte
	Tree   *sitter.Tree
	Errors []SyntaxError
	Lines  *LineIndex
}

// Parse parses src as Python. Parse never fails on malformed input; the
// grammar's error recovery produces ERROR/MISSING nodes which are collected
// into the Errors list. The returned error is reserved for parser-level
// faults (cancellation, exhausted memory).
func Parse(ctx context.Context, src []byte) (*ParsedModule, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("source: parse: %w", err)
	}

	m := &ParsedModule{
		Source: src,
		Tree:   tree,
		Lines:  NewLineIndex(src),
	}
	if tree.RootNode().HasError() {
		m.Errors = collectSyntaxErrors(tree.RootNode())
	}
	return m, nil
}

// Equal compares two parses by tree identity: node kinds, byte spans, and
// token text. Edits the parser discards entirely, such as trailing
// whitespace after the last token, compare equal, so this is the cutoff
// comparison for everything derived from a parse. The root node's own
// extent is ignored; it stretches over trailing trivia.
func (m *ParsedModule) Equal(other any) bool {
	o, ok := other.(*ParsedModule)
	if !ok {
		return false
	}
	if m == nil || o == nil {
		return m == o
	}
	if string(m.Source) == string(o.Source) {
		return true
	}
	a, b := m.Root(), o.Root()
	if a.Type() != b.Type() || a.ChildCount() != b.ChildCount() {
		return false
	}
	for i := 0; i < int(a.ChildCount()); i++ {
		if !nodesEqual(a.Child(i), b.Child(i), m.Source, o.Source) {
			return false
		}
	}
	return true
}

// nodesEqual compares two subtrees node for node. Leaf nodes additionally
// compare their covered text, since identical spans over different sources
// can hold different tokens.
func nodesEqual(a, b *sitter.Node, asrc, bsrc []byte) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() || a.StartByte() != b.StartByte() || a.EndByte() != b.EndByte() {
		return false
	}
	count := a.ChildCount()
	if count != b.ChildCount() {
		return false
	}
	if count == 0 {
		return a.Content(asrc) == b.Content(bsrc)
	}
	for i := 0; i < int(count); i++ {
		if !nodesEqual(a.Child(i), b.Child(i), asrc, bsrc) {
			return false
		}
	}
	return true
}

// Root returns the module node.
func (m *ParsedModule) Root() *sitter.Node {
	return m.Tree.RootNode()
}

// NodeSpan converts a node's byte range to a Span.
func NodeSpan(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// Text returns the source text covered by n.
func (m *ParsedModule) Text(n *sitter.Node) string {
	return n.Content(m.Source)
}

// Comments returns every comment node in the tree, in source order.
func (m *ParsedModule) Comments() []*sitter.Node {
	var comments []*sitter.Node
	Walk(m.Root(), func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			comments = append(comments, n)
		}
		return true
	})
	return comments
}

// Walk traverses every node (named and anonymous) under root in document
// order. fn returning false skips the node's children.
func Walk(root *sitter.Node, fn func(n *sitter.Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		Walk(root.Child(i), fn)
	}
}

func collectSyntaxErrors(root *sitter.Node) []SyntaxError {
	var errs []SyntaxError
	Walk(root, func(n *sitter.Node) bool {
		switch {
		case n.IsError():
			errs = append(errs, SyntaxError{
				Span:    NodeSpan(n),
				Message: "syntax error",
			})
			// Children of an ERROR node are recovery artifacts; the region
			// is already reported.
			return true
		case n.IsMissing():
			errs = append(errs, SyntaxError{
				Span:    NodeSpan(n),
				Message: fmt.Sprintf("expected %q", n.Type()),
			})
		}
		return true
	})
	return errs
}
