// Package suppress matches diagnostics against inline suppression comments.
//
// Two comment forms silence diagnostics: the conventional `# type: ignore`
// and the tool-specific `# taproot: ignore`. A suppression covers the
// logical line it sits on: for a statement spanning several physical lines,
// the whole statement is covered when the comment sits on the statement's
// last line.
package suppress

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
)

// Entry is one suppression comment's covered byte range.
type Entry struct {
	Span source.Span
	Line int // 1-based line the comment ends on
}

// Table holds a file's suppression ranges, sorted by end offset.
type Table struct {
	entries []Entry
}

// Build scans the parse tree's comments and computes the covered range for
// each recognized suppression.
func Build(parsed *source.ParsedModule) *Table {
	t := &Table{}
	for _, c := range parsed.Comments() {
		if !isSuppression(parsed.Text(c)) {
			continue
		}
		end := int(c.EndByte())
		line := parsed.Lines.LineForOffset(int(c.StartByte()))
		start := parsed.Lines.LineStart(line)
		start = widenToStatement(parsed, start, line)
		t.entries = append(t.entries, Entry{
			Span: source.Span{Start: start, End: end},
			Line: line,
		})
	}
	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].Span.End < t.entries[j].Span.End
	})
	return t
}

// isSuppression recognizes the two accepted comment forms, allowing
// trailing free text after the marker.
func isSuppression(text string) bool {
	body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	return strings.HasPrefix(body, "type: ignore") ||
		strings.HasPrefix(body, "taproot: ignore")
}

// widenToStatement extends the covered range to the start of any statement
// that ends on the comment's line, so multi-line statements (implicit
// continuations, multi-line strings) are covered by a comment on their last
// line.
func widenToStatement(parsed *source.ParsedModule, start, line int) int {
	widened := start
	source.Walk(parsed.Root(), func(n *sitter.Node) bool {
		if int(n.StartByte()) >= widened {
			return false
		}
		if isStatementNode(n.Type()) {
			endLine := parsed.Lines.LineForOffset(int(n.EndByte()) - 1)
			if endLine == line {
				widened = int(n.StartByte())
				return false
			}
		}
		return true
	})
	return widened
}

func isStatementNode(nodeType string) bool {
	if strings.HasSuffix(nodeType, "_statement") {
		return true
	}
	switch nodeType {
	case "function_definition", "class_definition", "decorated_definition":
		return true
	}
	return false
}

// Find returns the index of the suppression covering a diagnostic at span,
// in end-offset order. A suppression covers a diagnostic when the
// diagnostic's end offset falls inside the suppression's range: a diagnostic
// starting before the covered line but ending on it is suppressed, one
// merely starting on it is not.
//
// ruleID is accepted for selective suppression but not yet consulted; every
// match suppresses all rules.
func (t *Table) Find(span source.Span, ruleID string) (int, bool) {
	_ = ruleID
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Span.End >= span.End
	})
	for ; i < len(t.entries); i++ {
		e := t.entries[i]
		if e.Span.Start <= span.End && span.End <= e.Span.End {
			return i, true
		}
	}
	return 0, false
}

// Matches reports whether a diagnostic at span is suppressed.
func (t *Table) Matches(span source.Span, ruleID string) bool {
	_, ok := t.Find(span, ruleID)
	return ok
}

// Len returns the number of suppression entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns the table's ranges in end-offset order.
func (t *Table) Entries() []Entry {
	return t.entries
}

// Apply marks matching diagnostics as suppressed, in place, and returns the
// number marked.
func (t *Table) Apply(diags []diag.Diagnostic) int {
	n := 0
	for i := range diags {
		if t.Matches(diags[i].Span, diags[i].Rule) {
			diags[i].Suppressed = true
			n++
		}
	}
	return n
}
